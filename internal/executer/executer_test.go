package executer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextBoxIDStaysWithinWorkerPartition(t *testing.T) {
	const workerID = uint32(3)
	for i := 0; i < 50; i++ {
		id := NextBoxID(workerID)
		require.GreaterOrEqual(t, id, workerID*1000)
		require.Less(t, id, (workerID+1)*1000)
	}
}

func TestNextBoxIDDistinctAcrossWorkers(t *testing.T) {
	idA := NextBoxID(1)
	idB := NextBoxID(2)
	require.NotEqual(t, idA, idB)
	require.Less(t, idA, uint32(2000))
	require.GreaterOrEqual(t, idB, uint32(2000))
}
