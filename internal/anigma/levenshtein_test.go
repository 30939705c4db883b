package anigma

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevenshteinIdentical(t *testing.T) {
	require.Equal(t, uint32(0), levenshtein([]byte("abc"), []byte("abc")))
}

func TestLevenshteinEmptyOperand(t *testing.T) {
	require.Equal(t, uint32(3), levenshtein([]byte("abc"), []byte("")))
	require.Equal(t, uint32(3), levenshtein([]byte(""), []byte("abc")))
}

func TestLevenshteinSingleEdit(t *testing.T) {
	require.Equal(t, uint32(1), levenshtein([]byte("kitten"), []byte("kitte")))
}

func TestLevenshteinClassic(t *testing.T) {
	require.Equal(t, uint32(3), levenshtein([]byte("kitten"), []byte("sitting")))
}
