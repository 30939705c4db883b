package verdict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromTestlibExitCodeKnownCodes(t *testing.T) {
	require.Equal(t, Accepted, FromTestlibExitCode(0))
	require.Equal(t, WrongAnswer, FromTestlibExitCode(1))
	require.Equal(t, PresentationError, FromTestlibExitCode(2))
	require.Equal(t, Fail, FromTestlibExitCode(3))
	require.Equal(t, WrongAnswer, FromTestlibExitCode(4))
	require.Equal(t, WrongAnswer, FromTestlibExitCode(8))
}

func TestFromTestlibExitCodeUnknownWithinRange(t *testing.T) {
	require.Equal(t, WrongAnswer, FromTestlibExitCode(5))
}

func TestFromTestlibExitCodeOutOfRange(t *testing.T) {
	require.Equal(t, SystemError, FromTestlibExitCode(-1))
	require.Equal(t, SystemError, FromTestlibExitCode(128))
}
