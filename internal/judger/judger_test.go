package judger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareOutputExactMatch(t *testing.T) {
	require.True(t, CompareOutput("hello\nworld\n", "hello\nworld\n"))
}

func TestCompareOutputTrailingWhitespace(t *testing.T) {
	require.True(t, CompareOutput("hello  \nworld\n", "hello\nworld\n"))
}

func TestCompareOutputTrailingNewlines(t *testing.T) {
	require.True(t, CompareOutput("hello\nworld\n\n\n", "hello\nworld\n"))
}

func TestCompareOutputDifferent(t *testing.T) {
	require.False(t, CompareOutput("hello\nworld\n", "hello\nearth\n"))
}
