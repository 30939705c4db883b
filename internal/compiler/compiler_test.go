package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderunr/judgeworker/internal/executer"
)

func TestCompileErrorMessagePrefersStderr(t *testing.T) {
	msg := compileErrorMessage(executer.ExecutionOutcome{Stderr: "boom", Stdout: "ignored"})
	require.Equal(t, "boom", msg)
}

func TestCompileErrorMessageFallsBackToStdout(t *testing.T) {
	msg := compileErrorMessage(executer.ExecutionOutcome{Stdout: "compiler said no"})
	require.Equal(t, "compiler said no", msg)
}

func TestCompileErrorMessageFallsBackToStatus(t *testing.T) {
	require.Equal(t, "compilation timed out", compileErrorMessage(executer.ExecutionOutcome{Status: executer.TimeLimitExceeded}))
	require.Equal(t, "compiler crashed", compileErrorMessage(executer.ExecutionOutcome{Status: executer.Signaled}))
	require.Equal(t, "compilation failed with exit code 1", compileErrorMessage(executer.ExecutionOutcome{Status: executer.Exited, ExitCode: 1}))
	require.Equal(t, "compilation failed", compileErrorMessage(executer.ExecutionOutcome{Status: executer.SystemError}))
}
