package anigma

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/verdict"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func ran(stdout string) executer.ExecutionOutcome {
	return executer.ExecutionOutcome{Status: executer.Exited, ExitCode: 0, Stdout: stdout}
}

func failed() executer.ExecutionOutcome {
	return executer.ExecutionOutcome{Status: executer.Exited, ExitCode: 1}
}

func TestTask1OutcomeBothRanDifferingOutputs(t *testing.T) {
	v, score, msg := task1Outcome(ran("a"), ran("b"))
	require.Equal(t, verdict.Accepted, v)
	require.Equal(t, int64(30), score)
	require.Empty(t, msg)
}

func TestTask1OutcomeBothRanEqualOutputs(t *testing.T) {
	v, score, _ := task1Outcome(ran("same"), ran("same"))
	require.Equal(t, verdict.WrongAnswer, v)
	require.Zero(t, score)
}

func TestTask1OutcomeAFailedBRan(t *testing.T) {
	v, score, msg := task1Outcome(failed(), ran("out"))
	require.Equal(t, verdict.Accepted, v)
	require.Equal(t, int64(30), score)
	require.Empty(t, msg)
}

func TestTask1OutcomeARanBFailed(t *testing.T) {
	v, score, msg := task1Outcome(ran("out"), failed())
	require.Equal(t, verdict.SystemError, v)
	require.Zero(t, score)
	require.Contains(t, msg, "code B execution failed")
}

func TestTask1OutcomeBothFailed(t *testing.T) {
	v, score, msg := task1Outcome(failed(), failed())
	require.Equal(t, verdict.SystemError, v)
	require.Zero(t, score)
	require.Contains(t, msg, "both failed")
}

func TestMakeRunCommandWrapsShell(t *testing.T) {
	cmd := makeRunCommand("input.bin")
	require.Equal(t, "sh", cmd[0])
	require.Equal(t, "-c", cmd[1])
	require.Contains(t, cmd[2], "make -s run file=input.bin")
	require.Contains(t, cmd[2], "ln -sf /usr/bin/python3 bin/python")
}

func TestHasMakefileIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	require.False(t, hasMakefile(dir))

	writeFile(t, dir, "makefile", "build:\n")
	require.True(t, hasMakefile(dir))
}
