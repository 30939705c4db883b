package playground

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coderunr/judgeworker/internal/executer"
)

func TestStageBundleWritesRelativeFiles(t *testing.T) {
	root := t.TempDir()
	err := stageBundle(root, []BundleFile{
		{Path: "main.cpp", Content: base64.StdEncoding.EncodeToString([]byte("int main(){}"))},
		{Path: "sub/helper.h", Content: base64.StdEncoding.EncodeToString([]byte("// h"))},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "main.cpp"))
	require.NoError(t, err)
	require.Equal(t, "int main(){}", string(data))

	data, err = os.ReadFile(filepath.Join(root, "sub", "helper.h"))
	require.NoError(t, err)
	require.Equal(t, "// h", string(data))
}

func TestStageBundleRejectsAbsolutePath(t *testing.T) {
	root := t.TempDir()
	err := stageBundle(root, []BundleFile{{Path: "/etc/passwd", Content: ""}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "must be relative")
}

func TestStageBundleRejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	err := stageBundle(root, []BundleFile{{Path: "../escape.txt", Content: ""}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes bundle root")
}

func TestSubstituteFilename(t *testing.T) {
	argv := []string{"g++", "-O2", "-o", "main", "main.cpp"}
	out := substituteFilename(argv, "main.cpp", "solution.cpp")
	require.Equal(t, []string{"g++", "-O2", "-o", "main", "solution.cpp"}, out)
}

func TestSubstituteFilenamePassesThroughNilArgv(t *testing.T) {
	require.Nil(t, substituteFilename(nil, "main.py", "solution.py"))
}

func TestStripJavaToolOptionsDropsMatchingLines(t *testing.T) {
	in := "Picked up JAVA_TOOL_OPTIONS: -Xmx512m\nhello\nworld\n"
	require.Equal(t, "hello\nworld\n", stripJavaToolOptions(in))
}

func TestStripJavaToolOptionsLeavesOtherOutputAlone(t *testing.T) {
	require.Equal(t, "hello\n", stripJavaToolOptions("hello\n"))
}

func TestStatusLabel(t *testing.T) {
	require.Equal(t, "ok", statusLabel(executer.ExecutionOutcome{Status: executer.Exited, ExitCode: 0}))
	require.Equal(t, "runtime_error", statusLabel(executer.ExecutionOutcome{Status: executer.Exited, ExitCode: 1}))
	require.Equal(t, "time_limit_exceeded", statusLabel(executer.ExecutionOutcome{Status: executer.TimeLimitExceeded}))
	require.Equal(t, "memory_limit_exceeded", statusLabel(executer.ExecutionOutcome{Status: executer.MemoryLimitExceeded}))
	require.Equal(t, "system_error", statusLabel(executer.ExecutionOutcome{Status: executer.SystemError}))
}

func TestCollectCreatedFilesExcludesBookkeeping(t *testing.T) {
	workDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "input.txt"), []byte("in"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "stdout.txt"), []byte("out"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "stderr.txt"), []byte("err"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "out.bin"), []byte{0x00, 0x01, 0xFF}, 0644))

	files, err := collectCreatedFiles(workDir, "input.txt")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "out.bin", files[0].Path)
	require.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x00, 0x01, 0xFF}), files[0].ContentBase64)
}
