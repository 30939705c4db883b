package anigma

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, entries map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return r
}

func TestExtractZipWritesNestedFiles(t *testing.T) {
	destDir := t.TempDir()
	r := buildZip(t, map[string]string{
		"main.cpp":     "int main(){}",
		"sub/helper.h": "// header",
	})

	require.NoError(t, extractZip(r, destDir))

	data, err := os.ReadFile(filepath.Join(destDir, "main.cpp"))
	require.NoError(t, err)
	require.Equal(t, "int main(){}", string(data))

	data, err = os.ReadFile(filepath.Join(destDir, "sub", "helper.h"))
	require.NoError(t, err)
	require.Equal(t, "// header", string(data))
}

func TestExtractZipRejectsPathTraversal(t *testing.T) {
	destDir := t.TempDir()
	r := buildZip(t, map[string]string{
		"../escape.txt": "nope",
	})

	err := extractZip(r, destDir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "escapes destination")
}

func TestReadAllSourceFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.cpp"), []byte("B"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cpp"), []byte("A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "c.py"), []byte("C"), 0644))

	out, err := readAllSourceFiles(dir)
	require.NoError(t, err)
	require.Equal(t, "A\nB\nC\n", out)
}
