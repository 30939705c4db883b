// Package checker runs testlib.h-based comparators for special_judge
// problems and manages their compiled-binary cache.
package checker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/compiler"
	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/storage"
	"github.com/coderunr/judgeworker/internal/verdict"
)

// DefaultCheckerTimeoutSecs is the default CPU-time cap for a checker run
// (the sandbox allows twice that plus one second of wall-clock time).
const DefaultCheckerTimeoutSecs = 30

const checkerMemoryMB = 1024

// Result is the outcome of one checker invocation.
type Result struct {
	Verdict verdict.Verdict
	Message string
}

// Run copies (input, user-output, answer) into a fresh workdir under the
// standard testlib filenames and invokes the compiled checker binary
// against them.
func Run(ctx context.Context, checkerBinary string, input, userOutput, answer []byte, timeoutSecs uint32, log *logrus.Entry) (Result, error) {
	workdir, err := os.MkdirTemp("", "checker-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create checker workdir: %w", err)
	}
	defer os.RemoveAll(workdir)

	if err := copyInto(checkerBinary, filepath.Join(workdir, "checker")); err != nil {
		return Result{}, fmt.Errorf("failed to stage checker binary: %w", err)
	}

	if err := writeInto(workdir, "input.txt", input); err != nil {
		return Result{}, err
	}
	if err := writeInto(workdir, "output.txt", userOutput); err != nil {
		return Result{}, err
	}
	if err := writeInto(workdir, "answer.txt", answer); err != nil {
		return Result{}, err
	}

	if timeoutSecs == 0 {
		timeoutSecs = DefaultCheckerTimeoutSecs
	}

	spec := executer.ExecutionSpec{
		WorkDir:        workdir,
		Command:        []string{"./checker", "input.txt", "output.txt", "answer.txt"},
		Limits:         executer.ExecutionLimits{TimeMs: timeoutSecs * 1000, MemoryMB: checkerMemoryMB},
		SeparateStderr: true,
	}

	outcome, err := executer.ExecuteTrusted(ctx, spec, log)
	if err != nil {
		return Result{}, fmt.Errorf("failed to run checker: %w", err)
	}

	message := strings.TrimSpace(outcome.Stderr)
	if message == "" {
		message = strings.TrimSpace(outcome.Stdout)
	}

	// Only a checker that exited on its own has a testlib exit code; a
	// timed-out, killed or crashed checker is a system error.
	if outcome.Status != executer.Exited && outcome.Status != executer.RuntimeError {
		return Result{Verdict: verdict.SystemError, Message: message}, nil
	}

	v := verdict.FromTestlibExitCode(outcome.ExitCode)

	return Result{Verdict: v, Message: message}, nil
}

// Manager compiles and caches checker binaries per problem, downloading
// checker source from object storage on first use.
type Manager struct {
	compiler *compiler.TrustedCompiler
}

// NewManager builds a checker Manager caching compiled binaries under
// cacheDir and linking against testlibDir's testlib.h.
func NewManager(cacheDir, testlibDir string, log *logrus.Entry) *Manager {
	return &Manager{compiler: compiler.NewTrustedCompiler("checker", cacheDir, testlibDir, log)}
}

// GetChecker downloads the checker source from checkerSourcePath (if not
// already cached with matching content) and returns the compiled binary path.
func (m *Manager) GetChecker(ctx context.Context, store *storage.Client, checkerSourcePath string, problemID int64) (string, error) {
	source, err := store.DownloadText(ctx, checkerSourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to download checker source: %w", err)
	}
	return m.compiler.GetOrCompile(ctx, source, problemID)
}

// ClearCache removes the cached checker for problemID.
func (m *Manager) ClearCache(problemID int64) error {
	return m.compiler.ClearCache(problemID)
}

func copyInto(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0755)
}

func writeInto(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
