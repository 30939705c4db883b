// Package compiler compiles submitted user code and trusted comparator
// programs (checkers, validators), the latter cached on disk per problem
// keyed by problem id and rebuilt only when the source changes.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/languages"
)

const (
	defaultCompileTimeMs   = 30_000
	defaultCompileMemoryMB = 2048

	trustedCompileTimeMs   = 60_000
	trustedCompileMemoryMB = 2048
)

// Result is the outcome of compiling a user submission.
type Result struct {
	Success bool
	Message string
}

// CompileUser compiles a submission's source in workdir using descriptor's
// compile argv. Interpreted languages (no compile argv) succeed trivially.
func CompileUser(ctx context.Context, workdir string, descriptor *languages.Descriptor, timeMs, memoryMB uint32, log *logrus.Entry) (Result, error) {
	if len(descriptor.CompileCommand) == 0 {
		return Result{Success: true}, nil
	}

	if timeMs == 0 {
		timeMs = defaultCompileTimeMs
	}
	if memoryMB == 0 {
		memoryMB = defaultCompileMemoryMB
	}

	spec := executer.ExecutionSpec{
		WorkDir:        workdir,
		Command:        descriptor.CompileCommand,
		Limits:         executer.ExecutionLimits{TimeMs: timeMs, MemoryMB: memoryMB},
		CopyOutDir:     workdir,
		SeparateStderr: true,
	}

	outcome, err := executer.ExecuteSandboxed(ctx, spec, log)
	if err != nil {
		return Result{}, fmt.Errorf("compile invocation failed: %w", err)
	}

	if outcome.IsSuccess() {
		return Result{Success: true}, nil
	}

	return Result{Success: false, Message: compileErrorMessage(outcome)}, nil
}

func compileErrorMessage(o executer.ExecutionOutcome) string {
	if o.Stderr != "" {
		return o.Stderr
	}
	if o.Stdout != "" {
		return o.Stdout
	}
	switch o.Status {
	case executer.TimeLimitExceeded:
		return "compilation timed out"
	case executer.Signaled, executer.RuntimeError:
		return "compiler crashed"
	case executer.Exited:
		return fmt.Sprintf("compilation failed with exit code %d", o.ExitCode)
	default:
		return "compilation failed"
	}
}

// TrustedResult is the outcome of compiling a trusted comparator.
type TrustedResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Success  bool
}

// compileTrustedCPP compiles a single-file C++ program (a checker, validator,
// or anigma comparator) without per-submission sandboxing limits, linking
// against the bundled testlib.h header.
func compileTrustedCPP(ctx context.Context, sourcePath, binaryName, testlibDir string, log *logrus.Entry) (TrustedResult, error) {
	workdir := filepath.Dir(sourcePath)
	sourceName := filepath.Base(sourcePath)

	command := []string{"g++", "-O2", "-std=c++17", "-I" + testlibDir, "-o", binaryName, sourceName}

	spec := executer.ExecutionSpec{
		WorkDir:        workdir,
		Command:        command,
		Limits:         executer.ExecutionLimits{TimeMs: trustedCompileTimeMs, MemoryMB: trustedCompileMemoryMB},
		CopyOutDir:     workdir,
		SeparateStderr: true,
	}

	outcome, err := executer.ExecuteSandboxed(ctx, spec, log)
	if err != nil {
		return TrustedResult{}, fmt.Errorf("g++ invocation failed: %w", err)
	}

	return TrustedResult{
		ExitCode: outcome.ExitCode,
		Stdout:   outcome.Stdout,
		Stderr:   outcome.Stderr,
		Success:  outcome.IsSuccess(),
	}, nil
}

// TrustedCompiler compiles and caches one flavour of trusted program
// (checker or validator) keyed by problem id, recompiling only when the
// source content changes.
type TrustedCompiler struct {
	name       string
	testlibDir string
	cacheDir   string
	log        *logrus.Entry
}

// NewTrustedCompiler builds a compiler for the named trusted-program kind
// ("checker", "validator", "anigma_checker", ...), caching under cacheDir.
func NewTrustedCompiler(name, cacheDir, testlibDir string, log *logrus.Entry) *TrustedCompiler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TrustedCompiler{name: name, testlibDir: testlibDir, cacheDir: cacheDir, log: log}
}

// GetOrCompile returns the path to a compiled binary for problemID,
// compiling (or recompiling on content change) as needed.
func (t *TrustedCompiler) GetOrCompile(ctx context.Context, sourceContent string, problemID int64) (string, error) {
	compDir := filepath.Join(t.cacheDir, fmt.Sprintf("%s_%d", t.name, problemID))
	if err := os.MkdirAll(compDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create cache dir: %w", err)
	}

	sourcePath := filepath.Join(compDir, t.name+".cpp")
	binaryPath := filepath.Join(compDir, t.name)

	needCompile := true
	if cached, err := os.ReadFile(sourcePath); err == nil {
		if _, statErr := os.Stat(binaryPath); statErr == nil && string(cached) == sourceContent {
			needCompile = false
			t.log.WithFields(logrus.Fields{"kind": t.name, "problem_id": problemID}).Debug("using cached trusted binary")
		}
	}

	if !needCompile {
		return binaryPath, nil
	}

	if err := os.WriteFile(sourcePath, []byte(sourceContent), 0644); err != nil {
		return "", fmt.Errorf("failed to write source: %w", err)
	}

	t.log.WithFields(logrus.Fields{"kind": t.name, "problem_id": problemID}).Info("compiling trusted program")

	result, err := compileTrustedCPP(ctx, sourcePath, t.name, t.testlibDir, t.log)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("failed to compile %s: %s", t.name, result.Stderr)
	}

	return binaryPath, nil
}

// ClearCache removes the cached source and binary for problemID.
func (t *TrustedCompiler) ClearCache(problemID int64) error {
	compDir := filepath.Join(t.cacheDir, fmt.Sprintf("%s_%d", t.name, problemID))
	if _, err := os.Stat(compDir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(compDir)
}
