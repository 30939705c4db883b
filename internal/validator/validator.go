// Package validator runs testlib.h-based input validators over a
// problem's testcase inputs and reports per-testcase validity.
package validator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/compiler"
	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/storage"
)

// DefaultValidatorTimeoutSecs is the default CPU-time cap for a validator run
// (the sandbox allows twice that plus one second of wall-clock time).
const DefaultValidatorTimeoutSecs = 30

const validatorMemoryMB = 512

// TestcaseInput names one testcase input to validate.
type TestcaseInput struct {
	ID        int64  `json:"id"`
	InputPath string `json:"input_path"`
}

// Job is a validation job pulled off the queue.
type Job struct {
	ProblemID      int64           `json:"problem_id"`
	ValidatorPath  string          `json:"validator_path"`
	TestcaseInputs []TestcaseInput `json:"testcase_inputs"`
}

// TestcaseValidationResult is one testcase's validation outcome.
type TestcaseValidationResult struct {
	TestcaseID int64  `json:"testcase_id"`
	Valid      bool   `json:"valid"`
	Message    string `json:"message,omitempty"`
}

// Result is the published outcome of validating a problem's testcases.
type Result struct {
	ProblemID       int64                      `json:"problem_id"`
	Success         bool                       `json:"success"`
	TestcaseResults []TestcaseValidationResult `json:"testcase_results"`
	ErrorMessage    string                     `json:"error_message,omitempty"`
}

// runOutcome is the raw pass/fail plus message from one validator invocation.
type runOutcome struct {
	valid   bool
	message string
}

// run executes validatorBinary against inputContent via stdin.
func run(ctx context.Context, validatorBinary, inputContent string, timeoutSecs uint32, log *logrus.Entry) (runOutcome, error) {
	workdir := filepath.Dir(validatorBinary)

	if timeoutSecs == 0 {
		timeoutSecs = DefaultValidatorTimeoutSecs
	}

	spec := executer.ExecutionSpec{
		WorkDir:        workdir,
		Command:        []string{"./" + filepath.Base(validatorBinary)},
		Limits:         executer.ExecutionLimits{TimeMs: timeoutSecs * 1000, MemoryMB: validatorMemoryMB},
		Stdin:          []byte(inputContent),
		SeparateStderr: true,
	}

	outcome, err := executer.ExecuteTrusted(ctx, spec, log)
	if err != nil {
		return runOutcome{}, fmt.Errorf("failed to run validator: %w", err)
	}

	valid := outcome.Status == executer.Exited && outcome.ExitCode == 0
	return runOutcome{valid: valid, message: strings.TrimSpace(outcome.Stderr)}, nil
}

// Manager compiles and caches validator binaries per problem.
type Manager struct {
	compiler *compiler.TrustedCompiler
}

// NewManager builds a validator Manager caching compiled binaries under
// cacheDir and linking against testlibDir's testlib.h.
func NewManager(cacheDir, testlibDir string, log *logrus.Entry) *Manager {
	return &Manager{compiler: compiler.NewTrustedCompiler("validator", cacheDir, testlibDir, log)}
}

// GetValidator downloads and compiles (or reuses a cached build of) the
// validator source at validatorSourcePath.
func (m *Manager) GetValidator(ctx context.Context, store *storage.Client, validatorSourcePath string, problemID int64) (string, error) {
	source, err := store.DownloadText(ctx, validatorSourcePath)
	if err != nil {
		return "", fmt.Errorf("failed to download validator source: %w", err)
	}
	return m.compiler.GetOrCompile(ctx, source, problemID)
}

// ClearCache removes the cached validator for problemID.
func (m *Manager) ClearCache(problemID int64) error {
	return m.compiler.ClearCache(problemID)
}

// Deps bundles the collaborators ProcessJob needs.
type Deps struct {
	Storage     *storage.Client
	Manager     *Manager
	TimeoutSecs uint32
	Log         *logrus.Entry
}

// ProcessJob compiles job's validator and runs it against every testcase
// input, collecting a per-testcase validity result.
func ProcessJob(ctx context.Context, job Job, deps Deps) (Result, error) {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	validatorBinary, err := deps.Manager.GetValidator(ctx, deps.Storage, job.ValidatorPath, job.ProblemID)
	if err != nil {
		return Result{ProblemID: job.ProblemID, ErrorMessage: "failed to compile validator: " + err.Error()}, nil
	}

	results := make([]TestcaseValidationResult, 0, len(job.TestcaseInputs))
	allValid := true

	for _, tc := range job.TestcaseInputs {
		inputContent, err := deps.Storage.DownloadText(ctx, tc.InputPath)
		if err != nil {
			log.WithError(err).WithField("testcase_id", tc.ID).Warn("failed to download testcase input")
			results = append(results, TestcaseValidationResult{TestcaseID: tc.ID, Valid: false, Message: "failed to download input: " + err.Error()})
			allValid = false
			continue
		}

		outcome, err := run(ctx, validatorBinary, inputContent, deps.TimeoutSecs, log)
		if err != nil {
			log.WithError(err).WithField("testcase_id", tc.ID).Warn("validator error")
			results = append(results, TestcaseValidationResult{TestcaseID: tc.ID, Valid: false, Message: "validator error: " + err.Error()})
			allValid = false
			continue
		}

		if !outcome.valid {
			allValid = false
		}
		results = append(results, TestcaseValidationResult{TestcaseID: tc.ID, Valid: outcome.valid, Message: outcome.message})
	}

	return Result{ProblemID: job.ProblemID, Success: allValid, TestcaseResults: results}, nil
}
