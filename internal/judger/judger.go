// Package judger implements the standard (icpc / special_judge) judging
// pipeline: compile once, run per testcase, compare output or invoke a
// comparator, and aggregate a single overall verdict.
package judger

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/checker"
	"github.com/coderunr/judgeworker/internal/compiler"
	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/languages"
	"github.com/coderunr/judgeworker/internal/storage"
	"github.com/coderunr/judgeworker/internal/verdict"
)

const outputPreviewBytes = 4096

// ProblemType selects the comparison strategy for a judge job.
type ProblemType string

const (
	ICPC         ProblemType = "icpc"
	SpecialJudge ProblemType = "special_judge"
)

// TestcaseInfo names one testcase's input/output object keys.
type TestcaseInfo struct {
	ID         int64  `json:"id"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path"`
}

// Job is a standard judge job pulled off the queue.
type Job struct {
	SubmissionID           int64          `json:"submission_id"`
	ProblemID              int64          `json:"problem_id"`
	Code                   string         `json:"code"`
	Language               string         `json:"language"`
	TimeLimit              uint32         `json:"time_limit"`
	IgnoreTimeLimitBonus   bool           `json:"ignore_time_limit_bonus"`
	MemoryLimit            uint32         `json:"memory_limit"`
	IgnoreMemoryLimitBonus bool           `json:"ignore_memory_limit_bonus"`
	Testcases              []TestcaseInfo `json:"testcases"`
	ProblemType            ProblemType    `json:"problem_type"`
	CheckerPath            string         `json:"checker_path,omitempty"`
}

// TestcaseResult is one entry of a judge result's per-testcase breakdown.
type TestcaseResult struct {
	TestcaseID    int64           `json:"testcase_id"`
	Verdict       verdict.Verdict `json:"verdict"`
	ExecutionTime *uint32         `json:"execution_time"`
	MemoryUsed    *uint32         `json:"memory_used"`
	Output        string          `json:"output,omitempty"`
}

// Result is the published outcome of judging a submission.
type Result struct {
	SubmissionID    int64            `json:"submission_id"`
	Verdict         verdict.Verdict  `json:"verdict"`
	ExecutionTime   *uint32          `json:"execution_time"`
	MemoryUsed      *uint32          `json:"memory_used"`
	TestcaseResults []TestcaseResult `json:"testcase_results"`
	ErrorMessage    string           `json:"error_message,omitempty"`
}

// Deps bundles the collaborators ProcessJob needs beyond the job itself.
type Deps struct {
	Languages         *languages.Registry
	Storage           *storage.Client
	CheckerManager    *checker.Manager
	CompileTimeMs     uint32
	CompileMemoryMB   uint32
	CheckerTimeoutSec uint32
	WorkerID          uint32
	Log               *logrus.Entry
	// Progress, when set, is invoked after each executed testcase with the
	// number done and the total, and once more with (total, total) when the
	// remaining testcases are filled in as skipped, for the optional
	// progress stream.
	Progress func(done, total int)
}

func uptr(v uint32) *uint32 { return &v }

func errorResult(submissionID int64, v verdict.Verdict, message string) Result {
	return Result{SubmissionID: submissionID, Verdict: v, ErrorMessage: message}
}

// ProcessJob runs the full compile/execute/compare pipeline for job and
// returns a Result with exactly one entry per testcase.
func ProcessJob(ctx context.Context, job Job, deps Deps) (Result, error) {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	descriptor, ok := deps.Languages.Get(job.Language)
	if !ok {
		return errorResult(job.SubmissionID, verdict.CompileError, "unsupported language: "+job.Language), nil
	}

	tempDir, err := os.MkdirTemp("", "judge-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := tempDir + "/" + descriptor.SourceFile
	if err := os.WriteFile(sourcePath, []byte(job.Code), 0644); err != nil {
		return Result{}, fmt.Errorf("failed to write source: %w", err)
	}

	compileResult, err := compiler.CompileUser(ctx, tempDir, descriptor, deps.CompileTimeMs, deps.CompileMemoryMB, log)
	if err != nil {
		return Result{}, err
	}
	if !compileResult.Success {
		return errorResult(job.SubmissionID, verdict.CompileError, compileResult.Message), nil
	}

	var checkerBinary string
	if job.ProblemType == SpecialJudge {
		if job.CheckerPath == "" {
			return errorResult(job.SubmissionID, verdict.SystemError, "special judge problem requires a checker"), nil
		}
		checkerBinary, err = deps.CheckerManager.GetChecker(ctx, deps.Storage, job.CheckerPath, job.ProblemID)
		if err != nil {
			return errorResult(job.SubmissionID, verdict.SystemError, "failed to compile checker: "+err.Error()), nil
		}
	}

	results := make([]TestcaseResult, 0, len(job.Testcases))
	overall := verdict.Accepted
	var maxTime, maxMemory uint32

	for _, tc := range job.Testcases {
		inputContent, err := deps.Storage.DownloadText(ctx, tc.InputPath)
		if err != nil {
			return Result{}, fmt.Errorf("failed to download testcase input %s: %w", tc.InputPath, err)
		}
		expectedOutput, err := deps.Storage.DownloadText(ctx, tc.OutputPath)
		if err != nil {
			return Result{}, fmt.Errorf("failed to download testcase output %s: %w", tc.OutputPath, err)
		}

		timeLimit := job.TimeLimit
		if !job.IgnoreTimeLimitBonus {
			timeLimit = descriptor.EffectiveTimeMs(job.TimeLimit)
		}
		memoryLimit := job.MemoryLimit
		if !job.IgnoreMemoryLimitBonus {
			memoryLimit = descriptor.EffectiveMemoryMB(job.MemoryLimit)
		}

		spec := executer.ExecutionSpec{
			WorkDir:        tempDir,
			Command:        descriptor.RunCommand,
			Limits:         executer.ExecutionLimits{TimeMs: timeLimit, MemoryMB: memoryLimit},
			Stdin:          []byte(inputContent),
			SeparateStderr: true,
			WorkerID:       deps.WorkerID,
		}

		runResult, err := executer.ExecuteSandboxed(ctx, spec, log)
		if err != nil {
			return Result{}, fmt.Errorf("failed to run submission: %w", err)
		}

		if runResult.TimeMs > maxTime {
			maxTime = runResult.TimeMs
		}
		if runResult.MemoryKB > maxMemory {
			maxMemory = runResult.MemoryKB
		}

		var tcVerdict verdict.Verdict
		switch {
		case runResult.Status == executer.Exited && runResult.ExitCode == 0:
			if checkerBinary != "" {
				checkerResult, err := checker.Run(ctx, checkerBinary, []byte(inputContent), runResult.StdoutBytes, []byte(expectedOutput), deps.CheckerTimeoutSec, log)
				if err != nil {
					log.WithError(err).WithField("testcase_id", tc.ID).Warn("checker invocation failed")
					tcVerdict = verdict.SystemError
				} else {
					tcVerdict = checkerResult.Verdict
				}
			} else if CompareOutput(runResult.Stdout, expectedOutput) {
				tcVerdict = verdict.Accepted
			} else {
				tcVerdict = verdict.WrongAnswer
			}
		case runResult.Status == executer.Exited:
			tcVerdict = verdict.RuntimeError
		case runResult.Status == executer.TimeLimitExceeded:
			tcVerdict = verdict.TimeLimitExceeded
		case runResult.Status == executer.MemoryLimitExceeded:
			tcVerdict = verdict.MemoryLimitExceeded
		case runResult.Status == executer.Signaled:
			tcVerdict = verdict.RuntimeError
		case runResult.Status == executer.RuntimeError:
			tcVerdict = verdict.RuntimeError
		default:
			tcVerdict = verdict.SystemError
		}

		var outputPreview string
		if len(runResult.Stdout) > 0 {
			outputPreview = truncate(runResult.Stdout, outputPreviewBytes)
		}

		results = append(results, TestcaseResult{
			TestcaseID:    tc.ID,
			Verdict:       tcVerdict,
			ExecutionTime: uptr(runResult.TimeMs),
			MemoryUsed:    uptr(runResult.MemoryKB),
			Output:        outputPreview,
		})

		if deps.Progress != nil {
			deps.Progress(len(results), len(job.Testcases))
		}

		if tcVerdict != verdict.Accepted && overall == verdict.Accepted {
			overall = tcVerdict
			break
		}
	}

	if len(results) < len(job.Testcases) {
		for i := len(results); i < len(job.Testcases); i++ {
			results = append(results, TestcaseResult{TestcaseID: job.Testcases[i].ID, Verdict: verdict.Skipped})
		}
		if deps.Progress != nil {
			deps.Progress(len(job.Testcases), len(job.Testcases))
		}
	}

	log.WithFields(logrus.Fields{
		"submission_id": job.SubmissionID,
		"verdict":       overall,
		"max_time_ms":   maxTime,
		"max_memory_kb": maxMemory,
	}).Info("job summary")

	result := Result{SubmissionID: job.SubmissionID, Verdict: overall, TestcaseResults: results}
	if overall == verdict.Accepted {
		result.ExecutionTime = uptr(maxTime)
		result.MemoryUsed = uptr(maxMemory)
	}
	return result, nil
}

// CompareOutput normalises both strings (right-trim each line, drop
// trailing empty lines) and reports whether the results are identical.
func CompareOutput(actual, expected string) bool {
	return linesEqual(normalizeLines(actual), normalizeLines(expected))
}

func normalizeLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		lines = append(lines, strings.TrimRight(line, " \t\r"))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
