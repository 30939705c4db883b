// Package anigma implements the Makefile-based judging variant: Task 2
// (build-then-run-testcases against a submitted archive, with an edit-distance
// bonus against a reference) and Task 1 (differ-on-same-input between two
// reference programs).
package anigma

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/judger"
	"github.com/coderunr/judgeworker/internal/storage"
	"github.com/coderunr/judgeworker/internal/verdict"
)

const task1Score = 30

var sourceExtensions = map[string]bool{
	"cpp": true, "c": true, "h": true, "hpp": true, "cc": true, "cxx": true, "java": true, "py": true,
}

// Testcase names one testcase's input and expected-output object keys.
type Testcase struct {
	ID                 int64  `json:"id"`
	InputPath          string `json:"input_path"`
	ExpectedOutputPath string `json:"expected_output_path"`
}

// Job is a Task 2 (archive + testcases) anigma job.
type Job struct {
	SubmissionID      int64      `json:"submission_id"`
	ProblemID         int64      `json:"problem_id"`
	ZipPath           string     `json:"zip_path"`
	ReferenceCodePath string     `json:"reference_code_path"`
	TimeLimit         uint32     `json:"time_limit"`
	MemoryLimit       uint32     `json:"memory_limit"`
	MaxScore          int64      `json:"max_score"`
	Testcases         []Testcase `json:"testcases"`
	CheckerPath       string     `json:"checker_path,omitempty"`
}

// Task1Job is a Task 1 (differ-on-input) anigma job.
type Task1Job struct {
	SubmissionID      int64  `json:"submission_id"`
	ProblemID         int64  `json:"problem_id"`
	InputPath         string `json:"input_path"`
	ReferenceCodePath string `json:"reference_code_path"`
	SolutionCodePath  string `json:"solution_code_path"`
	TimeLimit         uint32 `json:"time_limit"`
	MemoryLimit       uint32 `json:"memory_limit"`
}

// Result extends judger.Result with an optional edit-distance score.
type Result struct {
	judger.Result
	Score        int64   `json:"score"`
	EditDistance *uint32 `json:"edit_distance"`
}

// Task1Result is the published outcome of a Task 1 (differ-on-input) job.
type Task1Result struct {
	judger.Result
	Score int64 `json:"score"`
}

// Deps bundles the collaborators ProcessJob / ProcessTask1Job need.
type Deps struct {
	Storage         *storage.Client
	CompileTimeMs   uint32
	CompileMemoryMB uint32
	WorkerID        uint32
	Log             *logrus.Entry
	// Progress, when set, is invoked after each Task 2 testcase completes
	// with the number done and the total. Unused by Task 1, which
	// has no per-testcase breakdown.
	Progress func(done, total int)
}

func systemErrorResult(submissionID int64, message string) Result {
	return Result{Result: judger.Result{SubmissionID: submissionID, Verdict: verdict.SystemError, ErrorMessage: message}}
}

// ProcessJob runs the Task 2 pipeline: build the submitted archive, run
// each testcase, and score against the reference source's edit distance.
func ProcessJob(ctx context.Context, job Job, deps Deps) (Result, error) {
	log := logOrDefault(deps.Log)

	tempDir, buildErr, err := setupProject(ctx, deps.Storage, job.ZipPath, deps.CompileTimeMs, deps.CompileMemoryMB, deps.WorkerID, log)
	if err != nil {
		return systemErrorResult(job.SubmissionID, "setup failed: "+err.Error()), nil
	}
	defer os.RemoveAll(tempDir)

	if buildErr != "" {
		return Result{Result: judger.Result{SubmissionID: job.SubmissionID, Verdict: verdict.CompileError, ErrorMessage: buildErr}}, nil
	}

	submittedCode, err := readAllSourceFiles(tempDir)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read submitted sources: %w", err)
	}

	results := make([]judger.TestcaseResult, 0, len(job.Testcases))
	overall := verdict.Accepted
	var maxTime, maxMemory uint32

	for _, tc := range job.Testcases {
		tcResult, err := runTestcase(ctx, deps.Storage, job, tc, tempDir, deps.WorkerID, log)
		if err != nil {
			return Result{}, fmt.Errorf("testcase %d failed: %w", tc.ID, err)
		}

		if tcResult.ExecutionTime != nil && tcResult.MemoryUsed != nil {
			if *tcResult.ExecutionTime > maxTime {
				maxTime = *tcResult.ExecutionTime
			}
			if *tcResult.MemoryUsed > maxMemory {
				maxMemory = *tcResult.MemoryUsed
			}
		}

		if tcResult.Verdict != verdict.Accepted && overall == verdict.Accepted {
			overall = tcResult.Verdict
		}

		results = append(results, tcResult)

		if deps.Progress != nil {
			deps.Progress(len(results), len(job.Testcases))
		}

		if overall != verdict.Accepted {
			break
		}
	}

	if len(results) < len(job.Testcases) {
		for i := len(results); i < len(job.Testcases); i++ {
			results = append(results, judger.TestcaseResult{TestcaseID: job.Testcases[i].ID, Verdict: verdict.Skipped})
		}
		if deps.Progress != nil {
			deps.Progress(len(job.Testcases), len(job.Testcases))
		}
	}

	editDistance, err := calculateEditDistance(ctx, deps.Storage, job.ReferenceCodePath, submittedCode)
	if err != nil {
		log.WithError(err).Warn("failed to compute edit distance")
	}

	score := int64(0)
	if overall == verdict.Accepted {
		score = job.MaxScore
	}

	result := judger.Result{SubmissionID: job.SubmissionID, Verdict: overall, TestcaseResults: results}
	if overall == verdict.Accepted {
		t, m := maxTime, maxMemory
		result.ExecutionTime = &t
		result.MemoryUsed = &m
	}

	return Result{Result: result, Score: score, EditDistance: editDistance}, nil
}

func runTestcase(ctx context.Context, store *storage.Client, job Job, tc Testcase, workDir string, workerID uint32, log *logrus.Entry) (judger.TestcaseResult, error) {
	inputData, err := store.DownloadBytes(ctx, tc.InputPath)
	if err != nil {
		return judger.TestcaseResult{}, fmt.Errorf("failed to download input: %w", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "input.txt"), inputData, 0644); err != nil {
		return judger.TestcaseResult{}, fmt.Errorf("failed to write input: %w", err)
	}

	spec := executer.ExecutionSpec{
		WorkDir:        workDir,
		Command:        makeRunCommand("input.txt"),
		Limits:         executer.ExecutionLimits{TimeMs: job.TimeLimit, MemoryMB: job.MemoryLimit},
		SeparateStderr: true,
		WorkerID:       workerID,
	}

	runResult, err := executer.ExecuteSandboxed(ctx, spec, log)
	if err != nil {
		return judger.TestcaseResult{}, fmt.Errorf("failed to run testcase: %w", err)
	}

	var tcVerdict verdict.Verdict
	switch {
	case runResult.Status == executer.Exited && runResult.ExitCode == 0:
		expectedBytes, err := store.DownloadBytes(ctx, tc.ExpectedOutputPath)
		if err != nil {
			return judger.TestcaseResult{}, fmt.Errorf("failed to download expected output: %w", err)
		}
		if utf8.Valid(expectedBytes) {
			if judger.CompareOutput(runResult.Stdout, string(expectedBytes)) {
				tcVerdict = verdict.Accepted
			} else {
				tcVerdict = verdict.WrongAnswer
			}
		} else if bytes.Equal(runResult.StdoutBytes, expectedBytes) {
			tcVerdict = verdict.Accepted
		} else {
			tcVerdict = verdict.WrongAnswer
		}
	case runResult.Status == executer.Exited, runResult.Status == executer.Signaled, runResult.Status == executer.RuntimeError:
		tcVerdict = verdict.RuntimeError
	case runResult.Status == executer.TimeLimitExceeded:
		tcVerdict = verdict.TimeLimitExceeded
	case runResult.Status == executer.MemoryLimitExceeded:
		tcVerdict = verdict.MemoryLimitExceeded
	default:
		tcVerdict = verdict.SystemError
	}

	output := runResult.Stdout
	if runResult.Stderr != "" {
		output = fmt.Sprintf("=== stdout ===\n%s\n=== stderr ===\n%s", runResult.Stdout, runResult.Stderr)
	}
	if len(output) > 4096 {
		output = output[:4096]
	}

	result := judger.TestcaseResult{TestcaseID: tc.ID, Verdict: tcVerdict, Output: output}
	if tcVerdict == verdict.Accepted {
		t, m := runResult.TimeMs, runResult.MemoryKB
		result.ExecutionTime = &t
		result.MemoryUsed = &m
	}
	return result, nil
}

// ProcessTask1Job runs the Task 1 pipeline: build two reference programs
// and score on whether their outputs differ on the same input.
func ProcessTask1Job(ctx context.Context, job Task1Job, deps Deps) (Task1Result, error) {
	log := logOrDefault(deps.Log)

	inputData, err := deps.Storage.DownloadBytes(ctx, job.InputPath)
	if err != nil {
		return Task1Result{}, fmt.Errorf("failed to download input: %w", err)
	}

	dirA, buildErrA, err := setupProject(ctx, deps.Storage, job.ReferenceCodePath, deps.CompileTimeMs, deps.CompileMemoryMB, deps.WorkerID, log)
	if err != nil {
		return Task1Result{}, fmt.Errorf("failed to set up reference A: %w", err)
	}
	defer os.RemoveAll(dirA)
	if buildErrA != "" {
		return Task1Result{Result: judger.Result{SubmissionID: job.SubmissionID, Verdict: verdict.SystemError, ErrorMessage: "code A build failed: " + buildErrA}}, nil
	}

	dirB, buildErrB, err := setupProject(ctx, deps.Storage, job.SolutionCodePath, deps.CompileTimeMs, deps.CompileMemoryMB, deps.WorkerID, log)
	if err != nil {
		return Task1Result{}, fmt.Errorf("failed to set up reference B: %w", err)
	}
	defer os.RemoveAll(dirB)
	if buildErrB != "" {
		return Task1Result{Result: judger.Result{SubmissionID: job.SubmissionID, Verdict: verdict.SystemError, ErrorMessage: "code B build failed: " + buildErrB}}, nil
	}

	outputA, err := runTask1Execution(ctx, dirA, inputData, job.TimeLimit, job.MemoryLimit, deps.WorkerID, log)
	if err != nil {
		return Task1Result{}, fmt.Errorf("failed to run code A: %w", err)
	}
	outputB, err := runTask1Execution(ctx, dirB, inputData, job.TimeLimit, job.MemoryLimit, deps.WorkerID, log)
	if err != nil {
		return Task1Result{}, fmt.Errorf("failed to run code B: %w", err)
	}

	log.WithFields(logrus.Fields{"a_status": outputA.Status, "b_status": outputB.Status}).Info("anigma task1 result")

	v, score, errMsg := task1Outcome(outputA, outputB)
	maxTime := outputA.TimeMs
	if outputB.TimeMs > maxTime {
		maxTime = outputB.TimeMs
	}
	maxMemory := outputA.MemoryKB
	if outputB.MemoryKB > maxMemory {
		maxMemory = outputB.MemoryKB
	}

	result := judger.Result{SubmissionID: job.SubmissionID, Verdict: v, ErrorMessage: errMsg}
	if v == verdict.Accepted {
		t, m := maxTime, maxMemory
		result.ExecutionTime = &t
		result.MemoryUsed = &m
	}
	return Task1Result{Result: result, Score: score}, nil
}

func runTask1Execution(ctx context.Context, workDir string, inputData []byte, timeMs, memoryMB, workerID uint32, log *logrus.Entry) (executer.ExecutionOutcome, error) {
	if err := os.WriteFile(filepath.Join(workDir, "input.bin"), inputData, 0644); err != nil {
		return executer.ExecutionOutcome{}, fmt.Errorf("failed to write input: %w", err)
	}

	spec := executer.ExecutionSpec{
		WorkDir:        workDir,
		Command:        makeRunCommand("input.bin"),
		Limits:         executer.ExecutionLimits{TimeMs: timeMs, MemoryMB: memoryMB},
		SeparateStderr: true,
		WorkerID:       workerID,
	}
	return executer.ExecuteSandboxed(ctx, spec, log)
}

// task1Outcome applies the Task 1 decision matrix to the two executions:
// reward when B outlives A or both run but disagree, wrong_answer when they
// agree, system_error when B (or both) cannot run at all.
func task1Outcome(a, b executer.ExecutionOutcome) (verdict.Verdict, int64, string) {
	aSuccess := a.Status == executer.Exited && a.ExitCode == 0
	bSuccess := b.Status == executer.Exited && b.ExitCode == 0

	switch {
	case !aSuccess && !bSuccess:
		return verdict.SystemError, 0, fmt.Sprintf("both failed: A status=%v, B status=%v", a.Status, b.Status)
	case !aSuccess && bSuccess:
		return verdict.Accepted, task1Score, ""
	case aSuccess && !bSuccess:
		return verdict.SystemError, 0, fmt.Sprintf("code B execution failed: status=%v", b.Status)
	default:
		if a.Stdout != b.Stdout {
			return verdict.Accepted, task1Score, ""
		}
		return verdict.WrongAnswer, 0, ""
	}
}

// makeRunCommand builds the python-shim-then-make-run shell invocation
// shared by Task 1 and Task 2.
func makeRunCommand(inputFile string) []string {
	cmd := fmt.Sprintf(`mkdir -p bin && ln -sf /usr/bin/python3 bin/python 2>/dev/null; export PATH="$PWD/bin:$PATH"; make -s run file=%s`, inputFile)
	return []string{"sh", "-c", cmd}
}

// setupProject downloads and extracts a ZIP archive, requires a Makefile,
// and runs `make build`. Returns (tempDir, buildErrorMessage, err); a
// non-empty buildErrorMessage means the caller's job itself failed
// (compile_error / system_error territory), not a plumbing error.
func setupProject(ctx context.Context, store *storage.Client, zipPath string, compileTimeMs, compileMemoryMB, workerID uint32, log *logrus.Entry) (string, string, error) {
	tempDir, err := os.MkdirTemp("", "anigma-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp dir: %w", err)
	}

	zipData, err := store.DownloadBytes(ctx, zipPath)
	if err != nil {
		os.RemoveAll(tempDir)
		return "", "", fmt.Errorf("failed to download archive: %w", err)
	}

	reader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		os.RemoveAll(tempDir)
		return "", "", fmt.Errorf("failed to open archive: %w", err)
	}

	if err := extractZip(reader, tempDir); err != nil {
		os.RemoveAll(tempDir)
		return "", "", fmt.Errorf("failed to extract archive: %w", err)
	}

	if !hasMakefile(tempDir) {
		return tempDir, "Makefile not found", nil
	}

	if compileTimeMs == 0 {
		compileTimeMs = 30_000
	}
	if compileMemoryMB == 0 {
		compileMemoryMB = 2048
	}

	spec := executer.ExecutionSpec{
		WorkDir:        tempDir,
		Command:        []string{"make", "build"},
		Limits:         executer.ExecutionLimits{TimeMs: compileTimeMs, MemoryMB: compileMemoryMB},
		CopyOutDir:     tempDir,
		SeparateStderr: true,
		WorkerID:       workerID,
	}

	buildResult, err := executer.ExecuteSandboxed(ctx, spec, log)
	if err != nil {
		return tempDir, "", fmt.Errorf("failed to run make build: %w", err)
	}

	if !buildResult.IsSuccess() {
		log.WithFields(logrus.Fields{"zip_path": zipPath, "stdout": buildResult.Stdout, "stderr": buildResult.Stderr}).Error("anigma build failed")
		message := buildResult.Stderr
		if message == "" {
			message = buildResult.Stdout
		}
		return tempDir, message, nil
	}

	return tempDir, "", nil
}

func hasMakefile(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), "Makefile") {
			return true
		}
	}
	return false
}

// calculateEditDistance computes the Levenshtein distance between
// submittedCode and the reference source named by referencePath.
func calculateEditDistance(ctx context.Context, store *storage.Client, referencePath, submittedCode string) (*uint32, error) {
	if referencePath == "" {
		return nil, nil
	}

	var referenceCode string
	if strings.HasSuffix(strings.ToLower(referencePath), ".zip") {
		tempDir, err := os.MkdirTemp("", "anigma-ref-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tempDir)

		zipData, err := store.DownloadBytes(ctx, referencePath)
		if err != nil {
			return nil, fmt.Errorf("failed to download reference archive: %w", err)
		}
		reader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
		if err != nil {
			return nil, fmt.Errorf("failed to open reference archive: %w", err)
		}
		if err := extractZip(reader, tempDir); err != nil {
			return nil, fmt.Errorf("failed to extract reference archive: %w", err)
		}
		referenceCode, err = readAllSourceFiles(tempDir)
		if err != nil {
			return nil, err
		}
	} else {
		var err error
		referenceCode, err = store.DownloadText(ctx, referencePath)
		if err != nil {
			return nil, fmt.Errorf("failed to download reference source: %w", err)
		}
	}

	if referenceCode == "" {
		return nil, nil
	}

	dist := levenshtein([]byte(submittedCode), []byte(referenceCode))
	return &dist, nil
}

// readAllSourceFiles concatenates every recognised source file under dir,
// recursively, in sorted path order: the "canonical source text".
func readAllSourceFiles(dir string) (string, error) {
	var paths []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.IsDir() {
			sub, err := readAllSourceFiles(p)
			if err != nil {
				return "", err
			}
			sb.WriteString(sub)
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(p), "."))
		if !sourceExtensions[ext] {
			continue
		}
		content, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		sb.Write(content)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func logOrDefault(log *logrus.Entry) *logrus.Entry {
	if log != nil {
		return log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}
