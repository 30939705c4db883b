// Package playground implements one-shot ad-hoc execution of an arbitrary
// file bundle, either as a single recognised source file or as a Makefile
// project, returning any files the run produced.
package playground

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/executer"
	"github.com/coderunr/judgeworker/internal/languages"
)

const (
	defaultCompileTimeMs   = 30_000
	defaultCompileMemoryMB = 2048

	outputPreviewBytes = 4096
)

// extensionLanguages maps a playground target file's extension to the
// language registry key used to resolve its descriptor.
var extensionLanguages = map[string]string{
	"c":   "c",
	"cpp": "cpp",
	"cc":  "cpp",
	"cxx": "cpp",
	"py":  "python",
	"java": "java",
	"rs":  "rust",
	"go":  "go",
	"js":  "javascript",
}

// BundleFile is one (path, base64-content) entry of a submitted file bundle.
type BundleFile struct {
	Path    string `json:"path"`
	Content string `json:"content_base64"`
}

// Job is a playground job pulled off the queue.
type Job struct {
	SessionID         string       `json:"session_id"`
	ResultKey         string       `json:"result_key"`
	TargetPath        string       `json:"target_path"`
	Files             []BundleFile `json:"files"`
	Stdin             string       `json:"stdin,omitempty"`
	FileInput         string       `json:"file_input_base64,omitempty"`
	AnigmaMode        bool         `json:"anigma_mode"`
	FileInputIsBinary bool         `json:"file_input_is_binary"`
	Filename          string       `json:"filename,omitempty"`
	TimeLimit         uint32       `json:"time_limit"`
	MemoryLimit       uint32       `json:"memory_limit"`
}

// CreatedFile is one file surviving a Makefile-mode run, transported back
// as base64 content regardless of whether it is text or binary.
type CreatedFile struct {
	Path          string `json:"path"`
	ContentBase64 string `json:"content_base64"`
}

// Result is the published outcome of a playground run.
type Result struct {
	SessionID     string        `json:"session_id"`
	Status        string        `json:"status"`
	Stdout        string        `json:"stdout,omitempty"`
	Stderr        string        `json:"stderr,omitempty"`
	ExecutionTime *uint32       `json:"execution_time,omitempty"`
	MemoryUsed    *uint32       `json:"memory_used,omitempty"`
	CreatedFiles  []CreatedFile `json:"created_files,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// Deps bundles the collaborators ProcessJob needs.
type Deps struct {
	Languages       *languages.Registry
	CompileTimeMs   uint32
	CompileMemoryMB uint32
	WorkerID        uint32
	Log             *logrus.Entry
}

func errResult(sessionID, message string) Result {
	return Result{SessionID: sessionID, Status: "error", ErrorMessage: message}
}

// ProcessJob stages job's bundle into a fresh tempdir, picks a run mode from
// TargetPath, builds/runs it, and returns captured output (and, in
// Makefile mode, any files the run produced).
func ProcessJob(ctx context.Context, job Job, deps Deps) (Result, error) {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	tempDir, err := os.MkdirTemp("", "playground-*")
	if err != nil {
		return Result{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := stageBundle(tempDir, job.Files); err != nil {
		return errResult(job.SessionID, err.Error()), nil
	}

	compileTimeMs := deps.CompileTimeMs
	if compileTimeMs == 0 {
		compileTimeMs = defaultCompileTimeMs
	}
	compileMemoryMB := deps.CompileMemoryMB
	if compileMemoryMB == 0 {
		compileMemoryMB = defaultCompileMemoryMB
	}

	base := filepath.Base(job.TargetPath)
	if strings.EqualFold(base, "Makefile") || strings.EqualFold(base, "makefile") {
		return runMakefileMode(ctx, tempDir, job, compileTimeMs, compileMemoryMB, deps, log)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	lang, ok := extensionLanguages[ext]
	if !ok {
		return errResult(job.SessionID, fmt.Sprintf("unsupported file format: %q", ext)), nil
	}

	descriptor, ok := deps.Languages.Get(lang)
	if !ok {
		return errResult(job.SessionID, fmt.Sprintf("no language descriptor for %q", lang)), nil
	}

	return runSingleFileMode(ctx, tempDir, job, descriptor, compileTimeMs, compileMemoryMB, deps, log)
}

// stageBundle base64-decodes every bundle file into its declared relative
// path under root, creating intermediate directories, rejecting any path
// that is absolute or escapes root.
func stageBundle(root string, files []BundleFile) error {
	for _, f := range files {
		if filepath.IsAbs(f.Path) {
			return fmt.Errorf("bundle file path must be relative: %s", f.Path)
		}
		dest := filepath.Join(root, f.Path)
		if !strings.HasPrefix(dest, filepath.Clean(root)+string(os.PathSeparator)) {
			return fmt.Errorf("bundle file path escapes bundle root: %s", f.Path)
		}

		content, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", f.Path, err)
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(dest, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	return nil
}

// runSingleFileMode substitutes job's actual target filename into
// descriptor's source-filename slots, compiles (if applicable), and runs.
func runSingleFileMode(ctx context.Context, workDir string, job Job, descriptor *languages.Descriptor, compileTimeMs, compileMemoryMB uint32, deps Deps, log *logrus.Entry) (Result, error) {
	targetFile := job.TargetPath

	compileArgv := substituteFilename(descriptor.CompileCommand, descriptor.SourceFile, targetFile)
	runArgv := substituteFilename(descriptor.RunCommand, descriptor.SourceFile, targetFile)

	if len(compileArgv) > 0 {
		spec := executer.ExecutionSpec{
			WorkDir:        workDir,
			Command:        compileArgv,
			Limits:         executer.ExecutionLimits{TimeMs: compileTimeMs, MemoryMB: compileMemoryMB},
			CopyOutDir:     workDir,
			SeparateStderr: true,
			WorkerID:       deps.WorkerID,
		}
		compileOutcome, err := executer.ExecuteSandboxed(ctx, spec, log)
		if err != nil {
			return Result{}, fmt.Errorf("compile invocation failed: %w", err)
		}
		if !compileOutcome.IsSuccess() {
			message := compileOutcome.Stderr
			if message == "" {
				message = compileOutcome.Stdout
			}
			return Result{SessionID: job.SessionID, Status: "compile_error", Stdout: compileOutcome.Stdout, Stderr: message, ErrorMessage: message}, nil
		}
	}

	stdin := resolveStdin(job)

	runSpec := executer.ExecutionSpec{
		WorkDir:        workDir,
		Command:        runArgv,
		Limits:         executer.ExecutionLimits{TimeMs: job.TimeLimit, MemoryMB: job.MemoryLimit},
		Stdin:          stdin,
		SeparateStderr: true,
		WorkerID:       deps.WorkerID,
	}
	runOutcome, err := executer.ExecuteSandboxed(ctx, runSpec, log)
	if err != nil {
		return Result{}, fmt.Errorf("run invocation failed: %w", err)
	}

	stdout := stripJavaToolOptions(runOutcome.Stdout)
	stderr := stripJavaToolOptions(runOutcome.Stderr)

	t, m := runOutcome.TimeMs, runOutcome.MemoryKB
	return Result{
		SessionID:     job.SessionID,
		Status:        statusLabel(runOutcome),
		Stdout:        truncate(stdout, outputPreviewBytes),
		Stderr:        truncate(stderr, outputPreviewBytes),
		ExecutionTime: &t,
		MemoryUsed:    &m,
	}, nil
}

// runMakefileMode builds via `make build`, feeds the decoded input file,
// runs `make run file=<name>`, and collects every surviving file.
func runMakefileMode(ctx context.Context, workDir string, job Job, compileTimeMs, compileMemoryMB uint32, deps Deps, log *logrus.Entry) (Result, error) {
	buildSpec := executer.ExecutionSpec{
		WorkDir:        workDir,
		Command:        []string{"make", "build"},
		Limits:         executer.ExecutionLimits{TimeMs: compileTimeMs, MemoryMB: compileMemoryMB},
		CopyOutDir:     workDir,
		SeparateStderr: true,
		WorkerID:       deps.WorkerID,
	}
	buildOutcome, err := executer.ExecuteSandboxed(ctx, buildSpec, log)
	if err != nil {
		return Result{}, fmt.Errorf("make build invocation failed: %w", err)
	}
	if !buildOutcome.IsSuccess() {
		message := buildOutcome.Stderr
		if message == "" {
			message = buildOutcome.Stdout
		}
		return Result{SessionID: job.SessionID, Status: "compile_error", Stdout: buildOutcome.Stdout, Stderr: message, ErrorMessage: message}, nil
	}

	inputFilename := "input.txt"
	if job.AnigmaMode && job.Filename != "" {
		inputFilename = job.Filename
	}

	inputBytes, err := decodeFileInput(job)
	if err != nil {
		return errResult(job.SessionID, err.Error()), nil
	}
	if err := os.WriteFile(filepath.Join(workDir, inputFilename), inputBytes, 0644); err != nil {
		return Result{}, fmt.Errorf("failed to write input file: %w", err)
	}

	runSpec := executer.ExecutionSpec{
		WorkDir:        workDir,
		Command:        []string{"make", "run", "file=" + inputFilename},
		Limits:         executer.ExecutionLimits{TimeMs: job.TimeLimit, MemoryMB: job.MemoryLimit},
		CopyOutDir:     workDir,
		SeparateStderr: true,
		WorkerID:       deps.WorkerID,
	}
	runOutcome, err := executer.ExecuteSandboxed(ctx, runSpec, log)
	if err != nil {
		return Result{}, fmt.Errorf("make run invocation failed: %w", err)
	}

	createdFiles, err := collectCreatedFiles(workDir, inputFilename)
	if err != nil {
		log.WithError(err).Warn("failed to enumerate created files")
	}

	t, m := runOutcome.TimeMs, runOutcome.MemoryKB
	return Result{
		SessionID:     job.SessionID,
		Status:        statusLabel(runOutcome),
		Stdout:        truncate(stripJavaToolOptions(runOutcome.Stdout), outputPreviewBytes),
		Stderr:        truncate(stripJavaToolOptions(runOutcome.Stderr), outputPreviewBytes),
		ExecutionTime: &t,
		MemoryUsed:    &m,
		CreatedFiles:  createdFiles,
	}, nil
}

// decodeFileInput returns the job's base64 file-input if present, else its
// plain-text stdin re-encoded as bytes.
func decodeFileInput(job Job) ([]byte, error) {
	if job.FileInput != "" {
		data, err := base64.StdEncoding.DecodeString(job.FileInput)
		if err != nil {
			return nil, fmt.Errorf("failed to decode file_input: %w", err)
		}
		return data, nil
	}
	return []byte(job.Stdin), nil
}

// resolveStdin returns the bytes to feed a single-file-mode run's stdin:
// the decoded file-input when present, else the plain-text stdin.
func resolveStdin(job Job) []byte {
	if job.FileInput != "" {
		if data, err := base64.StdEncoding.DecodeString(job.FileInput); err == nil {
			return data
		}
	}
	if job.Stdin != "" {
		return []byte(job.Stdin)
	}
	return nil
}

// collectCreatedFiles walks workDir recursively and returns every file
// other than the input and isolate's own bookkeeping files, base64-encoded,
// with relative, root-confined paths.
func collectCreatedFiles(workDir, inputFilename string) ([]CreatedFile, error) {
	excluded := map[string]bool{
		inputFilename: true,
		"stdout.txt":  true,
		"stderr.txt":  true,
	}

	var files []CreatedFile
	err := filepath.Walk(workDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(workDir, path)
		if err != nil {
			return err
		}
		if excluded[rel] || strings.Contains(rel, "..") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		files = append(files, CreatedFile{Path: rel, ContentBase64: base64.StdEncoding.EncodeToString(data)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// substituteFilename returns a copy of argv with every element equal to
// oldName replaced by newName; interpreted languages (nil argv) pass through.
func substituteFilename(argv []string, oldName, newName string) []string {
	if argv == nil {
		return nil
	}
	out := make([]string, len(argv))
	for i, a := range argv {
		if a == oldName {
			out[i] = newName
		} else {
			out[i] = a
		}
	}
	return out
}

// stripJavaToolOptions drops any line beginning "Picked up JAVA_TOOL_OPTIONS",
// a JVM banner line that leaks onto stderr regardless of -q flags.
func stripJavaToolOptions(s string) string {
	if !strings.Contains(s, "Picked up JAVA_TOOL_OPTIONS") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.HasPrefix(l, "Picked up JAVA_TOOL_OPTIONS") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

func statusLabel(o executer.ExecutionOutcome) string {
	switch o.Status {
	case executer.Exited:
		if o.ExitCode == 0 {
			return "ok"
		}
		return "runtime_error"
	case executer.TimeLimitExceeded:
		return "time_limit_exceeded"
	case executer.MemoryLimitExceeded:
		return "memory_limit_exceeded"
	case executer.Signaled:
		return "runtime_error"
	default:
		return "system_error"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
