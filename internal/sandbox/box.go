// Package sandbox wraps the isolate(1) CLI: box lifecycle, file stage-in/out,
// command execution, and meta-file parsing. It is the narrow, security
// critical surface the rest of the worker talks to — everything above this
// package only ever produces argv, stages files, and reads back a parsed
// Outcome.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	// IsolatePath is the isolate(1) binary the worker expects on PATH.
	IsolatePath = "isolate"

	defaultProcesses  = 64
	defaultOpenFiles  = 256
	defaultFsizeKB    = 262144 // 256 MiB
	boxTempDirPattern = "/tmp/isolate_meta_%d.txt"
)

var (
	cgroupsOnce      sync.Once
	cgroupsAvailable bool
)

// CgroupsAvailable probes (once per process lifetime) whether the isolate
// binary on PATH supports cgroup-based memory accounting.
func CgroupsAvailable(ctx context.Context) bool {
	cgroupsOnce.Do(func() {
		cmd := exec.CommandContext(ctx, IsolatePath, "--box-id=99", "--cg", "--init")
		err := cmd.Run()
		_ = exec.CommandContext(ctx, IsolatePath, "--box-id=99", "--cleanup").Run()
		cgroupsAvailable = err == nil
	})
	return cgroupsAvailable
}

// EnsureCgroupsAvailable aborts startup (by returning an error) when cgroup
// support is not available; the worker is not supposed to run without it.
func EnsureCgroupsAvailable(ctx context.Context) error {
	if CgroupsAvailable(ctx) {
		return nil
	}
	return fmt.Errorf("isolate cgroup support is required but not available: install isolate with cgroup support enabled")
}

// IOSpec configures stdin/stdout/stderr wiring for a single run.
type IOSpec struct {
	Stdin          []byte
	StdoutFile     string
	StderrToStdout bool
}

// NewIOSpec returns the conventional defaults: stdout captured to
// "stdout.txt", stderr folded into stdout.
func NewIOSpec() IOSpec {
	return IOSpec{StdoutFile: "stdout.txt", StderrToStdout: true}
}

// Limits are the resource caps enforced by the isolator for one run.
type Limits struct {
	TimeMs    uint32
	MemoryMB  uint32
	Processes uint32
	OpenFiles uint32
	FsizeKB   uint32
}

// DefaultLimits fills in the standard processes/open-files/fsize caps.
func DefaultLimits(timeMs, memoryMB uint32) Limits {
	return Limits{
		TimeMs:    timeMs,
		MemoryMB:  memoryMB,
		Processes: defaultProcesses,
		OpenFiles: defaultOpenFiles,
		FsizeKB:   defaultFsizeKB,
	}
}

// Outcome is the raw result of one sandboxed run: a parsed meta file plus
// captured stdout (both as bytes and as lossy text).
type Outcome struct {
	Meta        Meta
	Status      Status
	StdoutText  string
	StdoutBytes []byte
	Stderr      string
}

// Box is a single isolate sandbox: a directory + namespace + cgroup tuple
// addressed by an integer id, created by Init and released by Cleanup.
type Box struct {
	id         uint32
	path       string
	useCgroups bool
	log        *logrus.Entry
}

// Init cleans up any stale box with the same id, then initialises a fresh
// one. The returned Box's WorkDir is where programs are staged and run.
func Init(ctx context.Context, boxID uint32, useCgroups bool, log *logrus.Entry) (*Box, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	idStr := strconv.FormatUint(uint64(boxID), 10)

	// Best-effort cleanup of a stale box with the same id.
	_ = exec.CommandContext(ctx, IsolatePath, "--box-id="+idStr, "--cleanup").Run()

	args := []string{"--box-id=" + idStr}
	if useCgroups {
		args = append(args, "--cg")
	}
	args = append(args, "--init")

	cmd := exec.CommandContext(ctx, IsolatePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("isolate --init failed for box %d: %w", boxID, err)
	}

	boxPath := trimTrailingNewline(output)
	if boxPath == "" {
		return nil, fmt.Errorf("isolate --init returned no box path for box %d", boxID)
	}

	log.WithFields(logrus.Fields{"box_id": boxID, "box_path": boxPath, "cgroups": useCgroups}).
		Debug("initialised isolate box")

	return &Box{id: boxID, path: boxPath, useCgroups: useCgroups, log: log}, nil
}

// ID returns the box's integer id.
func (b *Box) ID() uint32 { return b.id }

// WorkDir is the box/box subdirectory where staged programs run.
func (b *Box) WorkDir() string { return filepath.Join(b.path, "box") }

// StageIn copies every non-directory entry of dir into the box's working
// directory (non-recursive).
func (b *Box) StageIn(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read stage-in dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(dir, entry.Name())
		dst := filepath.Join(b.WorkDir(), entry.Name())
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("failed to stage in %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// StageOut copies every non-directory entry of the box's working directory
// to dst (non-recursive).
func (b *Box) StageOut(dst string) error {
	entries, err := os.ReadDir(b.WorkDir())
	if err != nil {
		return fmt.Errorf("failed to read box work dir: %w", err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create stage-out dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		src := filepath.Join(b.WorkDir(), entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if err := copyFile(src, dstPath); err != nil {
			return fmt.Errorf("failed to stage out %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Run executes argv inside the box under the given limits and IO spec,
// returning the normalised outcome.
func (b *Box) Run(ctx context.Context, argv []string, limits Limits, io IOSpec) (Outcome, error) {
	metaFile := fmt.Sprintf(boxTempDirPattern, b.id)

	timeSecs := float64(limits.TimeMs) / 1000.0
	wallSecs := timeSecs*2.0 + 1.0
	memoryLimitKB := limits.MemoryMB * 1024

	args := []string{"--box-id=" + strconv.FormatUint(uint64(b.id), 10)}

	if b.useCgroups {
		args = append(args, "--cg", fmt.Sprintf("--cg-mem=%d", memoryLimitKB))
	}

	stdoutFile := io.StdoutFile
	if stdoutFile == "" {
		stdoutFile = "stdout.txt"
	}

	args = append(args,
		fmt.Sprintf("--time=%g", timeSecs),
		fmt.Sprintf("--wall-time=%g", wallSecs),
		"--meta="+metaFile,
		"--stdout="+stdoutFile,
		fmt.Sprintf("--processes=%d", limits.Processes),
		fmt.Sprintf("--open-files=%d", limits.OpenFiles),
		fmt.Sprintf("--fsize=%d", limits.FsizeKB),
		"--dir=/usr",
		"--dir=/lib",
		"--dir=/lib64",
		"--dir=/etc:noexec",
		"--dir=/tmp:tmp",
		"--env=PATH=/usr/local/bin:/usr/bin:/bin",
		"--env=HOME=/box",
		"--env=JAVA_HOME=/usr/lib/jvm/java-17-openjdk-amd64",
	)

	if io.StderrToStdout {
		args = append(args, "--stderr-to-stdout")
	} else {
		args = append(args, "--stderr=stderr.txt")
	}

	if len(io.Stdin) > 0 {
		stdinPath := filepath.Join(b.WorkDir(), "stdin.txt")
		if err := os.WriteFile(stdinPath, io.Stdin, 0644); err != nil {
			return Outcome{}, fmt.Errorf("failed to stage stdin: %w", err)
		}
		args = append(args, "--stdin=stdin.txt")
	}

	args = append(args, "--run", "--")
	args = append(args, qualifyCommand(argv)...)

	b.log.WithField("args", args).Debug("running isolate")

	_ = exec.CommandContext(ctx, IsolatePath, args...).Run()

	metaContent, _ := os.ReadFile(metaFile)
	meta := ParseMeta(string(metaContent))
	status := DeriveStatus(meta, memoryLimitKB)
	_ = os.Remove(metaFile)

	stdoutBytes, _ := os.ReadFile(filepath.Join(b.WorkDir(), stdoutFile))

	stderrText := ""
	if !io.StderrToStdout {
		stderrBytes, _ := os.ReadFile(filepath.Join(b.WorkDir(), "stderr.txt"))
		stderrText = string(stderrBytes)
	}

	return Outcome{
		Meta:        meta,
		Status:      status,
		StdoutText:  string(stdoutBytes),
		StdoutBytes: stdoutBytes,
		Stderr:      stderrText,
	}, nil
}

// Cleanup releases the box. Idempotent in effect: a box that was never
// initialised (or already cleaned) returns no usable error either way.
func (b *Box) Cleanup(ctx context.Context) error {
	idStr := strconv.FormatUint(uint64(b.id), 10)
	if err := exec.CommandContext(ctx, IsolatePath, "--box-id="+idStr, "--cleanup").Run(); err != nil {
		return fmt.Errorf("failed to cleanup isolate box %d: %w", b.id, err)
	}
	b.log.WithField("box_id", b.id).Debug("cleaned up isolate box")
	return nil
}

// qualifyCommand resolves argv[0] against /usr/bin when it is not already
// path-qualified (absolute or relative-with-slash).
func qualifyCommand(argv []string) []string {
	if len(argv) == 0 {
		return argv
	}
	out := make([]string, len(argv))
	copy(out, argv)
	cmd := out[0]
	if len(cmd) > 0 && (cmd[0] == '/' || (len(cmd) > 1 && cmd[0] == '.' && cmd[1] == '/')) {
		return out
	}
	out[0] = "/usr/bin/" + cmd
	return out
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode()
	}
	return os.WriteFile(dst, data, mode)
}

func trimTrailingNewline(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
