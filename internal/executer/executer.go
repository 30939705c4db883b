// Package executer provides the typed ExecutionSpec -> ExecutionOutcome
// façade over the sandbox package: box-id allocation, stage-in/out, and
// status normalisation.
package executer

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/sandbox"
)

// boxIDCounter backs box-id allocation: worker_id*1000 + (counter mod 1000).
var boxIDCounter uint32

// defaultWorkerID is the leased worker index applied to specs that don't
// carry one, set once at startup.
var defaultWorkerID uint32

// SetWorkerID records the leased worker index used for box-id allocation
// when an ExecutionSpec leaves WorkerID unset.
func SetWorkerID(id uint32) {
	atomic.StoreUint32(&defaultWorkerID, id)
}

// NextBoxID allocates the next box id for this worker's lease.
func NextBoxID(workerID uint32) uint32 {
	n := atomic.AddUint32(&boxIDCounter, 1)
	return workerID*1000 + (n % 1000)
}

// ExecutionStatus is the status tag of an ExecutionOutcome.
type ExecutionStatus int

const (
	Exited ExecutionStatus = iota
	TimeLimitExceeded
	MemoryLimitExceeded
	Signaled
	RuntimeError
	SystemError
)

// ExecutionLimits are the caller-facing resource caps (time in ms, memory
// in MiB) for one sandboxed run.
type ExecutionLimits struct {
	TimeMs   uint32
	MemoryMB uint32
}

// ExecutionSpec describes one sandboxed invocation.
type ExecutionSpec struct {
	WorkDir        string
	Command        []string
	Limits         ExecutionLimits
	Stdin          []byte
	CopyOutDir     string // empty disables stage-out
	SeparateStderr bool   // capture stderr on its own instead of folding into stdout
	UseCgroups     bool
	WorkerID       uint32
}

// ExecutionOutcome is the normalised result of a sandboxed run.
type ExecutionOutcome struct {
	Status      ExecutionStatus
	ExitCode    int // only meaningful when Status == Exited or RuntimeError
	Signal      int // only meaningful when Status == Signaled
	TimeMs      uint32
	MemoryKB    uint32
	Stdout      string
	StdoutBytes []byte
	Stderr      string
}

// IsSuccess reports whether the program exited with code 0.
func (o ExecutionOutcome) IsSuccess() bool {
	return o.Status == Exited && o.ExitCode == 0
}

// ExecuteSandboxed allocates a fresh box, stages the spec's work dir in,
// runs the command, optionally stages files back out, and always releases
// the box — even on error paths.
func ExecuteSandboxed(ctx context.Context, spec ExecutionSpec, log *logrus.Entry) (ExecutionOutcome, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	workerID := spec.WorkerID
	if workerID == 0 {
		workerID = atomic.LoadUint32(&defaultWorkerID)
	}
	boxID := NextBoxID(workerID)
	useCgroups := spec.UseCgroups || sandbox.CgroupsAvailable(ctx)

	box, err := sandbox.Init(ctx, boxID, useCgroups, log)
	if err != nil {
		return ExecutionOutcome{Status: SystemError}, fmt.Errorf("sandbox init failed: %w", err)
	}
	defer func() {
		if cleanupErr := box.Cleanup(ctx); cleanupErr != nil {
			log.WithError(cleanupErr).Warn("box cleanup failed")
		}
	}()

	if spec.WorkDir != "" {
		if _, err := os.Stat(spec.WorkDir); err == nil {
			if err := box.StageIn(spec.WorkDir); err != nil {
				return ExecutionOutcome{Status: SystemError}, fmt.Errorf("stage-in failed: %w", err)
			}
		}
	}

	io := sandbox.NewIOSpec()
	io.Stdin = spec.Stdin
	if spec.SeparateStderr {
		io.StderrToStdout = false
	}

	limits := sandbox.DefaultLimits(spec.Limits.TimeMs, spec.Limits.MemoryMB)

	outcome, err := box.Run(ctx, spec.Command, limits, io)
	if err != nil {
		return ExecutionOutcome{Status: SystemError}, fmt.Errorf("sandbox run failed: %w", err)
	}

	if spec.CopyOutDir != "" {
		if err := box.StageOut(spec.CopyOutDir); err != nil {
			log.WithError(err).Warn("stage-out failed")
		}
	}

	return toExecutionOutcome(outcome), nil
}

// ExecuteTrusted runs a trusted binary (a checker or validator, authored by
// the problem-setter rather than the submitter). It takes the exact same
// sandboxed path but without stage-out: trusted invocations only ever need
// an exit code plus stdout/stderr.
func ExecuteTrusted(ctx context.Context, spec ExecutionSpec, log *logrus.Entry) (ExecutionOutcome, error) {
	spec.CopyOutDir = ""
	return ExecuteSandboxed(ctx, spec, log)
}

func toExecutionOutcome(o sandbox.Outcome) ExecutionOutcome {
	out := ExecutionOutcome{
		TimeMs:      o.Meta.TimeMs,
		MemoryKB:    o.Meta.MemoryKB,
		Stdout:      o.StdoutText,
		StdoutBytes: o.StdoutBytes,
		Stderr:      o.Stderr,
	}

	switch o.Status {
	case sandbox.StatusExited:
		out.Status = Exited
		out.ExitCode = o.Meta.ExitCode
	case sandbox.StatusTimeLimitExceeded:
		out.Status = TimeLimitExceeded
	case sandbox.StatusMemoryLimitExceeded:
		out.Status = MemoryLimitExceeded
	case sandbox.StatusSignaled:
		out.Status = Signaled
		out.Signal = o.Meta.ExitSig
	case sandbox.StatusRuntimeError:
		out.Status = RuntimeError
		out.ExitCode = o.Meta.ExitCode
	case sandbox.StatusSystemError:
		out.Status = SystemError
	}

	return out
}
