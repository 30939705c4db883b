// Package orchestrator implements the worker's main loop (C11): pop a job,
// dispatch it to the matching pipeline by variant, store and publish the
// result, and keep going regardless of per-job failure.
package orchestrator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/anigma"
	"github.com/coderunr/judgeworker/internal/checker"
	"github.com/coderunr/judgeworker/internal/judger"
	"github.com/coderunr/judgeworker/internal/languages"
	"github.com/coderunr/judgeworker/internal/playground"
	"github.com/coderunr/judgeworker/internal/queue"
	"github.com/coderunr/judgeworker/internal/storage"
	"github.com/coderunr/judgeworker/internal/validator"
	"github.com/coderunr/judgeworker/internal/verdict"
)

// Deps bundles every collaborator the main loop dispatches work to.
type Deps struct {
	Queue            *queue.Client
	Storage          *storage.Client
	Languages        *languages.Registry
	CheckerManager   *checker.Manager
	ValidatorManager *validator.Manager

	CompileTimeMs     uint32
	CompileMemoryMB   uint32
	CheckerTimeoutSec uint32
	WorkerID          uint32

	Log *logrus.Entry
}

// Run is the orchestrator's infinite loop: dequeue, dispatch, store, log.
// It returns only when ctx is cancelled (or, in the case of a permanent
// dequeue failure, when the queue client gives up).
func Run(ctx context.Context, deps Deps) error {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		job, err := deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("dequeue failed permanently, worker exiting")
			return err
		}

		dispatch(ctx, job, deps, log)
	}
}

// dispatch routes one dequeued job to its pipeline and stores the result.
// A panic inside the match arm is caught and turned into a system_error
// result rather than taking the whole worker down.
func dispatch(ctx context.Context, job queue.Job, deps Deps, log *logrus.Entry) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).WithField("job_type", job.Type).Error("recovered from panic while processing job")
			publishPanicResult(ctx, job, deps, log, r)
		}
	}()

	switch job.Type {
	case queue.JobJudge:
		processJudge(ctx, *job.Judge, deps, log)
	case queue.JobValidate:
		processValidate(ctx, *job.Validate, deps, log)
	case queue.JobAnigma:
		processAnigma(ctx, *job.Anigma, deps, log)
	case queue.JobAnigmaTask1:
		processAnigmaTask1(ctx, *job.AnigmaTask1, deps, log)
	case queue.JobPlayground:
		processPlayground(ctx, *job.Playground, deps, log)
	default:
		log.WithField("job_type", job.Type).Error("unknown job type dispatched")
	}
}

func processJudge(ctx context.Context, job judger.Job, deps Deps, log *logrus.Entry) {
	entry := log.WithField("submission_id", job.SubmissionID)

	result, err := judger.ProcessJob(ctx, job, judger.Deps{
		Languages:         deps.Languages,
		Storage:           deps.Storage,
		CheckerManager:    deps.CheckerManager,
		CompileTimeMs:     deps.CompileTimeMs,
		CompileMemoryMB:   deps.CompileMemoryMB,
		CheckerTimeoutSec: deps.CheckerTimeoutSec,
		WorkerID:          deps.WorkerID,
		Log:               entry,
		Progress:          progressReporter(ctx, deps, job.SubmissionID),
	})
	if err != nil {
		entry.WithError(err).Error("judge pipeline failed")
		result = judger.Result{SubmissionID: job.SubmissionID, Verdict: verdict.SystemError, ErrorMessage: err.Error()}
	}

	if err := deps.Queue.PublishJudgeResult(ctx, result.SubmissionID, result); err != nil {
		entry.WithError(err).Error("failed to publish judge result, job lost")
		return
	}
	entry.WithField("verdict", result.Verdict).Info("judge job complete")
}

func processValidate(ctx context.Context, job validator.Job, deps Deps, log *logrus.Entry) {
	entry := log.WithField("problem_id", job.ProblemID)

	result, err := validator.ProcessJob(ctx, job, validator.Deps{
		Storage:     deps.Storage,
		Manager:     deps.ValidatorManager,
		TimeoutSecs: deps.CheckerTimeoutSec,
		Log:         entry,
	})
	if err != nil {
		entry.WithError(err).Error("validate pipeline failed")
		result = validator.Result{ProblemID: job.ProblemID, ErrorMessage: err.Error()}
	}

	if err := deps.Queue.PublishValidateResult(ctx, result.ProblemID, result); err != nil {
		entry.WithError(err).Error("failed to publish validate result, job lost")
		return
	}
	entry.WithField("success", result.Success).Info("validate job complete")
}

func processAnigma(ctx context.Context, job anigma.Job, deps Deps, log *logrus.Entry) {
	entry := log.WithField("submission_id", job.SubmissionID)

	result, err := anigma.ProcessJob(ctx, job, anigma.Deps{
		Storage:         deps.Storage,
		CompileTimeMs:   deps.CompileTimeMs,
		CompileMemoryMB: deps.CompileMemoryMB,
		WorkerID:        deps.WorkerID,
		Log:             entry,
		Progress:        progressReporter(ctx, deps, job.SubmissionID),
	})
	if err != nil {
		entry.WithError(err).Error("anigma task2 pipeline failed")
		result = anigma.Result{Result: judgerSystemError(job.SubmissionID, err)}
	}

	if err := deps.Queue.PublishAnigmaResult(ctx, result.SubmissionID, result); err != nil {
		entry.WithError(err).Error("failed to publish anigma result, job lost")
		return
	}
	entry.WithField("verdict", result.Verdict).WithField("score", result.Score).Info("anigma task2 job complete")
}

func processAnigmaTask1(ctx context.Context, job anigma.Task1Job, deps Deps, log *logrus.Entry) {
	entry := log.WithField("submission_id", job.SubmissionID)

	result, err := anigma.ProcessTask1Job(ctx, job, anigma.Deps{
		Storage:         deps.Storage,
		CompileTimeMs:   deps.CompileTimeMs,
		CompileMemoryMB: deps.CompileMemoryMB,
		WorkerID:        deps.WorkerID,
		Log:             entry,
	})
	if err != nil {
		entry.WithError(err).Error("anigma task1 pipeline failed")
		result = anigma.Task1Result{Result: judgerSystemError(job.SubmissionID, err)}
	}

	if err := deps.Queue.PublishAnigmaResult(ctx, result.SubmissionID, result); err != nil {
		entry.WithError(err).Error("failed to publish anigma task1 result, job lost")
		return
	}
	entry.WithField("verdict", result.Verdict).WithField("score", result.Score).Info("anigma task1 job complete")
}

func processPlayground(ctx context.Context, job playground.Job, deps Deps, log *logrus.Entry) {
	entry := log.WithField("session_id", job.SessionID)

	result, err := playground.ProcessJob(ctx, job, playground.Deps{
		Languages:       deps.Languages,
		CompileTimeMs:   deps.CompileTimeMs,
		CompileMemoryMB: deps.CompileMemoryMB,
		WorkerID:        deps.WorkerID,
		Log:             entry,
	})
	if err != nil {
		entry.WithError(err).Error("playground pipeline failed")
		result = playground.Result{SessionID: job.SessionID, Status: "error", ErrorMessage: err.Error()}
	}

	if err := deps.Queue.PublishPlaygroundResult(ctx, job.ResultKey, result); err != nil {
		entry.WithError(err).Error("failed to deliver playground result, job lost")
		return
	}
	entry.WithField("status", result.Status).Info("playground job complete")
}

// progressReporter returns a judger/anigma progress callback that publishes
// a best-effort percentage update to the optional progress channel.
func progressReporter(ctx context.Context, deps Deps, submissionID int64) func(done, total int) {
	return func(done, total int) {
		if total == 0 {
			return
		}
		deps.Queue.PublishProgress(ctx, queue.ProgressUpdate{
			SubmissionID: submissionID,
			Percentage:   done * 100 / total,
		})
	}
}

// publishPanicResult converts a recovered panic into a published
// system_error-shaped result for the job's variant, so the enclosing
// platform still sees a terminal state instead of a silently lost job.
func publishPanicResult(ctx context.Context, job queue.Job, deps Deps, log *logrus.Entry, p any) {
	message := fmt.Sprintf("panic while processing job: %v", p)

	var err error
	switch job.Type {
	case queue.JobJudge:
		err = deps.Queue.PublishJudgeResult(ctx, job.Judge.SubmissionID,
			judger.Result{SubmissionID: job.Judge.SubmissionID, Verdict: verdict.SystemError, ErrorMessage: message})
	case queue.JobValidate:
		err = deps.Queue.PublishValidateResult(ctx, job.Validate.ProblemID,
			validator.Result{ProblemID: job.Validate.ProblemID, ErrorMessage: message})
	case queue.JobAnigma:
		err = deps.Queue.PublishAnigmaResult(ctx, job.Anigma.SubmissionID,
			anigma.Result{Result: judger.Result{SubmissionID: job.Anigma.SubmissionID, Verdict: verdict.SystemError, ErrorMessage: message}})
	case queue.JobAnigmaTask1:
		err = deps.Queue.PublishAnigmaResult(ctx, job.AnigmaTask1.SubmissionID,
			anigma.Task1Result{Result: judger.Result{SubmissionID: job.AnigmaTask1.SubmissionID, Verdict: verdict.SystemError, ErrorMessage: message}})
	case queue.JobPlayground:
		err = deps.Queue.PublishPlaygroundResult(ctx, job.Playground.ResultKey,
			playground.Result{SessionID: job.Playground.SessionID, Status: "error", ErrorMessage: message})
	}
	if err != nil {
		log.WithError(err).Error("failed to publish panic result, job lost")
	}
}

func judgerSystemError(submissionID int64, err error) judger.Result {
	return judger.Result{SubmissionID: submissionID, Verdict: verdict.SystemError, ErrorMessage: fmt.Sprintf("pipeline error: %v", err)}
}
