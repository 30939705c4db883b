// Package queue wraps the Redis-backed job queue: worker identity leasing,
// job dequeue, and result delivery.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/coderunr/judgeworker/internal/anigma"
	"github.com/coderunr/judgeworker/internal/judger"
	"github.com/coderunr/judgeworker/internal/playground"
	"github.com/coderunr/judgeworker/internal/validator"
)

const (
	queueKey             = "judge:queue"
	judgeResultPrefix    = "judge:result:"
	validateResultPrefix = "validate:result:"
	anigmaResultPrefix   = "anigma:result:"

	judgeResultsChannel    = "judge:results"
	validateResultsChannel = "validate:results"
	anigmaResultsChannel   = "anigma:results"
	progressChannel        = "judge:progress"

	resultTTL = 3600 * time.Second

	leaseKeyPrefix = "judge:worker:lease:"
)

// JobType tags the five job kinds a worker can pull off the queue.
type JobType string

const (
	JobJudge       JobType = "judge"
	JobValidate    JobType = "validate"
	JobAnigma      JobType = "anigma"
	JobAnigmaTask1 JobType = "anigma_task1"
	JobPlayground  JobType = "playground"
)

// Envelope is the tagged-union wire shape of a queued job: job_type plus the
// remaining fields deferred until the type is known.
type Envelope struct {
	JobType JobType         `json:"job_type"`
	Raw     json.RawMessage `json:"-"`
}

// Job is a dequeued job, decoded into exactly one of the five payload
// fields selected by Type.
type Job struct {
	Type        JobType
	Judge       *judger.Job
	Validate    *validator.Job
	Anigma      *anigma.Job
	AnigmaTask1 *anigma.Task1Job
	Playground  *playground.Job
}

// UnmarshalJSON captures job_type and stashes the raw bytes for a second
// decode pass once the concrete type is known.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var tag struct {
		JobType JobType `json:"job_type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	e.JobType = tag.JobType
	e.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// decode resolves the envelope's raw payload into a Job.
func decode(env Envelope) (Job, error) {
	switch env.JobType {
	case JobJudge:
		var j judger.Job
		if err := json.Unmarshal(env.Raw, &j); err != nil {
			return Job{}, fmt.Errorf("failed to decode judge job: %w", err)
		}
		return Job{Type: JobJudge, Judge: &j}, nil
	case JobValidate:
		var j validator.Job
		if err := json.Unmarshal(env.Raw, &j); err != nil {
			return Job{}, fmt.Errorf("failed to decode validate job: %w", err)
		}
		return Job{Type: JobValidate, Validate: &j}, nil
	case JobAnigma:
		var j anigma.Job
		if err := json.Unmarshal(env.Raw, &j); err != nil {
			return Job{}, fmt.Errorf("failed to decode anigma job: %w", err)
		}
		return Job{Type: JobAnigma, Anigma: &j}, nil
	case JobAnigmaTask1:
		var j anigma.Task1Job
		if err := json.Unmarshal(env.Raw, &j); err != nil {
			return Job{}, fmt.Errorf("failed to decode anigma_task1 job: %w", err)
		}
		return Job{Type: JobAnigmaTask1, AnigmaTask1: &j}, nil
	case JobPlayground:
		var j playground.Job
		if err := json.Unmarshal(env.Raw, &j); err != nil {
			return Job{}, fmt.Errorf("failed to decode playground job: %w", err)
		}
		return Job{Type: JobPlayground, Playground: &j}, nil
	default:
		return Job{}, fmt.Errorf("unknown job_type: %q", env.JobType)
	}
}

// Config configures the Redis connection backing the Client.
type Config struct {
	URL            string
	MaxWorkers     uint32
	WorkerLeaseTTL time.Duration
}

// Client wraps a redis client with the queue/result/lease operations the
// orchestrator needs.
type Client struct {
	rdb *redis.Client
	cfg Config
	log *logrus.Entry
}

// New connects to Redis and returns a Client.
func New(cfg Config, log *logrus.Entry) (*Client, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.WorkerLeaseTTL == 0 {
		cfg.WorkerLeaseTTL = 120 * time.Second
	}

	return &Client{rdb: rdb, cfg: cfg, log: log}, nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Lease is a claimed worker identity, with a background heartbeat
// refreshing its TTL until Release is called.
type Lease struct {
	WorkerID uint32

	cancel context.CancelFunc
	done   chan struct{}
}

// Release stops the lease's heartbeat goroutine. The lease key itself is
// left to expire naturally (mirrors the teacher's fire-and-forget shutdown).
func (l *Lease) Release() {
	l.cancel()
	<-l.done
}

// AcquireLease probes worker identities 0..MaxWorkers-1 and atomically
// claims the first free one, retrying the whole probe every second if none
// is free. A background goroutine refreshes the lease's EXPIRE at TTL/2 for
// as long as the lease is held.
func (c *Client) AcquireLease(ctx context.Context) (*Lease, error) {
	for {
		for id := uint32(0); id < c.cfg.MaxWorkers; id++ {
			key := leaseKey(id)
			ok, err := c.rdb.SetNX(ctx, key, "claimed", c.cfg.WorkerLeaseTTL).Result()
			if err != nil {
				c.log.WithError(err).Warn("failed to probe worker lease key")
				continue
			}
			if ok {
				leaseCtx, cancel := context.WithCancel(context.Background())
				lease := &Lease{WorkerID: id, cancel: cancel, done: make(chan struct{})}
				go c.heartbeat(leaseCtx, key, lease.done)
				c.log.WithField("worker_id", id).Info("acquired worker lease")
				return lease, nil
			}
		}

		c.log.Warn("no free worker identity, retrying in 1s")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
}

func (c *Client) heartbeat(ctx context.Context, key string, done chan struct{}) {
	defer close(done)

	interval := c.cfg.WorkerLeaseTTL / 2
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.rdb.Expire(context.Background(), key, c.cfg.WorkerLeaseTTL).Err(); err != nil {
				c.log.WithError(err).WithField("key", key).Warn("failed to refresh worker lease")
			}
		}
	}
}

func leaseKey(id uint32) string {
	return fmt.Sprintf("%s%d", leaseKeyPrefix, id)
}

// Enqueue RPUSHes a raw job envelope onto the queue, used by judgectl to
// submit ad-hoc jobs for operator testing.
func (c *Client) Enqueue(ctx context.Context, raw json.RawMessage) error {
	return c.rdb.RPush(ctx, queueKey, []byte(raw)).Err()
}

// Dequeue blocks on the queue key until a job arrives, reconnecting and
// retrying on transport errors. Payloads that fail to parse are logged and
// skipped without returning an error.
func (c *Client) Dequeue(ctx context.Context) (Job, error) {
	for {
		result, err := c.rdb.BLPop(ctx, 0, queueKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			c.log.WithError(err).Warn("BLPOP failed, reconnecting")
			select {
			case <-ctx.Done():
				return Job{}, ctx.Err()
			case <-time.After(1 * time.Second):
			}
			continue
		}

		// result is [key, value]; BLPOP on one key always returns exactly that pair.
		payload := result[1]

		var env Envelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			c.log.WithError(err).Warn("failed to parse job envelope, skipping")
			continue
		}

		job, err := decode(env)
		if err != nil {
			c.log.WithError(err).Warn("failed to decode job, skipping")
			continue
		}

		return job, nil
	}
}

// PublishJudgeResult stores and publishes a judge result keyed by
// submission id.
func (c *Client) PublishJudgeResult(ctx context.Context, submissionID int64, result any) error {
	return c.storeAndPublish(ctx, fmt.Sprintf("%s%d", judgeResultPrefix, submissionID), judgeResultsChannel, result)
}

// PublishValidateResult stores and publishes a validation result keyed by
// problem id.
func (c *Client) PublishValidateResult(ctx context.Context, problemID int64, result any) error {
	return c.storeAndPublish(ctx, fmt.Sprintf("%s%d", validateResultPrefix, problemID), validateResultsChannel, result)
}

// PublishAnigmaResult stores and publishes an anigma result (Task 1 or
// Task 2) keyed by submission id.
func (c *Client) PublishAnigmaResult(ctx context.Context, submissionID int64, result any) error {
	return c.storeAndPublish(ctx, fmt.Sprintf("%s%d", anigmaResultPrefix, submissionID), anigmaResultsChannel, result)
}

// PublishPlaygroundResult delivers a playground run's result to a
// caller-supplied list key via RPUSH, expiring the key after 300s.
func (c *Client) PublishPlaygroundResult(ctx context.Context, resultKey string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal playground result: %w", err)
	}

	if err := c.rdb.RPush(ctx, resultKey, data).Err(); err != nil {
		return fmt.Errorf("failed to rpush playground result: %w", err)
	}
	if err := c.rdb.Expire(ctx, resultKey, 300*time.Second).Err(); err != nil {
		c.log.WithError(err).WithField("key", resultKey).Warn("failed to set playground result expiry")
	}
	return nil
}

// storeAndPublish SETEXes result under key (reconnecting and retrying once
// on failure) then publishes the same JSON to channel (non-fatal on error).
func (c *Client) storeAndPublish(ctx context.Context, key, channel string, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := c.rdb.Set(ctx, key, data, resultTTL).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("SETEX failed, retrying once")
		if err := c.rdb.Set(ctx, key, data, resultTTL).Err(); err != nil {
			return fmt.Errorf("failed to store result after retry, job lost: %w", err)
		}
	}

	if err := c.rdb.Publish(ctx, channel, data).Err(); err != nil {
		c.log.WithError(err).WithField("channel", channel).Warn("failed to publish result")
	}

	return nil
}

// ProgressUpdate is published to the optional progress channel as
// testcases complete. Best-effort: publish errors are swallowed.
type ProgressUpdate struct {
	SubmissionID int64 `json:"submission_id"`
	Percentage   int   `json:"percentage"`
}

// PublishProgress publishes a progress update. Errors are logged and
// otherwise ignored.
func (c *Client) PublishProgress(ctx context.Context, update ProgressUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	if err := c.rdb.Publish(ctx, progressChannel, data).Err(); err != nil {
		c.log.WithError(err).Debug("failed to publish progress update")
	}
}

// QueueDepth returns the current length of the job queue, used by judgectl.
func (c *Client) QueueDepth(ctx context.Context) (int64, error) {
	return c.rdb.LLen(ctx, queueKey).Result()
}

// FetchJudgeResult fetches a stored judge result by submission id, used by
// judgectl.
func (c *Client) FetchJudgeResult(ctx context.Context, submissionID int64) (string, error) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf("%s%d", judgeResultPrefix, submissionID)).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("no result stored for submission %d", submissionID)
	}
	return val, err
}

// SubscribeProgress returns a pub/sub subscription to the progress channel,
// used by the admin surface's websocket handler.
func (c *Client) SubscribeProgress(ctx context.Context) *redis.PubSub {
	return c.rdb.Subscribe(ctx, progressChannel)
}
