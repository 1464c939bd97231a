package worker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/models"
)

// ErrGatewayRejected is recorded when a replay completed but the gateway
// reported the message as not accepted.
var ErrGatewayRejected = errors.New("worker: gateway reported failure")

// Config contains the runtime settings the worker engine relies on to
// orchestrate replay, retries, and DLQ handling for one queue connection.
type Config struct {
	Connection        string
	MsgMaxBytes       int
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	WorkerConcurrency int
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(ctx context.Context, record *Record) error

// Commit implements Committer.
func (f CommitFunc) Commit(ctx context.Context, record *Record) error {
	return f(ctx, record)
}

// Record is a queued job payload as delivered by any queue connection.
type Record struct {
	Queue     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commitMu sync.Mutex
	commit   func(context.Context) error
}

// NewRecord builds a record bound to the supplied commit function.
func NewRecord(queue string, key, value []byte, commit func(context.Context) error) *Record {
	r := &Record{
		Queue: queue,
		Key:   cloneBytes(key),
		Value: cloneBytes(value),
	}
	r.setCommitFn(commit)
	return r
}

// Clone returns a deep copy of the record that shares its commit function.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	r.commitMu.Lock()
	commit := r.commit
	r.commitMu.Unlock()

	return &Record{
		Queue:     r.Queue,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       cloneBytes(r.Key),
		Value:     cloneBytes(r.Value),
		Timestamp: r.Timestamp,
		Headers:   cloneHeaders(r.Headers),
		commit:    commit,
	}
}

// Commit acknowledges the record. Records without a commit function are
// acknowledged implicitly.
func (r *Record) Commit(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.commitMu.Lock()
	commit := r.commit
	r.commitMu.Unlock()
	if commit == nil {
		return nil
	}
	return commit(ctx)
}

func (r *Record) setCommitFn(fn func(context.Context) error) {
	r.commitMu.Lock()
	r.commit = fn
	r.commitMu.Unlock()
}

// Replayer sends a decoded job through its driver.
type Replayer interface {
	Replay(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error)
}

// StatusPublisher publishes lifecycle updates for a job.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.StatusEvent) error
}

// DLQPublisher records jobs the engine gave up on.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Committer acknowledges processed records. When omitted the engine calls the
// record's own commit function.
type Committer interface {
	Commit(ctx context.Context, record *Record) error
}

type recordCommitter struct{}

func (recordCommitter) Commit(ctx context.Context, record *Record) error {
	return record.Commit(ctx)
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Replayer        Replayer
	StatusPublisher StatusPublisher
	DLQPublisher    DLQPublisher
	Committer       Committer
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine replays queued jobs with bounded concurrency, retrying transient
// failures with exponential backoff and full jitter.
type Engine struct {
	cfg             Config
	replayer        Replayer
	statusPublisher StatusPublisher
	dlqPublisher    DLQPublisher
	committer       Committer
	logger          zerolog.Logger

	semaphore *semaphore.Weighted

	now func() time.Time
}

// NewEngine constructs a worker engine using the supplied configuration and
// collaborators.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.Connection == "" {
		return nil, errors.New("worker: connection must be provided")
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("worker: max attempts must be >= 1")
	}
	if cfg.WorkerConcurrency < 1 {
		return nil, errors.New("worker: worker concurrency must be >= 1")
	}
	if cfg.MsgMaxBytes < 0 {
		return nil, errors.New("worker: msg max bytes cannot be negative")
	}
	if deps.Replayer == nil {
		return nil, errors.New("worker: replayer dependency is required")
	}
	if deps.StatusPublisher == nil {
		return nil, errors.New("worker: status publisher dependency is required")
	}
	if deps.DLQPublisher == nil {
		return nil, errors.New("worker: DLQ publisher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().
		Str("component", "worker_engine").
		Str("connection", cfg.Connection).
		Logger()

	committer := deps.Committer
	if committer == nil {
		committer = recordCommitter{}
	}

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		cfg:             cfg,
		replayer:        deps.Replayer,
		statusPublisher: deps.StatusPublisher,
		dlqPublisher:    deps.DLQPublisher,
		committer:       committer,
		logger:          logger,
		semaphore:       semaphore.NewWeighted(int64(cfg.WorkerConcurrency)),
		now:             nowFunc,
	}, nil
}

// HandleRecord validates the record and replays it on a background goroutine.
// It blocks only while waiting for a free concurrency slot.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	job, ok := e.accept(ctx, record)
	if !ok {
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		e.logger.Error().
			Str("job_id", job.ID).
			Err(err).
			Msg("worker: failed to acquire concurrency semaphore")
		return
	}

	recCopy := record.Clone()
	go func() {
		defer e.semaphore.Release(1)
		_ = e.process(ctx, recCopy, job)
	}()
}

// Process validates and replays the record synchronously. A non-nil error
// means the record was left unacknowledged because ctx ended first.
func (e *Engine) Process(ctx context.Context, record *Record) error {
	if record == nil {
		return nil
	}
	job, ok := e.accept(ctx, record)
	if !ok {
		return nil
	}
	return e.process(ctx, record, job)
}

// Wait blocks until all in-flight replays started by HandleRecord finish.
func (e *Engine) Wait(ctx context.Context) error {
	if err := e.semaphore.Acquire(ctx, int64(e.cfg.WorkerConcurrency)); err != nil {
		return err
	}
	e.semaphore.Release(int64(e.cfg.WorkerConcurrency))
	return nil
}

func (e *Engine) accept(ctx context.Context, record *Record) (dispatch.Job, bool) {
	partial := dispatch.Job{ID: string(record.Key)}

	if e.cfg.MsgMaxBytes > 0 && len(record.Value) > e.cfg.MsgMaxBytes {
		err := fmt.Errorf("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.MsgMaxBytes)
		e.reject(ctx, record, partial, err)
		return dispatch.Job{}, false
	}

	job, err := dispatch.DecodeJob(record.Value)
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		if job.ID == "" {
			job.ID = partial.ID
		}
		e.reject(ctx, record, job, err)
		return dispatch.Job{}, false
	}
	if job.ID == "" {
		job.ID = partial.ID
	}
	return job, true
}

func (e *Engine) reject(ctx context.Context, record *Record, job dispatch.Job, err error) {
	now := e.now()
	e.logger.Warn().
		Str("job_id", job.ID).
		Str("queue", record.Queue).
		Err(err).
		Msg("worker: record rejected before replay")
	e.publishStatus(ctx, record, job, models.StatusEvent{EventType: models.StatusEventFailed, Error: err.Error(), Timestamp: now})
	e.publishDLQ(ctx, record, job, models.DLQRecord{
		FailureType:   models.FailureTypeValidation,
		LastError:     err.Error(),
		FirstFailedAt: now,
		LastAttemptAt: now,
	})
	e.commitRecord(ctx, record)
}

func (e *Engine) process(ctx context.Context, record *Record, job dispatch.Job) error {
	if err := ctx.Err(); err != nil {
		e.logger.Warn().
			Str("job_id", job.ID).
			Msg("worker: context cancelled before replay began")
		return err
	}

	e.publishStatus(ctx, record, job, models.StatusEvent{EventType: models.StatusEventQueued})

	attempt := 1
	firstFailedAt := time.Time{}
	retryBackOff := e.newBackOff()

	for {
		e.publishStatus(ctx, record, job, models.StatusEvent{EventType: models.StatusEventAttempt, Attempt: attempt})
		start := e.now()
		outcome, err := e.replayer.Replay(ctx, job)
		duration := e.now().Sub(start)

		log := e.logger.With().
			Str("job_id", job.ID).
			Str("driver", job.Driver).
			Int("attempt", attempt).
			Dur("duration", duration).
			Logger()

		if err == nil && outcome != nil && outcome.Success {
			log.Info().Msg("worker: sms sent")
			e.publishStatus(ctx, record, job, outcomeEvent(models.StatusEventSent, attempt, outcome, duration, nil))
			e.commitRecord(ctx, record)
			return nil
		}

		if err == nil {
			log.Warn().Msg("worker: gateway rejected sms")
			now := e.now()
			e.publishStatus(ctx, record, job, outcomeEvent(models.StatusEventRejected, attempt, outcome, duration, ErrGatewayRejected))
			e.publishDLQ(ctx, record, job, models.DLQRecord{
				FailureType:   models.FailureTypePermanent,
				Attempts:      attempt,
				LastError:     ErrGatewayRejected.Error(),
				FirstFailedAt: now,
				LastAttemptAt: now,
			})
			e.commitRecord(ctx, record)
			return nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warn().Err(err).Msg("worker: context cancelled during replay; leaving record unacknowledged")
			return ctxErr
		}

		err = Classify(err)
		log.Warn().Err(err).Msg("worker: replay failed")

		now := e.now()
		if firstFailedAt.IsZero() {
			firstFailedAt = now
		}

		if errors.Is(err, ErrPermanent) || attempt >= e.cfg.MaxAttempts {
			failureType := models.FailureTypePermanent
			switch {
			case dispatch.IsValidation(err):
				failureType = models.FailureTypeValidation
			case errors.Is(err, ErrTransient):
				failureType = models.FailureTypeTransient
			case !errors.Is(err, ErrPermanent):
				failureType = models.FailureTypeUnknown
			}
			e.publishStatus(ctx, record, job, outcomeEvent(models.StatusEventFailed, attempt, nil, duration, err))
			e.publishDLQ(ctx, record, job, models.DLQRecord{
				FailureType:   failureType,
				Attempts:      attempt,
				LastError:     err.Error(),
				FirstFailedAt: firstFailedAt,
				LastAttemptAt: now,
			})
			e.commitRecord(ctx, record)
			return nil
		}

		delay := e.nextBackOff(retryBackOff)
		if delay > 0 {
			log.Info().Dur("backoff", delay).Msg("worker: scheduling retry after transient error")
		}

		if !e.wait(ctx, delay) {
			log.Warn().Msg("worker: context cancelled while waiting for retry; leaving record unacknowledged")
			return ctx.Err()
		}

		attempt++
	}
}

func outcomeEvent(eventType string, attempt int, outcome *dispatch.Outcome, duration time.Duration, err error) models.StatusEvent {
	event := models.StatusEvent{
		EventType:  eventType,
		Attempt:    attempt,
		DurationMs: duration.Milliseconds(),
	}
	if outcome != nil {
		success := outcome.Success
		event.Success = &success
		event.Response = outcome.Data
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}

// newBackOff returns the per-job retry schedule: exponential growth from
// BaseBackoff, randomised, capped at MaxBackoff and never expiring on its own.
func (e *Engine) newBackOff() *backoff.ExponentialBackOff {
	if e.cfg.BaseBackoff <= 0 {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.BaseBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0
	if e.cfg.MaxBackoff > 0 {
		b.MaxInterval = e.cfg.MaxBackoff
	}
	b.Reset()
	return b
}

func (e *Engine) nextBackOff(b *backoff.ExponentialBackOff) time.Duration {
	if b == nil {
		return 0
	}
	delay := b.NextBackOff()
	if delay < 0 {
		return 0
	}
	if e.cfg.MaxBackoff > 0 && delay > e.cfg.MaxBackoff {
		delay = e.cfg.MaxBackoff
	}
	return delay
}

func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) publishStatus(ctx context.Context, record *Record, job dispatch.Job, event models.StatusEvent) {
	event.JobID = job.ID
	event.Driver = job.Driver
	event.Queue = record.Queue
	event.Recipients = len(job.Recipients)
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if err := e.statusPublisher.PublishStatus(ctx, event); err != nil {
		e.logger.Error().
			Str("job_id", job.ID).
			Str("event", event.EventType).
			Err(err).
			Msg("worker: failed to publish status event")
	}
}

func (e *Engine) publishDLQ(ctx context.Context, record *Record, job dispatch.Job, entry models.DLQRecord) {
	entry.JobID = job.ID
	entry.Driver = job.Driver
	entry.Queue = record.Queue
	entry.OriginalJob = cloneBytes(record.Value)
	if entry.FirstFailedAt.IsZero() {
		entry.FirstFailedAt = e.now()
	}
	if entry.LastAttemptAt.IsZero() {
		entry.LastAttemptAt = entry.FirstFailedAt
	}
	if err := e.dlqPublisher.PublishDLQ(ctx, entry); err != nil {
		e.logger.Error().
			Str("job_id", job.ID).
			Err(err).
			Msg("worker: failed to publish DLQ record")
	}
}

func (e *Engine) commitRecord(ctx context.Context, record *Record) {
	if err := e.committer.Commit(ctx, record); err != nil {
		e.logger.Error().
			Str("queue", record.Queue).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to commit record")
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

func cloneHeaders(headers map[string][]byte) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string][]byte, len(headers))
	for k, v := range headers {
		clone[k] = cloneBytes(v)
	}
	return clone
}
