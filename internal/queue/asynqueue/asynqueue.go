// Package asynqueue carries deferred dispatches as asynq tasks. The worker
// engine owns retries, so tasks are enqueued with MaxRetry(0).
package asynqueue

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/dispatch"
)

// TypeSendSMS is the task type for a deferred dispatch.
const TypeSendSMS = "sms:send"

// TaskEnqueuer is the subset of *asynq.Client used by Producer.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Producer enqueues jobs as asynq tasks.
type Producer struct {
	client TaskEnqueuer
	logger zerolog.Logger
}

// NewProducer constructs a Producer.
func NewProducer(client TaskEnqueuer, logger zerolog.Logger) *Producer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Producer{client: client, logger: logger.With().Str("component", "asynq_producer").Logger()}
}

// NewClient builds an asynq client from a redis:// URL.
func NewClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynqueue: parse redis url: %w", err)
	}
	return asynq.NewClient(opt), nil
}

// NewTask wraps a job in a task.
func NewTask(job dispatch.Job) (*asynq.Task, error) {
	payload, err := job.Encode()
	if err != nil {
		return nil, fmt.Errorf("asynqueue: %w", err)
	}
	return asynq.NewTask(TypeSendSMS, payload), nil
}

// Publish implements queue.Publisher. Re-publishing a job whose id is still
// pending is a no-op.
func (p *Producer) Publish(ctx context.Context, job dispatch.Job, queue string) error {
	if p == nil || p.client == nil {
		return errors.New("asynqueue: producer not initialised")
	}
	task, err := NewTask(job)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.MaxRetry(0)}
	if queue != "" {
		opts = append(opts, asynq.Queue(queue))
	}
	if job.ID != "" {
		opts = append(opts, asynq.TaskID(job.ID))
	}

	info, err := p.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			p.logger.Warn().Str("job_id", job.ID).Msg("job already enqueued")
			return nil
		}
		return fmt.Errorf("asynqueue: enqueue: %w", err)
	}
	p.logger.Debug().Str("job_id", job.ID).Str("queue", info.Queue).Msg("task enqueued")
	return nil
}
