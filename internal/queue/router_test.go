package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/queue"
)

type recordingPublisher struct {
	jobs   []dispatch.Job
	queues []string
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, job dispatch.Job, q string) error {
	p.jobs = append(p.jobs, job)
	p.queues = append(p.queues, q)
	return p.err
}

func testJob() dispatch.Job {
	return dispatch.Job{
		ID:         "job-1",
		Driver:     "ssl",
		Recipients: []string{"8801712345678"},
		Message:    "hi",
		QueuedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRouterUsesDefaults(t *testing.T) {
	redis := &recordingPublisher{}
	router := queue.NewRouter("redis", "sms", zerolog.Nop(), queue.WithPublisher("redis", redis))

	pending, err := router.Enqueue(context.Background(), testJob(), dispatch.Target{})
	require.NoError(t, err)

	assert.Equal(t, []string{"sms"}, redis.queues)
	assert.Equal(t, "job-1", pending.JobID)
	assert.Equal(t, "ssl", pending.Driver)
	assert.Equal(t, "sms", pending.Queue)
	assert.Equal(t, "redis", pending.Connection)
	assert.Equal(t, testJob().QueuedAt, pending.QueuedAt)
}

func TestRouterHonoursTarget(t *testing.T) {
	redis := &recordingPublisher{}
	kafka := &recordingPublisher{}
	router := queue.NewRouter("redis", "sms", zerolog.Nop(),
		queue.WithPublisher("redis", redis),
		queue.WithPublisher("kafka", kafka),
	)

	pending, err := router.Enqueue(context.Background(), testJob(), dispatch.Target{Queue: "otp", Connection: "Kafka"})
	require.NoError(t, err)

	assert.Empty(t, redis.jobs)
	assert.Equal(t, []string{"otp"}, kafka.queues)
	assert.Equal(t, "kafka", pending.Connection)
	assert.Equal(t, []string{"kafka", "redis"}, router.Connections())
}

func TestRouterUnknownConnection(t *testing.T) {
	router := queue.NewRouter("redis", "sms", zerolog.Nop())

	_, err := router.Enqueue(context.Background(), testJob(), dispatch.Target{})
	require.ErrorIs(t, err, queue.ErrUnknownConnection)
}

func TestRouterIgnoresNilPublisher(t *testing.T) {
	var missing *recordingPublisher
	router := queue.NewRouter("kafka", "sms", zerolog.Nop(), queue.WithPublisher("kafka", missing))

	_, err := router.Enqueue(context.Background(), testJob(), dispatch.Target{})
	require.ErrorIs(t, err, queue.ErrUnknownConnection)
}

func TestRouterPropagatesPublishError(t *testing.T) {
	boom := errors.New("broker down")
	router := queue.NewRouter("redis", "sms", zerolog.Nop(), queue.WithPublisher("redis", &recordingPublisher{err: boom}))

	_, err := router.Enqueue(context.Background(), testJob(), dispatch.Target{})
	require.ErrorIs(t, err, boom)
}

func TestRouterStampsMissingQueuedAt(t *testing.T) {
	fixed := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	router := queue.NewRouter("redis", "sms", zerolog.Nop(),
		queue.WithPublisher("redis", queue.PublisherFunc(func(context.Context, dispatch.Job, string) error { return nil })),
		queue.WithClock(func() time.Time { return fixed }),
	)

	job := testJob()
	job.QueuedAt = time.Time{}
	pending, err := router.Enqueue(context.Background(), job, dispatch.Target{})
	require.NoError(t, err)
	assert.Equal(t, fixed, pending.QueuedAt)
}
