package queue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/dispatch"
)

// ErrUnknownConnection is returned when a job targets a connection that has
// no registered publisher.
var ErrUnknownConnection = errors.New("queue: unknown connection")

// Publisher writes an encoded job onto one named queue of a connection.
type Publisher interface {
	Publish(ctx context.Context, job dispatch.Job, queue string) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, job dispatch.Job, queue string) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, job dispatch.Job, queue string) error {
	return f(ctx, job, queue)
}

// Router implements dispatch.Enqueuer by routing each job to the publisher of
// its target connection.
type Router struct {
	connection string
	queue      string
	publishers map[string]Publisher
	logger     zerolog.Logger
	now        func() time.Time
}

// Option customises the router.
type Option func(*Router)

// WithPublisher registers the publisher for a connection name.
func WithPublisher(connection string, p Publisher) Option {
	return func(r *Router) {
		if p != nil && !isNil(p) {
			r.publishers[strings.ToLower(connection)] = p
		}
	}
}

// WithClock overrides the clock used for PendingDispatch timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRouter builds a router whose defaults come from configuration.
func NewRouter(defaultConnection, defaultQueue string, logger zerolog.Logger, opts ...Option) *Router {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	r := &Router{
		connection: strings.ToLower(defaultConnection),
		queue:      defaultQueue,
		publishers: make(map[string]Publisher),
		logger:     logger.With().Str("component", "queue_router").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Enqueue implements dispatch.Enqueuer.
func (r *Router) Enqueue(ctx context.Context, job dispatch.Job, target dispatch.Target) (*dispatch.PendingDispatch, error) {
	connection := strings.ToLower(strings.TrimSpace(target.Connection))
	if connection == "" {
		connection = r.connection
	}
	queueName := strings.TrimSpace(target.Queue)
	if queueName == "" {
		queueName = r.queue
	}

	pub, ok := r.publishers[connection]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnection, connection)
	}

	if err := pub.Publish(ctx, job, queueName); err != nil {
		r.logger.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("driver", job.Driver).
			Str("queue", queueName).
			Str("connection", connection).
			Msg("job hand-off failed")
		return nil, err
	}

	r.logger.Info().
		Str("job_id", job.ID).
		Str("driver", job.Driver).
		Int("recipients", len(job.Recipients)).
		Str("queue", queueName).
		Str("connection", connection).
		Msg("job queued")

	queuedAt := job.QueuedAt
	if queuedAt.IsZero() {
		queuedAt = r.now().UTC()
	}
	return &dispatch.PendingDispatch{
		JobID:      job.ID,
		Driver:     job.Driver,
		Queue:      queueName,
		Connection: connection,
		QueuedAt:   queuedAt,
	}, nil
}

// Connections lists the registered connection names.
func (r *Router) Connections() []string {
	out := make([]string, 0, len(r.publishers))
	for name := range r.publishers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func isNil(p Publisher) bool {
	v := reflect.ValueOf(p)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
