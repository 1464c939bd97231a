package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/bdsms/internal/phone"
	"github.com/example/bdsms/internal/transport"
)

// Option customises an SMS dispatch.
type Option func(*SMS)

// WithPolicy replaces the request policy.
func WithPolicy(p transport.Policy) Option {
	return func(s *SMS) {
		s.policy = p.Sanitize()
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *SMS) {
		if d >= 0 {
			s.policy.Timeout = d
		}
	}
}

// WithRetry overrides the number of extra attempts.
func WithRetry(n int) Option {
	return func(s *SMS) {
		if n >= 0 {
			s.policy.Retry = n
		}
	}
}

// WithRetryDelay overrides the pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(s *SMS) {
		if d >= 0 {
			s.policy.RetryDelay = d
		}
	}
}

// WithEnqueuer sets where Queue hands jobs off to.
func WithEnqueuer(q Enqueuer) Option {
	return func(s *SMS) {
		s.enqueuer = q
	}
}

// WithDriverName sets the name queued jobs are recorded under, which replay
// later resolves. It defaults to the driver's own Name.
func WithDriverName(name string) Option {
	return func(s *SMS) {
		s.driverName = name
	}
}

// WithClock overrides the clock used to stamp queued jobs.
func WithClock(now func() time.Time) Option {
	return func(s *SMS) {
		if now != nil {
			s.now = now
		}
	}
}

// QueueOption selects the queue target for a deferred dispatch.
type QueueOption func(*Target)

// OnQueue names the queue the job is placed on.
func OnQueue(name string) QueueOption {
	return func(t *Target) {
		t.Queue = name
	}
}

// OnConnection names the queue connection the job is placed on.
func OnConnection(name string) QueueOption {
	return func(t *Target) {
		t.Connection = name
	}
}

// SMS accumulates recipients and a message for one dispatch through a driver.
// It is not safe for concurrent use; build a fresh value per dispatch.
type SMS struct {
	driver     Driver
	driverName string
	policy     transport.Policy
	enqueuer   Enqueuer
	now        func() time.Time

	recipients []string
	message    string
	err        error
}

// New binds a dispatch to driver using the default request policy.
func New(driver Driver, opts ...Option) *SMS {
	s := &SMS{
		driver: driver,
		policy: transport.DefaultPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// To normalises and sets the recipients. If any number is rejected the
// recipient set is left unchanged and the error is reported by Err, Send and
// Queue.
func (s *SMS) To(numbers ...string) *SMS {
	normalized, err := phone.NormalizeAll(numbers)
	if err != nil {
		s.err = err
		return s
	}
	s.recipients = normalized
	s.err = nil
	return s
}

// Message sets the body verbatim.
func (s *SMS) Message(text string) *SMS {
	s.message = text
	return s
}

// Err returns the error recorded by the last call to To.
func (s *SMS) Err() error {
	return s.err
}

// Recipients returns a copy of the canonical recipient list.
func (s *SMS) Recipients() []string {
	return append([]string(nil), s.recipients...)
}

// Driver returns the bound driver.
func (s *SMS) Driver() Driver {
	return s.driver
}

// Policy returns the effective request policy.
func (s *SMS) Policy() transport.Policy {
	return s.policy
}

// Send validates the dispatch and the driver configuration, then calls the
// gateway.
func (s *SMS) Send(ctx context.Context) (*Outcome, error) {
	if err := s.prepare(); err != nil {
		return nil, err
	}
	return s.driver.Execute(ctx, Request{
		Recipients: s.Recipients(),
		Message:    s.message,
		Policy:     s.policy,
	})
}

// Queue validates the dispatch like Send, then hands a job snapshot to the
// enqueuer instead of calling the gateway.
func (s *SMS) Queue(ctx context.Context, opts ...QueueOption) (*PendingDispatch, error) {
	if err := s.prepare(); err != nil {
		return nil, err
	}
	if s.enqueuer == nil {
		return nil, fmt.Errorf("%w: no queue configured", ErrEnqueue)
	}

	var target Target
	for _, opt := range opts {
		if opt != nil {
			opt(&target)
		}
	}

	name := s.driverName
	if name == "" {
		name = s.driver.Name()
	}
	job := NewJob(name, s.recipients, s.message, s.now())
	pending, err := s.enqueuer.Enqueue(ctx, job, target)
	if err != nil {
		if errors.Is(err, ErrEnqueue) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEnqueue, err)
	}
	return pending, nil
}

func (s *SMS) prepare() error {
	if s.err != nil {
		return s.err
	}
	if s.driver == nil {
		return errors.New("dispatch: driver is required")
	}
	if len(s.recipients) == 0 {
		return ErrMissingRecipient
	}
	if s.message == "" {
		return ErrMissingMessage
	}
	return s.driver.Validate()
}

// Replay re-runs a queued job through the same path as Send. Recipients are
// already canonical and are not normalised again.
func Replay(ctx context.Context, resolver Resolver, job Job, opts ...Option) (*Outcome, error) {
	driver, err := resolver.Driver(job.Driver)
	if err != nil {
		return nil, err
	}
	s := New(driver, append([]Option{WithDriverName(job.Driver)}, opts...)...)
	s.recipients = append([]string(nil), job.Recipients...)
	s.message = job.Message
	return s.Send(ctx)
}
