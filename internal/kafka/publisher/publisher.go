package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour required by the status
// and DLQ publishers.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// AsyncProducer captures the fire-and-forget hand-off used for jobs.
type AsyncProducer interface {
	PublishAsync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

func jsonHeaders() map[string][]byte {
	return map[string][]byte{
		"content-type": []byte("application/json"),
	}
}

// StatusPublisher emits status events to a Kafka topic using the shared producer.
type StatusPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewStatusPublisher constructs a StatusPublisher instance.
func NewStatusPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *StatusPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &StatusPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishStatus writes the supplied status event to Kafka synchronously.
func (p *StatusPublisher) PublishStatus(_ context.Context, event models.StatusEvent) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal status event: %w", err)
	}

	if err := p.producer.PublishSync(p.topic, []byte(event.JobID), jsonHeaders(), payload); err != nil {
		return fmt.Errorf("kafka publisher: publish status event: %w", err)
	}
	return nil
}

// DLQPublisher writes DLQ records to the configured Kafka topic.
type DLQPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewDLQPublisher constructs a DLQPublisher instance.
func NewDLQPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *DLQPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &DLQPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishDLQ writes the supplied DLQ record to Kafka synchronously.
func (p *DLQPublisher) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal dlq record: %w", err)
	}

	if err := p.producer.PublishSync(p.topic, []byte(record.JobID), jsonHeaders(), payload); err != nil {
		return fmt.Errorf("kafka publisher: publish dlq record: %w", err)
	}
	return nil
}

// JobPublisher hands deferred dispatches to Kafka. The queue name is the topic.
type JobPublisher struct {
	producer AsyncProducer
	sync     SyncProducer
	logger   zerolog.Logger
}

// JobOption customises a JobPublisher.
type JobOption func(*JobPublisher)

// WithSyncDelivery makes Publish wait for the broker acknowledgement through
// prod, so delivery failures are returned to the caller.
func WithSyncDelivery(prod SyncProducer) JobOption {
	return func(p *JobPublisher) {
		if prod != nil && !reflect.ValueOf(prod).IsZero() {
			p.sync = prod
		}
	}
}

// NewJobPublisher constructs a JobPublisher instance.
func NewJobPublisher(prod AsyncProducer, logger zerolog.Logger, opts ...JobOption) *JobPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	p := &JobPublisher{producer: prod, logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Publish writes the job to the queue topic. Without sync delivery it returns
// once the async producer accepts the message; later delivery failures are
// only logged and counted by the producer.
func (p *JobPublisher) Publish(_ context.Context, job dispatch.Job, queue string) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := job.Encode()
	if err != nil {
		return fmt.Errorf("kafka publisher: %w", err)
	}

	headers := jsonHeaders()
	headers["driver"] = []byte(job.Driver)
	if p.sync != nil {
		if err := p.sync.PublishSync(queue, []byte(job.ID), headers, payload); err != nil {
			return fmt.Errorf("kafka publisher: publish job: %w", err)
		}
		p.logger.Debug().
			Str("job_id", job.ID).
			Str("queue", queue).
			Msg("kafka publisher: job delivered")
		return nil
	}
	if err := p.producer.PublishAsync(queue, []byte(job.ID), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish job: %w", err)
	}
	p.logger.Debug().
		Str("job_id", job.ID).
		Str("queue", queue).
		Msg("kafka publisher: job handed off")
	return nil
}
