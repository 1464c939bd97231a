// Package bootstrap opens the queue backends named in configuration and wires
// them into the registry, router and worker publishers shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/kafka/producer"
	kafkapublisher "github.com/example/bdsms/internal/kafka/publisher"
	"github.com/example/bdsms/internal/logger"
	"github.com/example/bdsms/internal/providers/factory"
	"github.com/example/bdsms/internal/queue"
	"github.com/example/bdsms/internal/queue/asynqueue"
	"github.com/example/bdsms/internal/queue/redisqueue"
	"github.com/example/bdsms/internal/worker"
)

// KafkaProducer is the producer surface used for jobs, status and DLQ topics.
type KafkaProducer interface {
	kafkapublisher.SyncProducer
	kafkapublisher.AsyncProducer
}

// Infra holds the open queue backends.
type Infra struct {
	cfg    *config.Config
	logger zerolog.Logger

	kafka KafkaProducer
	redis redisqueue.Client
	asynq asynqueue.TaskEnqueuer

	closers []io.Closer
}

// Logger builds the service logger from configuration. The closer flushes the
// rotating log file when one is configured.
func Logger(cfg *config.Config, service string) (zerolog.Logger, io.Closer, error) {
	base, closer, err := logger.NewWithFile(cfg.App.Env, cfg.App.LogLevel, logger.FileConfig{
		Path:       cfg.App.LogFile.Path,
		MaxSizeMB:  cfg.App.LogFile.MaxSizeMB,
		MaxBackups: cfg.App.LogFile.MaxBackups,
		MaxAgeDays: cfg.App.LogFile.MaxAgeDays,
	})
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("bootstrap: logger: %w", err)
	}
	return base.With().Str("service", service).Logger(), closer, nil
}

// Open connects to every enabled queue connection. Redis is opened for both
// the redis and asynq connections.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger, clientID string) (*Infra, error) {
	infra := newInfra(cfg, log)

	if cfg.Queue.Uses(config.ConnectionKafka) {
		prod, err := producer.New(cfg.Kafka.Brokers, log, producer.WithClientID(clientID))
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		infra.kafka = prod
		infra.closers = append(infra.closers, prod)
	}

	if cfg.Queue.Uses(config.ConnectionRedis) || cfg.Queue.Uses(config.ConnectionAsynq) {
		client, err := redisqueue.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		infra.redis = client
		infra.closers = append(infra.closers, client)
	}

	if cfg.Queue.Uses(config.ConnectionAsynq) {
		client, err := asynqueue.NewClient(cfg.Redis.URL)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		infra.asynq = client
		infra.closers = append(infra.closers, client)
	}

	return infra, nil
}

func newInfra(cfg *config.Config, log zerolog.Logger) *Infra {
	if reflect.ValueOf(log).IsZero() {
		log = zerolog.Nop()
	}
	return &Infra{cfg: cfg, logger: log}
}

// Router returns an enqueuer routing to every open connection.
func (i *Infra) Router() *queue.Router {
	opts := make([]queue.Option, 0, 3)
	if i.kafka != nil {
		var jobOpts []kafkapublisher.JobOption
		if i.cfg.Kafka.SyncEnqueue {
			jobOpts = append(jobOpts, kafkapublisher.WithSyncDelivery(i.kafka))
		}
		opts = append(opts, queue.WithPublisher(config.ConnectionKafka, kafkapublisher.NewJobPublisher(i.kafka, i.logger, jobOpts...)))
	}
	if i.redis != nil {
		opts = append(opts, queue.WithPublisher(config.ConnectionRedis, redisqueue.NewProducer(i.redis, i.cfg.Redis.KeyPrefix, i.logger)))
	}
	if i.asynq != nil {
		opts = append(opts, queue.WithPublisher(config.ConnectionAsynq, asynqueue.NewProducer(i.asynq, i.logger)))
	}
	return queue.NewRouter(i.cfg.Queue.Connection, i.cfg.Queue.Name, i.logger, opts...)
}

// Registry builds the provider registry bound to Router.
func (i *Infra) Registry(opts ...factory.Option) *factory.Registry {
	opts = append([]factory.Option{factory.WithEnqueuer(i.Router())}, opts...)
	return factory.New(i.cfg.SMS, i.cfg.Request.Policy(), i.logger, opts...)
}

// Publishers returns the status and DLQ sinks. Kafka topics win when a
// producer is open, otherwise Redis lists are used.
func (i *Infra) Publishers() (worker.StatusPublisher, worker.DLQPublisher, error) {
	switch {
	case i.kafka != nil:
		return kafkapublisher.NewStatusPublisher(i.kafka, i.cfg.Kafka.StatusTopic, i.logger),
			kafkapublisher.NewDLQPublisher(i.kafka, i.cfg.Kafka.DLQTopic, i.logger),
			nil
	case i.redis != nil:
		return redisqueue.NewStatusPublisher(i.redis, i.cfg.Redis.KeyPrefix, i.cfg.Redis.StatusMaxLen),
			redisqueue.NewDLQPublisher(i.redis, i.cfg.Redis.KeyPrefix),
			nil
	default:
		return nil, nil, errors.New("bootstrap: no connection available for status and DLQ records")
	}
}

// Redis returns the open Redis client, or nil.
func (i *Infra) Redis() redisqueue.Client {
	return i.redis
}

// Close releases every open backend in reverse order.
func (i *Infra) Close() error {
	var errs []error
	for idx := len(i.closers) - 1; idx >= 0; idx-- {
		if err := i.closers[idx].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
