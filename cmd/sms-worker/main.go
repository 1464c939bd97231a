package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/example/bdsms/internal/bootstrap"
	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/kafka/consumer"
	"github.com/example/bdsms/internal/queue/asynqueue"
	"github.com/example/bdsms/internal/queue/redisqueue"
	"github.com/example/bdsms/internal/worker"
)

const drainTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	log, logCloser, err := bootstrap.Logger(cfg, "sms-worker")
	if err != nil {
		fail("logger init", err)
	}
	defer logCloser.Close()

	infra, err := bootstrap.Open(ctx, cfg, log, "bdsms-worker")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open queue connections")
	}
	defer func() {
		if err := infra.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close queue connections")
		}
	}()

	statusPublisher, dlqPublisher, err := infra.Publishers()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create status publishers")
	}

	registry := infra.Registry()

	newEngine := func(connection string) *worker.Engine {
		engine, err := worker.NewEngine(worker.Config{
			Connection:        connection,
			MsgMaxBytes:       cfg.Validation.MsgMaxBytes,
			MaxAttempts:       cfg.Retry.MaxAttempts,
			BaseBackoff:       time.Duration(cfg.Retry.BaseBackoffSeconds) * time.Second,
			MaxBackoff:        time.Duration(cfg.Retry.MaxBackoffSeconds) * time.Second,
			WorkerConcurrency: cfg.Retry.WorkerConcurrency,
		}, worker.Dependencies{
			Replayer:        registry,
			StatusPublisher: statusPublisher,
			DLQPublisher:    dlqPublisher,
			Logger:          log,
			Now:             time.Now,
		})
		if err != nil {
			log.Fatal().Err(err).Str("connection", connection).Msg("failed to initialise worker engine")
		}
		return engine
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Queue.Uses(config.ConnectionKafka) {
		cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log, cfg.Retry.CommitOnSuccessOnly)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create kafka consumer")
		}
		defer func() {
			if err := cons.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close kafka consumer")
			}
		}()

		engine := newEngine(config.ConnectionKafka)
		g.Go(func() error {
			err := cons.Consume(gctx, cfg.Queue.WorkerQueues, worker.KafkaHandler(engine, cons))
			drain(engine, log)
			return ignoreCanceled(err)
		})
	}

	if cfg.Queue.Uses(config.ConnectionRedis) {
		engine := newEngine(config.ConnectionRedis)
		cons := redisqueue.NewConsumer(infra.Redis(), cfg.Redis.KeyPrefix, cfg.Queue.WorkerQueues, log)
		for i := 0; i < cfg.Retry.WorkerConcurrency; i++ {
			g.Go(func() error {
				return ignoreCanceled(cons.Run(gctx, engine))
			})
		}
	}

	if cfg.Queue.Uses(config.ConnectionAsynq) {
		srv, err := asynqueue.NewServer(cfg.Redis.URL, cfg.Queue.WorkerQueues, cfg.Retry.WorkerConcurrency, newEngine(config.ConnectionAsynq), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create asynq server")
		}
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start asynq server")
		}
		g.Go(func() error {
			<-gctx.Done()
			srv.Shutdown()
			return nil
		})
	}

	log.Info().
		Strs("connections", cfg.Queue.Enabled).
		Strs("queues", cfg.Queue.WorkerQueues).
		Str("default_driver", registry.DefaultDriver()).
		Msg("sms worker started")

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("worker terminated with error")
		return
	}
	log.Info().Msg("sms worker stopped")
}

func drain(engine *worker.Engine, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := engine.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("in-flight replays did not finish before shutdown")
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("sms worker init failed")
}
