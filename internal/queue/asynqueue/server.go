package asynqueue

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/worker"
)

// Processor replays one record synchronously.
type Processor interface {
	Process(ctx context.Context, record *worker.Record) error
}

// Server runs an asynq server dispatching sms:send tasks to a Processor.
type Server struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	isRunning atomic.Bool
}

// NewServer creates a server consuming the given queues with equal priority.
func NewServer(redisURL string, queues []string, concurrency int, proc Processor, logger zerolog.Logger) (*Server, error) {
	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynqueue: parse redis url: %w", err)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "asynq_server").Logger()

	weights := make(map[string]int, len(queues))
	for _, q := range queues {
		weights[q] = 1
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      weights,
		Logger:      logAdapter{logger: logger},
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeSendSMS, Handler(proc))

	return &Server{server: server, mux: mux}, nil
}

// Handler adapts a Processor to an asynq handler.
func Handler(proc Processor) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		queue, _ := asynq.GetQueueName(ctx)
		taskID, _ := asynq.GetTaskID(ctx)
		record := worker.NewRecord(queue, []byte(taskID), t.Payload(), nil)
		return proc.Process(ctx, record)
	})
}

// Run starts the server and blocks until it is shut down.
func (s *Server) Run() error {
	s.isRunning.Store(true)
	defer s.isRunning.Store(false)
	return s.server.Run(s.mux)
}

// Start starts the server without blocking.
func (s *Server) Start() error {
	if err := s.server.Start(s.mux); err != nil {
		return err
	}
	s.isRunning.Store(true)
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() {
	s.isRunning.Store(false)
	s.server.Shutdown()
}

// IsHealthy reports whether the server is running.
func (s *Server) IsHealthy() bool {
	return s.isRunning.Load()
}

type logAdapter struct {
	logger zerolog.Logger
}

func (l logAdapter) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l logAdapter) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l logAdapter) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l logAdapter) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l logAdapter) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
