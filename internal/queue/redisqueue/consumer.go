package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/worker"
)

// Processor replays one record synchronously. A returned error means the
// record was not finished and must go back on the list.
type Processor interface {
	Process(ctx context.Context, record *worker.Record) error
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithPollTimeout sets how long each BRPOP blocks before looping.
func WithPollTimeout(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// Consumer pops jobs from one or more Redis lists.
type Consumer struct {
	client      Client
	keys        Keys
	queues      []string
	pollTimeout time.Duration
	logger      zerolog.Logger
}

// NewConsumer constructs a Consumer reading the named queues in priority order.
func NewConsumer(client Client, prefix string, queues []string, logger zerolog.Logger, opts ...ConsumerOption) *Consumer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	c := &Consumer{
		client:      client,
		keys:        Keys{Prefix: prefix},
		queues:      append([]string(nil), queues...),
		pollTimeout: defaultPollTimeout,
		logger:      logger.With().Str("component", "redis_consumer").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Run blocks popping jobs until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, proc Processor) error {
	if len(c.queues) == 0 {
		return errors.New("redisqueue: at least one queue is required")
	}
	if proc == nil {
		return errors.New("redisqueue: processor is required")
	}

	keys := make([]string, len(c.queues))
	queueByKey := make(map[string]string, len(c.queues))
	for i, q := range c.queues {
		keys[i] = c.keys.Queue(q)
		queueByKey[keys[i]] = q
	}

	c.logger.Info().Strs("keys", keys).Msg("redis consumer started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := c.client.BRPop(ctx, c.pollTimeout, keys...).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("brpop failed")
			if !sleep(ctx, time.Second) {
				return ctx.Err()
			}
			continue
		}
		if len(res) != 2 {
			continue
		}

		key, payload := res[0], res[1]
		record := worker.NewRecord(queueByKey[key], nil, []byte(payload), nil)
		record.Timestamp = time.Now()
		if err := proc.Process(ctx, record); err != nil {
			c.requeue(key, payload, err)
		}
	}
}

// requeue puts an unfinished job back at the consuming end of its list. The
// caller's context is usually done by now so a fresh one is used.
func (c *Consumer) requeue(key, payload string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequeueAfter)
	defer cancel()

	if err := c.client.RPush(ctx, key, payload).Err(); err != nil {
		c.logger.Error().
			Err(err).
			AnErr("cause", cause).
			Str("key", key).
			Str("payload", truncate(payload, 256)).
			Msg("job lost while requeueing")
		return
	}
	c.logger.Warn().AnErr("cause", cause).Str("key", key).Msg("job requeued")
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimSpace(s[:n]) + "..."
}

func wrapPush(key string, err error) error {
	return fmt.Errorf("redisqueue: push %s: %w", key, err)
}
