// Package redisqueue carries deferred dispatches over plain Redis lists.
// Producers LPUSH JSON jobs onto <prefix>:queue:<name> and consumers BRPOP
// them, so each list behaves as a FIFO.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/dispatch"
)

const (
	defaultPrefix       = "sms"
	defaultPollTimeout  = 5 * time.Second
	defaultRequeueAfter = 5 * time.Second
)

// Client is the subset of go-redis used by this package.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// NewClient parses a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redisqueue: parse url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisqueue: ping: %w", err)
	}
	return client, nil
}

// Keys derives list names from a prefix.
type Keys struct {
	Prefix string
}

// Queue returns the list holding jobs for the named queue.
func (k Keys) Queue(name string) string {
	return k.prefix() + ":queue:" + name
}

// Status returns the capped list holding status events.
func (k Keys) Status() string {
	return k.prefix() + ":status"
}

// DLQ returns the list holding abandoned jobs.
func (k Keys) DLQ() string {
	return k.prefix() + ":dlq"
}

func (k Keys) prefix() string {
	if k.Prefix == "" {
		return defaultPrefix
	}
	return k.Prefix
}

// Producer pushes jobs onto Redis lists.
type Producer struct {
	client Client
	keys   Keys
	logger zerolog.Logger
}

// NewProducer constructs a Producer.
func NewProducer(client Client, prefix string, logger zerolog.Logger) *Producer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Producer{
		client: client,
		keys:   Keys{Prefix: prefix},
		logger: logger.With().Str("component", "redis_queue").Logger(),
	}
}

// Publish implements queue.Publisher.
func (p *Producer) Publish(ctx context.Context, job dispatch.Job, queue string) error {
	if p == nil || p.client == nil {
		return errors.New("redisqueue: producer not initialised")
	}
	payload, err := job.Encode()
	if err != nil {
		return fmt.Errorf("redisqueue: %w", err)
	}
	key := p.keys.Queue(queue)
	if err := p.client.LPush(ctx, key, payload).Err(); err != nil {
		return wrapPush(key, err)
	}
	p.logger.Debug().Str("job_id", job.ID).Str("key", key).Msg("job pushed")
	return nil
}
