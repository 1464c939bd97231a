package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/bdsms/internal/models"
)

const defaultStatusMaxLen = 10000

// StatusPublisher keeps the most recent status events in a capped list.
type StatusPublisher struct {
	client Client
	key    string
	maxLen int64
}

// NewStatusPublisher constructs a StatusPublisher. maxLen <= 0 uses the default cap.
func NewStatusPublisher(client Client, prefix string, maxLen int) *StatusPublisher {
	if maxLen <= 0 {
		maxLen = defaultStatusMaxLen
	}
	return &StatusPublisher{client: client, key: Keys{Prefix: prefix}.Status(), maxLen: int64(maxLen)}
}

// PublishStatus implements worker.StatusPublisher.
func (p *StatusPublisher) PublishStatus(ctx context.Context, event models.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal status event: %w", err)
	}
	if err := p.client.LPush(ctx, p.key, payload).Err(); err != nil {
		return wrapPush(p.key, err)
	}
	if err := p.client.LTrim(ctx, p.key, 0, p.maxLen-1).Err(); err != nil {
		return fmt.Errorf("redisqueue: trim %s: %w", p.key, err)
	}
	return nil
}

// DLQPublisher appends abandoned jobs to the DLQ list.
type DLQPublisher struct {
	client Client
	key    string
}

// NewDLQPublisher constructs a DLQPublisher.
func NewDLQPublisher(client Client, prefix string) *DLQPublisher {
	return &DLQPublisher{client: client, key: Keys{Prefix: prefix}.DLQ()}
}

// PublishDLQ implements worker.DLQPublisher.
func (p *DLQPublisher) PublishDLQ(ctx context.Context, record models.DLQRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("redisqueue: marshal dlq record: %w", err)
	}
	if err := p.client.LPush(ctx, p.key, payload).Err(); err != nil {
		return wrapPush(p.key, err)
	}
	return nil
}
