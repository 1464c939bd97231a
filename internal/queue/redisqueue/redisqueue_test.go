package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/models"
	"github.com/example/bdsms/internal/worker"
)

// MockRedisClient is a mock implementation of Client.
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	cmd := redis.NewIntCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.Get(0).(int64))
	}
	return cmd
}

func (m *MockRedisClient) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	cmd := redis.NewIntCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.Get(0).(int64))
	}
	return cmd
}

func (m *MockRedisClient) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	args := m.Called(ctx, key, start, stop)
	cmd := redis.NewStatusCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	args := m.Called(ctx, timeout, keys)
	cmd := redis.NewStringSliceCmd(ctx)
	if args.Error(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.Get(0).([]string))
	}
	return cmd
}

func firstValue(values []interface{}) []byte {
	if len(values) != 1 {
		return nil
	}
	b, _ := values[0].([]byte)
	return b
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "sms:queue:otp", Keys{}.Queue("otp"))
	assert.Equal(t, "bd:status", Keys{Prefix: "bd"}.Status())
	assert.Equal(t, "bd:dlq", Keys{Prefix: "bd"}.DLQ())
}

func TestProducerPublish(t *testing.T) {
	client := new(MockRedisClient)
	var pushed []byte
	client.On("LPush", mock.Anything, "sms:queue:otp", mock.Anything).
		Run(func(args mock.Arguments) { pushed = firstValue(args.Get(2).([]interface{})) }).
		Return(int64(1), nil)

	job := dispatch.Job{ID: "job-1", Driver: "ssl", Recipients: []string{"8801712345678"}, Message: "hi"}
	err := NewProducer(client, "sms", zerolog.Nop()).Publish(context.Background(), job, "otp")
	require.NoError(t, err)

	decoded, err := dispatch.DecodeJob(pushed)
	require.NoError(t, err)
	assert.Equal(t, "job-1", decoded.ID)
	client.AssertExpectations(t)
}

func TestProducerPublishError(t *testing.T) {
	client := new(MockRedisClient)
	client.On("LPush", mock.Anything, "sms:queue:sms", mock.Anything).Return(int64(0), errors.New("connection refused"))

	err := NewProducer(client, "", zerolog.Nop()).Publish(context.Background(), dispatch.Job{ID: "x"}, "sms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sms:queue:sms")
}

func TestStatusPublisherCapsList(t *testing.T) {
	client := new(MockRedisClient)
	var pushed []byte
	client.On("LPush", mock.Anything, "sms:status", mock.Anything).
		Run(func(args mock.Arguments) { pushed = firstValue(args.Get(2).([]interface{})) }).
		Return(int64(1), nil)
	client.On("LTrim", mock.Anything, "sms:status", int64(0), int64(99)).Return("OK", nil)

	pub := NewStatusPublisher(client, "sms", 100)
	err := pub.PublishStatus(context.Background(), models.StatusEvent{JobID: "job-1", EventType: models.StatusEventSent})
	require.NoError(t, err)

	var event models.StatusEvent
	require.NoError(t, json.Unmarshal(pushed, &event))
	assert.Equal(t, models.StatusEventSent, event.EventType)
	client.AssertExpectations(t)
}

func TestDLQPublisher(t *testing.T) {
	client := new(MockRedisClient)
	client.On("LPush", mock.Anything, "sms:dlq", mock.Anything).Return(int64(1), nil)

	err := NewDLQPublisher(client, "sms").PublishDLQ(context.Background(), models.DLQRecord{JobID: "job-1"})
	require.NoError(t, err)
	client.AssertExpectations(t)
}

type processorFunc func(ctx context.Context, record *worker.Record) error

func (f processorFunc) Process(ctx context.Context, record *worker.Record) error {
	return f(ctx, record)
}

func TestConsumerProcessesAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockRedisClient)
	keys := []string{"sms:queue:otp", "sms:queue:sms"}
	client.On("BRPop", mock.Anything, time.Second, keys).
		Return([]string{"sms:queue:otp", `{"id":"job-1"}`}, nil).Once()
	client.On("BRPop", mock.Anything, time.Second, keys).
		Return([]string(nil), redis.Nil)

	var mu sync.Mutex
	var seen []*worker.Record
	proc := processorFunc(func(_ context.Context, record *worker.Record) error {
		mu.Lock()
		seen = append(seen, record)
		mu.Unlock()
		cancel()
		return nil
	})

	cons := NewConsumer(client, "sms", []string{"otp", "sms"}, zerolog.Nop(), WithPollTimeout(time.Second))
	err := cons.Run(ctx, proc)
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, seen, 1)
	assert.Equal(t, "otp", seen[0].Queue)
	assert.JSONEq(t, `{"id":"job-1"}`, string(seen[0].Value))
	client.AssertNotCalled(t, "RPush", mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumerRequeuesUnfinishedJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockRedisClient)
	keys := []string{"sms:queue:sms"}
	client.On("BRPop", mock.Anything, defaultPollTimeout, keys).
		Return([]string{"sms:queue:sms", `{"id":"job-2"}`}, nil).Once()
	client.On("RPush", mock.Anything, "sms:queue:sms", []interface{}{`{"id":"job-2"}`}).
		Return(int64(1), nil).Once()

	proc := processorFunc(func(context.Context, *worker.Record) error {
		cancel()
		return context.Canceled
	})

	err := NewConsumer(client, "sms", []string{"sms"}, zerolog.Nop()).Run(ctx, proc)
	require.ErrorIs(t, err, context.Canceled)
	client.AssertExpectations(t)
}

func TestConsumerRequiresQueues(t *testing.T) {
	err := NewConsumer(new(MockRedisClient), "sms", nil, zerolog.Nop()).Run(context.Background(), processorFunc(nil))
	require.Error(t, err)
}
