package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	kafkapublisher "github.com/example/bdsms/internal/kafka/publisher"
	"github.com/example/bdsms/internal/queue"
	"github.com/example/bdsms/internal/queue/redisqueue"
)

type fakeKafka struct {
	asyncTopics []string
	syncTopics  []string
}

func (f *fakeKafka) PublishSync(topic string, _ []byte, _ map[string][]byte, _ []byte) error {
	f.syncTopics = append(f.syncTopics, topic)
	return nil
}

func (f *fakeKafka) PublishAsync(topic string, _ []byte, _ map[string][]byte, _ []byte) error {
	f.asyncTopics = append(f.asyncTopics, topic)
	return nil
}

type fakeRedis struct {
	pushed []string
}

func (f *fakeRedis) LPush(ctx context.Context, key string, _ ...interface{}) *redis.IntCmd {
	f.pushed = append(f.pushed, key)
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) RPush(ctx context.Context, key string, _ ...interface{}) *redis.IntCmd {
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) LTrim(context.Context, string, int64, int64) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) BRPop(context.Context, time.Duration, ...string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(nil, redis.Nil)
}

type fakeAsynq struct{ calls int }

func (f *fakeAsynq) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.calls++
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func testConfig() *config.Config {
	return &config.Config{
		SMS:   config.SMSConfig{Default: "log"},
		Queue: config.QueueConfig{Connection: config.ConnectionRedis, Name: "sms"},
		Kafka: config.KafkaConfig{StatusTopic: "sms.status", DLQTopic: "sms.dlq"},
		Redis: config.RedisConfig{KeyPrefix: "bd", StatusMaxLen: 10},
	}
}

func TestRouterRoutesToOpenConnections(t *testing.T) {
	infra := newInfra(testConfig(), zerolog.Nop())
	kafka := &fakeKafka{}
	rds := &fakeRedis{}
	aq := &fakeAsynq{}
	infra.kafka, infra.redis, infra.asynq = kafka, rds, aq

	router := infra.Router()
	assert.Equal(t, []string{"asynq", "kafka", "redis"}, router.Connections())

	job := dispatch.Job{ID: "job-1", Driver: "log"}
	_, err := router.Enqueue(context.Background(), job, dispatch.Target{})
	require.NoError(t, err)
	_, err = router.Enqueue(context.Background(), job, dispatch.Target{Connection: "kafka", Queue: "otp"})
	require.NoError(t, err)
	_, err = router.Enqueue(context.Background(), job, dispatch.Target{Connection: "asynq"})
	require.NoError(t, err)

	assert.Equal(t, []string{"bd:queue:sms"}, rds.pushed)
	assert.Equal(t, []string{"otp"}, kafka.asyncTopics)
	assert.Equal(t, 1, aq.calls)
}

func TestRouterKafkaSyncEnqueue(t *testing.T) {
	cfg := testConfig()
	cfg.Queue.Connection = config.ConnectionKafka
	cfg.Kafka.SyncEnqueue = true
	infra := newInfra(cfg, zerolog.Nop())
	kafka := &fakeKafka{}
	infra.kafka = kafka

	_, err := infra.Router().Enqueue(context.Background(), dispatch.Job{ID: "job-2", Driver: "log"}, dispatch.Target{})
	require.NoError(t, err)
	assert.Equal(t, []string{"sms"}, kafka.syncTopics)
	assert.Empty(t, kafka.asyncTopics)
}

func TestRouterWithoutConnections(t *testing.T) {
	infra := newInfra(testConfig(), zerolog.Nop())
	_, err := infra.Router().Enqueue(context.Background(), dispatch.Job{ID: "x"}, dispatch.Target{})
	require.ErrorIs(t, err, queue.ErrUnknownConnection)
}

func TestPublishersPreferKafka(t *testing.T) {
	infra := newInfra(testConfig(), zerolog.Nop())
	infra.kafka = &fakeKafka{}
	infra.redis = &fakeRedis{}

	status, dlq, err := infra.Publishers()
	require.NoError(t, err)
	assert.IsType(t, &kafkapublisher.StatusPublisher{}, status)
	assert.IsType(t, &kafkapublisher.DLQPublisher{}, dlq)
}

func TestPublishersFallBackToRedis(t *testing.T) {
	infra := newInfra(testConfig(), zerolog.Nop())
	infra.redis = &fakeRedis{}

	status, dlq, err := infra.Publishers()
	require.NoError(t, err)
	assert.IsType(t, &redisqueue.StatusPublisher{}, status)
	assert.IsType(t, &redisqueue.DLQPublisher{}, dlq)

	_, _, err = newInfra(testConfig(), zerolog.Nop()).Publishers()
	require.Error(t, err)
}

func TestRegistryIsBoundToRouter(t *testing.T) {
	infra := newInfra(testConfig(), zerolog.Nop())
	rds := &fakeRedis{}
	infra.redis = rds

	sms, err := infra.Registry().SMS("")
	require.NoError(t, err)
	pending, err := sms.To("01712345678").Message("hi").Queue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "redis", pending.Connection)
	assert.Equal(t, []string{"bd:queue:sms"}, rds.pushed)
}

func TestCloseRunsInReverseOrder(t *testing.T) {
	infra := newInfra(testConfig(), zerolog.Nop())
	var order []int
	boom := errors.New("boom")
	infra.closers = append(infra.closers,
		closerFunc(func() error { order = append(order, 1); return nil }),
		closerFunc(func() error { order = append(order, 2); return boom }),
	)

	require.ErrorIs(t, infra.Close(), boom)
	assert.Equal(t, []int{2, 1}, order)
	require.NoError(t, infra.Close())
}
