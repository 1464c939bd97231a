package factory_test

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/providers/factory"
	"github.com/example/bdsms/internal/transport"
)

// countingCaller records calls without touching the network.
type countingCaller struct {
	calls atomic.Int32
	resp  *transport.Response
}

func (c *countingCaller) Do(context.Context, transport.Request, transport.Policy) (*transport.Response, error) {
	c.calls.Add(1)
	return c.resp, nil
}

type stubEnqueuer struct {
	jobs []dispatch.Job
}

func (q *stubEnqueuer) Enqueue(_ context.Context, job dispatch.Job, target dispatch.Target) (*dispatch.PendingDispatch, error) {
	q.jobs = append(q.jobs, job)
	return &dispatch.PendingDispatch{JobID: job.ID, Driver: job.Driver, Queue: target.Queue}, nil
}

func smsConfig(def string, drivers map[string]map[string]string) config.SMSConfig {
	cfg := config.SMSConfig{Default: def, Drivers: map[string]config.DriverConfig{}}
	for name, values := range drivers {
		cfg.Drivers[name] = config.DriverConfig{Name: name, Values: values}
	}
	return cfg
}

func TestDriverResolvesDefaultAndCaches(t *testing.T) {
	reg := factory.New(smsConfig("ESMS", nil), transport.DefaultPolicy(), zerolog.Nop())

	d1, err := reg.Driver("")
	require.NoError(t, err)
	assert.Equal(t, "esms", d1.Name())

	d2, err := reg.Driver("esms")
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, "esms", reg.DefaultDriver())
}

func TestDriverUnknownName(t *testing.T) {
	reg := factory.New(smsConfig("", nil), transport.DefaultPolicy(), zerolog.Nop())
	_, err := reg.Driver("twilio")
	assert.ErrorIs(t, err, dispatch.ErrUnknownProvider)

	_, err = reg.SMS("twilio")
	assert.ErrorIs(t, err, dispatch.ErrUnknownProvider)
}

func TestDriverResolutionDoesNotValidate(t *testing.T) {
	caller := &countingCaller{}
	reg := factory.New(smsConfig("smsnoc", nil), transport.DefaultPolicy(), zerolog.Nop(), factory.WithCaller(caller))

	msg, err := reg.SMS("")
	require.NoError(t, err)

	_, err = msg.To("01700000000").Message("hi").Send(context.Background())
	assert.ErrorIs(t, err, dispatch.ErrConfiguration)
	assert.Zero(t, caller.calls.Load())
}

func TestConcurrentResolutionBuildsOnce(t *testing.T) {
	reg := factory.New(smsConfig("log", nil), transport.DefaultPolicy(), zerolog.Nop())

	var wg sync.WaitGroup
	drivers := make([]dispatch.Driver, 32)
	for i := range drivers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := reg.Driver("bulksms")
			if err == nil {
				drivers[i] = d
			}
		}(i)
	}
	wg.Wait()

	for _, d := range drivers {
		assert.Same(t, drivers[0], d)
	}
}

func TestSMSSendsThroughDriver(t *testing.T) {
	caller := &countingCaller{resp: &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"status":"success"}`)}}
	cfg := smsConfig("esms", map[string]map[string]string{"esms": {"api_token": "t", "sender_id": "s"}})
	reg := factory.New(cfg, transport.DefaultPolicy(), zerolog.Nop(), factory.WithCaller(caller))

	msg, err := reg.SMS("")
	require.NoError(t, err)
	out, err := msg.To("01700000000").Message("hello").Send(context.Background())
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, int32(1), caller.calls.Load())
}

func TestSMSQueueUsesEnqueuer(t *testing.T) {
	queue := &stubEnqueuer{}
	caller := &countingCaller{}
	reg := factory.New(smsConfig("log", nil), transport.DefaultPolicy(), zerolog.Nop(), factory.WithEnqueuer(queue), factory.WithCaller(caller))

	msg, err := reg.SMS("log")
	require.NoError(t, err)
	pending, err := msg.To("01700000000").Message("later").Queue(context.Background(), dispatch.OnQueue("bulk"))
	require.NoError(t, err)
	assert.Equal(t, "bulk", pending.Queue)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "log", queue.jobs[0].Driver)
	assert.Zero(t, caller.calls.Load())
}

type customDriver struct{}

func (customDriver) Name() string    { return "custom" }
func (customDriver) Validate() error { return nil }
func (customDriver) Execute(context.Context, dispatch.Request) (*dispatch.Outcome, error) {
	return &dispatch.Outcome{Success: true, Data: map[string]any{"via": "custom"}}, nil
}

func TestExtendRegistersCustomDriver(t *testing.T) {
	reg := factory.New(smsConfig("log", nil), transport.DefaultPolicy(), zerolog.Nop())
	reg.Extend("Custom", func(config.DriverConfig, zerolog.Logger) (dispatch.Driver, error) {
		return customDriver{}, nil
	})

	assert.Contains(t, reg.Names(), "custom")
	out, err := reg.Replay(context.Background(), dispatch.Job{Driver: "custom", Recipients: []string{"8801700000000"}, Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "custom", out.Data["via"])
}

// impostorDriver reports a built-in driver name from a custom builder.
type impostorDriver struct {
	sent atomic.Int32
}

func (*impostorDriver) Name() string    { return "esms" }
func (*impostorDriver) Validate() error { return nil }
func (d *impostorDriver) Execute(context.Context, dispatch.Request) (*dispatch.Outcome, error) {
	d.sent.Add(1)
	return &dispatch.Outcome{Success: true, Data: map[string]any{"via": "mygw"}}, nil
}

func TestExtendQueueReplayUsesRegisteredName(t *testing.T) {
	queue := &stubEnqueuer{}
	caller := &countingCaller{}
	custom := &impostorDriver{}
	reg := factory.New(smsConfig("log", nil), transport.DefaultPolicy(), zerolog.Nop(), factory.WithEnqueuer(queue), factory.WithCaller(caller))
	reg.Extend("MyGW", func(config.DriverConfig, zerolog.Logger) (dispatch.Driver, error) {
		return custom, nil
	})

	msg, err := reg.SMS(" MyGW ")
	require.NoError(t, err)
	pending, err := msg.To("01700000000").Message("later").Queue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mygw", pending.Driver)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "mygw", queue.jobs[0].Driver)

	out, err := reg.Replay(context.Background(), queue.jobs[0])
	require.NoError(t, err)
	assert.Equal(t, "mygw", out.Data["via"])
	assert.Equal(t, int32(1), custom.sent.Load())
	assert.Zero(t, caller.calls.Load())
}

func TestQueueWithDefaultDriverRecordsDefaultName(t *testing.T) {
	queue := &stubEnqueuer{}
	reg := factory.New(smsConfig("Log", nil), transport.DefaultPolicy(), zerolog.Nop(), factory.WithEnqueuer(queue))

	msg, err := reg.SMS("")
	require.NoError(t, err)
	_, err = msg.To("01700000000").Message("later").Queue(context.Background())
	require.NoError(t, err)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, "log", queue.jobs[0].Driver)
}

func TestReplayUsesCachedDriver(t *testing.T) {
	caller := &countingCaller{resp: &transport.Response{StatusCode: http.StatusOK, Body: []byte(`{"response_code":202}`)}}
	cfg := smsConfig("log", map[string]map[string]string{"bulksms": {"api_key": "k", "sender_id": "s"}})
	reg := factory.New(cfg, transport.DefaultPolicy(), zerolog.Nop(), factory.WithCaller(caller))

	job := dispatch.Job{ID: "j1", Driver: "bulksms", Recipients: []string{"8801700000000"}, Message: "x"}
	_, err := reg.Replay(context.Background(), job)
	require.NoError(t, err)
	_, err = reg.Replay(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, int32(2), caller.calls.Load())

	_, err = reg.Replay(context.Background(), dispatch.Job{Driver: "nope", Recipients: job.Recipients, Message: "x"})
	assert.ErrorIs(t, err, dispatch.ErrUnknownProvider)
}
