package config_test

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/transport"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SMS_DRIVER", "")
	t.Setenv("SMS_QUEUE_CONNECTION", "")
	t.Setenv("SMS_QUEUE_CONNECTIONS", "")
	t.Setenv("SMS_REQUEST_TIMEOUT", "")
	t.Setenv("SMS_REQUEST_RETRY", "")
	t.Setenv("SMS_REQUEST_RETRY_DELAY", "")
	t.Setenv("SMS_GP_CLI", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SMS.Default != "log" {
		t.Fatalf("expected default driver log, got %s", cfg.SMS.Default)
	}
	if got := cfg.Request.Policy(); got != transport.DefaultPolicy() {
		t.Fatalf("expected default request policy, got %+v", got)
	}
	if cfg.Queue.Connection != config.ConnectionRedis || cfg.Queue.Name != "sms" {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if !reflect.DeepEqual(cfg.Queue.Enabled, []string{config.ConnectionRedis}) {
		t.Fatalf("expected only the default connection enabled, got %v", cfg.Queue.Enabled)
	}
	if !reflect.DeepEqual(cfg.Queue.WorkerQueues, []string{"sms"}) {
		t.Fatalf("expected worker queues to default to queue name, got %v", cfg.Queue.WorkerQueues)
	}
	gp := cfg.SMS.Driver("grameenphone")
	if gp.Get("cli") != "2222" || gp.Int("message_type", 0) != 1 {
		t.Fatalf("unexpected grameenphone defaults: %+v", gp.Values)
	}
	if gp.Source("username") != "SMS_GP_USERNAME" {
		t.Fatalf("expected username source SMS_GP_USERNAME, got %s", gp.Source("username"))
	}
}

func TestLoadDriverSettings(t *testing.T) {
	t.Setenv("SMS_DRIVER", "SMSNOC")
	t.Setenv("SMS_SMSNOC_TOKEN", " token-1 ")
	t.Setenv("SMS_SMSNOC_SENDER_ID", "8809601000000")
	t.Setenv("SMS_REQUEST_TIMEOUT", "5")
	t.Setenv("SMS_REQUEST_RETRY", "0")
	t.Setenv("SMS_REQUEST_RETRY_DELAY", "50")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SMS.Default != "smsnoc" {
		t.Fatalf("expected lowercased default driver, got %s", cfg.SMS.Default)
	}
	noc := cfg.SMS.Driver("smsnoc")
	if noc.Get("api_token") != "token-1" {
		t.Fatalf("expected trimmed token, got %q", noc.Get("api_token"))
	}
	want := transport.Policy{Timeout: 5 * time.Second, Retry: 0, RetryDelay: 50 * time.Millisecond}
	if got := cfg.Request.Policy(); got != want {
		t.Fatalf("expected policy %+v, got %+v", want, got)
	}
	if empty := cfg.SMS.Driver("unknown"); empty.Get("anything") != "" {
		t.Fatalf("expected empty block for unknown driver")
	}
}

func TestLoadKafkaConnectionRequiresBrokers(t *testing.T) {
	t.Setenv("SMS_QUEUE_CONNECTION", "kafka")
	t.Setenv("KAFKA_BROKERS", "")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "KAFKA_BROKERS is required") {
		t.Fatalf("expected missing broker error, got %v", err)
	}

	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9093")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantBrokers := []string{"broker-a:9092", "broker-b:9093"}
	if !reflect.DeepEqual(cfg.Kafka.Brokers, wantBrokers) {
		t.Fatalf("expected brokers %v, got %v", wantBrokers, cfg.Kafka.Brokers)
	}
	if !cfg.Kafka.SyncEnqueue {
		t.Fatalf("expected sync enqueue by default")
	}

	t.Setenv("KAFKA_SYNC_ENQUEUE", "false")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Kafka.SyncEnqueue {
		t.Fatalf("expected async enqueue when KAFKA_SYNC_ENQUEUE=false")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("SMS_QUEUE_CONNECTION", "sqs")
	t.Setenv("SMS_REQUEST_RETRY", "-1")
	t.Setenv("SMS_REQUEST_TIMEOUT", "ten")
	t.Setenv("COMMIT_ON_SUCCESS_ONLY", "maybe")

	_, err := config.Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{
		`queue connection "sqs" must be one of`,
		"SMS_REQUEST_RETRY must not be negative",
		"SMS_REQUEST_TIMEOUT must be a valid integer",
		"COMMIT_ON_SUCCESS_ONLY must be a valid boolean",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestDriverNames(t *testing.T) {
	names := config.DriverNames()
	if len(names) != 14 {
		t.Fatalf("expected 14 drivers, got %d: %v", len(names), names)
	}
	if names[0] != "adnsms" {
		t.Fatalf("expected sorted names, got %v", names)
	}
}

func TestLoadEnabledConnections(t *testing.T) {
	t.Setenv("SMS_QUEUE_CONNECTION", "asynq")
	t.Setenv("SMS_QUEUE_CONNECTIONS", "Kafka,redis")
	t.Setenv("KAFKA_BROKERS", "localhost:9092")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{config.ConnectionKafka, config.ConnectionRedis, config.ConnectionAsynq}
	if !reflect.DeepEqual(cfg.Queue.Enabled, want) {
		t.Fatalf("expected %v, got %v", want, cfg.Queue.Enabled)
	}
	if !cfg.Queue.Uses(config.ConnectionKafka) || cfg.Queue.Uses("sqs") {
		t.Fatalf("unexpected Uses result for %v", cfg.Queue.Enabled)
	}
}

func TestLoadRejectsUnknownEnabledConnection(t *testing.T) {
	t.Setenv("SMS_QUEUE_CONNECTION", "redis")
	t.Setenv("SMS_QUEUE_CONNECTIONS", "sqs")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "sqs") {
		t.Fatalf("expected unknown connection error, got %v", err)
	}
}
