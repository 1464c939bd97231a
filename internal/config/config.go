package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/bdsms/internal/transport"
)

// Queue connection names.
const (
	ConnectionKafka = "kafka"
	ConnectionRedis = "redis"
	ConnectionAsynq = "asynq"
)

// Config captures all runtime configuration for the SMS dispatch service.
type Config struct {
	App        AppConfig
	SMS        SMSConfig
	Request    RequestConfig
	Queue      QueueConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	Retry      RetryConfig
	Validation ValidationConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
	LogFile  LogFileConfig
}

// LogFileConfig enables rolling file output when Path is set.
type LogFileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SMSConfig selects the default driver and holds every driver's settings.
type SMSConfig struct {
	Default string
	Drivers map[string]DriverConfig
}

// Driver returns the settings block for name. Unknown names yield an empty
// block.
func (c SMSConfig) Driver(name string) DriverConfig {
	if dc, ok := c.Drivers[name]; ok {
		return dc
	}
	return DriverConfig{Name: name}
}

// DriverConfig is the flat key/value settings block of one driver. Env maps
// each key to the environment variable it is read from.
type DriverConfig struct {
	Name   string
	Values map[string]string
	Env    map[string]string
}

// Get returns the trimmed value for key.
func (d DriverConfig) Get(key string) string {
	return strings.TrimSpace(d.Values[key])
}

// GetDefault returns the value for key or def when unset.
func (d DriverConfig) GetDefault(key, def string) string {
	if v := d.Get(key); v != "" {
		return v
	}
	return def
}

// Int returns the integer value for key or def when unset or malformed.
func (d DriverConfig) Int(key string, def int) int {
	v := d.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Source names the environment variable backing key.
func (d DriverConfig) Source(key string) string {
	return d.Env[key]
}

// RequestConfig is the process-wide outbound request policy.
type RequestConfig struct {
	TimeoutSeconds int
	Retry          int
	RetryDelayMs   int
}

// Policy converts the settings into a transport policy.
func (r RequestConfig) Policy() transport.Policy {
	return transport.Policy{
		Timeout:    time.Duration(r.TimeoutSeconds) * time.Second,
		Retry:      r.Retry,
		RetryDelay: time.Duration(r.RetryDelayMs) * time.Millisecond,
	}.Sanitize()
}

// QueueConfig selects where deferred dispatches go by default and which
// queues a worker drains.
type QueueConfig struct {
	Connection   string
	Name         string
	Enabled      []string
	WorkerQueues []string
}

// Uses reports whether the named connection is enabled.
func (q QueueConfig) Uses(connection string) bool {
	for _, c := range q.Enabled {
		if c == connection {
			return true
		}
	}
	return false
}

// KafkaConfig defines broker information and topics for the kafka connection.
type KafkaConfig struct {
	Brokers       []string
	StatusTopic   string
	DLQTopic      string
	ConsumerGroup string
	// SyncEnqueue waits for the broker acknowledgement when queueing jobs.
	SyncEnqueue bool
}

// RedisConfig configures the redis and asynq connections.
type RedisConfig struct {
	URL          string
	KeyPrefix    string
	StatusMaxLen int
}

// RetryConfig controls worker retry and backoff behaviour.
type RetryConfig struct {
	MaxAttempts         int
	BaseBackoffSeconds  int
	MaxBackoffSeconds   int
	WorkerConcurrency   int
	CommitOnSuccessOnly bool
}

// ValidationConfig holds the limits used while validating queued jobs.
type ValidationConfig struct {
	MsgMaxBytes int
}

type driverField struct {
	key string
	env string
	def string
}

var driverFields = map[string][]driverField{
	"log": nil,
	"esms": {
		{key: "api_token", env: "SMS_ESMS_TOKEN"},
		{key: "sender_id", env: "SMS_ESMS_SENDER_ID"},
	},
	"mimsms": {
		{key: "username", env: "SMS_MIMSMS_USERNAME"},
		{key: "api_key", env: "SMS_MIMSMS_API_KEY"},
		{key: "sender_id", env: "SMS_MIMSMS_SENDER_ID"},
	},
	"ssl": {
		{key: "api_token", env: "SMS_SSL_TOKEN"},
		{key: "sender_id", env: "SMS_SSL_SENDER_ID"},
		{key: "csms_id", env: "SMS_SSL_CSMS_ID"},
	},
	"grameenphone": {
		{key: "username", env: "SMS_GP_USERNAME"},
		{key: "password", env: "SMS_GP_PASSWORD"},
		{key: "cli", env: "SMS_GP_CLI", def: "2222"},
		{key: "message_type", env: "SMS_GP_MESSAGE_TYPE", def: "1"},
	},
	"banglalink": {
		{key: "user_id", env: "SMS_BL_USER_ID"},
		{key: "password", env: "SMS_BL_PASSWORD"},
		{key: "sender_id", env: "SMS_BL_SENDER_ID"},
	},
	"robi": {
		{key: "username", env: "SMS_ROBI_USERNAME"},
		{key: "password", env: "SMS_ROBI_PASSWORD"},
	},
	"infobip": {
		{key: "base_url", env: "SMS_INFOBIP_BASE_URL"},
		{key: "username", env: "SMS_INFOBIP_USERNAME"},
		{key: "password", env: "SMS_INFOBIP_PASSWORD"},
		{key: "sender_id", env: "SMS_INFOBIP_SENDER_ID"},
	},
	"adnsms": {
		{key: "api_key", env: "SMS_ADNSMS_API_KEY"},
		{key: "api_secret", env: "SMS_ADNSMS_API_SECRET"},
		{key: "sender_id", env: "SMS_ADNSMS_SENDER_ID"},
		{key: "request_type", env: "SMS_ADNSMS_REQUEST_TYPE", def: "SINGLE_SMS"},
		{key: "message_type", env: "SMS_ADNSMS_MESSAGE_TYPE", def: "TEXT"},
	},
	"alphasms": {
		{key: "api_key", env: "SMS_ALPHASMS_API_KEY"},
		{key: "sender_id", env: "SMS_ALPHASMS_SENDER_ID"},
		{key: "schedule", env: "SMS_ALPHASMS_SCHEDULE"},
	},
	"greenweb": {
		{key: "token", env: "SMS_GREENWEB_TOKEN"},
	},
	"bulksms": {
		{key: "api_key", env: "SMS_BULKSMS_API_KEY"},
		{key: "sender_id", env: "SMS_BULKSMS_SENDER_ID"},
	},
	"elitbuzz": {
		{key: "url", env: "SMS_ELITBUZZ_URL"},
		{key: "api_key", env: "SMS_ELITBUZZ_API_KEY"},
		{key: "sender_id", env: "SMS_ELITBUZZ_SENDER_ID"},
		{key: "type", env: "SMS_ELITBUZZ_TYPE", def: "text"},
	},
	"smsnoc": {
		{key: "api_token", env: "SMS_SMSNOC_TOKEN"},
		{key: "sender_id", env: "SMS_SMSNOC_SENDER_ID"},
	},
}

// DriverNames lists every driver with a settings block, sorted.
func DriverNames() []string {
	names := make([]string, 0, len(driverFields))
	for name := range driverFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.LogFile = LogFileConfig{
		Path:       ldr.getString("LOG_FILE", "", false),
		MaxSizeMB:  ldr.getInt("LOG_FILE_MAX_SIZE_MB", 100, false),
		MaxBackups: ldr.getInt("LOG_FILE_MAX_BACKUPS", 3, false),
		MaxAgeDays: ldr.getInt("LOG_FILE_MAX_AGE_DAYS", 28, false),
	}

	cfg.SMS.Default = strings.ToLower(ldr.getString("SMS_DRIVER", "log", false))
	cfg.SMS.Drivers = make(map[string]DriverConfig, len(driverFields))
	for name, fields := range driverFields {
		dc := DriverConfig{
			Name:   name,
			Values: make(map[string]string, len(fields)),
			Env:    make(map[string]string, len(fields)),
		}
		for _, f := range fields {
			dc.Env[f.key] = f.env
			if v := ldr.getString(f.env, f.def, false); v != "" {
				dc.Values[f.key] = v
			}
		}
		cfg.SMS.Drivers[name] = dc
	}

	cfg.Request.TimeoutSeconds = ldr.getNonNegativeInt("SMS_REQUEST_TIMEOUT", 10)
	cfg.Request.Retry = ldr.getNonNegativeInt("SMS_REQUEST_RETRY", 3)
	cfg.Request.RetryDelayMs = ldr.getNonNegativeInt("SMS_REQUEST_RETRY_DELAY", 300)

	cfg.Queue.Connection = strings.ToLower(ldr.getString("SMS_QUEUE_CONNECTION", ConnectionRedis, false))
	cfg.Queue.Name = ldr.getString("SMS_QUEUE_NAME", "sms", false)
	cfg.Queue.WorkerQueues = ldr.getStringSlice("WORKER_QUEUES", false)
	if len(cfg.Queue.WorkerQueues) == 0 {
		cfg.Queue.WorkerQueues = []string{cfg.Queue.Name}
	}
	cfg.Queue.Enabled = ldr.getStringSlice("SMS_QUEUE_CONNECTIONS", false)
	for i, c := range cfg.Queue.Enabled {
		cfg.Queue.Enabled[i] = strings.ToLower(c)
	}
	if !cfg.Queue.Uses(cfg.Queue.Connection) {
		cfg.Queue.Enabled = append(cfg.Queue.Enabled, cfg.Queue.Connection)
	}
	for _, c := range cfg.Queue.Enabled {
		switch c {
		case ConnectionKafka, ConnectionRedis, ConnectionAsynq:
		default:
			ldr.addError(fmt.Sprintf("queue connection %q must be one of %s, %s, %s", c, ConnectionKafka, ConnectionRedis, ConnectionAsynq))
		}
	}

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", cfg.Queue.Uses(ConnectionKafka))
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_SMS_STATUS_TOPIC", "sms.status", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_SMS_DLQ_TOPIC", "sms.dlq", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("SMS_CONSUMER_GROUP", "sms-worker", false)
	cfg.Kafka.SyncEnqueue = ldr.getBool("KAFKA_SYNC_ENQUEUE", true, false)

	cfg.Redis.URL = ldr.getString("REDIS_URL", "redis://localhost:6379/0", false)
	cfg.Redis.KeyPrefix = ldr.getString("REDIS_KEY_PREFIX", "sms", false)
	cfg.Redis.StatusMaxLen = ldr.getInt("REDIS_STATUS_MAX_LEN", 10000, false)

	cfg.Retry.MaxAttempts = ldr.getInt("MAX_ATTEMPTS", 3, false)
	cfg.Retry.BaseBackoffSeconds = ldr.getInt("BASE_BACKOFF_SECONDS", 10, false)
	cfg.Retry.MaxBackoffSeconds = ldr.getInt("MAX_BACKOFF_SECONDS", 120, false)
	cfg.Retry.WorkerConcurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)
	cfg.Retry.CommitOnSuccessOnly = ldr.getBool("COMMIT_ON_SUCCESS_ONLY", true, false)

	cfg.Validation.MsgMaxBytes = ldr.getInt("MSG_MAX_BYTES", 200000, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getNonNegativeInt(key string, def int) int {
	i := l.getInt(key, def, false)
	if i < 0 {
		l.addError(fmt.Sprintf("%s must not be negative", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	raw := l.getString(key, "", required)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
