package producer

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

const (
	defaultMetadataRefreshInterval = 30 * time.Second
	defaultClientID                = "bdsms-producer"
)

// ErrBufferFull is returned when the async input channel cannot accept another job.
var ErrBufferFull = errors.New("kafka producer: async input buffer full")

// Option customises the producer during construction.
type Option func(*options)

type options struct {
	config          *sarama.Config
	clientID        string
	refreshInterval time.Duration
}

// WithConfig allows callers to supply a preconfigured Sarama config. The
// configuration is cloned internally so the caller retains ownership.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithClientID sets the client identifier reported to the brokers.
func WithClientID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.clientID = id
		}
	}
}

// WithMetadataRefreshInterval overrides the interval used when refreshing
// cluster metadata.
func WithMetadataRefreshInterval(interval time.Duration) Option {
	return func(o *options) {
		if interval > 0 {
			o.refreshInterval = interval
		}
	}
}

// Producer wraps a Sarama sync and async producer pair sharing one client.
// Jobs go through the async side; status and DLQ records through the sync side.
type Producer struct {
	logger zerolog.Logger

	client        sarama.Client
	syncProducer  sarama.SyncProducer
	asyncProducer sarama.AsyncProducer

	refreshInterval time.Duration

	ready     atomic.Bool
	delivered atomic.Int64
	failed    atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Producer using the supplied broker list and logger.
func New(brokers []string, logger zerolog.Logger, opts ...Option) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka producer: at least one broker is required")
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	settings := &options{
		config:          defaultConfig(),
		clientID:        defaultClientID,
		refreshInterval: defaultMetadataRefreshInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(settings)
		}
	}

	cfg := cloneConfig(settings.config)
	cfg.ClientID = settings.clientID
	cfg.Metadata.RefreshFrequency = settings.refreshInterval

	client, err := sarama.NewClient(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: create client: %w", err)
	}

	syncProd, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka producer: create sync producer: %w", err)
	}

	asyncProd, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		syncProd.Close()
		client.Close()
		return nil, fmt.Errorf("kafka producer: create async producer: %w", err)
	}

	p := &Producer{
		logger:          logger.With().Str("component", "kafka_producer").Logger(),
		client:          client,
		syncProducer:    syncProd,
		asyncProducer:   asyncProd,
		refreshInterval: settings.refreshInterval,
		stopCh:          make(chan struct{}),
	}

	if err := client.RefreshMetadata(); err != nil {
		p.logger.Error().Err(err).Msg("initial metadata refresh failed")
	} else {
		p.ready.Store(true)
	}

	p.wg.Add(3)
	go p.watchMetadata()
	go p.drainErrors()
	go p.drainSuccesses()

	return p, nil
}

// PublishSync publishes a message and waits for the broker acknowledgement.
func (p *Producer) PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	msg, err := newMessage(topic, key, headers, payload)
	if err != nil {
		return err
	}

	if _, _, err := p.syncProducer.SendMessage(msg); err != nil {
		p.ready.Store(false)
		return fmt.Errorf("kafka producer: send sync: %w", err)
	}

	p.ready.Store(true)
	return nil
}

// PublishAsync hands a message to the async producer without blocking.
// Delivery outcomes are logged by the background drainers.
func (p *Producer) PublishAsync(topic string, key []byte, headers map[string][]byte, payload []byte) error {
	msg, err := newMessage(topic, key, headers, payload)
	if err != nil {
		return err
	}

	select {
	case p.asyncProducer.Input() <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// IsReady indicates whether the last metadata refresh or sync send succeeded.
func (p *Producer) IsReady() bool {
	return p.ready.Load()
}

// Stats returns the async delivery counters.
func (p *Producer) Stats() (delivered, failed int64) {
	return p.delivered.Load(), p.failed.Load()
}

// Close flushes the async producer and releases the client.
func (p *Producer) Close() error {
	close(p.stopCh)

	var errs []error
	// Closing the async side flushes in-flight jobs and ends both drainers.
	if err := p.asyncProducer.Close(); err != nil {
		errs = append(errs, err)
	}
	p.wg.Wait()
	if err := p.syncProducer.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Producer) watchMetadata() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.client.RefreshMetadata(); err != nil {
				p.logger.Error().Err(err).Msg("metadata refresh failed")
				p.ready.Store(false)
				continue
			}
			p.ready.Store(true)
		}
	}
}

func (p *Producer) drainErrors() {
	defer p.wg.Done()

	for perr := range p.asyncProducer.Errors() {
		if perr == nil {
			continue
		}
		p.failed.Add(1)
		p.ready.Store(false)
		evt := p.logger.Error().Err(perr.Err)
		if perr.Msg != nil {
			evt = evt.Str("topic", perr.Msg.Topic).Str("job_id", keyString(perr.Msg.Key))
		}
		evt.Msg("async delivery failed")
	}
}

func (p *Producer) drainSuccesses() {
	defer p.wg.Done()

	for msg := range p.asyncProducer.Successes() {
		p.delivered.Add(1)
		p.logger.Debug().
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Str("job_id", keyString(msg.Key)).
			Msg("async delivery acknowledged")
	}
}

func newMessage(topic string, key []byte, headers map[string][]byte, payload []byte) (*sarama.ProducerMessage, error) {
	if topic == "" {
		return nil, errors.New("kafka producer: topic is required")
	}
	msg := &sarama.ProducerMessage{
		Topic:   topic,
		Value:   sarama.ByteEncoder(payload),
		Headers: toRecordHeaders(headers),
	}
	if len(key) > 0 {
		msg.Key = sarama.ByteEncoder(key)
	}
	return msg, nil
}

func keyString(key sarama.Encoder) string {
	if key == nil {
		return ""
	}
	raw, err := key.Encode()
	if err != nil {
		return ""
	}
	return string(raw)
}

func toRecordHeaders(headers map[string][]byte) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	out := make([]sarama.RecordHeader, 0, len(headers))
	for k, v := range headers {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: append([]byte(nil), v...)})
	}
	return out
}

func defaultConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = defaultClientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 6
	cfg.Producer.Retry.Backoff = 250 * time.Millisecond
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.MaxOpenRequests = 1
	cfg.Metadata.Full = true
	cfg.Metadata.RefreshFrequency = defaultMetadataRefreshInterval
	return cfg
}

func cloneConfig(cfg *sarama.Config) *sarama.Config {
	if cfg == nil {
		return defaultConfig()
	}
	cloned := *cfg
	return &cloned
}
