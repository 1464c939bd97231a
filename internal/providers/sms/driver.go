package sms

import (
	"context"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

// Caller performs one logical outbound HTTP call under a request policy.
type Caller interface {
	Do(ctx context.Context, req transport.Request, policy transport.Policy) (*transport.Response, error)
}

// Option customises a driver.
type Option func(*base)

// WithBaseURL overrides the gateway endpoint. Useful for tests.
func WithBaseURL(url string) Option {
	return func(b *base) {
		if url = strings.TrimSpace(url); url != "" {
			b.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithIDFunc overrides the generator used for client-side message ids.
func WithIDFunc(fn func() string) Option {
	return func(b *base) {
		if fn != nil {
			b.newID = fn
		}
	}
}

type base struct {
	name    string
	cfg     config.DriverConfig
	client  Caller
	logger  zerolog.Logger
	baseURL string
	newID   func() string
}

func newBase(name, defaultURL string, cfg config.DriverConfig, client Caller, logger zerolog.Logger, opts []Option) base {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	if client == nil {
		client = transport.New(logger)
	}
	b := base{
		name:    name,
		cfg:     cfg,
		client:  client,
		logger:  logger.With().Str("driver", name).Logger(),
		baseURL: strings.TrimRight(defaultURL, "/"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&b)
		}
	}
	return b
}

// Name returns the driver name.
func (b *base) Name() string {
	return b.name
}

// require reports the first missing key as a ConfigError.
func (b *base) require(keys ...string) error {
	for _, key := range keys {
		if b.cfg.Get(key) == "" {
			return &dispatch.ConfigError{Driver: b.name, Field: key, Source: b.cfg.Source(key)}
		}
	}
	return nil
}

func (b *base) endpoint(path string) string {
	return b.baseURL + path
}

func (b *base) call(ctx context.Context, req transport.Request, dr dispatch.Request) (*transport.Response, error) {
	start := time.Now()
	resp, err := b.client.Do(ctx, req, dr.Policy)
	if err != nil {
		b.logger.Warn().
			Err(err).
			Int("recipients", len(dr.Recipients)).
			Dur("duration", time.Since(start)).
			Msg("sms driver: request failed")
		return nil, dispatch.TransportFailure(b.name, err)
	}
	b.logger.Debug().
		Int("recipients", len(dr.Recipients)).
		Int("status_code", resp.StatusCode).
		Int("attempts", resp.Attempts).
		Dur("duration", time.Since(start)).
		Msg("sms driver: gateway responded")
	return resp, nil
}

func (b *base) fail(resp *transport.Response, message, fallback string) error {
	return dispatch.NewProviderError(b.name, message, fallback, resp)
}

// textFailure matches plain-text gateway replies that signal an error.
func textFailure(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "error") || strings.Contains(lower, "fail")
}

func joinRecipients(recipients []string) string {
	return strings.Join(recipients, ",")
}

// str renders a decoded JSON scalar as a string.
func str(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	default:
		return ""
	}
}

// num reads a decoded JSON number or numeric string.
func num(v any) (int, bool) {
	switch value := v.(type) {
	case float64:
		return int(value), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// path walks nested JSON objects and arrays.
func path(v any, keys ...any) any {
	cur := v
	for _, key := range keys {
		switch k := key.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = obj[k]
		case int:
			arr, ok := cur.([]any)
			if !ok || k < 0 || k >= len(arr) {
				return nil
			}
			cur = arr[k]
		default:
			return nil
		}
	}
	return cur
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func outcome(success bool, resp *transport.Response) *dispatch.Outcome {
	return &dispatch.Outcome{Success: success, Data: resp.Data()}
}
