package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const defaultBodyLimit = 64 * 1024

// ErrRetriesExhausted marks a call whose every attempt failed at the network
// level.
var ErrRetriesExhausted = errors.New("transport: retries exhausted")

// Doer abstracts the http.Client Do method for easier testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one logical outbound call. Exactly one of Form or JSON is
// encoded as the body; Query is appended to URL.
type Request struct {
	Method      string
	URL         string
	Query       url.Values
	Form        url.Values
	JSON        any
	Header      http.Header
	Username    string
	Password    string
	BearerToken string
}

// Option customises the client.
type Option func(*Client)

// WithDoer overrides the HTTP client used for outbound calls.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithBodyLimit adjusts how many bytes are retained from a response body.
func WithBodyLimit(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxBodyBytes = limit
		}
	}
}

// Client executes requests with per-attempt timeouts and constant-delay retries.
// Network errors and retryable status codes are retried; any other response is
// returned to the caller for interpretation.
type Client struct {
	doer         Doer
	logger       zerolog.Logger
	maxBodyBytes int64
}

// New constructs a Client.
func New(logger zerolog.Logger, opts ...Option) *Client {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	c := &Client{
		doer:         &http.Client{},
		logger:       logger,
		maxBodyBytes: defaultBodyLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type retryableStatus struct {
	code int
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("transport: retryable status %d", e.code)
}

// Do sends req according to policy. A non-nil error means no usable response
// was received; the final response of a retried status is returned as is.
func (c *Client) Do(ctx context.Context, req Request, policy Policy) (*Response, error) {
	policy = policy.Sanitize()

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}
	target, err := buildURL(req)
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		last     *Response
		attempts int
	)

	operation := func() error {
		attempts++
		resp, err := c.attempt(ctx, method, target, contentType, body, req, policy.Timeout)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Debug().
				Err(err).
				Str("url", target).
				Int("attempt", attempts).
				Msg("transport: attempt failed")
			return err
		}
		resp.Attempts = attempts
		last = resp
		if Retryable(resp.StatusCode) {
			c.logger.Debug().
				Str("url", target).
				Int("attempt", attempts).
				Int("status_code", resp.StatusCode).
				Msg("transport: retryable status")
			return &retryableStatus{code: resp.StatusCode}
		}
		return nil
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.RetryDelay), uint64(policy.Retry)),
		ctx,
	)

	err = backoff.Retry(operation, strategy)
	if err == nil {
		return last, nil
	}

	var status *retryableStatus
	if errors.As(err, &status) && last != nil {
		return last, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("transport: %s %s: %w", method, target, ctxErr)
	}
	return nil, fmt.Errorf("%w after %d attempt(s): %w", ErrRetriesExhausted, attempts, err)
}

func (c *Client) attempt(ctx context.Context, method, target, contentType string, body []byte, req Request, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("transport: new request: %w", err))
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Username != "" || req.Password != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: http do: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("transport: read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}

func encodeBody(req Request) ([]byte, string, error) {
	switch {
	case req.JSON != nil:
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, "", fmt.Errorf("transport: encode json body: %w", err)
		}
		return data, "application/json", nil
	case req.Form != nil:
		return []byte(req.Form.Encode()), "application/x-www-form-urlencoded", nil
	default:
		return nil, "", nil
	}
}

func buildURL(req Request) (string, error) {
	if strings.TrimSpace(req.URL) == "" {
		return "", errors.New("transport: url is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("transport: parse url: %w", err)
	}
	if len(req.Query) == 0 {
		return req.URL, nil
	}
	q := u.Query()
	for key, values := range req.Query {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Retryable reports whether a status code is treated as transient.
func Retryable(code int) bool {
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}
