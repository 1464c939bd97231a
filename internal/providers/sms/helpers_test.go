package sms_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	"github.com/example/bdsms/internal/transport"
)

type captured struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

func (c captured) JSON(t *testing.T) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(c.Body, &out); err != nil {
		t.Fatalf("request body is not json: %v (%s)", err, c.Body)
	}
	return out
}

func (c captured) Form(t *testing.T) url.Values {
	t.Helper()
	values, err := url.ParseQuery(string(c.Body))
	if err != nil {
		t.Fatalf("request body is not a form: %v", err)
	}
	return values
}

type gateway struct {
	*httptest.Server
	mu       sync.Mutex
	requests []captured
}

func (g *gateway) last(t *testing.T) captured {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		t.Fatalf("gateway received no request")
	}
	return g.requests[len(g.requests)-1]
}

func (g *gateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// newGateway replies with status and body to every request.
func newGateway(t *testing.T, status int, body string) *gateway {
	t.Helper()
	g := &gateway{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		g.mu.Lock()
		g.requests = append(g.requests, captured{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   data,
		})
		g.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(g.Close)
	return g
}

func driverConfig(name string, values map[string]string) config.DriverConfig {
	env := make(map[string]string, len(values))
	for k := range values {
		env[k] = "SMS_" + name + "_" + k
	}
	return config.DriverConfig{Name: name, Values: values, Env: env}
}

func client() *transport.Client {
	return transport.New(zerolog.Nop())
}

func request(recipients ...string) dispatch.Request {
	return dispatch.Request{
		Recipients: recipients,
		Message:    "hello",
		Policy:     transport.Policy{Timeout: time.Second, Retry: 0, RetryDelay: time.Millisecond},
	}
}

func ctx() context.Context {
	return context.Background()
}
