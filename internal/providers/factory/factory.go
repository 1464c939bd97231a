package factory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/bdsms/internal/config"
	"github.com/example/bdsms/internal/dispatch"
	smsprovider "github.com/example/bdsms/internal/providers/sms"
	"github.com/example/bdsms/internal/transport"
)

// Builder constructs a custom driver from its settings block.
type Builder func(cfg config.DriverConfig, logger zerolog.Logger) (dispatch.Driver, error)

// Option customises the registry.
type Option func(*Registry)

// WithEnqueuer sets the queue used by dispatches created through the registry.
func WithEnqueuer(q dispatch.Enqueuer) Option {
	return func(r *Registry) {
		r.enqueuer = q
	}
}

// WithCaller overrides the HTTP caller shared by built-in drivers.
func WithCaller(c smsprovider.Caller) Option {
	return func(r *Registry) {
		if c != nil {
			r.caller = c
		}
	}
}

// WithDriverOptions passes options to every built-in driver.
func WithDriverOptions(opts ...smsprovider.Option) Option {
	return func(r *Registry) {
		r.driverOpts = append(r.driverOpts, opts...)
	}
}

// Registry resolves driver names to drivers. Each driver is constructed once
// and cached for the lifetime of the registry.
type Registry struct {
	cfg        config.SMSConfig
	policy     transport.Policy
	caller     smsprovider.Caller
	logger     zerolog.Logger
	enqueuer   dispatch.Enqueuer
	driverOpts []smsprovider.Option

	mu      sync.RWMutex
	drivers map[string]dispatch.Driver
	custom  map[string]Builder
}

// New constructs a registry over the supplied settings and request policy.
func New(cfg config.SMSConfig, policy transport.Policy, logger zerolog.Logger, opts ...Option) *Registry {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	r := &Registry{
		cfg:     cfg,
		policy:  policy.Sanitize(),
		logger:  logger,
		drivers: make(map[string]dispatch.Driver),
		custom:  make(map[string]Builder),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.caller == nil {
		r.caller = transport.New(logger.With().Str("component", "transport").Logger())
	}
	return r
}

// DefaultDriver returns the configured default driver name.
func (r *Registry) DefaultDriver() string {
	return normalize(r.cfg.Default, "log")
}

// Driver returns the cached driver for name, constructing it on first use. An
// empty name selects the default driver. Drivers are not validated here.
func (r *Registry) Driver(name string) (dispatch.Driver, error) {
	name = normalize(name, r.DefaultDriver())

	r.mu.RLock()
	d, ok := r.drivers[name]
	r.mu.RUnlock()
	if ok {
		return d, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.drivers[name]; ok {
		return d, nil
	}

	d, err := r.build(name)
	if err != nil {
		return nil, err
	}
	r.drivers[name] = d
	r.logger.Info().
		Str("driver", name).
		Msg("sms driver initialised")
	return d, nil
}

func (r *Registry) build(name string) (dispatch.Driver, error) {
	logger := r.logger.With().Str("component", "sms-driver").Logger()
	if builder, ok := r.custom[name]; ok {
		d, err := builder(r.cfg.Driver(name), logger)
		if err != nil {
			return nil, fmt.Errorf("factory: %s driver init: %w", name, err)
		}
		return d, nil
	}
	return smsprovider.New(name, r.cfg.Driver(name), r.caller, logger, r.driverOpts...)
}

// Extend registers a custom driver under name, replacing any built-in or
// previously cached driver of that name.
func (r *Registry) Extend(name string, builder Builder) {
	name = normalize(name, "")
	if name == "" || builder == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[name] = builder
	delete(r.drivers, name)
}

// SMS starts a dispatch through the named driver, bound to the registry's
// request policy and queue. Queued jobs carry the registry key so replay
// resolves the same driver.
func (r *Registry) SMS(name string, opts ...dispatch.Option) (*dispatch.SMS, error) {
	key := normalize(name, r.DefaultDriver())
	d, err := r.Driver(key)
	if err != nil {
		return nil, err
	}
	base := []dispatch.Option{dispatch.WithPolicy(r.policy), dispatch.WithDriverName(key)}
	if r.enqueuer != nil {
		base = append(base, dispatch.WithEnqueuer(r.enqueuer))
	}
	return dispatch.New(d, append(base, opts...)...), nil
}

// Replay re-runs a deferred job through its driver.
func (r *Registry) Replay(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
	return dispatch.Replay(ctx, r, job, dispatch.WithPolicy(r.policy))
}

// Names lists every resolvable driver name, sorted.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	for _, name := range smsprovider.Names() {
		seen[name] = struct{}{}
	}
	r.mu.RLock()
	for name := range r.custom {
		seen[name] = struct{}{}
	}
	r.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
