package roundtable

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// AdapterConfig carries per-adapter settings. The zero value is usable;
// Normalize fills in defaults.
type AdapterConfig struct {
	Timeout    time.Duration     // per-turn timeout (default 60s)
	MaxTokens  int               // response budget (default 4096)
	Model      string            // backend-specific model name
	Endpoint   string            // backend-specific endpoint override
	MaxRetries int               // retry attempts (default 3)
	RetryDelay time.Duration     // base retry delay (default 1s)
	Extra      map[string]string // backend-specific knobs
}

// Normalize fills zero fields with defaults.
func (c *AdapterConfig) Normalize() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// Adapter is one assistant backend: a CLI subprocess, an HTTP API, or a
// test stub. Implementations must be safe for concurrent use.
type Adapter interface {
	// Name is the stable identifier ("claude", "codex", "glm", ...).
	Name() string
	// DisplayName is the human-facing label shown in transcripts.
	DisplayName() string
	// Icon and Color are display hints for front-ends.
	Icon() string
	Color() string
	// Send streams the response to prompt into ch as text chunks.
	// The implementation closes ch before returning, success or not.
	Send(ctx context.Context, prompt string, ch chan<- string) error
	// Available reports whether the backend can currently serve requests.
	// Implementations should keep this cheap; Registry caches the result.
	Available(ctx context.Context) bool
	// Version returns the backend version, or "unknown".
	Version(ctx context.Context) string
}

// Collect runs a streaming Send and accumulates the chunks into one string.
func Collect(ctx context.Context, a Adapter, prompt string) (string, error) {
	ch := make(chan string, 64)
	var sendErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		sendErr = a.Send(ctx, prompt, ch)
	}()
	var sb strings.Builder
	for chunk := range ch {
		sb.WriteString(chunk)
	}
	<-done
	return sb.String(), sendErr
}

// HealthReport is the outcome of probing one adapter.
type HealthReport struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Status      string `json:"status"` // "ok", "unavailable", "error"
	Error       string `json:"error,omitempty"`
}

// availabilityTTL is how long a probe result stays fresh.
const availabilityTTL = 30 * time.Second

// parallelCheckTimeout bounds a full availability sweep; an adapter that
// cannot answer in time counts as unavailable for this sweep.
const parallelCheckTimeout = 5 * time.Second

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// RegistryLogger sets a structured logger for availability probes.
func RegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// RegistryTTL overrides the availability cache TTL (default 30s).
func RegistryTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = d }
}

// RegistryProbeTimeout overrides the aggregate deadline for a full
// availability sweep (default 5s).
func RegistryProbeTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) { r.probeTimeout = d }
}

// Registry holds the configured adapters and caches their availability.
// The cache lives on the Registry, so independent Registries never share
// probe results.
type Registry struct {
	adapters     []Adapter
	ttl          time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	mu    sync.Mutex
	cache map[string]probeResult
}

type probeResult struct {
	ok bool
	at time.Time
}

// NewRegistry creates a Registry over the given adapters. Order matters:
// the selector builds rosters in registry order.
func NewRegistry(adapters []Adapter, opts ...RegistryOption) *Registry {
	r := &Registry{
		adapters:     adapters,
		ttl:          availabilityTTL,
		probeTimeout: parallelCheckTimeout,
		logger:       nopLogger,
		cache:        make(map[string]probeResult),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// All returns the registered adapters in registration order.
func (r *Registry) All() []Adapter {
	return r.adapters
}

// Get returns the adapter with the given name, or nil.
func (r *Registry) Get(name string) Adapter {
	for _, a := range r.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// IsAvailable reports whether the named adapter can serve requests, using
// the cached probe result when fresh.
func (r *Registry) IsAvailable(ctx context.Context, a Adapter) bool {
	r.mu.Lock()
	if res, ok := r.cache[a.Name()]; ok && time.Since(res.at) < r.ttl {
		r.mu.Unlock()
		return res.ok
	}
	r.mu.Unlock()

	start := time.Now()
	ok := a.Available(ctx)
	r.logger.Debug("availability probe", "adapter", a.Name(), "available", ok, "duration", time.Since(start))

	r.mu.Lock()
	r.cache[a.Name()] = probeResult{ok: ok, at: time.Now()}
	r.mu.Unlock()
	return ok
}

// Available returns the available adapters in registration order. Probes
// run in parallel under one aggregate deadline, so one stalled backend
// cannot hold up roster selection.
func (r *Registry) Available(ctx context.Context) []Adapter {
	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	ok := make([]bool, len(r.adapters))
	var wg sync.WaitGroup
	for i, a := range r.adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			ok[i] = r.IsAvailable(probeCtx, a)
		}(i, a)
	}
	wg.Wait()

	var out []Adapter
	for i, a := range r.adapters {
		if ok[i] {
			out = append(out, a)
		}
	}
	return out
}

// Invalidate drops the cached probe result for the named adapters, or the
// whole cache when called with no arguments.
func (r *Registry) Invalidate(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(names) == 0 {
		r.cache = make(map[string]probeResult)
		return
	}
	for _, n := range names {
		delete(r.cache, n)
	}
}

// CheckAll probes every adapter in parallel and returns a health report per
// adapter, in registration order.
func (r *Registry) CheckAll(ctx context.Context) []HealthReport {
	reports := make([]HealthReport, len(r.adapters))
	var wg sync.WaitGroup
	for i, a := range r.adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			reports[i] = r.check(ctx, a)
		}(i, a)
	}
	wg.Wait()
	return reports
}

func (r *Registry) check(ctx context.Context, a Adapter) HealthReport {
	rep := HealthReport{Name: a.Name(), DisplayName: a.DisplayName()}
	if ctx.Err() != nil {
		rep.Status = "error"
		rep.Error = ctx.Err().Error()
		return rep
	}
	if !r.IsAvailable(ctx, a) {
		rep.Status = "unavailable"
		return rep
	}
	rep.Available = true
	rep.Status = "ok"
	rep.Version = a.Version(ctx)
	return rep
}
