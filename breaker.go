package roundtable

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// breakerAdapter wraps an Adapter with a circuit breaker so that a backend
// failing repeatedly stops being called for a recovery window instead of
// eating a full timeout on every turn.
type breakerAdapter struct {
	inner Adapter
	cb    *gobreaker.CircuitBreaker
}

// BreakerSettings tunes WithBreaker. The zero value gets defaults.
type BreakerSettings struct {
	FailureThreshold uint32        // consecutive failures before opening (default 5)
	RecoveryTimeout  time.Duration // open duration before half-open (default 30s)
	HalfOpenRequests uint32        // probe calls allowed while half-open (default 1)
	Logger           *slog.Logger
}

// WithBreaker wraps a with a circuit breaker. After FailureThreshold
// consecutive failures the breaker opens and Send fails fast with
// ErrBreakerOpen until RecoveryTimeout passes; a successful half-open
// probe closes it again.
func WithBreaker(a Adapter, s BreakerSettings) Adapter {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.RecoveryTimeout <= 0 {
		s.RecoveryTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	logger := s.Logger
	if logger == nil {
		logger = nopLogger
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        a.Name(),
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "adapter", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerAdapter{inner: a, cb: cb}
}

func (b *breakerAdapter) Name() string                       { return b.inner.Name() }
func (b *breakerAdapter) DisplayName() string                { return b.inner.DisplayName() }
func (b *breakerAdapter) Icon() string                       { return b.inner.Icon() }
func (b *breakerAdapter) Color() string                      { return b.inner.Color() }
func (b *breakerAdapter) Available(ctx context.Context) bool { return b.inner.Available(ctx) }
func (b *breakerAdapter) Version(ctx context.Context) string { return b.inner.Version(ctx) }

// Send implements Adapter behind the breaker. A rejected call closes ch
// and returns ErrBreakerOpen without touching the backend.
func (b *breakerAdapter) Send(ctx context.Context, prompt string, ch chan<- string) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, b.inner.Send(ctx, prompt, ch)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		close(ch)
		return &ErrBreakerOpen{Name: b.inner.Name()}
	}
	return err
}

// compile-time check
var _ Adapter = (*breakerAdapter)(nil)
