package roundtable

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryAdapter wraps an Adapter and automatically retries transient
// failures (timeouts, connection errors, rate limits) with exponential
// backoff.
type retryAdapter struct {
	inner       Adapter
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
}

// RetryOption configures a retryAdapter.
type RetryOption func(*retryAdapter)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryAdapter) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Timeouts and connection errors back off by doubling;
// rate limits back off faster (tripling) but never wait more than 30s.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryAdapter) { r.baseDelay = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN and final failures after exhausting attempts log at ERROR.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryAdapter) { r.logger = l }
}

// WithRetry wraps a with automatic retry on transient failures. Compose
// with any Adapter:
//
//	a = roundtable.WithRetry(httpsse.NewGLM(nil))
//	a = roundtable.WithRetry(httpsse.NewGLM(nil), roundtable.RetryMaxAttempts(5))
func WithRetry(a Adapter, opts ...RetryOption) Adapter {
	r := &retryAdapter{
		inner:       a,
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

func (r *retryAdapter) Name() string                          { return r.inner.Name() }
func (r *retryAdapter) DisplayName() string                   { return r.inner.DisplayName() }
func (r *retryAdapter) Icon() string                          { return r.inner.Icon() }
func (r *retryAdapter) Color() string                         { return r.inner.Color() }
func (r *retryAdapter) Available(ctx context.Context) bool    { return r.inner.Available(ctx) }
func (r *retryAdapter) Version(ctx context.Context) string    { return r.inner.Version(ctx) }

// Send implements Adapter with retry. Retries are only performed if no
// chunks have been written to ch yet; once streaming has started, errors
// pass through immediately to avoid sending duplicate content.
// ch is always closed before returning.
func (r *retryAdapter) Send(ctx context.Context, prompt string, ch chan<- string) error {
	var lastErr error
	for i := 0; i < r.maxAttempts; i++ {
		mid := make(chan string, 64)
		var streamErr error
		done := make(chan struct{})
		go func() {
			defer close(done)
			streamErr = r.inner.Send(ctx, prompt, mid)
		}()

		var chunksSent bool
		for chunk := range mid {
			chunksSent = true
			ch <- chunk
		}
		<-done

		if streamErr == nil || !isTransient(streamErr) || chunksSent {
			close(ch)
			return streamErr
		}

		lastErr = streamErr
		r.logger.Warn("retrying transient error",
			"adapter", r.inner.Name(),
			"kind", KindOf(streamErr),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			delay := retryDelay(r.baseDelay, i, streamErr)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				close(ch)
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.logger.Error("all retry attempts exhausted",
		"adapter", r.inner.Name(),
		"attempts", r.maxAttempts,
		"error", lastErr)
	close(ch)
	return lastErr
}

// isTransient reports whether err is worth retrying.
func isTransient(err error) bool {
	return retryableKind(KindOf(err))
}

// retryAfterOf extracts the Retry-After duration from an ErrHTTP, or 0.
func retryAfterOf(err error) time.Duration {
	var e *ErrHTTP
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// maxRateLimitDelay caps rate-limit backoff.
const maxRateLimitDelay = 30 * time.Second

// retryDelay computes the delay before retry attempt i (0-indexed).
// Rate limits back off base*3^i capped at 30s; everything else backs off
// base*2^i with up to 25% random jitter. The server's Retry-After value,
// when present, acts as a floor.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	var backoff time.Duration
	if KindOf(err) == KindRateLimit {
		backoff = base
		for j := 0; j < i; j++ {
			backoff *= 3
		}
		if backoff > maxRateLimitDelay {
			backoff = maxRateLimitDelay
		}
	} else {
		backoff = retryBackoff(base, i)
	}
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 25% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/4 + 1))
	return exp + jitter
}

// compile-time check
var _ Adapter = (*retryAdapter)(nil)
