package roundtable

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetry_RetriesTransientFailure(t *testing.T) {
	stub := newStubAdapter("glm",
		stubSend{err: &ErrAdapter{Name: "glm", Kind: KindConnection, Message: "refused"}},
		stubSend{chunks: []string{"recovered"}},
	)
	a := WithRetry(stub, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	out, err := Collect(context.Background(), a, "prompt")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out != "recovered" {
		t.Errorf("out = %q", out)
	}
	if stub.callCount() != 2 {
		t.Errorf("attempts = %d, want 2", stub.callCount())
	}
}

func TestWithRetry_NoRetryOnAuthFailure(t *testing.T) {
	stub := newStubAdapter("glm",
		stubSend{err: &ErrAdapter{Name: "glm", Kind: KindAuth, Message: "bad key"}},
	)
	a := WithRetry(stub, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	_, err := Collect(context.Background(), a, "prompt")
	if KindOf(err) != KindAuth {
		t.Fatalf("err = %v, want auth failure", err)
	}
	if stub.callCount() != 1 {
		t.Errorf("attempts = %d, want 1", stub.callCount())
	}
}

func TestWithRetry_NoRetryAfterStreamingStarted(t *testing.T) {
	stub := newStubAdapter("glm",
		stubSend{chunks: []string{"partial"}, err: &ErrAdapter{Name: "glm", Kind: KindConnection, Message: "reset"}},
	)
	a := WithRetry(stub, RetryMaxAttempts(3), RetryBaseDelay(time.Millisecond))

	out, err := Collect(context.Background(), a, "prompt")
	if err == nil {
		t.Fatal("expected the mid-stream error to pass through")
	}
	if out != "partial" {
		t.Errorf("out = %q", out)
	}
	if stub.callCount() != 1 {
		t.Errorf("attempts = %d, want 1 (no duplicate content)", stub.callCount())
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	stub := newStubAdapter("glm",
		stubSend{err: &ErrAdapter{Name: "glm", Kind: KindTimeout, Message: "deadline"}},
	)
	a := WithRetry(stub, RetryMaxAttempts(2), RetryBaseDelay(time.Millisecond))

	_, err := Collect(context.Background(), a, "prompt")
	if KindOf(err) != KindTimeout {
		t.Fatalf("err = %v, want the last timeout", err)
	}
	if stub.callCount() != 2 {
		t.Errorf("attempts = %d, want 2", stub.callCount())
	}
}

func TestRetryDelay_RateLimitBackoffCapped(t *testing.T) {
	err := &ErrHTTP{Status: 429}
	if got := retryDelay(time.Second, 4, err); got != maxRateLimitDelay {
		t.Errorf("delay = %v, want cap %v", got, maxRateLimitDelay)
	}
}

func TestRetryDelay_RetryAfterActsAsFloor(t *testing.T) {
	err := &ErrHTTP{Status: 429, RetryAfter: 45 * time.Second}
	if got := retryDelay(time.Second, 0, err); got != 45*time.Second {
		t.Errorf("delay = %v, want server's Retry-After", got)
	}
}

func TestRetryDelay_ExponentialWithJitterBounds(t *testing.T) {
	err := &ErrAdapter{Kind: KindConnection}
	for i := 0; i < 20; i++ {
		got := retryDelay(time.Second, 1, err)
		if got < 2*time.Second || got > 2500*time.Millisecond {
			t.Fatalf("delay = %v, want 2s plus at most 25%% jitter", got)
		}
	}
}

func TestIsTransient(t *testing.T) {
	if !isTransient(&ErrAdapter{Kind: KindTimeout}) {
		t.Error("timeout should be transient")
	}
	if !isTransient(&ErrHTTP{Status: 503}) {
		t.Error("503 should be transient")
	}
	if isTransient(errors.New("boom")) {
		t.Error("unknown errors should not be transient")
	}
}
