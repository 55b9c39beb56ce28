package roundtable

import (
	"context"
	"testing"
	"time"
)

func TestWithBreaker_PassThroughOnSuccess(t *testing.T) {
	stub := newStubAdapter("claude", stubSend{chunks: []string{"hello"}})
	a := WithBreaker(stub, BreakerSettings{})

	out, err := Collect(context.Background(), a, "prompt")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out != "hello" {
		t.Errorf("out = %q", out)
	}
	if a.Name() != "claude" {
		t.Errorf("Name = %q", a.Name())
	}
}

func TestWithBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	stub := newStubAdapter("glm",
		stubSend{err: &ErrAdapter{Name: "glm", Kind: KindConnection, Message: "refused"}},
	)
	a := WithBreaker(stub, BreakerSettings{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})

	for i := 0; i < 2; i++ {
		if _, err := Collect(context.Background(), a, "prompt"); err == nil {
			t.Fatalf("call %d: expected backend error", i+1)
		}
	}

	_, err := Collect(context.Background(), a, "prompt")
	if KindOf(err) != KindCircuitOpen {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if stub.callCount() != 2 {
		t.Errorf("backend calls = %d, want 2 (rejected call must not reach it)", stub.callCount())
	}
}
