package subprocess

import (
	"strings"
	"testing"
	"time"
)

func TestSessionManager_OpenSendClose(t *testing.T) {
	m := NewSessionManager(time.Minute)
	defer m.CloseAll()

	if err := m.Open("echo", "cat", nil, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}

	out, err := m.Send("echo", "hello session", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "hello session" {
		t.Errorf("out = %q", out)
	}

	// A second turn reuses the same process.
	out, err = m.Send("echo", "second turn", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("second Send: %v", err)
	}
	if out != "second turn" {
		t.Errorf("out = %q", out)
	}

	m.Close("echo")
	if _, err := m.Send("echo", "gone", 50*time.Millisecond); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestSessionManager_SendUnknownKey(t *testing.T) {
	m := NewSessionManager(time.Minute)
	defer m.CloseAll()

	_, err := m.Send("nope", "hi", 50*time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("err = %v, want unknown-session error", err)
	}
}

func TestSessionManager_OpenMissingCommand(t *testing.T) {
	m := NewSessionManager(time.Minute)
	defer m.CloseAll()

	if err := m.Open("bad", "roundtable-no-such-cli", nil, nil); err == nil {
		t.Fatal("Open should fail for a missing command")
	}
}

func TestSessionManager_StartAndCloseAllIdempotent(t *testing.T) {
	m := NewSessionManager(time.Minute)
	m.Start(time.Hour)
	m.Start(time.Hour)
	m.CloseAll()
	m.CloseAll()
}

func TestSessionManager_EvictExpired(t *testing.T) {
	m := NewSessionManager(10 * time.Millisecond)
	defer m.CloseAll()

	if err := m.Open("stale", "cat", nil, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	m.evictExpired()

	if _, err := m.Send("stale", "hi", 50*time.Millisecond); err == nil {
		t.Error("expired session should be gone")
	}
}

func TestCommandExists(t *testing.T) {
	if !CommandExists("cat") {
		t.Error("cat should exist on PATH")
	}
	if CommandExists("roundtable-no-such-cli") {
		t.Error("nonsense command reported as existing")
	}
}

func TestCommandVersion_MissingCommand(t *testing.T) {
	if got := CommandVersion("roundtable-no-such-cli"); got != "unknown" {
		t.Errorf("version = %q, want unknown", got)
	}
}
