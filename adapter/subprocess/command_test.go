package subprocess

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jwkim/roundtable"
)

// writeScript drops an executable shell script into a temp dir and
// returns its path, so adapters can run a controlled fake CLI.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFirstLine(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"v1.2.3\nextra noise", "v1.2.3"},
		{"  padded  \n", "padded"},
		{"single", "single"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := firstLine(tc.in); got != tc.want {
			t.Errorf("firstLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAdapterMetadata(t *testing.T) {
	cases := []struct {
		a           *Adapter
		name        string
		displayName string
		color       string
	}{
		{NewClaude(nil), "claude", "Claude", "cyan"},
		{NewCodex(nil), "codex", "Codex", "green"},
		{NewGemini(nil), "gemini", "Gemini", "magenta"},
	}
	for _, tc := range cases {
		if tc.a.Name() != tc.name {
			t.Errorf("Name() = %q, want %q", tc.a.Name(), tc.name)
		}
		if tc.a.DisplayName() != tc.displayName {
			t.Errorf("DisplayName() = %q, want %q", tc.a.DisplayName(), tc.displayName)
		}
		if tc.a.Color() != tc.color {
			t.Errorf("%s Color() = %q, want %q", tc.name, tc.a.Color(), tc.color)
		}
		if tc.a.Icon() == "" {
			t.Errorf("%s has no icon", tc.name)
		}
	}
}

func TestBuildArgs(t *testing.T) {
	const prompt = "explain goroutines"

	if got := NewClaude(nil).buildArgs(prompt); len(got) != 2 || got[0] != "-p" || got[1] != prompt {
		t.Errorf("claude args = %v", got)
	}
	if got := NewCodex(nil).buildArgs(prompt); len(got) != 3 || got[0] != "exec" || got[1] != "--skip-git-repo-check" || got[2] != prompt {
		t.Errorf("codex args = %v", got)
	}
	if got := NewGemini(nil).buildArgs(prompt); len(got) != 1 || got[0] != prompt {
		t.Errorf("gemini args = %v", got)
	}
}

func TestCodexStderrFilter(t *testing.T) {
	c := NewCodex(nil)
	if !c.useStderr("thinking about the answer") {
		t.Error("plain stderr text rejected")
	}
	if c.useStderr("Cursor integration detected") {
		t.Error("editor noise accepted as output")
	}
}

func TestSend_StreamsStdout(t *testing.T) {
	script := writeScript(t, `echo "answer: $2"`)
	a := NewClaude(nil, WithCommand(script))

	out, err := roundtable.Collect(context.Background(), a, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if strings.TrimSpace(out) != "answer: hello" {
		t.Errorf("out = %q", out)
	}
}

func TestSend_MissingCommand(t *testing.T) {
	a := NewClaude(nil, WithCommand("roundtable-no-such-cli"))
	_, err := roundtable.Collect(context.Background(), a, "hi")
	if roundtable.KindOf(err) != roundtable.KindNotAvailable {
		t.Fatalf("err = %v, want not-available", err)
	}
}

func TestSend_FailureWithEmptyOutput(t *testing.T) {
	script := writeScript(t, `echo "model backend unreachable" 1>&2
exit 1`)
	a := NewClaude(nil, WithCommand(script))

	_, err := roundtable.Collect(context.Background(), a, "hi")
	if roundtable.KindOf(err) != roundtable.KindConnection {
		t.Fatalf("err = %v, want connection failure", err)
	}
	var ea *roundtable.ErrAdapter
	if !errors.As(err, &ea) || !strings.Contains(ea.Message, "unreachable") {
		t.Errorf("stderr not surfaced: %v", err)
	}
}

func TestSend_CodexRecoversStderrOutput(t *testing.T) {
	script := writeScript(t, `echo "the actual answer" 1>&2`)
	a := NewCodex(nil, WithCommand(script))

	out, err := roundtable.Collect(context.Background(), a, "hi")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "the actual answer" {
		t.Errorf("out = %q", out)
	}
}

func TestSend_CodexIgnoresEditorNoiseOnStderr(t *testing.T) {
	script := writeScript(t, `echo "cursor agent attached" 1>&2
exit 1`)
	a := NewCodex(nil, WithCommand(script))

	_, err := roundtable.Collect(context.Background(), a, "hi")
	if roundtable.KindOf(err) != roundtable.KindConnection {
		t.Fatalf("err = %v, want connection failure", err)
	}
}

func TestAvailableAndVersion(t *testing.T) {
	script := writeScript(t, `if [ "$1" = "--version" ]; then
  echo "fake-cli 1.2.3"
  echo "build abc"
  exit 0
fi`)
	a := NewClaude(nil, WithCommand(script))

	if !a.Available(context.Background()) {
		t.Error("expected available for an executable script")
	}
	if got := a.Version(context.Background()); got != "fake-cli 1.2.3" {
		t.Errorf("version = %q", got)
	}

	missing := NewClaude(nil, WithCommand("roundtable-no-such-cli"))
	if missing.Available(context.Background()) {
		t.Error("expected unavailable for a missing command")
	}
	if got := missing.Version(context.Background()); got != "unknown" {
		t.Errorf("version for missing command = %q, want unknown", got)
	}
}

func TestSend_TimeoutKillsProcess(t *testing.T) {
	script := writeScript(t, `sleep 5
echo "too late"`)
	cfg := &roundtable.AdapterConfig{Timeout: 100 * time.Millisecond}
	a := NewClaude(cfg, WithCommand(script))

	start := time.Now()
	_, err := roundtable.Collect(context.Background(), a, "hi")
	if roundtable.KindOf(err) != roundtable.KindTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timed-out turn took %v, process not killed promptly", elapsed)
	}
}
