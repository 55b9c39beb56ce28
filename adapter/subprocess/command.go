// Package subprocess adapts locally installed assistant CLIs (claude,
// codex, gemini) to the roundtable.Adapter interface. Each turn runs the
// CLI in one-shot mode and streams its stdout as chunks.
package subprocess

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/jwkim/roundtable"
)

const (
	readChunkSize  = 1024
	versionTimeout = 10 * time.Second
)

// Option configures a CLI adapter.
type Option func(*Adapter)

// WithLogger sets a structured logger for the adapter.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithCommand overrides the executable name, for tests and unusual
// installs.
func WithCommand(cmd string) Option {
	return func(a *Adapter) { a.command = cmd }
}

// Adapter runs an assistant CLI as a one-shot subprocess per turn.
type Adapter struct {
	name        string
	displayName string
	icon        string
	color       string
	command     string
	buildArgs   func(prompt string) []string
	env         []string

	// useStderr recovers output from CLIs that print answers to stderr
	// when stdout stays empty.
	useStderr func(stderr string) bool

	cfg    roundtable.AdapterConfig
	logger *slog.Logger
}

var _ roundtable.Adapter = (*Adapter)(nil)

// NewClaude creates an adapter for the claude CLI in print mode.
func NewClaude(cfg *roundtable.AdapterConfig, opts ...Option) *Adapter {
	a := &Adapter{
		name:        "claude",
		displayName: "Claude",
		icon:        "🔮",
		color:       "cyan",
		command:     "claude",
		buildArgs:   func(prompt string) []string { return []string{"-p", prompt} },
		env:         []string{"TERM=dumb", "NO_COLOR=1"},
	}
	return a.init(cfg, opts)
}

// NewCodex creates an adapter for the codex CLI in exec mode.
func NewCodex(cfg *roundtable.AdapterConfig, opts ...Option) *Adapter {
	a := &Adapter{
		name:        "codex",
		displayName: "Codex",
		icon:        "⚡",
		color:       "green",
		command:     "codex",
		buildArgs: func(prompt string) []string {
			return []string{"exec", "--skip-git-repo-check", prompt}
		},
		env: []string{"CI=1", "FORCE_COLOR=0", "CODEX_QUIET=1"},
		// Codex reports progress on stderr; only trust it as output when
		// it is not editor-integration noise.
		useStderr: func(stderr string) bool {
			return !strings.Contains(strings.ToLower(stderr), "cursor")
		},
	}
	return a.init(cfg, opts)
}

// NewGemini creates an adapter for the gemini CLI. Prefers a gemini-fast
// wrapper when one is installed.
func NewGemini(cfg *roundtable.AdapterConfig, opts ...Option) *Adapter {
	command := "gemini"
	if _, err := exec.LookPath("gemini-fast"); err == nil {
		command = "gemini-fast"
	}
	a := &Adapter{
		name:        "gemini",
		displayName: "Gemini",
		icon:        "✨",
		color:       "magenta",
		command:     command,
		buildArgs:   func(prompt string) []string { return []string{prompt} },
		env:         []string{"TERM=dumb", "NO_COLOR=1"},
	}
	return a.init(cfg, opts)
}

func (a *Adapter) init(cfg *roundtable.AdapterConfig, opts []Option) *Adapter {
	if cfg != nil {
		a.cfg = *cfg
	}
	a.cfg.Normalize()
	a.logger = slog.New(slog.DiscardHandler)
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string        { return a.name }
func (a *Adapter) DisplayName() string { return a.displayName }
func (a *Adapter) Icon() string        { return a.icon }
func (a *Adapter) Color() string       { return a.color }

// Send runs the CLI with the prompt and streams stdout to ch in chunks.
// The channel is closed before Send returns.
func (a *Adapter) Send(ctx context.Context, prompt string, ch chan<- string) error {
	defer close(ch)
	start := time.Now()

	runCtx := ctx
	var cancel context.CancelFunc
	if a.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, a.command, a.buildArgs(prompt)...)
	cmd.Env = append(os.Environ(), a.env...)
	// The CLI may spawn helpers; a new process group lets cancellation
	// reach all of them, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &roundtable.ErrAdapter{Name: a.name, Kind: roundtable.KindInternal, Message: "stdout pipe", Err: err}
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		kind := roundtable.KindInternal
		if errors.Is(err, exec.ErrNotFound) {
			kind = roundtable.KindNotAvailable
		}
		return &roundtable.ErrAdapter{Name: a.name, Kind: kind, Message: "start " + a.command, Err: err}
	}

	sent := 0
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := stdout.Read(buf)
		if n > 0 {
			chunk := roundtable.StripANSI(string(buf[:n]))
			if chunk != "" {
				sent += len(chunk)
				select {
				case ch <- chunk:
				case <-ctx.Done():
					_ = killGroup(cmd)
					_ = cmd.Wait()
					return ctx.Err()
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = cmd.Wait()
			return &roundtable.ErrAdapter{Name: a.name, Kind: roundtable.KindInternal, Message: "read stdout", Err: readErr}
		}
	}

	waitErr := cmd.Wait()
	if runCtx.Err() == context.DeadlineExceeded {
		return &roundtable.ErrAdapter{Name: a.name, Kind: roundtable.KindTimeout, Message: fmt.Sprintf("no response within %s", a.cfg.Timeout)}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Some CLIs write the answer to stderr; recover it when stdout was
	// silent and the adapter allows it.
	if sent == 0 && a.useStderr != nil {
		if text := roundtable.StripANSI(strings.TrimSpace(stderr.String())); text != "" && a.useStderr(text) {
			select {
			case ch <- text:
				sent = len(text)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if waitErr != nil && sent == 0 {
		a.logger.Error("subprocess failed", "adapter", a.name, "error", waitErr, "stderr_len", stderr.Len(), "duration", time.Since(start))
		return &roundtable.ErrAdapter{Name: a.name, Kind: roundtable.KindConnection, Message: strings.TrimSpace(stderr.String()), Err: waitErr}
	}
	a.logger.Debug("subprocess complete", "adapter", a.name, "bytes", sent, "duration", time.Since(start))
	return nil
}

// Available reports whether the CLI is on PATH.
func (a *Adapter) Available(ctx context.Context) bool {
	_, err := exec.LookPath(a.command)
	return err == nil
}

// Version returns the first line of `<command> --version`, or "unknown"
// when the command fails.
func (a *Adapter) Version(ctx context.Context) string {
	vctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(vctx, a.command, "--version").Output()
	if err != nil {
		return "unknown"
	}
	if line := firstLine(string(out)); line != "" {
		return line
	}
	return "unknown"
}

// killGroup signals the whole process group, falling back to the direct
// child when the group is gone or was never created.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func firstLine(s string) string {
	sc := bufio.NewScanner(strings.NewReader(s))
	if sc.Scan() {
		return strings.TrimSpace(sc.Text())
	}
	return ""
}
