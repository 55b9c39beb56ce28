package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jwkim/roundtable"
)

// processSession is one long-lived interactive CLI process. Output lines
// are pumped into lines by a reader goroutine so callers can wait with a
// timeout.
type processSession struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	lines    chan string
	lastUsed time.Time
}

// SessionManager keeps interactive CLI processes alive between turns, so
// assistants that carry conversation state in-process do not pay startup
// cost every round. All exported methods are safe for concurrent use.
type SessionManager struct {
	ttl      time.Duration
	mu       sync.Mutex
	sessions map[string]*processSession
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewSessionManager creates a manager that evicts sessions idle longer
// than ttl.
func NewSessionManager(ttl time.Duration) *SessionManager {
	return &SessionManager{
		ttl:      ttl,
		sessions: make(map[string]*processSession),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background eviction goroutine. Calling it twice is
// a no-op.
func (m *SessionManager) Start(interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()
	go m.runCleanup(interval)
}

// Open starts an interactive process under the given key, reusing a live
// one when present.
func (m *SessionManager) Open(key, command string, args []string, env []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok && s.cmd.ProcessState == nil {
		s.lastUsed = time.Now()
		return nil
	}

	cmd := exec.Command(command, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}

	s := &processSession{
		cmd:      cmd,
		stdin:    stdin,
		lines:    make(chan string, 256),
		lastUsed: time.Now(),
	}
	go func() {
		defer close(s.lines)
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			s.lines <- roundtable.StripANSI(sc.Text())
		}
		_ = cmd.Wait()
	}()
	m.sessions[key] = s
	return nil
}

// Send writes one input line to the session and collects output until the
// process stays quiet for idle, or the process exits.
func (m *SessionManager) Send(key, input string, idle time.Duration) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	if ok {
		s.lastUsed = time.Now()
	}
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("no session %q", key)
	}

	if _, err := io.WriteString(s.stdin, input+"\n"); err != nil {
		return "", fmt.Errorf("write session %q: %w", key, err)
	}

	var out strings.Builder
	timer := time.NewTimer(idle)
	defer timer.Stop()
	for {
		select {
		case line, open := <-s.lines:
			if !open {
				return out.String(), nil
			}
			if out.Len() > 0 {
				out.WriteString("\n")
			}
			out.WriteString(line)
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(idle)
		case <-timer.C:
			return out.String(), nil
		}
	}
}

// Close terminates one session's process.
func (m *SessionManager) Close(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()
	if ok {
		closeSession(s)
	}
}

// CloseAll stops the eviction goroutine and terminates every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	started := m.started
	m.started = false
	m.mu.Unlock()
	if started {
		close(m.stopCh)
		<-m.doneCh
	}

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*processSession)
	m.mu.Unlock()
	for _, s := range sessions {
		closeSession(s)
	}
}

func closeSession(s *processSession) {
	_ = s.stdin.Close()
	_ = killGroup(s.cmd)
}

// runCleanup runs the TTL eviction loop until stopCh is closed.
func (m *SessionManager) runCleanup(interval time.Duration) {
	defer close(m.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.stopCh:
			return
		}
	}
}

// evictExpired terminates sessions idle longer than the TTL. Removes from
// the map under lock, then kills processes outside the lock.
func (m *SessionManager) evictExpired() {
	m.mu.Lock()
	var expired []*processSession
	for key, s := range m.sessions {
		if time.Since(s.lastUsed) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		closeSession(s)
	}
}

// CommandExists reports whether an executable is on PATH.
func CommandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// CommandVersion returns the first line of `name --version`, or "unknown"
// when the command fails.
func CommandVersion(name string) string {
	out, err := exec.Command(name, "--version").Output()
	if err != nil {
		return "unknown"
	}
	if line := firstLine(string(out)); line != "" {
		return line
	}
	return "unknown"
}
