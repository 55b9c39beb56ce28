package roundtable

import (
	"context"
	"sync"
)

// stubSend is one queued response for a stubAdapter: its chunks and the
// error returned after streaming them.
type stubSend struct {
	chunks []string
	err    error
}

// stubAdapter replays queued responses. Shared across the discussion,
// coordinator, registry, retry, and breaker tests.
type stubAdapter struct {
	name        string
	displayName string
	available   bool

	mu    sync.Mutex
	sends []stubSend
	calls int
}

func newStubAdapter(name string, sends ...stubSend) *stubAdapter {
	return &stubAdapter{
		name:        name,
		displayName: name,
		available:   true,
		sends:       sends,
	}
}

func (s *stubAdapter) Name() string        { return s.name }
func (s *stubAdapter) DisplayName() string { return s.displayName }
func (s *stubAdapter) Icon() string        { return "*" }
func (s *stubAdapter) Color() string       { return "white" }

func (s *stubAdapter) Send(ctx context.Context, _ string, ch chan<- string) error {
	defer close(ch)
	s.mu.Lock()
	call := s.calls
	s.calls++
	var send stubSend
	if len(s.sends) > 0 {
		if call < len(s.sends) {
			send = s.sends[call]
		} else {
			send = s.sends[len(s.sends)-1]
		}
	}
	s.mu.Unlock()

	for _, chunk := range send.chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case ch <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return send.err
}

func (s *stubAdapter) Available(context.Context) bool { return s.available }
func (s *stubAdapter) Version(context.Context) string { return "stub-1.0" }

func (s *stubAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubCloner is a stubAdapter that can derive per-model instances, like
// the ollama adapter.
type stubCloner struct {
	*stubAdapter
}

func (s *stubCloner) WithModel(model, displayName string) Adapter {
	derived := newStubAdapter(toLower(displayName), s.sends...)
	derived.displayName = displayName
	return derived
}

func toLower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + 32
		}
	}
	return string(out)
}

// collectEvents drains a discussion run into a slice.
func collectEvents(run func(emit func(Event) error) error) ([]Event, error) {
	var events []Event
	err := run(func(ev Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func hasEvent(events []Event, t EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}
