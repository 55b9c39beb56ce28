package roundtable

import (
	"context"
	"strings"
	"testing"
)

// runCoordinator drives Run while draining the event channel.
func runCoordinator(t *testing.T, c *Coordinator, prompt string) (*Session, []Event, error) {
	t.Helper()
	ch := make(chan Event, 64)
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			events = append(events, ev)
		}
	}()
	session, err := c.Run(context.Background(), prompt, ch)
	<-done
	return session, events, err
}

func TestCoordinator_QuickResponseForSimpleChat(t *testing.T) {
	claude := newStubAdapter("claude", stubSend{chunks: []string{"Hello! ", "How can I help?"}})
	reg := NewRegistry([]Adapter{claude})
	c := NewCoordinator(reg)

	session, events, err := runCoordinator(t, c, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if session.Status != StatusCompleted {
		t.Errorf("status = %s", session.Status)
	}
	if session.TaskType != TaskSimpleChat {
		t.Errorf("task type = %s", session.TaskType)
	}
	if hasEvent(events, EventTaskAnalyzed) {
		t.Error("quick path should not emit task-analyzed")
	}
	if hasEvent(events, EventRoundStart) {
		t.Error("quick path should not run the round loop")
	}
	if !hasEvent(events, EventResult) {
		t.Error("missing result event")
	}
	if session.Result == nil || !session.Result.ConsensusReached {
		t.Fatalf("result = %+v", session.Result)
	}
	if session.Result.Summary != "Hello! How can I help?" {
		t.Errorf("summary = %q", session.Result.Summary)
	}
	// User message plus the single response.
	if len(session.Messages) != 2 {
		t.Errorf("messages = %d, want 2", len(session.Messages))
	}
	if session.Messages[0].SenderType != SenderUser {
		t.Error("transcript must start with the user message")
	}
}

func TestCoordinator_NoAdaptersFailsSession(t *testing.T) {
	down := newStubAdapter("claude", stubSend{})
	down.available = false
	c := NewCoordinator(NewRegistry([]Adapter{down}))

	session, events, err := runCoordinator(t, c, "hi")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if session.Status != StatusFailed {
		t.Errorf("status = %s, want failed", session.Status)
	}
	var selected Event
	for _, ev := range events {
		if ev.Type == EventAIsSelected {
			selected = ev
		}
	}
	if !strings.Contains(selected.Content, "No AI adapters available") {
		t.Errorf("selection event = %+v", selected)
	}
}

func TestCoordinator_FullDiscussionPipeline(t *testing.T) {
	response := "I agree with the overall approach here and would add indexes on the audit columns to keep scans cheap."
	reg := NewRegistry([]Adapter{
		newStubAdapter("claude", stubSend{chunks: []string{response}}),
		newStubAdapter("codex", stubSend{chunks: []string{response}}),
		newStubAdapter("gemini", stubSend{chunks: []string{response}}),
	})
	c := NewCoordinator(reg)

	prompt := "Analyze and compare the performance of PostgreSQL and MySQL in a large-scale enterprise system design"
	session, events, err := runCoordinator(t, c, prompt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !hasEvent(events, EventTaskAnalyzed) {
		t.Error("missing task-analyzed event")
	}
	var selected Event
	for _, ev := range events {
		if ev.Type == EventAIsSelected {
			selected = ev
		}
	}
	if len(selected.Assistants) != 3 {
		t.Errorf("roster = %v, want all three assistants", selected.Assistants)
	}
	// Identical agreeing responses converge in round two.
	if !hasEvent(events, EventConsensusReached) {
		t.Error("missing consensus-reached event")
	}
	// The positive probe is replaced, not duplicated.
	for _, ev := range events {
		if ev.Type == EventConsensusCheck && ev.Reached {
			t.Error("positive consensus-check leaked alongside consensus-reached")
		}
	}
	if session.TotalRounds != 2 {
		t.Errorf("total rounds = %d, want 2", session.TotalRounds)
	}
	if session.Status != StatusCompleted {
		t.Errorf("status = %s", session.Status)
	}
	if len(session.ParticipatingAIs) != 3 {
		t.Errorf("participating AIs = %v", session.ParticipatingAIs)
	}
	// 1 user message + 3 assistants x 2 rounds.
	if len(session.Messages) != 7 {
		t.Errorf("messages = %d, want 7", len(session.Messages))
	}
	for _, m := range session.Messages {
		if m.SessionID != session.ID {
			t.Fatalf("message %s not stamped with session ID", m.ID)
		}
	}
	if session.Result == nil || !session.Result.ConsensusReached {
		t.Fatalf("result = %+v", session.Result)
	}
}

func TestCoordinator_CanceledRunMarksSessionCancelled(t *testing.T) {
	reg := NewRegistry([]Adapter{
		newStubAdapter("claude", stubSend{chunks: []string{"thinking"}}),
	})
	c := NewCoordinator(reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := make(chan Event, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
		}
	}()
	prompt := "Analyze and compare the performance of PostgreSQL and MySQL in a large-scale enterprise system design"
	session, err := c.Run(ctx, prompt, ch)
	<-done

	if err == nil {
		t.Fatal("expected context error")
	}
	if session.Status != StatusCancelled {
		t.Errorf("status = %s, want %s", session.Status, StatusCancelled)
	}
	if session.Result != nil {
		t.Errorf("cancelled run produced a result: %+v", session.Result)
	}
}

func TestCoordinator_ApprovalCallbackRulesOnProposedActions(t *testing.T) {
	response := "I agree with the plan as discussed. Run: `npm test` to verify the suite before merging."
	reg := NewRegistry([]Adapter{
		newStubAdapter("claude", stubSend{chunks: []string{response}}),
		newStubAdapter("codex", stubSend{chunks: []string{response}}),
	})

	var ruled []*Action
	cb := func(ctx context.Context, a *Action, level ImportanceLevel) (ApprovalStatus, error) {
		ruled = append(ruled, a)
		return StatusApproved, nil
	}
	c := NewCoordinator(reg, WithApprovalCallback(cb))

	prompt := "Analyze and compare the performance of PostgreSQL and MySQL in a large-scale enterprise system design"
	session, events, err := runCoordinator(t, c, prompt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if session.Status != StatusCompleted {
		t.Fatalf("status = %s", session.Status)
	}
	if len(ruled) == 0 {
		t.Fatal("approval callback never invoked")
	}

	var requested, results []Event
	for _, ev := range events {
		switch ev.Type {
		case EventApprovalRequested:
			requested = append(requested, ev)
		case EventApprovalResult:
			results = append(results, ev)
		}
	}
	if len(requested) == 0 || len(requested) != len(results) {
		t.Fatalf("approval events = %d requested / %d results", len(requested), len(results))
	}
	first := requested[0]
	if first.Action == nil || first.Action.Command != "npm test" {
		t.Errorf("requested action = %+v", first.Action)
	}
	if first.Importance != ImportanceMedium {
		t.Errorf("importance = %s, want %s", first.Importance, ImportanceMedium)
	}
	if results[0].Approval != StatusApproved {
		t.Errorf("approval = %s, want %s", results[0].Approval, StatusApproved)
	}
}

func TestCoordinator_DecisionCallbackRecordsChoice(t *testing.T) {
	// Two assistants with equal analysis strength disagreeing keeps the
	// weighted vote inside the close-vote margin.
	claude := newStubAdapter("claude",
		stubSend{chunks: []string{"I recommend: PostgreSQL for the database layer, however the operational cost is higher than expected."}},
	)
	gemini := newStubAdapter("gemini",
		stubSend{chunks: []string{"I disagree with that direction. I recommend: MySQL for the database instead of the heavier option."}},
	)
	reg := NewRegistry([]Adapter{claude, gemini})

	var asked *Conflict
	cb := func(ctx context.Context, c *Conflict, r *Resolution) (string, error) {
		asked = c
		return r.Options[0], nil
	}
	cfg := DefaultDiscussionConfig()
	cfg.ConsensusCheck = false
	c := NewCoordinator(reg,
		WithDiscussionConfig(cfg),
		WithDecisionCallback(cb),
	)

	prompt := "Analyze and compare the performance of PostgreSQL and MySQL in a large-scale enterprise system design"
	session, events, err := runCoordinator(t, c, prompt)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if asked == nil {
		t.Fatal("decision callback never invoked")
	}
	if !hasEvent(events, EventConflictDetected) {
		t.Error("missing conflict-detected event")
	}
	var resolved Event
	for _, ev := range events {
		if ev.Type == EventConflictResolved {
			resolved = ev
			break
		}
	}
	if resolved.Choice == "" {
		t.Errorf("conflict-resolved choice empty: %+v", resolved)
	}
	if session.Status != StatusCompleted {
		t.Errorf("status = %s", session.Status)
	}
}
