package roundtable

import (
	"context"
	"log/slog"
	"time"
)

// DecisionCallback asks the user to pick between conflicting positions.
// It receives the conflict and the proposed resolution and returns the
// chosen option, or "more" to let the discussion continue unchanged.
type DecisionCallback func(ctx context.Context, c *Conflict, r *Resolution) (string, error)

// Coordinator wires the full pipeline: analyze the query, select the
// roster, run the discussion, resolve conflicts, and synthesize the
// result. Events stream to the caller's channel as the discussion runs.
type Coordinator struct {
	registry    *Registry
	selector    *Selector
	engine      *DiscussionEngine
	synthesizer *Synthesizer
	approval    *ApprovalEngine
	logger      *slog.Logger
	onDecision  DecisionCallback
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator's logger.
func WithLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSelector replaces the default roster selector.
func WithSelector(s *Selector) CoordinatorOption {
	return func(c *Coordinator) {
		if s != nil {
			c.selector = s
		}
	}
}

// WithDiscussionConfig tunes the round loop.
func WithDiscussionConfig(cfg DiscussionConfig) CoordinatorOption {
	return func(c *Coordinator) { c.engine.Config = cfg }
}

// WithDecisionCallback installs the handler for close-vote conflicts.
// Without one, close votes are reported but not resolved.
func WithDecisionCallback(cb DecisionCallback) CoordinatorOption {
	return func(c *Coordinator) { c.onDecision = cb }
}

// WithApprovalCallback gates actions proposed in responses: each one is
// scored and routed through cb (or auto-approved by policy), with
// approval events emitted for the ruling.
func WithApprovalCallback(cb ApprovalCallback) CoordinatorOption {
	return func(c *Coordinator) { c.approval = NewApprovalEngine(cb, nil) }
}

// WithApprovalEngine installs a pre-configured approval engine in place
// of the default one WithApprovalCallback builds.
func WithApprovalEngine(e *ApprovalEngine) CoordinatorOption {
	return func(c *Coordinator) { c.approval = e }
}

// NewCoordinator creates a Coordinator over the given registry.
func NewCoordinator(reg *Registry, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		registry:    reg,
		selector:    NewSelector(nil),
		engine:      NewDiscussionEngine(DefaultDiscussionConfig(), nil),
		synthesizer: NewSynthesizer(),
		logger:      nopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.engine.Logger = c.logger
	return c
}

// Run processes one user query end to end, streaming events to ch. The
// channel is closed before Run returns. The returned Session holds the
// full transcript and result for persistence; it is non-nil unless the
// context was canceled before any work happened.
func (c *Coordinator) Run(ctx context.Context, prompt string, ch chan<- Event) (*Session, error) {
	defer close(ch)

	emit := func(ev Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	task := Analyze(prompt)
	c.logger.Debug("task analyzed", "type", task.Type, "complexity", task.Complexity, "rounds", task.SuggestedRounds)

	session := &Session{
		ID:        NewID(),
		UserQuery: prompt,
		TaskType:  task.Type,
		Status:    StatusInProgress,
		CreatedAt: NowUnix(),
	}
	session.Messages = append(session.Messages, Message{
		ID:         NewID(),
		SessionID:  session.ID,
		SenderType: SenderUser,
		SenderID:   "user",
		Content:    prompt,
		TokenCount: EstimateTokens(prompt),
		CreatedAt:  NowUnix(),
	})

	var err error
	if task.Type == TaskSimpleChat || task.Complexity < 0.3 {
		err = c.quickResponse(ctx, task, session, emit)
	} else {
		err = c.discussion(ctx, task, session, emit)
	}
	// A consumer walking away is a cancellation, not a failure.
	if err != nil && ctx.Err() != nil {
		session.Status = StatusCancelled
		session.UpdatedAt = NowUnix()
	}
	return session, err
}

// quickResponse answers trivial queries with a single assistant and no
// round loop.
func (c *Coordinator) quickResponse(ctx context.Context, task Task, session *Session, emit func(Event) error) error {
	roster, explanation := c.selector.Select(ctx, c.registry, task)
	if len(roster) == 0 {
		session.Status = StatusFailed
		session.UpdatedAt = NowUnix()
		return emit(Event{Type: EventAIsSelected, Content: "No AI adapters available for this task."})
	}
	a := roster[0]
	name := a.DisplayName()
	session.ParticipatingAIs = []string{a.Name()}

	if err := emit(Event{Type: EventAIsSelected, Assistants: []string{name}, Content: explanation}); err != nil {
		return err
	}
	if err := emit(Event{Type: EventAIStart, Name: name, Icon: a.Icon(), Color: a.Color(), Round: 1}); err != nil {
		return err
	}

	start := time.Now()
	chunks := make(chan string, 64)
	var sendErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		sendErr = a.Send(ctx, session.UserQuery, chunks)
	}()

	var full []byte
	for chunk := range chunks {
		full = append(full, chunk...)
		if err := emit(Event{Type: EventAIChunk, Name: name, Content: chunk, Round: 1}); err != nil {
			for range chunks {
			}
			<-done
			return err
		}
	}
	<-done

	if sendErr != nil {
		c.logger.Error("quick response failed", "assistant", name, "kind", KindOf(sendErr), "error", sendErr, "duration", time.Since(start))
		session.Status = StatusFailed
		session.UpdatedAt = NowUnix()
		return emit(Event{Type: EventAIError, Name: name, Err: FormatUserError(sendErr, name)})
	}

	response := string(full)
	if err := emit(Event{Type: EventAIEnd, Name: name, Content: response, Round: 1}); err != nil {
		return err
	}

	session.Messages = append(session.Messages, Message{
		ID:         NewID(),
		SessionID:  session.ID,
		SenderType: SenderAI,
		SenderID:   name,
		Content:    response,
		Round:      1,
		TokenCount: EstimateTokens(response),
		CreatedAt:  NowUnix(),
	})
	session.Result = &Synthesis{
		Summary:          Truncate(response, 200),
		ConsensusReached: true,
		Confidence:       1,
		TotalRounds:      1,
		TotalMessages:    1,
		Contributions:    map[string]float64{name: 100},
		CreatedAt:        NowUnix(),
	}
	session.TotalRounds = 1
	session.Status = StatusCompleted
	session.UpdatedAt = NowUnix()
	return emit(Event{Type: EventResult, Synthesis: session.Result})
}

// discussion runs the full multi-assistant pipeline.
func (c *Coordinator) discussion(ctx context.Context, task Task, session *Session, emit func(Event) error) error {
	if err := emit(Event{Type: EventTaskAnalyzed, Task: &task}); err != nil {
		return err
	}

	roster, explanation := c.selector.Select(ctx, c.registry, task)
	if len(roster) == 0 {
		session.Status = StatusFailed
		session.UpdatedAt = NowUnix()
		return emit(Event{Type: EventAIsSelected, Content: "No AI adapters available for this task."})
	}
	names := make([]string, len(roster))
	for i, a := range roster {
		names[i] = a.DisplayName()
		session.ParticipatingAIs = append(session.ParticipatingAIs, a.Name())
	}
	if err := emit(Event{Type: EventAIsSelected, Assistants: names, Content: explanation}); err != nil {
		return err
	}

	sctx := NewSharedContext(session.UserQuery)
	c.engine.AfterRound = func(round int, emit func(Event) error) error {
		if round < 2 {
			return nil
		}
		return c.handleConflict(ctx, sctx, task, emit)
	}

	// The engine reports every consensus probe; a positive one surfaces
	// to consumers as consensus-reached instead.
	engineEmit := func(ev Event) error {
		if ev.Type == EventConsensusCheck && ev.Reached {
			return emit(Event{Type: EventConsensusReached, Round: ev.Round, Reached: true})
		}
		return emit(ev)
	}

	rounds, _, err := c.engine.Run(ctx, roster, sctx, task, engineEmit)
	if err != nil {
		session.Status = StatusFailed
		session.UpdatedAt = NowUnix()
		return err
	}

	for _, m := range sctx.Messages() {
		m.SessionID = session.ID
		session.Messages = append(session.Messages, m)
	}
	session.Result = c.synthesizer.Synthesize(sctx, rounds)
	session.TotalRounds = rounds

	if c.approval != nil {
		if err := c.handleApprovals(ctx, sctx, emit); err != nil {
			return err
		}
	}

	session.Status = StatusCompleted
	session.UpdatedAt = NowUnix()
	return emit(Event{Type: EventResult, Synthesis: session.Result})
}

// handleConflict checks the transcript for disagreement after a round and
// resolves it, asking the user when the vote is too close to call.
func (c *Coordinator) handleConflict(ctx context.Context, sctx *SharedContext, task Task, emit func(Event) error) error {
	conflict := DetectConflict(sctx, task)
	if conflict == nil {
		return nil
	}
	resolution := ResolveConflict(conflict, task)
	c.logger.Debug("conflict detected", "topic", conflict.Topic, "severity", conflict.Severity, "strategy", resolution.Strategy)

	if err := emit(Event{Type: EventConflictDetected, Conflict: conflict, Resolution: &resolution}); err != nil {
		return err
	}

	// Majority and confidence strategies resolve inside the discussion;
	// only a user decision produces a resolved event.
	if resolution.Strategy != UserDecision {
		return nil
	}

	choice := ""
	if c.onDecision != nil {
		var err error
		choice, err = c.onDecision(ctx, conflict, &resolution)
		if err != nil {
			return err
		}
		if choice != "" && choice != "more" {
			sctx.AddKeyPoint("User chose: " + choice)
		}
	}
	return emit(Event{Type: EventConflictResolved, Conflict: conflict, Resolution: &resolution, Choice: choice})
}

// handleApprovals extracts proposed actions from the transcript and routes
// each through the approval engine, emitting a request and result pair.
func (c *Coordinator) handleApprovals(ctx context.Context, sctx *SharedContext, emit func(Event) error) error {
	total := 0
	for _, m := range sctx.Messages() {
		for _, action := range ExtractActions(m.Content, m.SenderID) {
			if total == maxExtractedActions {
				return nil
			}
			total++
			level := c.approval.Assess(action)
			if err := emit(Event{Type: EventApprovalRequested, Action: action, Importance: level}); err != nil {
				return err
			}
			d, err := c.approval.Evaluate(ctx, action)
			if err != nil {
				return err
			}
			if err := emit(Event{Type: EventApprovalResult, Action: action, Importance: d.Importance, Approval: d.Status}); err != nil {
				return err
			}
		}
	}
	return nil
}
