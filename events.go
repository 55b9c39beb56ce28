package roundtable

// EventType identifies the kind of discussion event.
type EventType string

const (
	// EventTaskAnalyzed carries the analyzer's Task for the query.
	EventTaskAnalyzed EventType = "task-analyzed"
	// EventAIsSelected announces the roster and why it was chosen.
	EventAIsSelected EventType = "ais-selected"
	// EventRoundStart opens a discussion round.
	EventRoundStart EventType = "round-start"
	// EventAIStart signals an assistant is about to respond.
	EventAIStart EventType = "ai-start"
	// EventAIChunk carries an incremental text chunk from an assistant.
	EventAIChunk EventType = "ai-chunk"
	// EventAIEnd carries an assistant's complete response for the turn.
	EventAIEnd EventType = "ai-end"
	// EventAIError reports a failed turn; the discussion continues without it.
	EventAIError EventType = "ai-error"
	// EventRoundEnd closes a discussion round.
	EventRoundEnd EventType = "round-end"
	// EventConsensusCheck reports the consensus probe after a round.
	EventConsensusCheck EventType = "consensus-check"
	// EventConsensusReached signals the discussion converged early.
	EventConsensusReached EventType = "consensus-reached"
	// EventConflictDetected carries a detected conflict and its resolution.
	EventConflictDetected EventType = "conflict-detected"
	// EventConflictResolved carries the outcome after a user decision.
	EventConflictResolved EventType = "conflict-resolved"
	// EventApprovalRequested asks for sign-off on a proposed action.
	EventApprovalRequested EventType = "approval-requested"
	// EventApprovalResult reports the ruling on a proposed action.
	EventApprovalResult EventType = "approval-result"
	// EventDiscussionComplete closes the round loop.
	EventDiscussionComplete EventType = "discussion-complete"
	// EventResult carries the final synthesis.
	EventResult EventType = "result"
)

// Event is a typed event emitted while a discussion runs. Consumers receive
// these on the channel passed to Coordinator.Run; the producer closes the
// channel when the discussion ends.
type Event struct {
	// Type identifies the event kind.
	Type EventType `json:"type"`
	// Name is the assistant name (set for ai-* events).
	Name string `json:"name,omitempty"`
	// Icon and Color are the assistant's display hints (ai-start only).
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	// Content carries the text chunk (ai-chunk), the full turn response
	// (ai-end), or the selection explanation (ais-selected).
	Content string `json:"content,omitempty"`
	// Round and MaxRounds frame round events.
	Round     int `json:"round,omitempty"`
	MaxRounds int `json:"max_rounds,omitempty"`
	// Task is the analysis outcome (task-analyzed only).
	Task *Task `json:"task,omitempty"`
	// Assistants is the selected roster (ais-selected only).
	Assistants []string `json:"assistants,omitempty"`
	// Reached reports the consensus probe outcome (consensus-check only).
	Reached bool `json:"reached,omitempty"`
	// Conflict and Resolution accompany conflict events.
	Conflict   *Conflict   `json:"conflict,omitempty"`
	Resolution *Resolution `json:"resolution,omitempty"`
	// Choice is the user's pick after a close vote (conflict-resolved only).
	Choice string `json:"choice,omitempty"`
	// Action and Importance accompany approval events; Approval is the
	// ruling outcome (approval-result only).
	Action     *Action         `json:"action,omitempty"`
	Importance ImportanceLevel `json:"importance,omitempty"`
	Approval   ApprovalStatus  `json:"approval,omitempty"`
	// Synthesis is the final result (result only).
	Synthesis *Synthesis `json:"synthesis,omitempty"`
	// Err is a user-facing error description (ai-error only).
	Err string `json:"error,omitempty"`
}
