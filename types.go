package roundtable

// TaskType classifies what kind of work a user query asks for.
type TaskType string

const (
	TaskCode       TaskType = "code"
	TaskDesign     TaskType = "design"
	TaskAnalysis   TaskType = "analysis"
	TaskCreative   TaskType = "creative"
	TaskResearch   TaskType = "research"
	TaskDebug      TaskType = "debug"
	TaskExplain    TaskType = "explain"
	TaskGeneral    TaskType = "general"
	TaskSimpleChat TaskType = "simple_chat"
)

// Task is the analyzer's reading of a user query: what kind of work it is,
// how hard it looks, and how much discussion it deserves.
type Task struct {
	Type             TaskType `json:"type"`
	Complexity       float64  `json:"complexity"` // 0.0 (trivial) .. 1.0 (very hard)
	Keywords         []string `json:"keywords,omitempty"`
	SuggestedRounds  int      `json:"suggested_rounds"`
	SuggestedAICount int      `json:"suggested_ai_count"`

	// Capability hints derived from the task type, used by the selector.
	RequiresCode       bool `json:"requires_code,omitempty"`
	RequiresCreativity bool `json:"requires_creativity,omitempty"`
	RequiresAnalysis   bool `json:"requires_analysis,omitempty"`
}

// SenderType distinguishes user input from assistant output in a transcript.
type SenderType string

const (
	SenderUser SenderType = "user"
	SenderAI   SenderType = "ai"
)

// Message is one entry in a discussion transcript. Messages reference their
// session by ID, never by pointer.
type Message struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	SenderType SenderType `json:"sender_type"`
	SenderID   string     `json:"sender_id"`
	Content    string     `json:"content"`
	Round      int        `json:"round_num"`
	TokenCount int        `json:"token_count,omitempty"`
	Metadata   string     `json:"metadata,omitempty"`
	CreatedAt  int64      `json:"created_at"`
}

// SessionStatus tracks the lifecycle of a persisted session.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
	StatusCancelled  SessionStatus = "cancelled"
	StatusFailed     SessionStatus = "failed"
)

// Session is a persisted discussion: the query, who participated, the
// transcript, and the synthesized result if the discussion completed.
type Session struct {
	ID               string        `json:"id"`
	UserQuery        string        `json:"user_query"`
	TaskType         TaskType      `json:"task_type"`
	ParticipatingAIs []string      `json:"participating_ais,omitempty"`
	TotalRounds      int           `json:"total_rounds"`
	Status           SessionStatus `json:"status"`
	CreatedAt        int64         `json:"created_at"`
	UpdatedAt        int64         `json:"updated_at"`

	Messages []Message  `json:"messages,omitempty"`
	Result   *Synthesis `json:"result,omitempty"`
}

// Synthesis is the distilled outcome of a discussion.
type Synthesis struct {
	Summary          string             `json:"summary"`
	KeyPoints        []string           `json:"key_points,omitempty"`
	Agreements       []string           `json:"agreements,omitempty"`
	Disagreements    []string           `json:"disagreements,omitempty"`
	Recommendations  []string           `json:"recommendations,omitempty"`
	ConsensusReached bool               `json:"consensus_reached"`
	Confidence       float64            `json:"confidence"`
	TotalRounds      int                `json:"total_rounds"`
	TotalMessages    int                `json:"total_messages"`
	Contributions    map[string]float64 `json:"ai_contributions,omitempty"` // percent share per assistant
	CreatedAt        int64              `json:"created_at,omitempty"`
}

// Stats summarizes stored history.
type Stats struct {
	TotalSessions int            `json:"total_sessions"`
	TotalMessages int            `json:"total_messages"`
	ByStatus      map[string]int `json:"by_status,omitempty"`
	AIUsage       map[string]int `json:"ai_usage,omitempty"`
}
