package roundtable

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

// ImportanceLevel grades how much scrutiny a proposed action deserves.
type ImportanceLevel string

const (
	ImportanceLow      ImportanceLevel = "low"
	ImportanceMedium   ImportanceLevel = "medium"
	ImportanceHigh     ImportanceLevel = "high"
	ImportanceCritical ImportanceLevel = "critical"
)

// ActionType classifies what a proposed action would do.
type ActionType string

const (
	ActionFileCreate     ActionType = "file_create"
	ActionFileModify     ActionType = "file_modify"
	ActionFileDelete     ActionType = "file_delete"
	ActionCommandExecute ActionType = "command_execute"
	ActionAPICall        ActionType = "api_call"
	ActionConfigChange   ActionType = "config_change"
	ActionInstallPackage ActionType = "install_package"
	ActionSuggestion     ActionType = "suggestion"
)

// ApprovalStatus is the outcome of evaluating an action.
type ApprovalStatus string

const (
	StatusAutoApproved ApprovalStatus = "auto_approved"
	StatusApproved     ApprovalStatus = "approved"
	StatusRejected     ApprovalStatus = "rejected"
	StatusModified     ApprovalStatus = "modified"
	StatusPending      ApprovalStatus = "pending"
)

// dangerousCommandPatterns flag shell commands that can destroy data or
// escalate privileges.
var dangerousCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-rf\b`),
	regexp.MustCompile(`\brm\s+.*\*`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`\bchmod\s+777\b`),
	regexp.MustCompile(`(?i)\bdrop\s+database\b`),
	regexp.MustCompile(`(?i)\btruncate\b`),
	regexp.MustCompile(`(?i)\bformat\b`),
	regexp.MustCompile(`\bfdisk\b`),
	regexp.MustCompile(`>\s*/dev/`),
	regexp.MustCompile(`\bdd\s+if=`),
}

// sensitiveFilePatterns flag paths whose modification needs review.
var sensitiveFilePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\.env`),
	regexp.MustCompile(`\.git/`),
	regexp.MustCompile(`\.ssh/`),
	regexp.MustCompile(`(?i)credentials`),
	regexp.MustCompile(`(?i)secrets?\.ya?ml`),
	regexp.MustCompile(`(?i)config\.ya?ml`),
	regexp.MustCompile(`package-lock\.json`),
	regexp.MustCompile(`yarn\.lock`),
}

// Vote is one assistant's stance on a proposed action.
type Vote struct {
	AIName     string  `json:"ai_name"`
	Approve    bool    `json:"approve"`
	Confidence float64 `json:"confidence"`
}

// Action is something an assistant proposed doing on the user's behalf.
type Action struct {
	ID           string     `json:"id"`
	Type         ActionType `json:"type"`
	Description  string     `json:"description"`
	Target       string     `json:"target,omitempty"`  // file path for file actions
	Command      string     `json:"command,omitempty"` // shell command for executions
	ProposedBy   string     `json:"proposed_by"`
	Destructive  bool       `json:"destructive,omitempty"`
	Irreversible bool       `json:"irreversible,omitempty"`
	Votes        []Vote     `json:"votes,omitempty"`
}

// ApprovalRatio is the fraction of votes approving. No votes counts as
// full approval, the proposer stands alone.
func (a *Action) ApprovalRatio() float64 {
	if len(a.Votes) == 0 {
		return 1
	}
	approving := 0
	for _, v := range a.Votes {
		if v.Approve {
			approving++
		}
	}
	return float64(approving) / float64(len(a.Votes))
}

// TotalConfidence sums the approving votes' confidence over all votes.
func (a *Action) TotalConfidence() float64 {
	if len(a.Votes) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range a.Votes {
		if v.Approve {
			sum += v.Confidence
		}
	}
	return sum / float64(len(a.Votes))
}

// Decision is the evaluated outcome for one action.
type Decision struct {
	Action     *Action         `json:"action"`
	Importance ImportanceLevel `json:"importance"`
	Status     ApprovalStatus  `json:"status"`
	Reason     string          `json:"reason,omitempty"`
}

// ApprovalCallback asks the user to rule on an action that cannot be
// auto-approved.
type ApprovalCallback func(ctx context.Context, a *Action, level ImportanceLevel) (ApprovalStatus, error)

// ApprovalEngine gates proposed actions: scores their importance, applies
// auto-approval policy, and escalates the rest to the user.
type ApprovalEngine struct {
	AutoApprove map[ImportanceLevel]bool
	Callback    ApprovalCallback
	Logger      *slog.Logger
}

// NewApprovalEngine creates an engine with the default policy: low
// importance is auto-approved, everything above needs a ruling.
func NewApprovalEngine(cb ApprovalCallback, logger *slog.Logger) *ApprovalEngine {
	if logger == nil {
		logger = nopLogger
	}
	return &ApprovalEngine{
		AutoApprove: map[ImportanceLevel]bool{
			ImportanceLow:    true,
			ImportanceMedium: false,
		},
		Callback: cb,
		Logger:   logger,
	}
}

// Assess scores an action's importance without ruling on it.
func (e *ApprovalEngine) Assess(a *Action) ImportanceLevel {
	return e.assess(a)
}

// Evaluate scores an action and decides its fate.
func (e *ApprovalEngine) Evaluate(ctx context.Context, a *Action) (Decision, error) {
	level := e.assess(a)
	d := Decision{Action: a, Importance: level}

	if e.AutoApprove[level] {
		d.Status = StatusAutoApproved
		d.Reason = "importance " + string(level) + " is auto-approved"
		e.Logger.Debug("action auto-approved", "id", a.ID, "type", a.Type, "importance", level)
		return d, nil
	}

	if e.Callback != nil {
		status, err := e.Callback(ctx, a, level)
		if err != nil {
			return d, err
		}
		d.Status = status
		d.Reason = "user ruling"
		e.Logger.Debug("action ruled by user", "id", a.ID, "type", a.Type, "status", status)
		return d, nil
	}

	if level == ImportanceHigh || level == ImportanceCritical {
		d.Status = StatusPending
		d.Reason = "no approval callback configured"
	} else {
		d.Status = StatusAutoApproved
		d.Reason = "no approval callback configured"
	}
	return d, nil
}

// assess converts an action's risk factors to an importance level.
func (e *ApprovalEngine) assess(a *Action) ImportanceLevel {
	score := 0.0
	switch a.Type {
	case ActionFileCreate:
		score += 2 * 0.5
	case ActionFileModify, ActionConfigChange:
		score += 2
		if sensitiveFile(a.Target) {
			score += 2
		}
	case ActionFileDelete:
		score += 2 * 2
	case ActionCommandExecute:
		score += 2
		if dangerousCommand(a.Command) {
			score += 3
		}
	case ActionInstallPackage:
		score++
	}
	if a.Destructive {
		score += 3
	}
	if a.Irreversible {
		score += 2
	}
	ratio := a.ApprovalRatio()
	if ratio < 0.5 {
		score += 2
	} else if ratio < 0.8 {
		score++
	}

	switch {
	case score <= 1:
		return ImportanceLow
	case score <= 3:
		return ImportanceMedium
	case score <= 5:
		return ImportanceHigh
	default:
		return ImportanceCritical
	}
}

func dangerousCommand(cmd string) bool {
	for _, p := range dangerousCommandPatterns {
		if p.MatchString(cmd) {
			return true
		}
	}
	return false
}

func sensitiveFile(path string) bool {
	for _, p := range sensitiveFilePatterns {
		if p.MatchString(path) {
			return true
		}
	}
	return false
}

const (
	maxExtractedActions  = 10
	maxExtractedCommands = 5
)

var (
	createFilePatterns = []*regexp.Regexp{
		regexp.MustCompile("(?i)create (?:a )?(?:new )?file(?: named| called)?[:\\s]+`?([\\w./-]+)`?"),
		regexp.MustCompile("(?i)(?:write|save) (?:to|it to|as)[:\\s]+`?([\\w./-]+)`?"),
	}
	runCommandPattern  = regexp.MustCompile("(?i)(?:run|execute)[:\\s]+`([^`\n]+)`")
	fencedShellPattern = regexp.MustCompile("(?s)```(?:bash|sh|shell)\n(.*?)```")
	installPattern     = regexp.MustCompile(`(?im)^\s*((?:npm|yarn|pnpm)\s+(?:install|add)\s+\S+|pip3?\s+install\s+\S+|go\s+(?:install|get)\s+\S+)`)
)

// ExtractActions scans a response for concrete proposals: file creations,
// commands to run, shell blocks, and package installs.
func ExtractActions(response, proposedBy string) []*Action {
	var actions []*Action
	add := func(a *Action) bool {
		a.ID = NewID()
		a.ProposedBy = proposedBy
		actions = append(actions, a)
		return len(actions) == maxExtractedActions
	}

	for _, p := range createFilePatterns {
		for _, m := range p.FindAllStringSubmatch(response, -1) {
			if add(&Action{Type: ActionFileCreate, Target: m[1], Description: "Create file " + m[1]}) {
				return actions
			}
		}
	}

	commands := 0
	for _, m := range runCommandPattern.FindAllStringSubmatch(response, -1) {
		cmd := strings.TrimSpace(m[1])
		if cmd == "" || commands == maxExtractedCommands {
			break
		}
		commands++
		if add(&Action{Type: ActionCommandExecute, Command: cmd, Description: "Run " + cmd, Destructive: dangerousCommand(cmd)}) {
			return actions
		}
	}
	for _, m := range fencedShellPattern.FindAllStringSubmatch(response, -1) {
		for _, line := range strings.Split(m[1], "\n") {
			cmd := strings.TrimSpace(line)
			if cmd == "" || strings.HasPrefix(cmd, "#") {
				continue
			}
			if commands == maxExtractedCommands {
				break
			}
			commands++
			if add(&Action{Type: ActionCommandExecute, Command: cmd, Description: "Run " + cmd, Destructive: dangerousCommand(cmd)}) {
				return actions
			}
		}
	}

	for _, m := range installPattern.FindAllStringSubmatch(response, -1) {
		cmd := strings.TrimSpace(m[1])
		if add(&Action{Type: ActionInstallPackage, Command: cmd, Description: "Install via " + cmd}) {
			return actions
		}
	}
	return actions
}
