package roundtable

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Severity grades how sharp a disagreement is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ResolutionStrategy says how a conflict was settled.
type ResolutionStrategy string

const (
	// AutoResolved means weighted voting produced a clear winner.
	AutoResolved ResolutionStrategy = "auto_resolved"
	// UserDecision means the vote was too close and the user must choose.
	UserDecision ResolutionStrategy = "user_decision"
	// Deferred means no positions could be identified.
	Deferred ResolutionStrategy = "deferred"
)

// Opinion is one assistant's extracted stance.
type Opinion struct {
	AIName           string   `json:"ai_name"`
	Position         string   `json:"position"`
	Confidence       float64  `json:"confidence"`
	Reasoning        string   `json:"reasoning,omitempty"`
	SupportingPoints []string `json:"supporting_points,omitempty"`
}

// Conflict is a detected disagreement between assistants.
type Conflict struct {
	Topic             string    `json:"topic"`
	Severity          Severity  `json:"severity"`
	Opinions          []Opinion `json:"opinions"`
	DisagreementScore float64   `json:"disagreement_score"`
}

// Resolution is the outcome of resolving a Conflict.
type Resolution struct {
	Strategy    ResolutionStrategy `json:"strategy"`
	Winner      string             `json:"winner,omitempty"`
	Options     []string           `json:"options,omitempty"`
	Supporters  []string           `json:"supporters,omitempty"`
	Explanation string             `json:"explanation"`
	Confidence  float64            `json:"confidence"`
}

// aiStrengths weight each backend family's vote per task type.
var aiStrengths = map[string]map[TaskType]float64{
	"claude": {
		TaskCode: 0.9, TaskDesign: 0.95, TaskAnalysis: 0.9, TaskCreative: 0.85,
		TaskResearch: 0.8, TaskDebug: 0.85, TaskExplain: 0.95, TaskGeneral: 0.9, TaskSimpleChat: 0.9,
	},
	"codex": {
		TaskCode: 0.95, TaskDesign: 0.85, TaskAnalysis: 0.8, TaskCreative: 0.7,
		TaskResearch: 0.7, TaskDebug: 0.9, TaskExplain: 0.75, TaskGeneral: 0.8, TaskSimpleChat: 0.7,
	},
	"gemini": {
		TaskCode: 0.85, TaskDesign: 0.85, TaskAnalysis: 0.9, TaskCreative: 0.9,
		TaskResearch: 0.95, TaskDebug: 0.8, TaskExplain: 0.9, TaskGeneral: 0.85, TaskSimpleChat: 0.85,
	},
	"ollama": {
		TaskCode: 0.8, TaskDesign: 0.75, TaskAnalysis: 0.75, TaskCreative: 0.8,
		TaskResearch: 0.7, TaskDebug: 0.75, TaskExplain: 0.8, TaskGeneral: 0.8, TaskSimpleChat: 0.85,
	},
}

const defaultStrength = 0.5

// strengthFor looks up a vote weight by sender name, normalizing display
// names ("Ollama-Coder") to their backend family.
func strengthFor(name string, tt TaskType) float64 {
	family := familyOf(strings.ToLower(name))
	if weights, ok := aiStrengths[family]; ok {
		if w, ok := weights[tt]; ok {
			return w
		}
	}
	return defaultStrength
}

var disagreementPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(disagree|동의하지 않|다른 의견|however|but|그러나|반면|alternatively)`),
	regexp.MustCompile(`(?i)(instead|대신|rather than|오히려|on the contrary)`),
	regexp.MustCompile(`(?i)(not recommend|추천하지 않|against|반대)`),
	regexp.MustCompile(`(?i)(wrong|잘못|incorrect|틀린|mistake)`),
}

var positionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:recommend|suggest|추천|제안)s?[:\s]+([^.!?\n]+)`),
	regexp.MustCompile(`(?i)(?:should use|should be|해야 합니다|사용해야)[:\s]*([^.!?\n]+)`),
	regexp.MustCompile(`(?i)(?:best option|best choice|best|최선|최적)[:\s]+([^.!?\n]+)`),
}

var highConfidenceCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(definitely|certainly|확실히|분명히|strongly)`),
	regexp.MustCompile(`(?i)(best|최선|optimal|최적)`),
	regexp.MustCompile(`(?i)(must|반드시|should definitely)`),
}

var lowConfidenceCues = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(maybe|아마|perhaps|possibly)`),
	regexp.MustCompile(`(?i)(could|might|할 수도)`),
	regexp.MustCompile(`(?i)(not sure|확실하지 않|uncertain)`),
}

var (
	numberedPointPattern = regexp.MustCompile(`(?m)^\d+[.)]\s*(.+)$`)
	bulletPointPattern   = regexp.MustCompile(`(?m)^[-*]\s*(.+)$`)
)

// topicTerms name the subject of a conflict when the transcript mentions a
// recognizable technical choice.
var topicTerms = []struct {
	pattern *regexp.Regexp
	label   string
}{
	{regexp.MustCompile(`(?i)(framework|프레임워크)`), "framework"},
	{regexp.MustCompile(`(?i)(language|언어)`), "language"},
	{regexp.MustCompile(`(?i)(database|데이터베이스)`), "database"},
	{regexp.MustCompile(`(?i)(architecture|아키텍처)`), "architecture"},
	{regexp.MustCompile(`(?i)(approach|접근|방법)`), "approach"},
	{regexp.MustCompile(`(?i)(library|라이브러리)`), "library"},
}

// DetectConflict inspects the transcript for disagreement between the
// assistants' latest positions. Returns nil when there is no conflict
// worth resolving.
func DetectConflict(sctx *SharedContext, task Task) *Conflict {
	msgs := sctx.Messages()
	if task.Type == TaskSimpleChat || len(msgs) < 2 {
		return nil
	}

	// Latest message per assistant.
	latest := make(map[string]Message)
	var order []string
	for _, m := range msgs {
		if _, ok := latest[m.SenderID]; !ok {
			order = append(order, m.SenderID)
		}
		latest[m.SenderID] = m
	}
	if len(latest) < 2 {
		return nil
	}

	opinions := make([]Opinion, 0, len(order))
	for _, name := range order {
		opinions = append(opinions, extractOpinion(name, latest[name].Content))
	}

	score := disagreementScore(msgs, opinions)
	if score < 0.3 {
		return nil
	}

	avgConf := 0.0
	for _, o := range opinions {
		avgConf += o.Confidence
	}
	avgConf /= float64(len(opinions))

	return &Conflict{
		Topic:             conflictTopic(msgs, sctx.UserPrompt),
		Severity:          severityOf(score * (0.5 + 0.5*avgConf)),
		Opinions:          opinions,
		DisagreementScore: score,
	}
}

// extractOpinion pulls a position statement, confidence estimate, and
// supporting points out of one response.
func extractOpinion(name, content string) Opinion {
	position := ""
	for _, p := range positionPatterns {
		if m := p.FindStringSubmatch(content); m != nil {
			position = strings.TrimSpace(m[1])
			break
		}
	}
	if position == "" {
		// Fall back to the first sentence.
		if idx := strings.IndexAny(content, ".!?\n"); idx > 0 {
			position = strings.TrimSpace(content[:idx])
		} else {
			position = strings.TrimSpace(content)
		}
	}
	position = Truncate(position, 100)

	confidence := 0.7
	for _, cue := range highConfidenceCues {
		if cue.MatchString(content) {
			confidence += 0.1
		}
	}
	for _, cue := range lowConfidenceCues {
		if cue.MatchString(content) {
			confidence -= 0.1
		}
	}
	if confidence < 0.3 {
		confidence = 0.3
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return Opinion{
		AIName:           name,
		Position:         position,
		Confidence:       confidence,
		Reasoning:        Truncate(content, 200),
		SupportingPoints: supportingPoints(content),
	}
}

// supportingPoints collects numbered and bulleted lines as evidence.
func supportingPoints(content string) []string {
	normalized := NormalizeText(content)
	var points []string
	for _, pattern := range []*regexp.Regexp{numberedPointPattern, bulletPointPattern} {
		for _, m := range pattern.FindAllStringSubmatch(normalized, -1) {
			p := strings.TrimSpace(m[1])
			if len(p) <= 10 {
				continue
			}
			points = append(points, Truncate(p, 100))
			if len(points) == 5 {
				return points
			}
		}
	}
	return points
}

// disagreementScore blends explicit disagreement cues with how diverse the
// stated positions are.
func disagreementScore(msgs []Message, opinions []Opinion) float64 {
	cueCount := 0
	for _, m := range msgs {
		for _, p := range disagreementPatterns {
			if p.MatchString(m.Content) {
				cueCount++
				break
			}
		}
	}
	cueFraction := float64(cueCount) / float64(len(msgs))

	// Position diversity: distinct openings over possible distinctions.
	openings := make(map[string]bool)
	for _, o := range opinions {
		words := strings.Fields(strings.ToLower(o.Position))
		if len(words) > 3 {
			words = words[:3]
		}
		openings[strings.Join(words, " ")] = true
	}
	diversity := 0.0
	if len(opinions) > 1 {
		diversity = float64(len(openings)-1) / float64(len(opinions)-1)
	}

	return 0.6*cueFraction + 0.4*diversity
}

func severityOf(weighted float64) Severity {
	switch {
	case weighted < 0.3:
		return SeverityLow
	case weighted < 0.5:
		return SeverityMedium
	case weighted < 0.7:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// conflictTopic names the disagreement: a recognized technical term from
// the transcript, or the opening of the user's query.
func conflictTopic(msgs []Message, prompt string) string {
	for _, m := range msgs {
		for _, t := range topicTerms {
			if t.pattern.MatchString(m.Content) {
				return "Choice of " + t.label
			}
		}
	}
	words := strings.Fields(prompt)
	if len(words) > 5 {
		words = words[:5]
	}
	return strings.Join(words, " ") + "..."
}

// ResolveConflict settles a conflict by weighted voting: each opinion's
// weight is the assistant's task-type strength times its confidence, and
// identical positions pool their weights. A margin under 10% between the
// top two defers to the user.
func ResolveConflict(c *Conflict, task Task) Resolution {
	type vote struct {
		position   string
		weight     float64
		supporters []string
	}
	merged := make(map[string]*vote)
	var order []string
	total := 0.0
	for _, o := range c.Opinions {
		if o.Position == "" {
			continue
		}
		w := strengthFor(o.AIName, task.Type) * o.Confidence
		total += w
		if v, ok := merged[o.Position]; ok {
			v.weight += w
			v.supporters = append(v.supporters, o.AIName)
			continue
		}
		merged[o.Position] = &vote{position: o.Position, weight: w, supporters: []string{o.AIName}}
		order = append(order, o.Position)
	}

	votes := make([]*vote, 0, len(order))
	for _, pos := range order {
		votes = append(votes, merged[pos])
	}
	sort.SliceStable(votes, func(i, j int) bool { return votes[i].weight > votes[j].weight })

	if len(votes) == 0 {
		return Resolution{
			Strategy:    Deferred,
			Explanation: "No clear positions identified",
		}
	}

	top := votes[0]
	if len(votes) >= 2 {
		second := votes[1]
		margin := (top.weight - second.weight) / top.weight
		if margin < 0.1 {
			return Resolution{
				Strategy:    UserDecision,
				Options:     []string{top.position, second.position},
				Explanation: fmt.Sprintf("Close vote: %.2f vs %.2f", top.weight, second.weight),
				Confidence:  margin,
			}
		}
	}

	return Resolution{
		Strategy:    AutoResolved,
		Winner:      top.position,
		Supporters:  top.supporters,
		Explanation: fmt.Sprintf("Winner by weighted vote: %.2f", top.weight),
		Confidence:  top.weight / total,
	}
}
