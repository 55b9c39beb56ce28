package roundtable

import (
	"strings"
)

const (
	defaultMaxContextTokens = 8000
	maxKeyPoints            = 20
	keyPointMaxLen          = 100
	messageExcerptLen       = 500
)

// SharedContext is the working memory of one discussion: the transcript,
// extracted key points, and per-assistant message counts. The discussion
// engine drives it sequentially, so it carries no locking.
type SharedContext struct {
	UserPrompt       string
	MaxTokens        int
	ConsensusReached bool

	messages  []Message
	keyPoints []string
	counts    map[string]int
	round     int
}

// NewSharedContext creates a context for one user query.
func NewSharedContext(prompt string) *SharedContext {
	return &SharedContext{
		UserPrompt: prompt,
		MaxTokens:  defaultMaxContextTokens,
		counts:     make(map[string]int),
	}
}

// AddMessage appends an assistant's turn to the transcript, estimating its
// token count and harvesting key points from list-style lines.
func (c *SharedContext) AddMessage(name, content string, round int) {
	msg := Message{
		ID:         NewID(),
		SenderType: SenderAI,
		SenderID:   name,
		Content:    content,
		Round:      round,
		TokenCount: EstimateTokens(content),
		CreatedAt:  NowUnix(),
	}
	c.messages = append(c.messages, msg)
	c.counts[name]++
	if round > c.round {
		c.round = round
	}
	c.extractKeyPoints(content)
}

// Messages returns the transcript in arrival order.
func (c *SharedContext) Messages() []Message { return c.messages }

// KeyPoints returns the harvested key points, oldest first.
func (c *SharedContext) KeyPoints() []string { return c.keyPoints }

// CurrentRound returns the highest round seen so far.
func (c *SharedContext) CurrentRound() int { return c.round }

// MessageCount returns how many turns the named assistant has taken.
func (c *SharedContext) MessageCount(name string) int { return c.counts[name] }

// AddKeyPoint records a point directly (user decisions, external notes).
func (c *SharedContext) AddKeyPoint(point string) {
	c.appendKeyPoint(point)
}

// extractKeyPoints pulls list-style lines out of a response. Bullets are
// canonicalized first so one prefix check covers them all.
func (c *SharedContext) extractKeyPoints(content string) {
	for _, line := range strings.Split(NormalizeText(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := line[0]
		if first != '-' && first != '*' && (first < '0' || first > '9') {
			continue
		}
		c.appendKeyPoint(line)
	}
}

func (c *SharedContext) appendKeyPoint(point string) {
	point = Truncate(strings.TrimSpace(point), keyPointMaxLen)
	if point == "" {
		return
	}
	for _, existing := range c.keyPoints {
		if strings.EqualFold(existing, point) {
			return
		}
	}
	c.keyPoints = append(c.keyPoints, point)
	if len(c.keyPoints) > maxKeyPoints {
		c.keyPoints = c.keyPoints[1:]
	}
}

// BuildPrompt assembles the prompt for an assistant's turn: the user query,
// a token-budgeted slice of recent transcript (newest kept, shown in
// chronological order), the latest key points, and a cue to respond.
func (c *SharedContext) BuildPrompt(name string, round int) string {
	var sb strings.Builder
	sb.WriteString("당신은 멀티 AI 토론에 참여하고 있습니다.\n")
	sb.WriteString("다른 AI들과 함께 사용자의 질문에 대해 토론하세요.\n")
	sb.WriteString("이전 발언을 참고하되, 자신만의 관점을 제시하세요.\n\n")
	sb.WriteString("사용자 질문: ")
	sb.WriteString(c.UserPrompt)
	sb.WriteString("\n\n")

	if round <= 1 || len(c.messages) == 0 {
		sb.WriteString("첫 번째 라운드입니다. 초기 생각을 공유하세요.\n")
	} else {
		sb.WriteString("지금까지의 토론:\n")
		for _, line := range c.recentTranscript() {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		if pts := c.keyPoints; len(pts) > 0 {
			if len(pts) > 5 {
				pts = pts[len(pts)-5:]
			}
			sb.WriteString("\n주요 논점:\n")
			for _, p := range pts {
				sb.WriteString("- ")
				sb.WriteString(p)
				sb.WriteString("\n")
			}
		}
	}

	sb.WriteString("\n이제 당신 차례입니다 (")
	sb.WriteString(name)
	sb.WriteString("). 간결하고 명확하게 의견을 제시하세요.")
	return sb.String()
}

// recentTranscript walks the transcript newest-first, accumulating lines
// until half the token budget is spent, then returns them oldest-first.
func (c *SharedContext) recentTranscript() []string {
	budget := c.MaxTokens / 2
	var lines []string
	used := 0
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if used+m.TokenCount > budget {
			break
		}
		line := "[" + m.SenderID + "] " + Truncate(m.Content, messageExcerptLen)
		lines = append([]string{line}, lines...)
		used += m.TokenCount
	}
	return lines
}
