package roundtable

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxSynthesisKeyPoints       = 10
	maxSynthesisAgreements      = 5
	maxSynthesisDisagreements   = 5
	maxSynthesisRecommendations = 5
	summaryMaxLen               = 500
)

var importantPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)중요한\s*([^.!?\n]+)\s*점`),
	regexp.MustCompile(`(?i)key points?[:\s]+([^.!?\n]+)`),
	regexp.MustCompile(`(?i)important(?:ly)?[:\s]+([^.!?\n]+)`),
}

var synthNumberedPattern = regexp.MustCompile(`(?m)^\d+[.)]\s*(.+)$`)

var agreementMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)동의합니다`),
	regexp.MustCompile(`(?i)agreed?\b`),
	regexp.MustCompile(`맞습니다`),
	regexp.MustCompile(`좋은 의견입니다`),
	regexp.MustCompile(`(?i)build on (?:that|this)`),
}

var disagreementMarkers = []*regexp.Regexp{
	regexp.MustCompile(`동의하지 않`),
	regexp.MustCompile(`(?i)disagree`),
	regexp.MustCompile(`다른 의견`),
	regexp.MustCompile(`(?i)\bhowever\b`),
	regexp.MustCompile(`(?i)\bbut\b`),
	regexp.MustCompile(`그러나`),
}

var recommendationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:추천|recommends?|제안|suggests?)[:\s]+([^.!?\n]+)`),
	regexp.MustCompile(`(?i)should\s+([^.!?\n]+)`),
	regexp.MustCompile(`([^.!?\n]+)해야 합니다`),
}

// Synthesizer condenses a finished discussion into a Synthesis: summary,
// key points, agreements, disagreements, and recommendations.
type Synthesizer struct{}

// NewSynthesizer returns a Synthesizer.
func NewSynthesizer() *Synthesizer { return &Synthesizer{} }

// Synthesize reads the shared context of a completed discussion and
// produces the final result.
func (s *Synthesizer) Synthesize(sctx *SharedContext, totalRounds int) *Synthesis {
	msgs := sctx.Messages()

	keyPoints := s.keyPoints(sctx, msgs)
	agreements := s.markedLines(msgs, agreementMarkers, maxSynthesisAgreements)
	disagreements := s.markedLines(msgs, disagreementMarkers, maxSynthesisDisagreements)
	recommendations := s.recommendations(msgs)

	participants := make(map[string]bool)
	for _, m := range msgs {
		participants[m.SenderID] = true
	}

	syn := &Synthesis{
		KeyPoints:        keyPoints,
		Agreements:       agreements,
		Disagreements:    disagreements,
		Recommendations:  recommendations,
		ConsensusReached: sctx.ConsensusReached,
		TotalRounds:      totalRounds,
		TotalMessages:    len(msgs),
		Contributions:    contributions(sctx, participants),
		CreatedAt:        NowUnix(),
	}
	syn.Summary = s.summary(len(participants), totalRounds, syn)
	syn.Confidence = confidence(syn)
	return syn
}

// keyPoints merges the context's harvested points with numbered items and
// explicitly flagged phrases, deduplicating case-insensitively.
func (s *Synthesizer) keyPoints(sctx *SharedContext, msgs []Message) []string {
	seen := make(map[string]bool)
	var points []string
	add := func(p string) bool {
		p = Truncate(strings.TrimSpace(p), keyPointMaxLen)
		if p == "" {
			return false
		}
		key := strings.ToLower(p)
		if seen[key] {
			return false
		}
		seen[key] = true
		points = append(points, p)
		return len(points) == maxSynthesisKeyPoints
	}

	for _, p := range sctx.KeyPoints() {
		if add(p) {
			return points
		}
	}
	for _, m := range msgs {
		for _, match := range synthNumberedPattern.FindAllStringSubmatch(m.Content, -1) {
			if add(match[1]) {
				return points
			}
		}
		for _, pattern := range importantPhrasePatterns {
			for _, match := range pattern.FindAllStringSubmatch(m.Content, -1) {
				if add(match[1]) {
					return points
				}
			}
		}
	}
	return points
}

// markedLines collects the first sentence of each message that matches one
// of the markers, attributed to its sender.
func (s *Synthesizer) markedLines(msgs []Message, markers []*regexp.Regexp, limit int) []string {
	var out []string
	for _, m := range msgs {
		matched := false
		for _, marker := range markers {
			if marker.MatchString(m.Content) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		sentence := m.Content
		if idx := strings.IndexAny(sentence, ".!?\n"); idx > 0 {
			sentence = sentence[:idx]
		}
		out = append(out, m.SenderID+": "+Truncate(strings.TrimSpace(sentence), keyPointMaxLen))
		if len(out) == limit {
			break
		}
	}
	return out
}

// recommendations pulls action statements out of the transcript.
func (s *Synthesizer) recommendations(msgs []Message) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range msgs {
		for _, pattern := range recommendationPatterns {
			for _, match := range pattern.FindAllStringSubmatch(m.Content, -1) {
				r := Truncate(strings.TrimSpace(match[1]), keyPointMaxLen)
				if r == "" || seen[strings.ToLower(r)] {
					continue
				}
				seen[strings.ToLower(r)] = true
				out = append(out, r)
				if len(out) == maxSynthesisRecommendations {
					return out
				}
			}
		}
	}
	return out
}

// summary renders the discussion outcome as short display text.
func (s *Synthesizer) summary(participants, rounds int, syn *Synthesis) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d개의 AI가 %d라운드에 걸쳐 토론했습니다.\n", participants, rounds)
	if syn.ConsensusReached {
		sb.WriteString("토론 결과 합의에 도달했습니다.\n")
	} else {
		sb.WriteString("다양한 관점이 제시되었습니다.\n")
	}
	if len(syn.KeyPoints) > 0 {
		sb.WriteString("\n주요 포인트:\n")
		pts := syn.KeyPoints
		if len(pts) > 3 {
			pts = pts[:3]
		}
		for _, p := range pts {
			sb.WriteString("- ")
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}
	if len(syn.Recommendations) > 0 {
		sb.WriteString("\n권장 사항: ")
		sb.WriteString(syn.Recommendations[0])
	}
	return Truncate(strings.TrimRight(sb.String(), "\n"), summaryMaxLen)
}

// contributions expresses each participant's share of the transcript as a
// percentage.
func contributions(sctx *SharedContext, participants map[string]bool) map[string]float64 {
	total := 0
	for name := range participants {
		total += sctx.MessageCount(name)
	}
	out := make(map[string]float64, len(participants))
	if total == 0 {
		return out
	}
	for name := range participants {
		out[name] = float64(sctx.MessageCount(name)) / float64(total) * 100
	}
	return out
}

// confidence scores the synthesis from consensus and agreement density.
func confidence(syn *Synthesis) float64 {
	c := 0.5
	if syn.ConsensusReached {
		c += 0.3
	}
	c += 0.04 * float64(len(syn.Agreements))
	c -= 0.04 * float64(len(syn.Disagreements))
	return clamp(c, 0.1, 1)
}
