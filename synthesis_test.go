package roundtable

import (
	"math"
	"strings"
	"testing"
)

func TestSynthesize_CollectsDiscussionOutcome(t *testing.T) {
	sctx := NewSharedContext("how should we scale the API")
	sctx.AddMessage("claude", "Two things matter most:\n1. Cache the hot read paths aggressively\n2. Split the write path behind a queue", 1)
	sctx.AddMessage("codex", "I recommend: adding connection pooling first. The rest can wait until load demands it.", 1)
	sctx.AddMessage("claude", "Agreed, pooling is the right first step before any caching work.", 2)
	sctx.AddMessage("codex", "동의합니다. 캐싱은 그 다음 단계로 진행하면 됩니다.", 2)
	sctx.ConsensusReached = true

	syn := NewSynthesizer().Synthesize(sctx, 2)

	if syn.TotalRounds != 2 || syn.TotalMessages != 4 {
		t.Errorf("rounds/messages = %d/%d, want 2/4", syn.TotalRounds, syn.TotalMessages)
	}
	if !syn.ConsensusReached {
		t.Error("consensus flag lost")
	}
	if len(syn.KeyPoints) == 0 {
		t.Fatal("no key points")
	}
	if len(syn.Agreements) == 0 {
		t.Fatal("agreement lines not detected")
	}
	if !strings.Contains(syn.Agreements[0], ": ") {
		t.Errorf("agreement not attributed to a sender: %q", syn.Agreements[0])
	}
	found := false
	for _, r := range syn.Recommendations {
		if strings.Contains(r, "connection pooling") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations = %v, want connection pooling entry", syn.Recommendations)
	}
}

func TestSynthesize_SummaryAndContributions(t *testing.T) {
	sctx := NewSharedContext("q")
	sctx.AddMessage("claude", "First perspective on the question at hand.", 1)
	sctx.AddMessage("codex", "Second perspective on the question at hand.", 1)
	sctx.AddMessage("claude", "A closing remark from the first assistant.", 2)

	syn := NewSynthesizer().Synthesize(sctx, 2)

	if !strings.HasPrefix(syn.Summary, "2개의 AI가 2라운드에 걸쳐 토론했습니다.") {
		t.Errorf("summary = %q", syn.Summary)
	}
	if len(syn.Summary) > summaryMaxLen+3 {
		t.Errorf("summary too long: %d", len(syn.Summary))
	}

	total := 0.0
	for _, pct := range syn.Contributions {
		total += pct
	}
	if math.Abs(total-100) > 0.01 {
		t.Errorf("contributions sum = %.2f, want 100", total)
	}
	if math.Abs(syn.Contributions["claude"]-66.67) > 0.1 {
		t.Errorf("claude contribution = %.2f, want ~66.67", syn.Contributions["claude"])
	}
}

func TestSynthesize_KeyPointsDeduplicateCaseInsensitively(t *testing.T) {
	sctx := NewSharedContext("q")
	sctx.AddMessage("claude", "1. Use Feature Flags for the rollout", 1)
	sctx.AddMessage("codex", "1. use feature flags for the rollout", 1)

	syn := NewSynthesizer().Synthesize(sctx, 1)

	lowered := make(map[string]int)
	for _, p := range syn.KeyPoints {
		lowered[strings.ToLower(p)]++
	}
	for p, n := range lowered {
		if n > 1 {
			t.Errorf("key point %q appears %d times", p, n)
		}
	}
}

func TestConfidence_RespondsToConsensusAndAgreement(t *testing.T) {
	base := confidence(&Synthesis{})
	agreed := confidence(&Synthesis{ConsensusReached: true, Agreements: []string{"a", "b"}})
	contested := confidence(&Synthesis{Disagreements: []string{"a", "b", "c"}})

	if !(contested < base && base < agreed) {
		t.Errorf("confidence ordering wrong: contested=%.2f base=%.2f agreed=%.2f", contested, base, agreed)
	}
	if agreed > 1 || contested < 0.1 {
		t.Errorf("confidence out of range: %.2f / %.2f", agreed, contested)
	}
}
