package roundtable

import (
	"context"
	"strings"
	"testing"
)

func TestSelector_EmptyRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	roster, _ := NewSelector(nil).Select(context.Background(), reg, Task{Type: TaskCode, Complexity: 0.5})
	if roster != nil {
		t.Errorf("roster = %v, want nil", roster)
	}
}

func TestSelector_SimpleChatPrefersClaude(t *testing.T) {
	reg := NewRegistry([]Adapter{
		newStubAdapter("codex", stubSend{}),
		newStubAdapter("claude", stubSend{}),
	})
	roster, explanation := NewSelector(nil).Select(context.Background(), reg, Task{Type: TaskSimpleChat, Complexity: 0.1})
	if len(roster) != 1 {
		t.Fatalf("roster size = %d, want 1", len(roster))
	}
	if roster[0].Name() != "claude" {
		t.Errorf("picked %s, want claude", roster[0].Name())
	}
	if !strings.Contains(explanation, "Quick response") {
		t.Errorf("explanation = %q", explanation)
	}
}

func TestSelector_FixedRosterOrder(t *testing.T) {
	// Registration order does not matter; the roster always joins as
	// claude, codex, gemini.
	reg := NewRegistry([]Adapter{
		newStubAdapter("gemini", stubSend{}),
		newStubAdapter("claude", stubSend{}),
		newStubAdapter("codex", stubSend{}),
	})
	task := Task{Type: TaskAnalysis, Complexity: 0.5, SuggestedAICount: 2, RequiresAnalysis: true}
	roster, explanation := NewSelector(nil).Select(context.Background(), reg, task)

	names := rosterNames(roster)
	want := []string{"claude", "codex", "gemini"}
	if len(names) != len(want) {
		t.Fatalf("roster = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("roster = %v, want %v", names, want)
		}
	}
	if !strings.Contains(explanation, "Selected 3 AIs") {
		t.Errorf("explanation = %q", explanation)
	}
}

func TestSelector_SuggestedCountDoesNotShrinkRoster(t *testing.T) {
	reg := NewRegistry([]Adapter{
		newStubAdapter("claude", stubSend{}),
		newStubAdapter("codex", stubSend{}),
		newStubAdapter("gemini", stubSend{}),
	})
	task := Task{Type: TaskCode, Complexity: 0.5, SuggestedAICount: 1, RequiresCode: true}
	roster, _ := NewSelector(nil).Select(context.Background(), reg, task)
	if len(roster) != 3 {
		t.Errorf("roster = %v, want all three", rosterNames(roster))
	}
}

func TestSelector_RankFavorsCodexForCode(t *testing.T) {
	candidates := []Adapter{
		newStubAdapter("claude", stubSend{}),
		newStubAdapter("codex", stubSend{}),
		newStubAdapter("gemini", stubSend{}),
	}
	task := Task{Type: TaskCode, Complexity: 0.5, RequiresCode: true}
	ranked := NewSelector(nil).Rank(candidates, task)
	if ranked[0].Name() != "codex" {
		t.Errorf("Rank order = %v, want codex first", rosterNames(ranked))
	}
}

func TestSelector_DerivesOllamaInstances(t *testing.T) {
	base := &stubCloner{stubAdapter: newStubAdapter("ollama", stubSend{})}
	reg := NewRegistry([]Adapter{base})
	task := Task{Type: TaskCode, Complexity: 0.8, SuggestedAICount: 4, RequiresCode: true}

	roster, _ := NewSelector(nil).Select(context.Background(), reg, task)
	if len(roster) != 2 {
		t.Fatalf("roster = %v, want both coding profiles", rosterNames(roster))
	}
	for _, a := range roster {
		if !strings.HasPrefix(a.Name(), "ollama") {
			t.Errorf("derived instance name = %q", a.Name())
		}
		if familyOf(a.Name()) != "ollama" {
			t.Errorf("familyOf(%q) = %q, want ollama", a.Name(), familyOf(a.Name()))
		}
	}
}

func TestSelector_OllamaInstancesFollowBaseRoster(t *testing.T) {
	base := &stubCloner{stubAdapter: newStubAdapter("ollama", stubSend{})}
	reg := NewRegistry([]Adapter{
		newStubAdapter("claude", stubSend{}),
		newStubAdapter("codex", stubSend{}),
		newStubAdapter("gemini", stubSend{}),
		base,
	})
	task := Task{Type: TaskCode, Complexity: 0.8, SuggestedAICount: 3, RequiresCode: true}
	roster, _ := NewSelector(nil).Select(context.Background(), reg, task)

	names := rosterNames(roster)
	if len(names) != 5 {
		t.Fatalf("roster = %v, want claude, codex, gemini plus two local instances", names)
	}
	for i, want := range []string{"claude", "codex", "gemini"} {
		if names[i] != want {
			t.Fatalf("roster = %v, cloud assistants out of order", names)
		}
	}
	for _, name := range names[3:] {
		if !strings.HasPrefix(name, "ollama") {
			t.Errorf("trailing roster entry %q is not a local instance", name)
		}
	}
}

func TestFamilyOf(t *testing.T) {
	if familyOf("ollama-coder") != "ollama" {
		t.Error("derived ollama name not mapped to family")
	}
	if familyOf("claude") != "claude" {
		t.Error("claude mapped away from itself")
	}
}

func rosterNames(roster []Adapter) []string {
	names := make([]string, len(roster))
	for i, a := range roster {
		names[i] = a.Name()
	}
	return names
}
