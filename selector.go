package roundtable

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
)

// ModelCloner is implemented by adapters that can serve many local models
// behind one endpoint (Ollama). The selector derives per-model instances
// from task profiles.
type ModelCloner interface {
	Adapter
	WithModel(model, displayName string) Adapter
}

// ollamaProfile names a local model and the label it discusses under.
type ollamaProfile struct {
	Model       string
	DisplayName string
}

// ollamaProfiles pick local models per task family.
var ollamaProfiles = map[string][]ollamaProfile{
	"coding": {
		{Model: "qwen2.5-coder:7b", DisplayName: "Ollama-Coder"},
		{Model: "deepseek-r1:70b", DisplayName: "Ollama-Reasoner"},
	},
	"analysis": {
		{Model: "llama3.1:70b", DisplayName: "Ollama-Analysis"},
		{Model: "qwen3:32b", DisplayName: "Ollama-Logic"},
		{Model: "deepseek-r1:32b", DisplayName: "Ollama-Deep"},
	},
	"creative": {
		{Model: "llama3.3:latest", DisplayName: "Ollama-Creative"},
		{Model: "mistral:7b", DisplayName: "Ollama-Fast"},
	},
	"default": {
		{Model: "llama3.1:70b", DisplayName: "Ollama-Main"},
	},
}

// specialties describe what each backend family is good at, shown in
// selection explanations.
var specialties = map[string]string{
	"claude": "reasoning, analysis, explanation, design",
	"codex":  "code, implementation, debugging, algorithms",
	"gemini": "research, creativity, multimodal, current events",
	"ollama": "local processing, privacy, customization",
}

// baseRosterOrder fixes the order cloud assistants join a discussion.
var baseRosterOrder = []string{"claude", "codex", "gemini"}

// Selector builds the roster for a discussion.
type Selector struct {
	rng *rand.Rand
}

// NewSelector creates a Selector. rng may be nil; scores then get no
// random perturbation, which keeps tests deterministic.
func NewSelector(rng *rand.Rand) *Selector {
	return &Selector{rng: rng}
}

// Select picks the assistants for a task from the registry's available
// adapters and explains the choice. An empty roster means nothing is
// available.
func (s *Selector) Select(ctx context.Context, reg *Registry, task Task) ([]Adapter, string) {
	available := reg.Available(ctx)
	if len(available) == 0 {
		return nil, ""
	}
	byName := make(map[string]Adapter, len(available))
	for _, a := range available {
		byName[a.Name()] = a
	}

	// Trivial queries get a single assistant.
	if task.Type == TaskSimpleChat || task.Complexity < 0.3 {
		pick := available[0]
		if c, ok := byName["claude"]; ok {
			pick = c
		}
		return []Adapter{pick}, fmt.Sprintf("Quick response from %s", pick.DisplayName())
	}

	// The base roster joins in a fixed order so turn order is stable
	// across runs. Scoring is a separate API (Rank), not selection.
	var roster []Adapter
	for _, name := range baseRosterOrder {
		if a, ok := byName[name]; ok {
			roster = append(roster, a)
		}
	}
	roster = append(roster, s.ollamaInstances(byName["ollama"], task)...)

	if len(roster) == 0 {
		roster = available
	}
	return roster, explain(task, roster)
}

// ollamaInstances derives per-model local assistants for the task family.
// Requires the base ollama backend to be available and cloneable.
func (s *Selector) ollamaInstances(base Adapter, task Task) []Adapter {
	cloner, ok := base.(ModelCloner)
	if !ok {
		return nil
	}
	profile := "default"
	switch task.Type {
	case TaskCode, TaskDebug:
		profile = "coding"
	case TaskAnalysis, TaskResearch:
		profile = "analysis"
	case TaskCreative:
		profile = "creative"
	}
	models := ollamaProfiles[profile]

	count := 1
	switch {
	case task.Complexity > 0.7:
		count = 3
	case task.Complexity > 0.5:
		count = 2
	}
	if count > len(models) {
		count = len(models)
	}

	out := make([]Adapter, 0, count)
	for _, m := range models[:count] {
		out = append(out, cloner.WithModel(m.Model, m.DisplayName))
	}
	return out
}

// Rank orders candidates by fit score, best first. It does not drive
// Select, which keeps the deterministic roster order; front-ends use it
// to present adapters by fit.
func (s *Selector) Rank(candidates []Adapter, task Task) []Adapter {
	type scored struct {
		a     Adapter
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, a := range candidates {
		ranked = append(ranked, scored{a: a, score: s.score(a, task)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	out := make([]Adapter, len(ranked))
	for i, r := range ranked {
		out[i] = r.a
	}
	return out
}

// score rates one adapter's fit for the task.
func (s *Selector) score(a Adapter, task Task) float64 {
	score := 0.7
	family := familyOf(a.Name())

	if task.RequiresCode {
		switch family {
		case "codex":
			score += 0.25
		case "claude":
			score += 0.1
		}
	}
	if family == "codex" {
		switch task.Type {
		case TaskDebug:
			score += 0.2
		case TaskCode:
			score += 0.15
		}
	}
	if task.RequiresCreativity && (family == "gemini" || family == "claude") {
		score += 0.1
	}
	if task.RequiresAnalysis && (family == "claude" || family == "gemini") {
		score += 0.1
	}
	if s.rng != nil {
		score += (s.rng.Float64() - 0.5) * 0.1
	}
	return score
}

// familyOf maps an adapter name to its backend family. Derived ollama
// instances ("ollama-coder") share the ollama family.
func familyOf(name string) string {
	if strings.HasPrefix(name, "ollama") {
		return "ollama"
	}
	return name
}

// explain formats the selection rationale for display.
func explain(task Task, picked []Adapter) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task Type: %s\n", task.Type)
	fmt.Fprintf(&sb, "Complexity: %.0f%%\n", task.Complexity*100)
	fmt.Fprintf(&sb, "Selected %d AIs:\n", len(picked))
	for _, a := range picked {
		spec := specialties[familyOf(a.Name())]
		if spec == "" {
			spec = "general assistance"
		}
		fmt.Fprintf(&sb, "  - %s: %s\n", a.DisplayName(), spec)
	}
	return strings.TrimRight(sb.String(), "\n")
}
