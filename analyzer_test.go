package roundtable

import "testing"

func TestAnalyze_SimpleChat(t *testing.T) {
	for _, prompt := range []string{"hi", "안녕", "thanks!", "ok"} {
		task := Analyze(prompt)
		if task.Type != TaskSimpleChat {
			t.Errorf("Analyze(%q).Type = %s, want %s", prompt, task.Type, TaskSimpleChat)
		}
		if task.SuggestedRounds != 1 || task.SuggestedAICount != 1 {
			t.Errorf("Analyze(%q) suggested %d rounds / %d AIs, want 1/1", prompt, task.SuggestedRounds, task.SuggestedAICount)
		}
	}
}

func TestAnalyze_ShortQueriesAreSimpleEvenWithTechnicalWords(t *testing.T) {
	// Under 15 characters or at most 3 words is trivial regardless of
	// what the words are.
	for _, prompt := range []string{"fix bug", "analyze this code"} {
		task := Analyze(prompt)
		if task.Type != TaskSimpleChat {
			t.Errorf("Analyze(%q).Type = %s, want %s", prompt, task.Type, TaskSimpleChat)
		}
	}
}

func TestAnalyze_TechnicalIndicatorVetoesGreetingShortcut(t *testing.T) {
	// A short greeting that also names a bug is real work, not small talk.
	task := Analyze("hi, fix this bug now")
	if task.Type != TaskDebug {
		t.Fatalf("Type = %s, want %s", task.Type, TaskDebug)
	}
	if !task.RequiresCode {
		t.Error("debug task should require code capability")
	}

	if got := Analyze("hi, how are you doing now"); got.Type != TaskSimpleChat {
		t.Errorf("greeting without technical words classified as %s", got.Type)
	}
}

func TestAnalyze_CodeTask(t *testing.T) {
	task := Analyze("Implement a function in Python that sorts a linked list")
	if task.Type != TaskCode {
		t.Fatalf("Type = %s, want %s", task.Type, TaskCode)
	}
	if !task.RequiresCode {
		t.Error("code task should require code capability")
	}
}

func TestAnalyze_AnalysisTask(t *testing.T) {
	task := Analyze("Analyze and compare the performance of PostgreSQL and MySQL")
	if task.Type != TaskAnalysis {
		t.Fatalf("Type = %s, want %s", task.Type, TaskAnalysis)
	}
	if !task.RequiresAnalysis {
		t.Error("analysis task should require analysis capability")
	}
}

func TestAnalyze_ComplexityBoundsAndSuggestions(t *testing.T) {
	low := Analyze("write a simple function in golang please")
	high := Analyze("Analyze and compare the performance of PostgreSQL and MySQL in a large-scale enterprise system design")

	if low.Complexity >= high.Complexity {
		t.Errorf("complexity ordering wrong: simple=%.2f, hard=%.2f", low.Complexity, high.Complexity)
	}
	if high.Complexity < 0 || high.Complexity > 1 {
		t.Errorf("complexity out of range: %.2f", high.Complexity)
	}
	if high.SuggestedRounds < 2 || high.SuggestedRounds > 7 {
		t.Errorf("suggested rounds out of range: %d", high.SuggestedRounds)
	}
	if high.SuggestedAICount != 4 {
		t.Errorf("SuggestedAICount = %d, want 4 for complexity %.2f", high.SuggestedAICount, high.Complexity)
	}
}

func TestAnalyze_KeywordsSkipStopwords(t *testing.T) {
	task := Analyze("How should the database schema be designed for the billing service architecture")
	if len(task.Keywords) == 0 {
		t.Fatal("no keywords extracted")
	}
	if len(task.Keywords) > maxKeywords {
		t.Fatalf("too many keywords: %d", len(task.Keywords))
	}
	for _, kw := range task.Keywords {
		if stopwords[kw] {
			t.Errorf("stopword %q leaked into keywords", kw)
		}
	}
}

func TestSuggestRounds_Clamped(t *testing.T) {
	if got := suggestRounds(TaskGeneral, 0.1); got != 2 {
		t.Errorf("easy general task rounds = %d, want 2", got)
	}
	if got := suggestRounds(TaskDesign, 0.9); got != 6 {
		t.Errorf("hard design task rounds = %d, want 6", got)
	}
}
