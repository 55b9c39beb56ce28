package roundtable

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestStripANSI(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b[1;32mbold green\x1b[0m rest", "bold green rest"},
		{"\x1b[2J\x1b[Hcleared", "cleared"},
	}
	for _, tc := range cases {
		if got := StripANSI(tc.in); got != tc.want {
			t.Errorf("StripANSI(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("a longer string", 8); got != "a longer..." {
		t.Errorf("got %q", got)
	}
}

func TestTruncate_CountsRunesNotBytes(t *testing.T) {
	// 40 Korean characters are 120 bytes but still under a 100-character
	// budget, so the text passes through untouched.
	korean := strings.Repeat("가", 40)
	if got := Truncate(korean, 100); got != korean {
		t.Errorf("40-character string truncated under a 100-character budget: %q", got)
	}

	got := Truncate(korean, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("가", 10) + "..."; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalizeText_CanonicalizesBullets(t *testing.T) {
	in := "• first\n‣ second\n◦ third"
	want := "- first\n- second\n- third"
	if got := NormalizeText(in); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("12345678"); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	// Eight Korean characters are two tokens, same as eight ASCII ones.
	if got := EstimateTokens(strings.Repeat("가", 8)); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}
