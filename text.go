package roundtable

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// ansiEscape matches ANSI escape sequences (CSI and two-byte escapes).
// Compiled once at package load.
var ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// StripANSI removes ANSI escape codes from text. CLI backends decorate their
// output with colors and cursor movement even under TERM=dumb.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// Truncate shortens s to max characters, appending "..." when cut.
// Returns s unchanged when it already fits. Budgets count runes, not
// bytes; slicing mid-rune would corrupt Korean text.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// bulletReplacer maps the bullet characters assistants emit onto a single
// canonical marker so list-line detection needs only one prefix set.
var bulletReplacer = strings.NewReplacer(
	"•", "-", // •
	"‣", "-", // ‣
	"◦", "-", // ◦
	"⁃", "-", // ⁃
)

// NormalizeText canonicalizes assistant output for pattern matching:
// Unicode NFC composition plus bullet canonicalization.
func NormalizeText(s string) string {
	return bulletReplacer.Replace(norm.NFC.String(s))
}

// EstimateTokens approximates the token count of text as one token per
// four characters. It is a budget heuristic, not a tokenizer.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / 4
}
