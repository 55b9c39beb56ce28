package roundtable

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// simpleMaxLength is the character length under which a query is treated
// as casual chat outright.
const simpleMaxLength = 15

// simplePatterns are greetings and fillers (Korean and English) that mark
// a query as casual chat when it stays short.
var simplePatterns = []string{
	"안녕", "하이", "hi", "hello", "헬로",
	"고마워", "감사", "thx", "thanks", "thank you",
	"ㅎㅎ", "ㅋㅋ", "ok", "okay", "응", "네", "넵",
	"bye", "잘가", "잘자", "굿밤",
	"뭐해", "뭐하니", "심심",
}

// technicalIndicators veto the greeting-pattern shortcut: a greeting that
// also names code or bugs still deserves a full discussion.
var technicalIndicators = []string{
	"코드", "code", "함수", "function", "구현", "implement",
	"버그", "bug", "에러", "error", "디버그", "debug",
	"설계", "design", "아키텍처", "architecture",
	"분석", "analyze", "비교", "compare",
	"만들어", "작성", "생성", "create", "make", "build",
}

// taskPatterns score each task type by counting how many of its regex
// groups match the query. All patterns are compiled once at package load.
var taskPatterns = map[TaskType][]*regexp.Regexp{
	TaskCode: {
		regexp.MustCompile(`(?i)\b(코드|code|implement|구현|function|함수|class|클래스)\b`),
		regexp.MustCompile(`(?i)\b(program|script|algorithm|알고리즘)\b`),
		regexp.MustCompile(`(?i)\b(python|javascript|typescript|java|rust|go)\b`),
	},
	TaskDesign: {
		regexp.MustCompile(`(?i)(설계|design|architecture|아키텍처|structure|구조)`),
		regexp.MustCompile(`(?i)\b(api|인터페이스|interface|schema|스키마)\b`),
		regexp.MustCompile(`(?i)(시스템|system|database|데이터베이스)`),
	},
	TaskAnalysis: {
		regexp.MustCompile(`(?i)(분석|analyze|analysis|평가|evaluate|review|리뷰)`),
		regexp.MustCompile(`(?i)(비교|compare|comparison|장단점|pros|cons)`),
		regexp.MustCompile(`(?i)(최적화|optimize|performance|성능)`),
	},
	TaskCreative: {
		regexp.MustCompile(`(?i)(아이디어|idea|창의|creative|brainstorm|브레인스토밍)`),
		regexp.MustCompile(`(?i)(새로운|new|혁신|innovative|unique|독특)`),
	},
	TaskResearch: {
		regexp.MustCompile(`(?i)(조사|research|찾아|find|search|검색)`),
		regexp.MustCompile(`(?i)(트렌드|trend|최신|latest|현재|current)`),
	},
	TaskDebug: {
		regexp.MustCompile(`(?i)(버그|bug|에러|error|오류|fix|수정|debug|디버그)`),
		regexp.MustCompile(`(?i)(안되|doesn't work|not working|문제|problem|issue)`),
	},
	TaskExplain: {
		regexp.MustCompile(`(?i)(설명|explain|explanation|뭐야|what is|어떻게|how)`),
		regexp.MustCompile(`(?i)(이해|understand|meaning|의미)`),
	},
}

// typePriority breaks score ties: earlier wins.
var typePriority = []TaskType{
	TaskDebug, TaskCode, TaskDesign, TaskResearch,
	TaskAnalysis, TaskCreative, TaskExplain,
}

var complexityBoosters = []string{
	"복잡", "complex", "advanced", "고급", "sophisticated",
	"전체", "entire", "complete", "전부", "all", "모든",
	"통합", "integrate", "integration", "연동",
	"대규모", "large-scale", "enterprise", "엔터프라이즈",
}

var complexityReducers = []string{
	"간단", "simple", "basic", "기본", "쉬운", "easy",
	"하나", "one", "single", "단일",
	"예시", "example", "샘플", "sample",
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "can": true, "and": true,
	"or": true, "but": true, "if": true, "then": true, "this": true,
	"that": true, "these": true, "those": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "at": true, "by": true, "from": true, "about": true,
	"as": true, "it": true, "its": true, "you": true, "your": true,
	"해": true, "줘": true, "해줘": true, "주세요": true, "하세요": true,
	"좀": true, "것": true, "거": true, "이": true, "그": true,
}

const maxKeywords = 10

// Analyze reads a user query and produces a Task: type, complexity,
// keywords, and suggested discussion shape.
func Analyze(prompt string) Task {
	text := strings.ToLower(strings.TrimSpace(prompt))

	if isSimpleChat(text) {
		return Task{
			Type:             TaskSimpleChat,
			Complexity:       0.1,
			SuggestedRounds:  1,
			SuggestedAICount: 1,
		}
	}

	scores := scoreTypes(text)
	taskType := pickType(scores)
	keywords := extractKeywords(text)
	complexity := estimateComplexity(text, keywords, scores)

	t := Task{
		Type:             taskType,
		Complexity:       complexity,
		Keywords:         keywords,
		SuggestedRounds:  suggestRounds(taskType, complexity),
		SuggestedAICount: suggestAICount(complexity),
	}
	switch taskType {
	case TaskCode, TaskDebug:
		t.RequiresCode = true
	case TaskCreative:
		t.RequiresCreativity = true
	case TaskAnalysis, TaskResearch:
		t.RequiresAnalysis = true
	}
	return t
}

// isSimpleChat decides whether the query is casual chat that should skip
// the multi-assistant discussion entirely. Very short queries are always
// casual; the technical-cue veto applies only to the greeting branch.
func isSimpleChat(text string) bool {
	if text == "" {
		return true
	}
	n := utf8.RuneCountInString(text)
	if n < simpleMaxLength {
		return true
	}
	if len(strings.Fields(text)) <= 3 {
		return true
	}
	if n >= 30 {
		return false
	}
	for _, p := range simplePatterns {
		if !strings.Contains(text, p) {
			continue
		}
		for _, ind := range technicalIndicators {
			if strings.Contains(text, ind) {
				return false
			}
		}
		return true
	}
	return false
}

// scoreTypes counts matching pattern groups per task type.
func scoreTypes(text string) map[TaskType]int {
	scores := make(map[TaskType]int, len(taskPatterns))
	for tt, patterns := range taskPatterns {
		for _, p := range patterns {
			if p.MatchString(text) {
				scores[tt]++
			}
		}
	}
	return scores
}

// pickType returns the highest-scoring task type, breaking ties by
// priority order. All-zero scores fall back to general.
func pickType(scores map[TaskType]int) TaskType {
	best := TaskGeneral
	bestScore := 0
	for _, tt := range typePriority {
		if s := scores[tt]; s > bestScore {
			best = tt
			bestScore = s
		}
	}
	return best
}

// estimateComplexity scores the query in [0,1] from its length, keyword
// density, booster/reducer phrases, and how many core task types matched.
func estimateComplexity(text string, keywords []string, scores map[TaskType]int) float64 {
	c := 0.5

	words := len(strings.Fields(text))
	switch {
	case words > 50:
		c += 0.15
	case words > 20:
		c += 0.08
	case words < 10:
		c -= 0.1
	}

	switch {
	case len(keywords) > 7:
		c += 0.1
	case len(keywords) > 4:
		c += 0.05
	}

	for _, b := range complexityBoosters {
		if strings.Contains(text, b) {
			c += 0.2
			break
		}
	}
	for _, r := range complexityReducers {
		if strings.Contains(text, r) {
			c -= 0.2
			break
		}
	}

	// Queries spanning multiple technical concerns are harder.
	typeCount := 0
	for _, tt := range []TaskType{TaskCode, TaskDesign, TaskAnalysis} {
		if scores[tt] > 0 {
			typeCount++
		}
	}
	if typeCount > 1 {
		c += 0.1 * float64(typeCount-1)
	}

	return clamp(c, 0, 1)
}

// extractKeywords tokenizes the query, drops stopwords and short tokens,
// and returns up to maxKeywords unique terms in first-seen order.
func extractKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]bool)
	for _, tok := range wordPattern.FindAllString(text, -1) {
		if stopwords[tok] || utf8.RuneCountInString(tok) <= 2 || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

// suggestRounds maps task type and complexity to a round count in [2,7].
func suggestRounds(tt TaskType, complexity float64) int {
	rounds := 3
	switch {
	case complexity > 0.7:
		rounds += 2
	case complexity > 0.4:
		rounds++
	}
	switch tt {
	case TaskDesign, TaskAnalysis:
		rounds++
	case TaskExplain, TaskGeneral:
		rounds--
	}
	if rounds < 2 {
		rounds = 2
	}
	if rounds > 7 {
		rounds = 7
	}
	return rounds
}

// suggestAICount maps complexity to a participant count.
func suggestAICount(complexity float64) int {
	switch {
	case complexity < 0.3:
		return 2
	case complexity < 0.6:
		return 3
	default:
		return 4
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
