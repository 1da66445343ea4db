package keywords

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
)

// Phrases that signal genuinely newsworthy content.
var boostPhrases = map[string]int{
	"breakthrough":  4,
	"first time":    3,
	"milestone":     3,
	"record":        2,
	"launches":      2,
	"announces":     2,
	"discovered":    3,
	"study finds":   3,
	"research":      2,
	"open source":   2,
	"releases":      2,
	"confirmed":     2,
	"peer-reviewed": 4,
}

// Phrases that signal promotional or clickbait content.
var penaltyPhrases = map[string]int{
	"you won't believe":  5,
	"click here":         4,
	"sponsored":          4,
	"giveaway":           3,
	"limited time offer": 5,
	"buy now":            4,
	"casino":             5,
	"airdrop":            4,
	"subscribe now":      3,
	"top 10":             2,
	"shocking":           3,
	"miracle":            3,
}

// Weighted outcome of a keyword scan.
type Result struct {
	Boost   int
	Penalty int
}

func (r Result) Net() int {
	return r.Boost - r.Penalty
}

// Scans text for newsworthiness and clickbait phrases using
// Aho-Corasick matching, so the cost is one pass over the text
// regardless of dictionary size.
type Matcher struct {
	boostMatcher   *ahocorasick.Matcher
	penaltyMatcher *ahocorasick.Matcher
	boostList      []string
	penaltyList    []string
}

// Creates a matcher over the built-in phrase dictionaries.
func NewMatcher() *Matcher {
	boostList, boostPatterns := compile(boostPhrases)
	penaltyList, penaltyPatterns := compile(penaltyPhrases)

	logger.Log.Info("Initializing keyword matcher",
		zap.Int("boost_phrases", len(boostList)),
		zap.Int("penalty_phrases", len(penaltyList)))

	return &Matcher{
		boostMatcher:   ahocorasick.NewMatcher(boostPatterns),
		penaltyMatcher: ahocorasick.NewMatcher(penaltyPatterns),
		boostList:      boostList,
		penaltyList:    penaltyList,
	}
}

func compile(phrases map[string]int) ([]string, [][]byte) {
	list := make([]string, 0, len(phrases))
	patterns := make([][]byte, 0, len(phrases))
	for phrase := range phrases {
		lowered := strings.ToLower(phrase)
		list = append(list, lowered)
		patterns = append(patterns, []byte(lowered))
	}
	return list, patterns
}

// Analyzes text and returns the weighted boost and penalty totals.
// Long text dilutes both, since a phrase hit means less in a wall of
// words.
func (m *Matcher) Analyze(text string) Result {
	if text == "" {
		return Result{}
	}

	lowered := []byte(strings.ToLower(text))
	textLength := len([]rune(text))

	boost := m.score(m.boostMatcher.Match(lowered), m.boostList, boostPhrases)
	penalty := m.score(m.penaltyMatcher.Match(lowered), m.penaltyList, penaltyPhrases)

	if textLength > 5000 {
		boost = (boost * 5000) / textLength
		penalty = (penalty * 5000) / textLength
	}

	return Result{Boost: boost, Penalty: penalty}
}

func (m *Matcher) score(hits []int, list []string, weights map[string]int) int {
	total := 0
	for _, hit := range hits {
		total += weights[list[hit]]
	}
	return total
}
