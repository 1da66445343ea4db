package scorer

import (
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"
	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
	"autopress/internal/pkg/scorer/keywords"
	"autopress/internal/pkg/scorer/language"
)

const (
	ReasonFutureDated = "future-dated"
	ReasonStale       = "stale"
	ReasonTooShort    = "too-short"
	ReasonLanguage    = "language"
	ReasonLowScore    = "low-score"
)

// Outcome of evaluating one article. Score is 0 to 100; Reason is set
// only when the article is not publishable.
type Verdict struct {
	Score       int
	Language    string
	Publishable bool
	Reason      string
}

type Options struct {
	MinContentLength int
	MaxAge           time.Duration
	ScoreFloor       int
	Languages        []string
	Clock            func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MinContentLength: 80,
		MaxAge:           48 * time.Hour,
		ScoreFloor:       35,
		Languages:        []string{"en"},
	}
}

// Decides which collected articles deserve a slot in the publish
// queue. Hard filters (age, length, language) run first; survivors get
// a composite score from recency, body length, and keyword signals.
type Scorer struct {
	opts     Options
	allowed  map[string]struct{}
	detector lingua.LanguageDetector
	matcher  *keywords.Matcher
	clock    func() time.Time
}

// Creates a scorer. A nil detector disables the language filter; a nil
// matcher gets the built-in keyword dictionaries.
func New(detector lingua.LanguageDetector, matcher *keywords.Matcher, opts Options) *Scorer {
	defaults := DefaultOptions()
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = defaults.MinContentLength
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaults.MaxAge
	}
	if opts.ScoreFloor <= 0 {
		opts.ScoreFloor = defaults.ScoreFloor
	}
	if len(opts.Languages) == 0 {
		opts.Languages = defaults.Languages
	}
	if matcher == nil {
		matcher = keywords.NewMatcher()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	allowed := make(map[string]struct{}, len(opts.Languages))
	for _, code := range opts.Languages {
		allowed[strings.ToLower(strings.TrimSpace(code))] = struct{}{}
	}

	return &Scorer{
		opts:     opts,
		allowed:  allowed,
		detector: detector,
		matcher:  matcher,
		clock:    clock,
	}
}

// Evaluates one article. Articles without a parseable publication time
// are treated as fresh.
func (s *Scorer) Evaluate(article models.Article) Verdict {
	now := s.clock()
	body := article.Body()

	if !article.PublishedAt.IsZero() {
		if article.PublishedAt.After(now.Add(5 * time.Minute)) {
			return s.reject(article, ReasonFutureDated, 0, "")
		}
		if now.Sub(article.PublishedAt) > s.opts.MaxAge {
			return s.reject(article, ReasonStale, 0, "")
		}
	}

	if len(body) < s.opts.MinContentLength {
		return s.reject(article, ReasonTooShort, 0, "")
	}

	code := ""
	if s.detector != nil {
		detected, err := language.Detect(s.detector, article.Title+" "+body)
		if err != nil {
			return s.reject(article, ReasonLanguage, 0, "")
		}
		code = detected
		if code != "unknown" {
			if _, ok := s.allowed[code]; !ok {
				return s.reject(article, ReasonLanguage, 0, code)
			}
		}
	}

	score := s.recencyScore(now, article.PublishedAt) + s.lengthScore(body) + s.keywordScore(article.Title, body)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	metrics.ScoreDistribution.Observe(float64(score))
	if score < s.opts.ScoreFloor {
		return s.reject(article, ReasonLowScore, score, code)
	}

	logger.Log.Debug("Article scored",
		zap.String("link", article.Link),
		zap.Int("score", score),
		zap.String("language", code))
	return Verdict{Score: score, Language: code, Publishable: true}
}

func (s *Scorer) reject(article models.Article, reason string, score int, code string) Verdict {
	metrics.ArticlesSkipped.WithLabelValues(reason).Inc()
	logger.Log.Debug("Article rejected",
		zap.String("link", article.Link),
		zap.String("reason", reason),
		zap.Int("score", score))
	return Verdict{Score: score, Language: code, Publishable: false, Reason: reason}
}

// Newer articles are worth more; articles without a timestamp land in
// the middle.
func (s *Scorer) recencyScore(now time.Time, published time.Time) int {
	if published.IsZero() {
		return 20
	}
	age := now.Sub(published)
	switch {
	case age <= time.Hour:
		return 40
	case age <= 6*time.Hour:
		return 30
	case age <= 24*time.Hour:
		return 20
	default:
		return 10
	}
}

func (s *Scorer) lengthScore(body string) int {
	switch n := len(body); {
	case n >= 1200:
		return 30
	case n >= 600:
		return 22
	case n >= 300:
		return 15
	default:
		return 8
	}
}

// Keyword boosts cap out so one buzzword-stuffed piece cannot buy its
// way past the floor; penalties are uncapped.
func (s *Scorer) keywordScore(title, body string) int {
	result := s.matcher.Analyze(title + " " + body)
	boost := result.Boost
	if boost > 30 {
		boost = 30
	}
	return boost - result.Penalty
}
