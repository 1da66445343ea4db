package keywords

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
)

func init() {
	logger.Log = zap.NewNop() // Set up a no-op logger to avoid nil pointer dereferences in tests.
}

func TestAnalyzeBoost(t *testing.T) {
	m := NewMatcher()

	// Hits: breakthrough(4), study finds(3), record(2), first time(3),
	// research(2, inside "Researchers").
	result := m.Analyze("Researchers announce a breakthrough: study finds record efficiency for the first time.")
	if result.Boost != 14 {
		t.Errorf("Expected boost 14, got %d", result.Boost)
	}
	if result.Penalty != 0 {
		t.Errorf("Expected no penalty, got %d", result.Penalty)
	}
	if result.Net() != 14 {
		t.Errorf("Expected net 14, got %d", result.Net())
	}
}

func TestAnalyzePenalty(t *testing.T) {
	m := NewMatcher()

	// Hits: you won't believe(5), shocking(3), miracle(3),
	// click here(4), buy now(4).
	result := m.Analyze("You won't believe this shocking miracle cure, click here and buy now!")
	if result.Penalty != 19 {
		t.Errorf("Expected penalty 19, got %d", result.Penalty)
	}
	if result.Boost != 0 {
		t.Errorf("Expected no boost, got %d", result.Boost)
	}
	if result.Net() >= 0 {
		t.Errorf("Expected negative net, got %d", result.Net())
	}
}

func TestAnalyzeCaseInsensitive(t *testing.T) {
	m := NewMatcher()

	upper := m.Analyze("BREAKTHROUGH CONFIRMED")
	lower := m.Analyze("breakthrough confirmed")
	if upper != lower {
		t.Errorf("Expected case-insensitive matching, got %+v vs %+v", upper, lower)
	}
	if upper.Boost == 0 {
		t.Error("Expected upper-case phrases to match")
	}
}

func TestAnalyzeDilution(t *testing.T) {
	m := NewMatcher()

	full := m.Analyze("breakthrough")
	diluted := m.Analyze(strings.Repeat("wordy filler text ", 600) + "breakthrough")
	if diluted.Boost >= full.Boost {
		t.Errorf("Expected long text to dilute the boost, got %d vs %d", diluted.Boost, full.Boost)
	}
}

func TestAnalyzeEmpty(t *testing.T) {
	m := NewMatcher()
	if result := m.Analyze(""); result != (Result{}) {
		t.Errorf("Expected zero result for empty text, got %+v", result)
	}
}
