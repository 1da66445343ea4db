package dupcache

import (
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/models"
)

func init() {
	logger.Log = zap.NewNop() // Set up a no-op logger to avoid nil pointer dereferences in tests.
}

func article(title, desc, link string) models.Article {
	return models.Article{Title: title, Description: desc, Link: link}
}

func TestAdmitIdempotence(t *testing.T) {
	cache := New(DefaultOptions())
	item := article("Fusion Milestone Reached", "Net energy gain confirmed", "https://news.example.com/fusion")

	result := cache.Admit(item)
	if result.Duplicate {
		t.Fatalf("Expected first admission to pass, matched by %s", result.MatchedBy)
	}

	result = cache.Admit(item)
	if !result.Duplicate {
		t.Fatal("Expected second admission to be flagged as duplicate")
	}
	if result.MatchedBy != MatchURL {
		t.Errorf("Expected URL match, got %s", result.MatchedBy)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 cached entry, got %d", cache.Len())
	}
}

func TestAdmitTitleSimilarity(t *testing.T) {
	cache := New(DefaultOptions())

	result := cache.Admit(article("New AI Model!", "first take", "https://a.example.com/1"))
	if result.Duplicate {
		t.Fatal("Expected first title to be admitted")
	}

	// Same title after case folding and punctuation stripping, on a
	// different URL and description.
	result = cache.Admit(article("new ai model", "second take", "https://b.example.com/2"))
	if !result.Duplicate {
		t.Fatal("Expected normalized-identical title to be flagged")
	}
	if result.MatchedBy != MatchTitle {
		t.Errorf("Expected title match, got %s", result.MatchedBy)
	}
}

func TestAdmitTitleNearThreshold(t *testing.T) {
	cache := New(DefaultOptions())

	cache.Admit(article("openai releases gpt5 model today", "", "https://a.example.com/1"))

	// Similarity (32-6)/32 = 0.8125 sits just above the 0.8 default.
	result := cache.Admit(article("openai releases gpt5 model", "", "https://b.example.com/2"))
	if !result.Duplicate || result.MatchedBy != MatchTitle {
		t.Errorf("Expected fuzzy title match, got duplicate=%v matchedBy=%s", result.Duplicate, result.MatchedBy)
	}

	result = cache.Admit(article("football season opener delayed", "", "https://c.example.com/3"))
	if result.Duplicate {
		t.Errorf("Expected unrelated title to be admitted, matched by %s", result.MatchedBy)
	}
}

func TestAdmitContentHash(t *testing.T) {
	opts := DefaultOptions()
	opts.TitleMatching = false
	cache := New(opts)

	first := models.Article{Title: "Shared headline", Description: "identical body"}
	second := models.Article{Title: "Shared headline", Description: "identical body"}

	if result := cache.Admit(first); result.Duplicate {
		t.Fatal("Expected first item to be admitted")
	}
	result := cache.Admit(second)
	if !result.Duplicate {
		t.Fatal("Expected identical content to be flagged")
	}
	if result.MatchedBy != MatchContent {
		t.Errorf("Expected content match, got %s", result.MatchedBy)
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxEntries = 3
	opts.TitleMatching = false // near-identical numbered titles would otherwise collide
	cache := New(opts)

	items := make([]models.Article, 4)
	for i := range items {
		items[i] = article(
			fmt.Sprintf("distinct headline number %d", i),
			"",
			fmt.Sprintf("https://example.com/story-%d", i),
		)
		cache.Admit(items[i])
	}

	if cache.Len() != 3 {
		t.Fatalf("Expected cache capped at 3 entries, got %d", cache.Len())
	}

	// The oldest item was evicted, so it passes again.
	if result := cache.Admit(items[0]); result.Duplicate {
		t.Errorf("Expected evicted item to be admitted, matched by %s", result.MatchedBy)
	}

	// A surviving item is still remembered.
	if result := cache.Admit(items[3]); !result.Duplicate {
		t.Error("Expected retained item to be flagged")
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	now := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	opts := DefaultOptions()
	opts.Retention = time.Hour
	opts.Clock = func() time.Time { return now }
	cache := New(opts)

	old := article("expired story", "", "https://example.com/old")
	cache.Admit(old)
	now = now.Add(30 * time.Minute)
	cache.Admit(article("fresh story", "", "https://example.com/fresh"))

	removed := cache.Sweep(now.Add(time.Hour))
	if removed != 1 {
		t.Fatalf("Expected 1 entry removed, got %d", removed)
	}
	if cache.Len() != 1 {
		t.Errorf("Expected 1 entry remaining, got %d", cache.Len())
	}

	// The swept item can be admitted again.
	if result := cache.Admit(old); result.Duplicate {
		t.Errorf("Expected swept item to be admitted, matched by %s", result.MatchedBy)
	}
}

func TestAdmitFailsOpenOnBadItem(t *testing.T) {
	cache := New(DefaultOptions())

	result := cache.Admit(models.Article{})
	if result.Duplicate {
		t.Fatal("Expected unfingerprintable item to pass")
	}
	if result.MatchedBy != MatchNone {
		t.Errorf("Expected no match, got %s", result.MatchedBy)
	}
	if cache.Len() != 0 {
		t.Errorf("Expected nothing stored after fingerprint failure, got %d entries", cache.Len())
	}
}
