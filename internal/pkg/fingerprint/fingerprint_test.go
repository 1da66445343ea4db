package fingerprint

import (
	"strings"
	"testing"

	"autopress/internal/pkg/models"
)

func TestNormalizeURL(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "strips utm parameters",
			in:   "https://example.com/story?utm_source=feed&utm_medium=rss&id=7",
			want: "https://example.com/story?id=7",
		},
		{
			name: "strips fbclid and gclid",
			in:   "https://example.com/story?fbclid=abc&gclid=def",
			want: "https://example.com/story",
		},
		{
			name: "strips fragment",
			in:   "https://example.com/story#section-2",
			want: "https://example.com/story",
		},
		{
			name: "strips trailing slash",
			in:   "https://example.com/story/",
			want: "https://example.com/story",
		},
		{
			name: "lowercases scheme and host",
			in:   "HTTPS://Example.COM/Story",
			want: "https://example.com/Story",
		},
		{
			name: "scheme-relative gets https",
			in:   "//example.com/story",
			want: "https://example.com/story",
		},
		{
			name: "keeps meaningful query params sorted",
			in:   "https://example.com/s?b=2&a=1&utm_campaign=x",
			want: "https://example.com/s?a=1&b=2",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeURLRejectsUnusable(t *testing.T) {
	for _, in := range []string{"", "   ", "not-a-url", "/relative/path"} {
		if _, err := NormalizeURL(in); err == nil {
			t.Errorf("NormalizeURL(%q) expected error, got nil", in)
		}
	}
}

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases and trims", "  Quantum Leap  ", "quantum leap"},
		{"strips breaking prefix", "BREAKING: Quantum Leap", "quantum leap"},
		{"strips stacked prefixes", "Update: Breaking: Quantum Leap", "quantum leap"},
		{"strips dash suffix", "Quantum Leap - The Daily Register", "quantum leap"},
		{"strips pipe suffix", "Quantum Leap | The Daily Register", "quantum leap"},
		{"strips punctuation", "Quantum Leap!!!", "quantum leap"},
		{"collapses whitespace", "Quantum \t  Leap", "quantum leap"},
		{"just in prefix", "Just in: markets rally", "markets rally"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeTitle(tc.in); got != tc.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestContentHashStable(t *testing.T) {
	first := ContentHash("Title", "Description", "https://example.com/a")
	second := ContentHash("  title ", " description", "HTTPS://EXAMPLE.COM/A")
	if first != second {
		t.Errorf("Expected identical hashes for equivalent fields, got %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(first))
	}

	other := ContentHash("Title", "Different", "https://example.com/a")
	if other == first {
		t.Error("Expected different hash for different description")
	}
}

func TestCompute(t *testing.T) {
	article := models.Article{
		Title:       "Breaking: Fusion Milestone Reached - Wire Desk",
		Description: "A net-positive fusion reaction was sustained for ten minutes.",
		Link:        "https://news.example.com/fusion?utm_source=rss",
	}

	fp, err := Compute(article)
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	if fp.NormalizedURL != "https://news.example.com/fusion" {
		t.Errorf("NormalizedURL = %q", fp.NormalizedURL)
	}
	if fp.NormalizedTitle != "fusion milestone reached" {
		t.Errorf("NormalizedTitle = %q", fp.NormalizedTitle)
	}
	if fp.ContentHash == "" {
		t.Error("Expected non-empty content hash")
	}
}

func TestComputeTitleOnly(t *testing.T) {
	fp, err := Compute(models.Article{Title: "A headline with no link"})
	if err != nil {
		t.Fatalf("Compute error: %v", err)
	}
	if fp.NormalizedURL != "" {
		t.Errorf("Expected empty NormalizedURL, got %q", fp.NormalizedURL)
	}
	if !strings.Contains(fp.NormalizedTitle, "headline") {
		t.Errorf("NormalizedTitle = %q", fp.NormalizedTitle)
	}
}

func TestComputeRejectsEmptyItem(t *testing.T) {
	if _, err := Compute(models.Article{Description: "only a description"}); err == nil {
		t.Error("Expected error for article without URL or title, got nil")
	}
}
