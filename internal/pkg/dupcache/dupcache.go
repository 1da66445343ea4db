package dupcache

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"autopress/internal/pkg/fingerprint"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
)

// Names the index that flagged an item as already seen.
type Match int

const (
	MatchNone Match = iota
	MatchURL
	MatchTitle
	MatchContent
)

func (m Match) String() string {
	switch m {
	case MatchURL:
		return "url"
	case MatchTitle:
		return "title"
	case MatchContent:
		return "content"
	default:
		return "none"
	}
}

// Outcome of an admission check.
type Result struct {
	Duplicate bool
	MatchedBy Match
}

type Options struct {
	MaxEntries          int
	Retention           time.Duration
	SimilarityThreshold float64
	TitleMatching       bool
	HashMatching        bool
	Clock               func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxEntries:          50000,
		Retention:           24 * time.Hour,
		SimilarityThreshold: 0.8,
		TitleMatching:       true,
		HashMatching:        true,
	}
}

type cacheEntry struct {
	fp      fingerprint.Fingerprint
	addedAt time.Time
}

// In-memory store of recently admitted fingerprints. Answers whether an
// item, or something very similar, has been seen before; admits it when
// not. Bounded by entry count and by age.
type Cache struct {
	mu    sync.Mutex
	opts  Options
	clock func() time.Time

	// entries is kept in admission order, so the oldest entry is
	// always at the front.
	entries []cacheEntry
	urls    map[string]struct{}
	hashes  map[string]struct{}
}

// Creates a duplicate cache. Zero or negative option values fall back
// to the defaults.
func New(opts Options) *Cache {
	defaults := DefaultOptions()
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaults.MaxEntries
	}
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		opts.SimilarityThreshold = defaults.SimilarityThreshold
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Cache{
		opts:    opts,
		clock:   clock,
		entries: make([]cacheEntry, 0, 64),
		urls:    make(map[string]struct{}),
		hashes:  make(map[string]struct{}),
	}
}

// Checks an article against the URL, title, and content-hash indexes in
// that order. On a miss the fingerprint is inserted into every index it
// qualifies for. A fingerprinting failure is treated as not-a-duplicate
// and nothing is stored.
func (c *Cache) Admit(article models.Article) Result {
	fp, err := fingerprint.Compute(article)
	if err != nil {
		logger.Log.Warn("Fingerprinting failed, admitting item unchecked",
			zap.String("link", article.Link),
			zap.Error(err))
		return Result{Duplicate: false, MatchedBy: MatchNone}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if fp.NormalizedURL != "" {
		if _, seen := c.urls[fp.NormalizedURL]; seen {
			return Result{Duplicate: true, MatchedBy: MatchURL}
		}
	}

	if c.opts.TitleMatching && fp.NormalizedTitle != "" {
		if c.titleSeen(fp.NormalizedTitle) {
			return Result{Duplicate: true, MatchedBy: MatchTitle}
		}
	}

	if c.opts.HashMatching {
		if _, seen := c.hashes[fp.ContentHash]; seen {
			return Result{Duplicate: true, MatchedBy: MatchContent}
		}
	}

	c.insert(fp)
	return Result{Duplicate: false, MatchedBy: MatchNone}
}

// Compares the title against every cached title using a Levenshtein
// similarity score. Pairs whose length ratio already puts them below
// the threshold are skipped without computing the distance; skipping
// never changes the outcome because sim <= minLen/maxLen always holds.
func (c *Cache) titleSeen(title string) bool {
	titleLen := utf8.RuneCountInString(title)

	for _, entry := range c.entries {
		cached := entry.fp.NormalizedTitle
		if cached == "" {
			continue
		}

		cachedLen := utf8.RuneCountInString(cached)
		maxLen, minLen := titleLen, cachedLen
		if cachedLen > titleLen {
			maxLen, minLen = cachedLen, titleLen
		}
		if maxLen == 0 {
			continue
		}
		if float64(minLen)/float64(maxLen) < c.opts.SimilarityThreshold {
			continue
		}

		distance := levenshtein.ComputeDistance(title, cached)
		similarity := float64(maxLen-distance) / float64(maxLen)
		if similarity >= c.opts.SimilarityThreshold {
			return true
		}
	}
	return false
}

// Caller must hold the mutex.
func (c *Cache) insert(fp fingerprint.Fingerprint) {
	c.entries = append(c.entries, cacheEntry{fp: fp, addedAt: c.clock()})
	if fp.NormalizedURL != "" {
		c.urls[fp.NormalizedURL] = struct{}{}
	}
	if c.opts.HashMatching {
		c.hashes[fp.ContentHash] = struct{}{}
	}

	if len(c.entries) > c.opts.MaxEntries {
		evicted := len(c.entries) - c.opts.MaxEntries
		for _, entry := range c.entries[:evicted] {
			c.dropIndexes(entry.fp)
		}
		c.entries = append(c.entries[:0], c.entries[evicted:]...)
		metrics.CacheEvictions.Add(float64(evicted))
		logger.Log.Debug("Duplicate cache evicted oldest entries", zap.Int("count", evicted))
	}

	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// Caller must hold the mutex.
func (c *Cache) dropIndexes(fp fingerprint.Fingerprint) {
	if fp.NormalizedURL != "" {
		delete(c.urls, fp.NormalizedURL)
	}
	delete(c.hashes, fp.ContentHash)
}

// Removes entries older than the retention window from every index and
// returns how many were dropped. The host application calls this on its
// own timer.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := now.Add(-c.opts.Retention)
	kept := c.entries[:0]
	removed := 0
	for _, entry := range c.entries {
		if entry.addedAt.Before(cutoff) {
			c.dropIndexes(entry.fp)
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	c.entries = kept

	if removed > 0 {
		metrics.CacheEvictions.Add(float64(removed))
		logger.Log.Info("Duplicate cache sweep complete",
			zap.Int("removed", removed),
			zap.Int("remaining", len(c.entries)))
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed
}

// Returns the number of cached fingerprints.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
