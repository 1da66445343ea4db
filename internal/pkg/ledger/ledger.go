package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
)

// Per-entry publication details, persisted alongside the entry.
type Metadata struct {
	Posted   bool     `json:"posted"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Platform string   `json:"platform"`
	Error    string   `json:"error,omitempty"`
	URL      string   `json:"url,omitempty"`
}

// One publication attempt, successful or not. Entries are never
// mutated after creation; they only age out.
type Entry struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	ContentHash string    `json:"hash"`
	PublishedAt time.Time `json:"timestamp"`
	Source      string    `json:"source"`
	Metadata    Metadata  `json:"metadata"`
}

// Outcome of an Append call. When the text hashes to an already
// retained entry, Existing points at that entry and nothing is written.
type AppendResult struct {
	Success   bool
	Duplicate bool
	Existing  *Entry
}

// On-disk document layout.
type snapshotStats struct {
	TotalTweets  int `json:"totalTweets"`
	UniqueHashes int `json:"uniqueHashes"`
}

type snapshot struct {
	Version string        `json:"version"`
	SavedAt time.Time     `json:"savedAt"`
	Stats   snapshotStats `json:"stats"`
	Tweets  []Entry       `json:"tweets"`
}

const snapshotVersion = "1.0"

type Options struct {
	MaxEntries    int
	RetentionDays int
	Clock         func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxEntries:    10000,
		RetentionDays: 90,
	}
}

// Durable history of everything published, deduplicated by normalized
// content hash. At most one retained entry per hash; lookups also work
// by the source URL recorded in entry metadata.
type Ledger struct {
	mu    sync.Mutex
	opts  Options
	clock func() time.Time
	store SnapshotStore

	entries   []Entry
	hashIndex map[string]int
	keyIndex  map[string]int
	dirty     bool
}

// Creates an empty ledger over the given snapshot store. Zero option
// values fall back to the defaults.
func New(store SnapshotStore, opts Options) *Ledger {
	defaults := DefaultOptions()
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaults.MaxEntries
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = defaults.RetentionDays
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Ledger{
		opts:      opts,
		clock:     clock,
		store:     store,
		entries:   make([]Entry, 0, 64),
		hashIndex: make(map[string]int),
		keyIndex:  make(map[string]int),
	}
}

// Hashes publication text the same way entries are keyed: lower-cased,
// punctuation stripped, whitespace collapsed, then SHA-256.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	var b strings.Builder
	b.Grow(len(lowered))
	for _, r := range lowered {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Reads the last snapshot from the store. A missing snapshot starts an
// empty ledger; a malformed one is logged, reported, and otherwise
// ignored so the publishing pipeline never dies over its own history.
// After a successful read the retention sweep runs and the indexes are
// rebuilt.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	if data == nil {
		logger.Log.Info("No ledger snapshot found, starting empty")
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to parse ledger snapshot: %w", err)
	}

	l.entries = snap.Tweets
	if l.entries == nil {
		l.entries = make([]Entry, 0, 64)
	}
	removed := l.sweepLocked(l.clock())
	l.rebuildIndex()
	l.dirty = removed > 0

	logger.Log.Info("Ledger snapshot loaded",
		zap.Int("entries", len(l.entries)),
		zap.Int("expired", removed),
		zap.Time("savedAt", snap.SavedAt))
	metrics.LedgerEntries.Set(float64(len(l.entries)))
	return nil
}

// Reports whether a content hash or a normalized source URL already has
// a retained entry.
func (l *Ledger) IsDuplicate(hashOrKey string) bool {
	if hashOrKey == "" {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.hashIndex[hashOrKey]; ok {
		return true
	}
	_, ok := l.keyIndex[hashOrKey]
	return ok
}

// Records one publication attempt. The content hash is always
// recomputed from the text, so callers cannot desynchronize entry and
// index. Appending a hash that is already retained mutates nothing and
// hands back the existing entry.
func (l *Ledger) Append(entry Entry) AppendResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.ContentHash = ContentHash(entry.Text)
	if idx, ok := l.hashIndex[entry.ContentHash]; ok {
		existing := l.entries[idx]
		return AppendResult{Success: false, Duplicate: true, Existing: &existing}
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.PublishedAt.IsZero() {
		entry.PublishedAt = l.clock()
	}
	if entry.Metadata.Tags == nil {
		entry.Metadata.Tags = []string{}
	}

	l.entries = append(l.entries, entry)
	l.hashIndex[entry.ContentHash] = len(l.entries) - 1
	if entry.Metadata.URL != "" {
		l.keyIndex[entry.Metadata.URL] = len(l.entries) - 1
	}

	if len(l.entries) > l.opts.MaxEntries {
		evicted := len(l.entries) - l.opts.MaxEntries
		l.entries = append(l.entries[:0], l.entries[evicted:]...)
		l.rebuildIndex()
		metrics.LedgerEvictions.Add(float64(evicted))
		logger.Log.Info("Ledger evicted oldest entries", zap.Int("count", evicted))
	}

	l.dirty = true
	metrics.LedgerEntries.Set(float64(len(l.entries)))
	return AppendResult{Success: true}
}

// Removes entries older than the retention window and returns how many
// were dropped. The host application calls this on its own timer.
func (l *Ledger) SweepRetention(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := l.sweepLocked(now)
	if removed > 0 {
		l.rebuildIndex()
		l.dirty = true
		logger.Log.Info("Ledger retention sweep complete",
			zap.Int("removed", removed),
			zap.Int("remaining", len(l.entries)))
	}
	metrics.LedgerEntries.Set(float64(len(l.entries)))
	return removed
}

// Caller must hold the mutex. Does not touch the indexes.
func (l *Ledger) sweepLocked(now time.Time) int {
	cutoff := now.AddDate(0, 0, -l.opts.RetentionDays)
	kept := l.entries[:0]
	removed := 0
	for _, entry := range l.entries {
		if entry.PublishedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	l.entries = kept
	return removed
}

// Caller must hold the mutex.
func (l *Ledger) rebuildIndex() {
	l.hashIndex = make(map[string]int, len(l.entries))
	l.keyIndex = make(map[string]int, len(l.entries))
	for i, entry := range l.entries {
		if entry.ContentHash != "" {
			l.hashIndex[entry.ContentHash] = i
		}
		if entry.Metadata.URL != "" {
			l.keyIndex[entry.Metadata.URL] = i
		}
	}
}

// Serializes the full ledger to the snapshot store. The dirty flag is
// cleared only on success, so a failed save is retried on the next
// flush.
func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: l.clock(),
		Stats: snapshotStats{
			TotalTweets:  len(l.entries),
			UniqueHashes: len(l.hashIndex),
		},
		Tweets: l.entries,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger snapshot: %w", err)
	}
	if err := l.store.Save(data); err != nil {
		metrics.SnapshotSaveFailures.Inc()
		return err
	}

	l.dirty = false
	metrics.SnapshotSaves.Inc()
	logger.Log.Debug("Ledger snapshot saved", zap.Int("entries", len(l.entries)))
	return nil
}

// Saves only when something changed since the last successful save.
func (l *Ledger) SaveIfDirty() error {
	l.mu.Lock()
	dirty := l.dirty
	l.mu.Unlock()

	if !dirty {
		return nil
	}
	return l.Save()
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Returns a copy of all retained entries in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Aggregate counts over the retained history.
type Summary struct {
	TotalEntries int       `json:"total_entries"`
	UniqueHashes int       `json:"unique_hashes"`
	Posted       int       `json:"posted"`
	Failed       int       `json:"failed"`
	InWindow     int       `json:"in_window"`
	OldestAt     time.Time `json:"oldest_at,omitempty"`
	NewestAt     time.Time `json:"newest_at,omitempty"`
}

// Summarizes the ledger; entries newer than the given window are
// counted separately (zero window counts nothing as recent).
func (l *Ledger) Stats(window time.Duration) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	summary := Summary{
		TotalEntries: len(l.entries),
		UniqueHashes: len(l.hashIndex),
	}
	if len(l.entries) == 0 {
		return summary
	}

	cutoff := l.clock().Add(-window)
	summary.OldestAt = l.entries[0].PublishedAt
	summary.NewestAt = l.entries[0].PublishedAt
	for _, entry := range l.entries {
		if entry.Metadata.Posted {
			summary.Posted++
		} else {
			summary.Failed++
		}
		if window > 0 && !entry.PublishedAt.Before(cutoff) {
			summary.InWindow++
		}
		if entry.PublishedAt.Before(summary.OldestAt) {
			summary.OldestAt = entry.PublishedAt
		}
		if entry.PublishedAt.After(summary.NewestAt) {
			summary.NewestAt = entry.PublishedAt
		}
	}
	return summary
}

// Diagnostic findings from Verify. Anything non-empty means the ledger
// needs operator attention; nothing is auto-corrected.
type IntegrityReport struct {
	HashIndexMismatch bool     `json:"hash_index_mismatch"`
	MissingHash       []string `json:"missing_hash"`
	DuplicateHash     []string `json:"duplicate_hash"`
}

func (r IntegrityReport) Clean() bool {
	return !r.HashIndexMismatch && len(r.MissingHash) == 0 && len(r.DuplicateHash) == 0
}

// Cross-checks entries against the hash index. Duplicate hashes should
// be impossible while Append holds its invariant; a finding here points
// at a bug, not at normal drift.
func (l *Ledger) Verify() IntegrityReport {
	l.mu.Lock()
	defer l.mu.Unlock()

	report := IntegrityReport{
		HashIndexMismatch: len(l.hashIndex) != len(l.entries),
	}

	seen := make(map[string]int, len(l.entries))
	for _, entry := range l.entries {
		if entry.ContentHash == "" {
			report.MissingHash = append(report.MissingHash, entry.ID)
			continue
		}
		seen[entry.ContentHash]++
	}
	for hash, count := range seen {
		if count > 1 {
			report.DuplicateHash = append(report.DuplicateHash, hash)
		}
	}
	return report
}
