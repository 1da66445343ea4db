package gate

import (
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/dupcache"
	"autopress/internal/pkg/fingerprint"
	"autopress/internal/pkg/ledger"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
	"autopress/internal/pkg/ratelimit"
)

const (
	ReasonContentDuplicate = "content-duplicate"
	ReasonAlreadyPublished = "already-published"
)

// Answer to "may this candidate go out right now". WaitTime is only
// set for rate rejections.
type Verdict struct {
	Allowed  bool
	Reason   string
	WaitTime time.Duration
}

// Sequences the three admission checks in front of the publish
// transport: duplicate cache, rate limiter, publication ledger. The
// gate never performs I/O and never calls the transport itself;
// callers publish on an allowed verdict and then report back through
// RecordOutcome.
type Gate struct {
	cache   *dupcache.Cache
	limiter ratelimit.Limiter
	ledger  *ledger.Ledger
}

func New(cache *dupcache.Cache, limiter ratelimit.Limiter, led *ledger.Ledger) *Gate {
	return &Gate{cache: cache, limiter: limiter, ledger: led}
}

// Runs the admission sequence: cache, limiter, ledger. The first check
// to object decides the verdict. An admitted candidate is already
// fingerprinted into the cache by the time this returns, so an
// immediate retry of the same item is rejected.
func (g *Gate) TryPublish(candidate models.Candidate, clientKey string) Verdict {
	if result := g.cache.Admit(candidate.Article); result.Duplicate {
		metrics.GateRejections.WithLabelValues(ReasonContentDuplicate).Inc()
		metrics.DuplicatesDetected.WithLabelValues(result.MatchedBy.String()).Inc()
		logger.Log.Debug("Candidate rejected as duplicate",
			zap.String("link", candidate.Article.Link),
			zap.String("matchedBy", result.MatchedBy.String()))
		return Verdict{Allowed: false, Reason: ReasonContentDuplicate}
	}

	if decision := g.limiter.CheckLimit(clientKey, ratelimit.CategoryPublish); !decision.Allowed {
		metrics.GateRejections.WithLabelValues("rate-limited").Inc()
		logger.Log.Debug("Candidate rejected by rate limiter",
			zap.String("link", candidate.Article.Link),
			zap.String("reason", decision.Reason),
			zap.Duration("wait", decision.WaitTime))
		return Verdict{Allowed: false, Reason: decision.Reason, WaitTime: decision.WaitTime}
	}

	if g.alreadyPublished(candidate) {
		metrics.GateRejections.WithLabelValues(ReasonAlreadyPublished).Inc()
		logger.Log.Debug("Candidate rejected as already published",
			zap.String("link", candidate.Article.Link))
		return Verdict{Allowed: false, Reason: ReasonAlreadyPublished}
	}

	return Verdict{Allowed: true}
}

// Checks the ledger by publication text hash and by normalized source
// URL, so a reworded repost of the same link is still caught.
func (g *Gate) alreadyPublished(candidate models.Candidate) bool {
	if candidate.Text != "" && g.ledger.IsDuplicate(ledger.ContentHash(candidate.Text)) {
		return true
	}
	if url, err := fingerprint.NormalizeURL(candidate.Article.Link); err == nil {
		return g.ledger.IsDuplicate(url)
	}
	return false
}

// Settles an attempted publish: the limiter hears about the outcome and
// the ledger records the entry, failed attempts included, so a
// persistently failing item is not retried forever.
func (g *Gate) RecordOutcome(candidate models.Candidate, clientKey string, result models.PublishResult) {
	g.limiter.RecordRequest(clientKey, result.Success, ratelimit.CategoryPublish)

	entry := ledger.Entry{
		ID:     result.ID,
		Text:   candidate.Text,
		Source: candidate.Article.Source,
		Metadata: ledger.Metadata{
			Posted:   result.Success,
			Tags:     candidate.Article.Categories,
			Platform: "x",
			Error:    result.Error,
		},
	}
	if len(candidate.Article.Categories) > 0 {
		entry.Metadata.Category = candidate.Article.Categories[0]
	}
	if url, err := fingerprint.NormalizeURL(candidate.Article.Link); err == nil {
		entry.Metadata.URL = url
	}

	if appended := g.ledger.Append(entry); appended.Duplicate {
		logger.Log.Debug("Outcome already recorded for this content",
			zap.String("link", candidate.Article.Link))
	}
}
