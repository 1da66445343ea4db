package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counts how many articles were collected from feeds in total.
var ArticlesCollected = promauto.NewCounter(prometheus.CounterOpts{
	Name: "autopress_articles_collected_total",
	Help: "Total number of articles collected from configured feeds",
})

// Counts feed fetches that failed and were skipped.
var FeedErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "autopress_feed_errors_total",
	Help: "Total number of feed fetches that failed",
})

// Counts articles whose body was backfilled by the readability extractor.
var ArticlesEnriched = promauto.NewCounter(prometheus.CounterOpts{
	Name: "autopress_articles_enriched_total",
	Help: "Total number of articles enriched with extracted full text",
})

// Counts articles dropped before queueing, by scorer reason.
var ArticlesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "autopress_articles_skipped_total",
	Help: "Total number of articles dropped by the scorer",
}, []string{"reason"})

// Counts items the publish gate turned away, by reason.
var GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "autopress_gate_rejections_total",
	Help: "Total number of publish attempts rejected by the gate",
}, []string{"reason"})

// Counts duplicate detections in the cache, by matching strategy.
var DuplicatesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "autopress_duplicates_detected_total",
	Help: "Total number of items flagged as duplicates by the cache",
}, []string{"matched_by"})

// Publish pipeline metrics
var (
	PublishAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_publish_attempts_total",
		Help: "Total number of calls made to the publishing API",
	})

	PublishSuccesses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_publish_successes_total",
		Help: "Total number of posts accepted by the publishing API",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_publish_failures_total",
		Help: "Total number of posts rejected by the publishing API",
	})

	PublishLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autopress_publish_latency_seconds",
		Help:    "Time taken by publishing API calls",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // From 100ms to ~100s
	})

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autopress_circuit_breaker_state",
			Help: "Circuit breaker state per service (0=closed, 1=half-open, 2=open)",
		},
		[]string{"service"},
	)

	ScoreDistribution = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "autopress_article_score",
		Help:    "Scores assigned to collected articles",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autopress_queue_depth",
		Help: "Number of candidates currently waiting in the queue",
	})
)

// Rate limiter metrics
var (
	BurstExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_burst_exhausted_total",
		Help: "Total number of recorded requests that found no burst token left",
	})

	ClientState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "autopress_client_state",
			Help: "Current rate limiter state per client key (0=normal, 1=banned)",
		},
		[]string{"client"},
	)
)

// Ledger and cache metrics
var (
	LedgerEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autopress_ledger_entries",
		Help: "Number of active entries in the publication ledger",
	})

	LedgerEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_ledger_evictions_total",
		Help: "Total number of ledger entries evicted by the size bound",
	})

	SnapshotSaves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_snapshot_saves_total",
		Help: "Total number of ledger snapshots written to the store",
	})

	SnapshotSaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_snapshot_save_failures_total",
		Help: "Total number of ledger snapshot writes that failed",
	})

	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "autopress_cache_entries",
		Help: "Number of fingerprints currently held by the duplicate cache",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autopress_cache_evictions_total",
		Help: "Total number of cache entries evicted by size or retention",
	})
)
