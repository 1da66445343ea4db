package administrator

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/collector"
	"autopress/internal/pkg/composer"
	"autopress/internal/pkg/config"
	"autopress/internal/pkg/dupcache"
	"autopress/internal/pkg/extractor"
	"autopress/internal/pkg/gate"
	"autopress/internal/pkg/ledger"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/models"
	"autopress/internal/pkg/publisher"
	"autopress/internal/pkg/queue"
	"autopress/internal/pkg/ratelimit"
	"autopress/internal/pkg/scorer"
	"autopress/internal/pkg/scorer/keywords"
	"autopress/internal/pkg/scorer/language"
	"autopress/internal/pkg/worker"
)

// Administrator interface
type Administrator interface {
	Start(ctx context.Context)
	Stop()
	IngestArticle(ctx context.Context, article models.Article) (IngestResult, error)
	QueueDepth() int
	WorkerCount() int
	StartTime() time.Time
}

// Outcome of pushing one article into the pipeline.
type IngestResult struct {
	Queued bool   `json:"queued"`
	Score  int    `json:"score"`
	Reason string `json:"reason,omitempty"`
}

// Implementation of the Administrator interface
type administrator struct {
	cfg        *config.Config
	collector  *collector.Collector
	extractor  *extractor.Extractor
	scorer     *scorer.Scorer
	cache      *dupcache.Cache
	limiter    ratelimit.Limiter
	ledger     *ledger.Ledger
	queue      *queue.Queue
	gate       *gate.Gate
	workerPool *worker.WorkerPool
	publisher  worker.Publisher

	srv      *http.Server
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
	loops    sync.WaitGroup

	startTime  time.Time
	numWorkers int
}

// Creates a new instance of an Administrator with a config
func New(cfg *config.Config) Administrator {
	candidateQueue, err := queue.CreateQueue(cfg.QueueCapacity)
	if err != nil {
		logger.Log.Fatal("Failed to create queue", zap.Error(err))
	}

	cacheOpts := dupcache.DefaultOptions()
	cacheOpts.MaxEntries = cfg.DedupMaxEntries
	cacheOpts.Retention = time.Duration(cfg.DedupRetentionHours) * time.Hour
	cacheOpts.SimilarityThreshold = cfg.DedupSimilarity
	cache := dupcache.New(cacheOpts)

	settings := ratelimit.DefaultSettings()
	settings.Publish = ratelimit.Limits{
		PerSecond: cfg.RatePublishPerSecond,
		PerMinute: cfg.RatePublishPerMinute,
		PerHour:   cfg.RatePublishPerHour,
		PerDay:    cfg.RatePublishPerDay,
		PerMonth:  cfg.RatePublishPerMonth,
	}
	settings.Read = ratelimit.Limits{
		PerSecond:  cfg.RateReadPerSecond,
		PerMinute:  cfg.RateReadPerMinute,
		PerQuarter: cfg.RateReadPerQuarter,
		PerHour:    cfg.RateReadPerHour,
	}
	settings.BurstCapacity = cfg.BurstCapacity
	settings.PerSecondAllowance = cfg.PerSecondAllowance
	settings.MaxConsecutiveFailures = cfg.MaxConsecutiveFailures
	settings.BanDuration = time.Duration(cfg.BanMinutes) * time.Minute
	limiter := ratelimit.NewLimiter(settings)

	ledgerOpts := ledger.DefaultOptions()
	ledgerOpts.MaxEntries = cfg.LedgerMaxEntries
	ledgerOpts.RetentionDays = cfg.LedgerRetentionDays
	led := ledger.New(newSnapshotStore(cfg), ledgerOpts)

	publishGate := gate.New(cache, limiter, led)

	scorerOpts := scorer.DefaultOptions()
	scorerOpts.MinContentLength = cfg.MinContentLength
	scorerOpts.MaxAge = time.Duration(cfg.MaxAgeHours) * time.Hour
	scorerOpts.ScoreFloor = cfg.ScoreFloor
	scorerOpts.Languages = splitLanguages(cfg.Languages)
	scoring := scorer.New(language.NewDetector(), keywords.NewMatcher(), scorerOpts)

	// Feed collection is optional; the /ingest endpoint still works
	// without a sources file.
	var feedCollector *collector.Collector
	sources, err := collector.LoadSources(cfg.SourcesFile)
	if err != nil {
		logger.Log.Warn("Feed collection disabled", zap.Error(err))
	} else {
		collectorOpts := collector.DefaultOptions()
		collectorOpts.MaxPerFeed = cfg.MaxPerFeed
		collectorOpts.FetchTimeout = time.Duration(cfg.FetchTimeout) * time.Second
		feedCollector = collector.New(sources, collectorOpts)
	}

	extractorOpts := extractor.DefaultOptions()
	extractorOpts.Threshold = cfg.ExtractThreshold
	extractorOpts.FetchTimeout = time.Duration(cfg.FetchTimeout) * time.Second
	enricher := extractor.New(extractorOpts)

	pub := publisher.New(publisher.Options{
		BearerToken: cfg.BearerToken,
		Endpoint:    cfg.APIURL,
		DryRun:      cfg.DryRun,
		MinInterval: time.Duration(cfg.PublishPace) * time.Second,
	})

	comp := composer.New(composer.Options{CharLimit: cfg.TweetLimit})

	// Get number of workers from config
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 1 // Default to 1 worker if not specified
	}

	pool := worker.NewWorkerPool(numWorkers, cfg.ClientKey, candidateQueue, comp, publishGate, pub)

	return &administrator{
		cfg:        cfg,
		collector:  feedCollector,
		extractor:  enricher,
		scorer:     scoring,
		cache:      cache,
		limiter:    limiter,
		ledger:     led,
		queue:      candidateQueue,
		gate:       publishGate,
		workerPool: pool,
		publisher:  pub,
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
		numWorkers: numWorkers,
	}
}

// Picks the snapshot backend from the config. Redis must be reachable
// at construction time; the file backend defers any I/O to Load.
func newSnapshotStore(cfg *config.Config) ledger.SnapshotStore {
	if cfg.LedgerBackend == "redis" {
		store, err := ledger.NewRedisStore(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword, cfg.RedisDB, cfg.LedgerRedisKey)
		if err != nil {
			logger.Log.Fatal("Failed to create Redis ledger store", zap.Error(err))
		}
		return store
	}
	return ledger.NewFileStore(cfg.LedgerPath)
}

func splitLanguages(codes string) []string {
	var out []string
	for _, code := range strings.Split(codes, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}

// Loads the ledger snapshot, launches the workers, the collection and
// maintenance loops, and the HTTP service.
func (admin *administrator) Start(ctx context.Context) {
	if err := admin.ledger.Load(); err != nil {
		logger.Log.Warn("Ledger snapshot not loaded, starting empty", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	admin.cancel = cancel

	admin.workerPool.Start(runCtx)

	if admin.collector != nil {
		admin.loops.Add(1)
		go admin.collectLoop(runCtx)
	}

	admin.loops.Add(1)
	go admin.maintenanceLoop(runCtx)

	admin.startHTTP()
}

// Runs one immediate collection cycle, then one per interval.
func (admin *administrator) collectLoop(ctx context.Context) {
	defer admin.loops.Done()

	ticker := time.NewTicker(interval(admin.cfg.CollectInterval, 900))
	defer ticker.Stop()

	admin.collectOnce(ctx)
	for {
		select {
		case <-admin.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			admin.collectOnce(ctx)
		}
	}
}

func (admin *administrator) collectOnce(ctx context.Context) {
	articles := admin.collector.Collect(ctx)

	queued := 0
	for _, article := range articles {
		result, err := admin.IngestArticle(ctx, article)
		if errors.Is(err, queue.ErrFull) {
			logger.Log.Warn("Queue full, dropping the rest of the cycle",
				zap.Int("dropped", len(articles)-queued))
			break
		}
		if err != nil {
			return
		}
		if result.Queued {
			queued++
		}
	}

	logger.Log.Info("Collection cycle finished",
		zap.Int("collected", len(articles)),
		zap.Int("queued", queued))
}

// Enriches, scores, and queues one article. A screened-out article is
// not an error; the result carries the reason.
func (admin *administrator) IngestArticle(ctx context.Context, article models.Article) (IngestResult, error) {
	article = admin.extractor.Enrich(ctx, article)

	verdict := admin.scorer.Evaluate(article)
	if !verdict.Publishable {
		return IngestResult{Score: verdict.Score, Reason: verdict.Reason}, nil
	}
	article.Language = verdict.Language

	if err := admin.queue.Insert(models.Candidate{Article: article, Score: verdict.Score}); err != nil {
		return IngestResult{Score: verdict.Score}, err
	}
	return IngestResult{Queued: true, Score: verdict.Score}, nil
}

// Runs the periodic cache sweep, ledger retention sweep, and ledger
// autosave on independent tickers.
func (admin *administrator) maintenanceLoop(ctx context.Context) {
	defer admin.loops.Done()

	cacheSweep := time.NewTicker(interval(admin.cfg.CacheSweepInterval, 3600))
	ledgerSweep := time.NewTicker(interval(admin.cfg.LedgerSweepInterval, 3600))
	autosave := time.NewTicker(interval(admin.cfg.LedgerSaveInterval, 60))
	defer cacheSweep.Stop()
	defer ledgerSweep.Stop()
	defer autosave.Stop()

	for {
		select {
		case <-admin.stopCh:
			return
		case <-ctx.Done():
			return
		case <-cacheSweep.C:
			admin.cache.Sweep(time.Now())
		case <-ledgerSweep.C:
			admin.ledger.SweepRetention(time.Now())
		case <-autosave.C:
			if err := admin.ledger.SaveIfDirty(); err != nil {
				logger.Log.Warn("Ledger autosave failed, will retry", zap.Error(err))
			}
		}
	}
}

func interval(seconds, fallback int) time.Duration {
	if seconds <= 0 {
		seconds = fallback
	}
	return time.Duration(seconds) * time.Second
}

// Stops loops and workers, flushes the ledger, and shuts the HTTP
// service down gracefully.
func (admin *administrator) Stop() {
	admin.stopOnce.Do(func() {
		logger.Log.Info("Beginning shutdown sequence",
			zap.Int("queued", admin.queue.Length()))

		close(admin.stopCh)
		admin.queue.Close()
		if admin.cancel != nil {
			admin.cancel()
		}
		admin.loops.Wait()

		logger.Log.Info("Waiting for workers to finish the current candidate")
		admin.workerPool.Wait()

		if err := admin.ledger.SaveIfDirty(); err != nil {
			logger.Log.Error("Final ledger flush failed", zap.Error(err))
		}

		admin.stopHTTP()
		logger.Log.Info("Administrator stopped gracefully")
	})
}

// Returns the current queue depth for health checks
func (admin *administrator) QueueDepth() int {
	return admin.queue.Length()
}

// Returns the number of workers for health checks
func (admin *administrator) WorkerCount() int {
	return admin.numWorkers
}

// Returns when the service was started for health checks
func (admin *administrator) StartTime() time.Time {
	return admin.startTime
}
