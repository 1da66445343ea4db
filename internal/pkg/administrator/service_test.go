package administrator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"autopress/internal/pkg/composer"
	"autopress/internal/pkg/config"
	"autopress/internal/pkg/dupcache"
	"autopress/internal/pkg/extractor"
	"autopress/internal/pkg/gate"
	"autopress/internal/pkg/ledger"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/models"
	"autopress/internal/pkg/queue"
	"autopress/internal/pkg/ratelimit"
	"autopress/internal/pkg/scorer"
	"autopress/internal/pkg/worker"
)

func init() {
	logger.Log = zap.NewNop() // Set up a no-op logger to avoid nil pointer dereferences in tests.
}

type stubPublisher struct {
	mu    sync.Mutex
	count int
}

func (s *stubPublisher) Publish(ctx context.Context, text string) models.PublishResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return models.PublishResult{Success: true, ID: "stub"}
}

func (s *stubPublisher) published() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Builds an administrator by hand so tests skip config loading and the
// language model preload. Returns the ledger path for reload checks.
func newTestAdmin(t *testing.T, pub worker.Publisher) (*administrator, string) {
	t.Helper()

	q, err := queue.CreateQueue(10)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	cache := dupcache.New(dupcache.DefaultOptions())
	limiter := ratelimit.NewLimiter(ratelimit.Settings{
		Publish:                ratelimit.Limits{PerSecond: 100, PerMinute: 100, PerHour: 100, PerDay: 100, PerMonth: 100},
		Read:                   ratelimit.Limits{PerSecond: 100, PerMinute: 100, PerQuarter: 100, PerHour: 100},
		BurstCapacity:          100,
		MaxConsecutiveFailures: 5,
		BanDuration:            5 * time.Minute,
	})
	ledgerPath := filepath.Join(t.TempDir(), "ledger.json")
	led := ledger.New(ledger.NewFileStore(ledgerPath), ledger.DefaultOptions())
	publishGate := gate.New(cache, limiter, led)

	pool := worker.NewWorkerPool(1, "publisher", q, composer.New(composer.DefaultOptions()), publishGate, pub)

	admin := &administrator{
		cfg:        &config.Config{ServerPort: "0"},
		extractor:  extractor.New(extractor.Options{Threshold: 1}),
		scorer:     scorer.New(nil, nil, scorer.DefaultOptions()),
		cache:      cache,
		limiter:    limiter,
		ledger:     led,
		queue:      q,
		gate:       publishGate,
		workerPool: pool,
		publisher:  pub,
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
		numWorkers: 1,
	}
	return admin, ledgerPath
}

func freshArticle() models.Article {
	return models.Article{
		Title:       "Fusion reactor hits net gain",
		Link:        "https://example.com/fusion",
		Source:      "test-feed",
		Description: strings.Repeat("The committee reviewed the reactor findings in detail. ", 7),
		PublishedAt: time.Now().UTC(),
	}
}

func TestIngestEndpointQueuesArticle(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	payload, err := json.Marshal(freshArticle())
	if err != nil {
		t.Fatalf("Failed to marshal test article: %v", err)
	}

	response, err := http.Post(server.URL+"/ingest", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to send POST request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(response.Body)
		t.Fatalf("Expected status 202, got %d, body: %s", response.StatusCode, body)
	}

	var result IngestResult
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !result.Queued {
		t.Errorf("Expected the article to be queued, got reason %q", result.Reason)
	}
	if result.Score <= 0 {
		t.Errorf("Expected a positive score, got %d", result.Score)
	}
	if depth := admin.QueueDepth(); depth != 1 {
		t.Errorf("Expected queue depth 1, got %d", depth)
	}
}

func TestIngestEndpointRejectsMalformed(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	response, err := http.Post(server.URL+"/ingest", "application/json", strings.NewReader("not json{{"))
	if err != nil {
		t.Fatalf("Failed to send POST request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", response.StatusCode)
	}
}

func TestIngestEndpointRequiresTitleAndLink(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	article := freshArticle()
	article.Link = ""
	payload, _ := json.Marshal(article)

	response, err := http.Post(server.URL+"/ingest", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to send POST request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", response.StatusCode)
	}
}

func TestIngestEndpointScreensStale(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	article := freshArticle()
	article.PublishedAt = time.Now().UTC().Add(-10 * 24 * time.Hour)
	payload, _ := json.Marshal(article)

	response, err := http.Post(server.URL+"/ingest", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Failed to send POST request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200 for a screened article, got %d", response.StatusCode)
	}

	var result IngestResult
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result.Queued {
		t.Error("Expected the stale article to be screened out")
	}
	if result.Reason != scorer.ReasonStale {
		t.Errorf("Expected reason %q, got %q", scorer.ReasonStale, result.Reason)
	}
	if depth := admin.QueueDepth(); depth != 0 {
		t.Errorf("Expected queue depth 0, got %d", depth)
	}
}

func TestHealthEndpoint(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	response, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("Failed to send GET request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", response.StatusCode)
	}

	var health struct {
		Status     string `json:"status"`
		QueueDepth int    `json:"queue_depth"`
		Workers    int    `json:"workers"`
	}
	if err := json.NewDecoder(response.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if health.Status != "OK" {
		t.Errorf("Expected status OK, got %q", health.Status)
	}
	if health.Workers != 1 {
		t.Errorf("Expected 1 worker, got %d", health.Workers)
	}
	if health.QueueDepth != 0 {
		t.Errorf("Expected queue depth 0, got %d", health.QueueDepth)
	}
}

func TestStatsEndpoint(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	admin.ledger.Append(ledger.Entry{Text: "published once already"})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	response, err := http.Get(server.URL + "/stats")
	if err != nil {
		t.Fatalf("Failed to send GET request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", response.StatusCode)
	}

	var stats struct {
		Limiter ratelimit.Snapshot `json:"limiter"`
		Ledger  ledger.Summary     `json:"ledger"`
	}
	if err := json.NewDecoder(response.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(stats.Limiter.Publish) != 5 {
		t.Errorf("Expected 5 publish windows, got %d", len(stats.Limiter.Publish))
	}
	if stats.Ledger.TotalEntries != 1 {
		t.Errorf("Expected 1 ledger entry, got %d", stats.Ledger.TotalEntries)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	admin, _ := newTestAdmin(t, &stubPublisher{})
	server := httptest.NewServer(buildMux(admin))
	defer server.Close()

	response, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatalf("Failed to send GET request: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", response.StatusCode)
	}
	body, _ := io.ReadAll(response.Body)
	if !strings.Contains(string(body), "autopress_queue_depth") {
		t.Error("Expected exported queue depth metric in /metrics output")
	}
}

// End to end: ingest, drain through the gate to the publisher, and
// confirm the shutdown flush leaves a loadable snapshot behind.
func TestStartStopLifecycle(t *testing.T) {
	pub := &stubPublisher{}
	admin, ledgerPath := newTestAdmin(t, pub)

	if _, err := admin.IngestArticle(context.Background(), freshArticle()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	admin.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for pub.published() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	admin.Stop()

	if got := pub.published(); got != 1 {
		t.Fatalf("Expected 1 published post, got %d", got)
	}

	reloaded := ledger.New(ledger.NewFileStore(ledgerPath), ledger.DefaultOptions())
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Expected the flushed snapshot to load, got %v", err)
	}
	if reloaded.Len() != 1 {
		t.Errorf("Expected 1 entry in the reloaded ledger, got %d", reloaded.Len())
	}
}
