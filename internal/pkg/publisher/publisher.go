package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"autopress/internal/pkg/circuitbreaker"
	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
)

const (
	defaultEndpoint = "https://api.twitter.com/2/tweets"
	defaultTimeout  = 15 * time.Second
	maxResponseSize = 4096

	breakerThreshold = 5
	breakerCooldown  = 2 * time.Minute
)

type Options struct {
	BearerToken string
	Endpoint    string
	DryRun      bool
	// Minimum spacing between posts. Zero or negative disables pacing;
	// the rate gate still enforces the window limits either way.
	MinInterval time.Duration
	Timeout     time.Duration
}

// Posts composed text to the publishing API with bearer auth, retrying
// transient failures and pacing consecutive posts. A circuit breaker
// stops the calls entirely while the API keeps failing.
type Publisher struct {
	opts    Options
	client  *http.Client
	pacer   *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// Creates a publisher. Without a bearer token it falls back to dry-run
// mode, where posts are logged and assigned synthetic IDs instead of
// being sent.
func New(opts Options) *Publisher {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.BearerToken == "" && !opts.DryRun {
		logger.Log.Warn("No bearer token configured, publisher runs in dry-run mode")
		opts.DryRun = true
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = opts.Timeout

	return &Publisher{
		opts:    opts,
		client:  retryClient.StandardClient(),
		pacer:   rate.NewLimiter(rate.Every(opts.MinInterval), 1),
		breaker: circuitbreaker.NewCircuitBreaker("publish-api", breakerThreshold, breakerCooldown),
	}
}

type postRequest struct {
	Text string `json:"text"`
}

type postResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Publishes one post and reports the outcome. Never returns an error;
// failures are carried in the result so the caller can record them
// against the rate gate and the ledger.
func (p *Publisher) Publish(ctx context.Context, text string) models.PublishResult {
	metrics.PublishAttempts.Inc()
	if strings.TrimSpace(text) == "" {
		metrics.PublishFailures.Inc()
		return models.PublishResult{Error: "empty post text"}
	}

	if err := p.pacer.Wait(ctx); err != nil {
		metrics.PublishFailures.Inc()
		return models.PublishResult{Error: fmt.Sprintf("waiting for pacing slot: %v", err)}
	}

	if p.opts.DryRun {
		id := "dry-" + uuid.NewString()
		logger.Log.Info("Dry-run publish",
			zap.String("id", id),
			zap.Int("chars", len(text)))
		metrics.PublishSuccesses.Inc()
		return models.PublishResult{Success: true, ID: id}
	}

	var result models.PublishResult
	err := p.breaker.Execute(func() error {
		var callErr error
		result, callErr = p.post(ctx, text)
		return callErr
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		metrics.PublishFailures.Inc()
		logger.Log.Warn("Publish skipped, circuit breaker open")
		return models.PublishResult{Error: "publish API circuit is open"}
	}
	if err != nil {
		metrics.PublishFailures.Inc()
		return result
	}

	metrics.PublishSuccesses.Inc()
	logger.Log.Info("Published post",
		zap.String("id", result.ID),
		zap.Int("chars", len(text)))
	return result
}

// Performs one API call. The returned error mirrors result.Error so the
// circuit breaker can count failures.
func (p *Publisher) post(ctx context.Context, text string) (models.PublishResult, error) {
	payload, err := json.Marshal(postRequest{Text: text})
	if err != nil {
		err = fmt.Errorf("encoding post: %w", err)
		return models.PublishResult{Error: err.Error()}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.opts.Endpoint, bytes.NewReader(payload))
	if err != nil {
		err = fmt.Errorf("building request: %w", err)
		return models.PublishResult{Error: err.Error()}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.opts.BearerToken)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		logger.Log.Error("Publish request failed", zap.Error(err))
		err = fmt.Errorf("sending post: %w", err)
		return models.PublishResult{Error: err.Error()}, err
	}
	defer resp.Body.Close()
	metrics.PublishLatency.Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		err = fmt.Errorf("reading response: %w", err)
		return models.PublishResult{Error: err.Error()}, err
	}

	if resp.StatusCode != http.StatusCreated {
		detail := errorDetail(body)
		logger.Log.Error("Publish rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("detail", detail))
		err = fmt.Errorf("status %d: %s", resp.StatusCode, detail)
		return models.PublishResult{Error: err.Error()}, err
	}

	var decoded postResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Data.ID == "" {
		// The post went out; a malformed response only costs us the
		// platform ID.
		logger.Log.Warn("Publish succeeded but response was not parseable",
			zap.Error(err))
	}
	return models.PublishResult{Success: true, ID: decoded.Data.ID}, nil
}

func errorDetail(body []byte) string {
	var decoded postResponse
	if err := json.Unmarshal(body, &decoded); err == nil {
		if decoded.Detail != "" {
			return decoded.Detail
		}
		if decoded.Title != "" {
			return decoded.Title
		}
	}
	return strings.TrimSpace(string(body))
}
