package extractor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
)

type Options struct {
	// Articles whose feed-supplied body is at least this many
	// characters are left alone.
	Threshold    int
	FetchTimeout time.Duration
	UserAgent    string
	// Extracted text is truncated to this many runes. Zero means no
	// limit.
	MaxChars int
}

func DefaultOptions() Options {
	return Options{
		Threshold:    160,
		FetchTimeout: 20 * time.Second,
		UserAgent:    "Mozilla/5.0 (compatible; autopress/1.0)",
		MaxChars:     5000,
	}
}

// Fills in article bodies that feeds only teased. Fetches the linked
// page and runs readability extraction over it; anything that goes
// wrong leaves the article as it arrived.
type Extractor struct {
	opts   Options
	client *http.Client
}

func New(opts Options) *Extractor {
	defaults := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = defaults.Threshold
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = opts.FetchTimeout

	return &Extractor{
		opts:   opts,
		client: retryClient.StandardClient(),
	}
}

// Enriches one article in place when its body falls short of the
// threshold. The returned article always has the best body available.
func (e *Extractor) Enrich(ctx context.Context, article models.Article) models.Article {
	if len(article.Body()) >= e.opts.Threshold {
		return article
	}

	text, err := e.extract(ctx, article.Link)
	if err != nil {
		logger.Log.Debug("Content extraction failed, keeping feed body",
			zap.String("link", article.Link),
			zap.Error(err))
		return article
	}
	if len(text) <= len(article.Body()) {
		return article
	}

	article.Content = text
	metrics.ArticlesEnriched.Inc()
	logger.Log.Debug("Article enriched from page content",
		zap.String("link", article.Link),
		zap.Int("chars", len(text)))
	return article
}

// Enriches every article that needs it.
func (e *Extractor) EnrichAll(ctx context.Context, articles []models.Article) []models.Article {
	for i := range articles {
		articles[i] = e.Enrich(ctx, articles[i])
	}
	return articles
}

func (e *Extractor) extract(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("failed to parse article link: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", e.opts.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	page, err := readability.FromReader(resp.Body, pageURL)
	if err != nil {
		return "", fmt.Errorf("readability extraction failed: %w", err)
	}

	text := strings.Join(strings.Fields(page.TextContent), " ")
	if e.opts.MaxChars > 0 {
		runes := []rune(text)
		if len(runes) > e.opts.MaxChars {
			text = string(runes[:e.opts.MaxChars])
		}
	}
	if text == "" {
		return "", fmt.Errorf("no readable content at %s", link)
	}
	return text, nil
}
