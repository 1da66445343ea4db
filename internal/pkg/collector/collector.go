package collector

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"autopress/internal/pkg/logger"
	"autopress/internal/pkg/metrics"
	"autopress/internal/pkg/models"
)

type Options struct {
	MaxPerFeed   int
	FetchTimeout time.Duration
	UserAgent    string
	Clock        func() time.Time
}

func DefaultOptions() Options {
	return Options{
		MaxPerFeed:   10,
		FetchTimeout: 20 * time.Second,
		UserAgent:    "Mozilla/5.0 (compatible; autopress/1.0)",
	}
}

// Polls RSS and Atom feeds and turns their items into articles. One
// broken feed never blocks the others.
type Collector struct {
	sources []Source
	parser  *gofeed.Parser
	opts    Options
	clock   func() time.Time
}

// Creates a collector over the given feed list. Fetches go through a
// retrying HTTP client.
func New(sources []Source, opts Options) *Collector {
	defaults := DefaultOptions()
	if opts.MaxPerFeed <= 0 {
		opts.MaxPerFeed = defaults.MaxPerFeed
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaults.FetchTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaults.UserAgent
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.Logger = nil
	retryClient.HTTPClient.Timeout = opts.FetchTimeout

	parser := gofeed.NewParser()
	parser.Client = retryClient.StandardClient()
	parser.UserAgent = opts.UserAgent

	return &Collector{
		sources: sources,
		parser:  parser,
		opts:    opts,
		clock:   clock,
	}
}

// Fetches every configured feed once and returns the collected
// articles, newest-first within each feed.
func (c *Collector) Collect(ctx context.Context) []models.Article {
	var articles []models.Article
	for _, source := range c.sources {
		items, err := c.fetchFeed(ctx, source)
		if err != nil {
			metrics.FeedErrors.Inc()
			logger.Log.Error("Failed to fetch feed",
				zap.String("source", source.Name),
				zap.String("url", source.URL),
				zap.Error(err))
			continue
		}
		articles = append(articles, items...)
	}

	metrics.ArticlesCollected.Add(float64(len(articles)))
	logger.Log.Info("Feed collection complete",
		zap.Int("sources", len(c.sources)),
		zap.Int("articles", len(articles)))
	return articles
}

func (c *Collector) fetchFeed(ctx context.Context, source Source) ([]models.Article, error) {
	feed, err := c.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := feed.Items
	if len(items) > c.opts.MaxPerFeed {
		items = items[:c.opts.MaxPerFeed]
	}

	articles := make([]models.Article, 0, len(items))
	for _, item := range items {
		if item.Link == "" || item.Title == "" {
			continue
		}

		published := c.clock()
		if item.PublishedParsed != nil {
			published = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			published = *item.UpdatedParsed
		}

		article := models.Article{
			ID:          articleID(source.Name, item.Link, published),
			Source:      source.Name,
			Title:       strings.TrimSpace(item.Title),
			Description: stripHTML(item.Description),
			Content:     stripHTML(item.Content),
			Link:        strings.TrimSpace(item.Link),
			PublishedAt: published,
		}
		if source.Category != "" {
			article.Categories = append(article.Categories, source.Category)
		}
		articles = append(articles, article)
	}
	return articles, nil
}

func articleID(sourceName, link string, published time.Time) string {
	h := sha1.Sum([]byte(link))
	return fmt.Sprintf("%s-%s-%d", slug(sourceName), hex.EncodeToString(h[:8]), published.Unix())
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "-")
}

// Reduces feed-supplied HTML to plain text with collapsed whitespace.
// Unparseable input falls back to the trimmed original.
func stripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return collapseWhitespace(s)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseWhitespace(s)
	}
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
