package composer

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"autopress/internal/pkg/models"
)

const (
	// Character budget of one outbound post.
	defaultCharLimit = 280
	// The platform wraps every URL and counts it as a fixed length,
	// regardless of how long the original link is.
	defaultLinkLength = 23
	defaultMaxTags    = 3
	ellipsis          = "..."
)

var postTemplate = template.Must(template.New("post").Parse(
	"{{.Title}}{{if .Summary}}\n\n{{.Summary}}{{end}}{{if .Tags}}\n\n{{.Tags}}{{end}}"))

type postData struct {
	Title   string
	Summary string
	Tags    string
}

type Options struct {
	CharLimit  int
	LinkLength int
	MaxTags    int
}

func DefaultOptions() Options {
	return Options{
		CharLimit:  defaultCharLimit,
		LinkLength: defaultLinkLength,
		MaxTags:    defaultMaxTags,
	}
}

// Renders the outbound post text for a scored article: title, lead
// sentence, category hashtags, and the link, fitted into the platform
// character budget.
type Composer struct {
	opts Options
}

// Creates a composer. Zero option fields fall back to platform
// defaults.
func New(opts Options) *Composer {
	defaults := DefaultOptions()
	if opts.CharLimit <= 0 {
		opts.CharLimit = defaults.CharLimit
	}
	if opts.LinkLength <= 0 {
		opts.LinkLength = defaults.LinkLength
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = defaults.MaxTags
	}
	return &Composer{opts: opts}
}

// Composes the post text for one article. The link is appended after
// truncation so it always survives intact.
func (c *Composer) Compose(article models.Article) (string, error) {
	title := strings.TrimSpace(article.Title)
	if title == "" {
		return "", errors.New("article has no title")
	}

	data := postData{
		Title:   title,
		Summary: leadSentence(article.Body(), title),
		Tags:    hashtags(article.Categories, c.opts.MaxTags),
	}

	var buf bytes.Buffer
	if err := postTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering post: %w", err)
	}
	text := buf.String()

	budget := c.opts.CharLimit
	link := strings.TrimSpace(article.Link)
	if link != "" {
		budget -= c.opts.LinkLength + 1 // newline before the link
	}
	text = truncate(text, budget)
	if link != "" {
		text += "\n" + link
	}
	return text, nil
}

// Picks the first sentence of the body. Feed descriptions often open
// by repeating the headline; that repeat is dropped.
func leadSentence(body, title string) string {
	body = strings.Join(strings.Fields(body), " ")
	if body == "" {
		return ""
	}
	if title != "" && len(body) >= len(title) && strings.EqualFold(body[:len(title)], title) {
		body = strings.TrimLeft(body[len(title):], " .:-")
	}
	for i, r := range body {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		rest := body[i+1:]
		if rest == "" || strings.HasPrefix(rest, " ") {
			return body[:i+1]
		}
	}
	return body
}

// Builds up to max hashtags from the article categories, lowercased
// and stripped to letters and digits.
func hashtags(categories []string, max int) string {
	seen := make(map[string]struct{}, len(categories))
	tags := make([]string, 0, max)
	for _, category := range categories {
		tag := tagify(category)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, "#"+tag)
		if len(tags) == max {
			break
		}
	}
	return strings.Join(tags, " ")
}

func tagify(category string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(category) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Cuts text to at most limit runes, preferring a nearby word boundary
// and ending with an ellipsis.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	cut := limit - len(ellipsis)
	if cut <= 0 {
		return string(runes[:limit])
	}
	clipped := runes[:cut]
	for i := len(clipped) - 1; i > cut-20 && i > 0; i-- {
		if clipped[i] == ' ' {
			clipped = clipped[:i]
			break
		}
	}
	return strings.TrimRight(string(clipped), " \n") + ellipsis
}
