package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"sort"
	"strings"
	"unicode"

	"autopress/internal/pkg/models"
)

// Derived identity of a candidate item: where it points, what it is
// called, and a hash over its raw fields.
type Fingerprint struct {
	NormalizedURL   string
	NormalizedTitle string
	ContentHash     string
}

// Query parameters that only carry click tracking and never change
// what page a link resolves to.
var trackingParams = map[string]struct{}{
	"fbclid": {},
	"gclid":  {},
	"ref":    {},
	"source": {},
}

// Wire-style prefixes feeds prepend to otherwise identical headlines.
var titlePrefixes = []string{
	"new:",
	"breaking:",
	"update:",
	"exclusive:",
	"watch:",
	"just in:",
}

// Derives the fingerprint for an article. Fails only when the article
// carries neither a usable URL nor a title; every other malformation
// degrades to an empty field.
func Compute(article models.Article) (Fingerprint, error) {
	fp := Fingerprint{
		NormalizedTitle: NormalizeTitle(article.Title),
		ContentHash:     ContentHash(article.Title, article.Description, article.Link),
	}

	if normalized, err := NormalizeURL(article.Link); err == nil {
		fp.NormalizedURL = normalized
	}

	if fp.NormalizedURL == "" && fp.NormalizedTitle == "" {
		return Fingerprint{}, errors.New("article has neither a usable URL nor a title")
	}
	return fp, nil
}

// Trims, parses, and canonicalizes a URL: lower-cases scheme and host,
// drops the fragment and tracking query parameters, and strips a
// trailing slash from the path.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("empty URL")
	}

	// Handle scheme-relative URLs (starting with //)
	if strings.HasPrefix(rawURL, "//") {
		rawURL = "https:" + rawURL
	}
	if !strings.Contains(rawURL, "://") {
		return "", errors.New("relative URL without base")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsedURL.Host == "" {
		return "", errors.New("URL without host")
	}

	parsedURL.Scheme = strings.ToLower(parsedURL.Scheme)
	parsedURL.Host = strings.ToLower(parsedURL.Host)
	parsedURL.Fragment = ""
	parsedURL.RawFragment = ""
	parsedURL.Path = strings.TrimSuffix(parsedURL.Path, "/")
	parsedURL.RawQuery = stripTracking(parsedURL.Query())

	return parsedURL.String(), nil
}

// Re-encodes a query string without tracking parameters. Keys are
// sorted so equivalent URLs always render identically.
func stripTracking(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			continue
		}
		if _, tracked := trackingParams[strings.ToLower(key)]; tracked {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	kept := url.Values{}
	for _, key := range keys {
		kept[key] = values[key]
	}
	return kept.Encode()
}

// Normalizes a headline: lower-case, strip wire prefixes and a trailing
// source suffix, remove punctuation, collapse whitespace.
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))

	for stripped := true; stripped; {
		stripped = false
		for _, prefix := range titlePrefixes {
			if strings.HasPrefix(title, prefix) {
				title = strings.TrimSpace(strings.TrimPrefix(title, prefix))
				stripped = true
			}
		}
	}

	// "Headline - Outlet Name" and "Headline | Outlet Name" collapse to
	// the headline alone.
	for _, separator := range []string{" | ", " - "} {
		if idx := strings.LastIndex(title, separator); idx > 0 {
			title = title[:idx]
		}
	}

	var builder strings.Builder
	builder.Grow(len(title))
	for _, r := range title {
		if unicode.IsPunct(r) {
			continue
		}
		builder.WriteRune(r)
	}

	return strings.Join(strings.Fields(builder.String()), " ")
}

// Creates a SHA-256 hex digest over the article's raw title,
// description, and link, each trimmed and lower-cased.
func ContentHash(title, description, link string) string {
	canonical := strings.Join([]string{
		strings.ToLower(strings.TrimSpace(title)),
		strings.ToLower(strings.TrimSpace(description)),
		strings.ToLower(strings.TrimSpace(link)),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}
