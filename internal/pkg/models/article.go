package models

import "time"

// Candidate item collected from an external feed before it is gated,
// composed, and published.
type Article struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
	Link        string    `json:"link"`
	Categories  []string  `json:"categories,omitempty"`
	Language    string    `json:"language,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// An article that passed scoring, together with its score and the
// rendered post text once the composer has run.
type Candidate struct {
	Article Article `json:"article"`
	Score   int     `json:"score"`
	Text    string  `json:"text,omitempty"`
}

// Outcome of one attempt against the publishing API.
type PublishResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Returns the body used for scoring and rendering: extracted full text
// when present, the feed description otherwise.
func (a *Article) Body() string {
	if a.Content != "" {
		return a.Content
	}
	return a.Description
}
