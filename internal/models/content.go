package models

import (
	"strings"
	"time"
)

// ContentKind distinguishes the two kinds of platform content the pipeline observes.
type ContentKind string

const (
	KindPost    ContentKind = "post"
	KindComment ContentKind = "comment"
)

// ContentItem is one observed unit from the platform stream. It is created by
// the connector the moment new content appears and is read-only afterwards.
type ContentItem struct {
	Kind       ContentKind `json:"content_type"`
	Author     string      `json:"author"` // empty when deleted/anonymized
	Title      string      `json:"title,omitempty"`
	Body       string      `json:"body"`
	Subforum   string      `json:"subreddit"`
	Score      int         `json:"reddit_score"`
	CreatedAt  time.Time   `json:"created_utc"`
	Permalink  string      `json:"permalink"`
	FullnameID string      `json:"fullname_id,omitempty"` // platform thing id, used for replies
}

// deletion placeholders used by the platform for removed bodies.
var deletedBodies = map[string]bool{
	"[deleted]": true,
	"[removed]": true,
}

// Text returns the classifiable text: title+body for posts, body for comments,
// lowercased for keyword matching.
func (c ContentItem) Text() string {
	if c.Kind == KindPost {
		return strings.ToLower(strings.TrimSpace(c.Title + " " + c.Body))
	}
	return strings.ToLower(c.Body)
}

// Attributable reports whether the item can be tied to a real author: the
// author must be present, not the platform moderation account, and the body
// must not be a deletion placeholder.
func (c ContentItem) Attributable() bool {
	if c.Author == "" || c.Author == "AutoModerator" {
		return false
	}
	if deletedBodies[c.Body] {
		return false
	}
	return c.Text() != ""
}

// Preview returns a truncated single-line rendering for logs.
func (c ContentItem) Preview(max int) string {
	text := c.Body
	if c.Kind == KindPost {
		text = c.Title + " " + c.Body
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > max {
		return text[:max] + "..."
	}
	return text
}
