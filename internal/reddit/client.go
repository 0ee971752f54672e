// Package reddit is a minimal Reddit API client covering what the pipeline
// needs: polling new posts and comments across a subreddit set, replying, and
// sending direct messages. OAuth2 tokens are fetched lazily and refreshed
// before expiry.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fluentfuture/leadscout/internal/config"
	"github.com/fluentfuture/leadscout/internal/ingestion"
	"github.com/fluentfuture/leadscout/internal/models"
)

const (
	defaultAuthURL = "https://www.reddit.com"
	defaultAPIURL  = "https://oauth.reddit.com"

	listingLimit = 100

	// staleWatermarkPolls is how many consecutive empty listings are
	// tolerated before the watermark item is assumed gone from the listing
	// (deleted, or pushed off /new) and the stream resubscribes.
	staleWatermarkPolls = 3
)

// Client talks to the Reddit API.
type Client struct {
	config     config.RedditConfig
	httpClient *http.Client
	logger     *slog.Logger

	// Overridable for tests.
	authURL string
	apiURL  string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a Reddit client. With a username and password configured
// the token grants write access (replies, DMs); without them the client is
// read-only.
func NewClient(cfg config.RedditConfig, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:  logger,
		authURL: defaultAuthURL,
		apiURL:  defaultAPIURL,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error,omitempty"`
}

// token returns a valid access token, refreshing when within a minute of
// expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{}
	if c.config.Username != "" && c.config.Password != "" {
		form.Set("grant_type", "password")
		form.Set("username", c.config.Username)
		form.Set("password", c.config.Password)
	} else {
		form.Set("grant_type", "client_credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.authURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", ingestion.NewRetryableError(fmt.Errorf("token request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	if tok.Error != "" || tok.AccessToken == "" {
		return "", fmt.Errorf("token request rejected: %s", tok.Error)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	c.logger.Debug("reddit token refreshed", "expires_in", tok.ExpiresIn)

	return c.accessToken, nil
}

// listing mirrors the Reddit listing envelope.
type listing struct {
	Data struct {
		Children []struct {
			Data thing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// thing is the union of the post and comment fields the pipeline reads.
type thing struct {
	Name       string  `json:"name"` // fullname, e.g. t3_abc or t1_xyz
	Author     string  `json:"author"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Body       string  `json:"body"`
	Subreddit  string  `json:"subreddit"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
	Permalink  string  `json:"permalink"`
}

func (t thing) toItem(kind models.ContentKind) models.ContentItem {
	body := t.SelfText
	if kind == models.KindComment {
		body = t.Body
	}
	return models.ContentItem{
		Kind:       kind,
		Author:     t.Author,
		Title:      t.Title,
		Body:       body,
		Subforum:   t.Subreddit,
		Score:      t.Score,
		CreatedAt:  time.Unix(int64(t.CreatedUTC), 0).UTC(),
		Permalink:  t.Permalink,
		FullnameID: t.Name,
	}
}

// fetchListing gets one listing page, newest first.
func (c *Client) fetchListing(ctx context.Context, path, before string) ([]thing, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(listingLimit))
	if before != "" {
		q.Set("before", before)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create listing request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ingestion.NewRetryableError(fmt.Errorf("listing request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, rateLimitError(resp)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Token may have been revoked server-side; drop it so the next call
		// re-authenticates.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return nil, ingestion.NewRetryableError(fmt.Errorf("listing request unauthorized"))
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("listing request returned status %d: %s", resp.StatusCode, string(body))
	}

	var l listing
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	things := make([]thing, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		things = append(things, child.Data)
	}
	return things, nil
}

func rateLimitError(resp *http.Response) error {
	delay := 10 * time.Second
	if after := resp.Header.Get("Retry-After"); after != "" {
		if seconds, err := strconv.Atoi(after); err == nil {
			delay = time.Duration(seconds) * time.Second
		}
	}
	return ingestion.NewRetryableErrorWithDelay(fmt.Errorf("rate limited"), delay)
}

// StreamPosts polls /new for the subreddit set and emits posts that appeared
// after the stream started. The first poll only establishes the watermark, so
// pre-existing posts are never emitted.
func (c *Client) StreamPosts(subforumSet string) ingestion.Stream {
	return ingestion.Stream{
		Name: "posts",
		Run: func(ctx context.Context, out chan<- models.ContentItem) error {
			return c.poll(ctx, "/r/"+subforumSet+"/new", models.KindPost, out)
		},
	}
}

// StreamComments polls /comments for the subreddit set, with the same
// skip-existing semantics as StreamPosts.
func (c *Client) StreamComments(subforumSet string) ingestion.Stream {
	return ingestion.Stream{
		Name: "comments",
		Run: func(ctx context.Context, out chan<- models.ContentItem) error {
			return c.poll(ctx, "/r/"+subforumSet+"/comments", models.KindComment, out)
		},
	}
}

// poll drives one listing endpoint until ctx is cancelled or an error
// escapes the per-request retry. Listings arrive newest first; items are
// emitted oldest first so per-stream arrival order matches creation order.
func (c *Client) poll(ctx context.Context, path string, kind models.ContentKind, out chan<- models.ContentItem) error {
	interval := c.config.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	watermark := ""
	first := true
	emptyPolls := 0

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var things []thing
		err := ingestion.Retry(ctx, ingestion.DefaultRetryPolicy(), func() error {
			var err error
			things, err = c.fetchListing(ctx, path, watermark)
			return err
		})
		if err != nil {
			return fmt.Errorf("poll %s: %w", path, err)
		}

		switch {
		case len(things) > 0:
			emptyPolls = 0
			watermark = things[0].Name
			if first {
				// Skip everything that existed before subscription.
				first = false
				c.logger.Info("stream subscribed", "path", path, "watermark", watermark)
			} else {
				for i := len(things) - 1; i >= 0; i-- {
					select {
					case out <- things[i].toItem(kind):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		case !first:
			// When the watermark item disappears from the listing, before=...
			// returns an empty page on every poll and the stream would stall
			// forever. Resubscribe after a few consecutive empties.
			emptyPolls++
			if emptyPolls >= staleWatermarkPolls {
				c.logger.Warn("watermark no longer in listing, resubscribing",
					"path", path, "watermark", watermark)
				watermark = ""
				first = true
				emptyPolls = 0
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reply posts a comment under the given fullname (post or comment).
func (c *Client) Reply(ctx context.Context, parentFullname, body string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", parentFullname)
	form.Set("text", body)

	return c.postForm(ctx, "/api/comment", form)
}

// DirectMessage sends a private message to the recipient.
func (c *Client) DirectMessage(ctx context.Context, recipient, subject, body string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("to", recipient)
	form.Set("subject", subject)
	form.Set("text", body)

	return c.postForm(ctx, "/api/compose", form)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return rateLimitError(resp)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
	}
	return nil
}
