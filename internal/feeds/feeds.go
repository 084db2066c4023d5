// Package feeds fetches feed documents and decodes them into article candidates
package feeds

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"techdigest/internal/core"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"
)

const maxFeedBytes = 10 << 20

// Candidate is one decoded feed item ready for categorization and storage
type Candidate struct {
	Title       string
	Link        string
	PublishedAt time.Time
	Snippet     string // Markup-free description or content
}

// Fetcher retrieves raw feed documents over HTTP
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher with a bounded per-request timeout
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "techdigest/1.0"
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch returns the body of the document at feedURL.
// Network failures and non-2xx responses wrap core.ErrTransientFetch.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to fetch feed: %w", core.ErrTransientFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: feed returned status %d", core.ErrTransientFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read feed body: %w", core.ErrTransientFetch, err)
	}

	return string(body), nil
}

// Decode parses RSS, Atom or JSON feed text and returns up to max candidates in document order.
// Items missing a title or link are dropped. Items without a date get the current time.
func Decode(raw string, max int) ([]Candidate, error) {
	return decodeAt(raw, max, time.Now().UTC())
}

func decodeAt(raw string, max int, now time.Time) ([]Candidate, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty feed document", core.ErrParse)
	}
	if max <= 0 {
		max = core.MaxFeedItems
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %v", core.ErrParse, err)
	}

	count := min(len(feed.Items), max)
	candidates := make([]Candidate, 0, count)

	for i := 0; i < count; i++ {
		item := feed.Items[i]
		if item == nil {
			continue
		}

		title := CleanText(item.Title)
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		if title == "" || link == "" {
			continue
		}

		publishedAt := now
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed.UTC()
		} else if item.UpdatedParsed != nil {
			publishedAt = item.UpdatedParsed.UTC()
		}

		snippet := item.Description
		if strings.TrimSpace(snippet) == "" {
			snippet = item.Content
		}

		candidates = append(candidates, Candidate{
			Title:       title,
			Link:        link,
			PublishedAt: publishedAt,
			Snippet:     CleanText(snippet),
		})
	}

	return candidates, nil
}

// SourceID creates a deterministic ID for a source based on its URL
func SourceID(sourceURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()
}
