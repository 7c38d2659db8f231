package rss

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"gleaner/sanitize"
)

// maxScrapeBytes caps how much of an article page is read. Pages are
// sanitized in memory, so unbounded bodies are not an option.
const maxScrapeBytes = 2 << 20

// Scraper fetches an article's own page when the feed entry carried
// little or no content.
type Scraper struct {
	client    *http.Client
	userAgent string
}

func NewScraper(userAgent string) *Scraper {
	return &Scraper{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: userAgent,
	}
}

// ScrapedContent is a sanitized article page.
type ScrapedContent struct {
	HTML      string
	Text      string
	WordCount int
}

// Scrape downloads the page and reduces it to sanitized HTML and plain
// text. The whole page body is used, so navigation text comes along;
// callers should compare word counts before replacing stored content.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) (ScrapedContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return ScrapedContent{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return ScrapedContent{}, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ScrapedContent{}, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return ScrapedContent{}, fmt.Errorf("failed to read page: %w", err)
	}

	text := sanitize.Text(string(body))

	return ScrapedContent{
		HTML:      sanitize.Clean(string(body)),
		Text:      text,
		WordCount: sanitize.WordCount(text),
	}, nil
}
