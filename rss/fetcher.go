package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gleaner/config"
	"gleaner/models"
	"gleaner/sanitize"

	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/prometheus/client_golang/prometheus"
)

// Fetcher downloads and normalizes a single feed.
type Fetcher struct {
	parser      *gofeed.Parser
	detector    *Detector
	maxArticles int
}

// FetchResult is a parsed feed: its discovered title plus the usable
// entries converted to articles.
type FetchResult struct {
	Title    string
	Articles []models.Article
}

// NewFetcher builds a fetcher. detector may be nil to skip language
// detection.
func NewFetcher(userAgent string, maxArticles int, detector *Detector) *Fetcher {
	parser := gofeed.NewParser()
	parser.UserAgent = userAgent

	if maxArticles <= 0 {
		maxArticles = config.DefaultMaxArticlesPerFeed
	}

	return &Fetcher{
		parser:      parser,
		detector:    detector,
		maxArticles: maxArticles,
	}
}

// Fetch downloads the feed, retrying transient failures, and converts
// entries that carry a link, a title and a date. Incomplete entries are
// skipped, not errors.
func (f *Fetcher) Fetch(ctx context.Context, feed models.Feed) (FetchResult, error) {
	timer := prometheus.NewTimer(fetchDuration)
	defer timer.ObserveDuration()

	var parsed *gofeed.Feed

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		var err error
		parsed, err = f.parser.ParseURLWithContext(feed.URL, ctx)
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		feedsFetched.WithLabelValues("error").Inc()
		return FetchResult{}, fmt.Errorf("failed to fetch feed %s: %w", feed.URL, err)
	}

	feedsFetched.WithLabelValues("ok").Inc()

	result := FetchResult{Title: strings.TrimSpace(parsed.Title)}
	for _, item := range parsed.Items {
		if len(result.Articles) >= f.maxArticles {
			break
		}

		article, ok := f.convertItem(feed, item)
		if !ok {
			continue
		}
		result.Articles = append(result.Articles, article)
	}

	return result, nil
}

func (f *Fetcher) convertItem(feed models.Feed, item *gofeed.Item) (models.Article, bool) {
	if item == nil || item.Link == "" || strings.TrimSpace(item.Title) == "" {
		return models.Article{}, false
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if published == nil {
		// Entries without a date cannot be ordered
		return models.Article{}, false
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	text := sanitize.Text(content)

	article := models.Article{
		FeedID:      feed.ID,
		Title:       strings.TrimSpace(item.Title),
		URL:         item.Link,
		Publisher:   feed.Name,
		PublishedAt: published.UTC(),
		ContentHTML: sanitize.Clean(content),
		ContentText: text,
		WordCount:   sanitize.WordCount(text),
	}

	if f.detector != nil {
		article.Language = f.detector.Detect(text)
	}

	return article, true
}
