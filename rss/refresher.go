package rss

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gleaner/config"
	"gleaner/db"
	"gleaner/models"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Notifier receives ingest events, e.g. for the event stream.
type Notifier interface {
	ArticleCreated(article models.Article)
	RefreshCompleted(event models.RefreshCompletedEvent)
}

// Refresher walks the registered feeds and stores whatever is new. Only
// one refresh cycle runs at a time; attempts to start another are
// dropped, not queued.
type Refresher struct {
	store    *db.DB
	fetcher  *Fetcher
	notifier Notifier
	workers  int
	running  atomic.Bool
}

func NewRefresher(store *db.DB, fetcher *Fetcher, notifier Notifier, workers int) *Refresher {
	if workers <= 0 {
		workers = 4
	}
	return &Refresher{
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		workers:  workers,
	}
}

// Running reports whether a refresh cycle is in flight.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// TryRefreshAll starts a refresh cycle in the background unless one is
// already running. Reports whether a cycle was started.
func (r *Refresher) TryRefreshAll(ctx context.Context) bool {
	if !r.running.CompareAndSwap(false, true) {
		log.Info("Refresh already running, skipping")
		return false
	}

	go func() {
		defer r.running.Store(false)
		r.refreshAll(ctx)
	}()

	return true
}

// RefreshAll runs one refresh cycle synchronously. The bool reports
// whether the cycle ran or was skipped because one was in flight.
func (r *Refresher) RefreshAll(ctx context.Context) (models.RefreshCompletedEvent, bool) {
	if !r.running.CompareAndSwap(false, true) {
		return models.RefreshCompletedEvent{}, false
	}
	defer r.running.Store(false)

	return r.refreshAll(ctx), true
}

func (r *Refresher) refreshAll(ctx context.Context) models.RefreshCompletedEvent {
	refreshRunning.Set(1)
	defer refreshRunning.Set(0)

	start := time.Now()

	feeds, err := r.store.ListFeeds()
	if err != nil {
		log.WithError(err).Error("Failed to list feeds")
		return models.RefreshCompletedEvent{CompletedAt: time.Now().UTC()}
	}

	// Feeds without their own interval follow the global setting
	fallback := config.DefaultFetchIntervalMinutes
	if settings, err := r.store.GetSettings(); err == nil && settings.RSSCheckIntervalMinutes > 0 {
		fallback = settings.RSSCheckIntervalMinutes
	}

	due := lo.Filter(feeds, func(feed models.Feed, _ int) bool {
		return feedDue(feed, start, fallback)
	})

	var newArticles atomic.Int64

	queue := make(chan models.Feed)
	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for feed := range queue {
				created, err := r.RefreshFeed(ctx, feed)
				if err != nil {
					log.WithField("feed", feed.URL).WithError(err).Error("Feed refresh failed")
				}
				newArticles.Add(int64(created))
			}
		}()
	}

produce:
	for _, feed := range due {
		select {
		case <-ctx.Done():
			break produce
		case queue <- feed:
		}
	}
	close(queue)
	wg.Wait()

	event := models.RefreshCompletedEvent{
		FeedsChecked:   len(due),
		NewArticles:    int(newArticles.Load()),
		ElapsedSeconds: time.Since(start).Seconds(),
		CompletedAt:    time.Now().UTC(),
	}

	log.WithFields(log.Fields{
		"feeds":   event.FeedsChecked,
		"new":     event.NewArticles,
		"elapsed": event.ElapsedSeconds,
	}).Info("Refresh cycle completed")

	if r.notifier != nil {
		r.notifier.RefreshCompleted(event)
	}

	return event
}

// RefreshFeed fetches one feed and stores its new articles. The fetch
// timestamp is recorded even on failure so a broken feed is not retried
// on every cycle.
func (r *Refresher) RefreshFeed(ctx context.Context, feed models.Feed) (int, error) {
	result, err := r.fetcher.Fetch(ctx, feed)

	if touchErr := r.store.TouchFeedFetched(feed.ID, time.Now()); touchErr != nil {
		log.WithField("feed", feed.URL).WithError(touchErr).Error("Failed to record fetch time")
	}

	if err != nil {
		return 0, err
	}

	// Backfill the feed name from the feed title when the user gave none
	if feed.Name == "" && result.Title != "" {
		if err := r.store.UpdateFeedName(feed.ID, result.Title); err != nil {
			log.WithField("feed", feed.URL).WithError(err).Error("Failed to update feed name")
		} else {
			feed.Name = result.Title
		}
	}

	created := 0
	for _, article := range result.Articles {
		article.Publisher = feed.Name

		id, inserted, err := r.store.CreateArticle(article)
		if err != nil {
			log.WithFields(log.Fields{
				"feed":    feed.URL,
				"article": article.URL,
			}).WithError(err).Error("Failed to store article")
			continue
		}
		if !inserted {
			continue
		}

		created++
		articlesCreated.Inc()

		if r.notifier != nil {
			article.ID = id
			r.notifier.ArticleCreated(article)
		}
	}

	if created > 0 {
		log.WithFields(log.Fields{
			"feed": feed.URL,
			"new":  created,
		}).Info("Stored new articles")
	}

	return created, nil
}

// feedDue reports whether a feed is due for fetching. Never-fetched
// feeds are always due.
func feedDue(feed models.Feed, now time.Time, fallbackMinutes int) bool {
	if feed.LastFetchedAt == nil {
		return true
	}

	minutes := feed.FetchIntervalMinutes
	if minutes <= 0 {
		minutes = fallbackMinutes
	}

	return now.Sub(*feed.LastFetchedAt) >= time.Duration(minutes)*time.Minute
}
