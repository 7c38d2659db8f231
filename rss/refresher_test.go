package rss_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gleaner/db"
	"gleaner/models"
	"gleaner/rss"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu        sync.Mutex
	created   []models.Article
	completed []models.RefreshCompletedEvent
}

func (n *recordingNotifier) ArticleCreated(article models.Article) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, article)
}

func (n *recordingNotifier) RefreshCompleted(event models.RefreshCompletedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, event)
}

func (n *recordingNotifier) createdCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.created)
}

func testDB(t *testing.T) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gleaner.db")
	require.NoError(t, db.Migrate(path))

	database, err := db.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func TestRefreshAllStoresArticles(t *testing.T) {
	database := testDB(t)
	server := feedServer(t)

	// No name, so the refresher should adopt the feed title
	feed, err := database.CreateFeed(models.FeedInput{URL: server.URL})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	refresher := rss.NewRefresher(database, rss.NewFetcher("gleaner-test/1.0", 0, nil), notifier, 2)

	event, ran := refresher.RefreshAll(context.Background())
	require.True(t, ran)
	assert.Equal(t, 1, event.FeedsChecked)
	assert.Equal(t, 2, event.NewArticles)

	count, err := database.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, 2, notifier.createdCount())
	require.Len(t, notifier.completed, 1)
	assert.Equal(t, 2, notifier.completed[0].NewArticles)

	stored, err := database.GetFeed(feed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Example News", stored.Name)
	require.NotNil(t, stored.LastFetchedAt)
	assert.WithinDuration(t, time.Now(), *stored.LastFetchedAt, time.Minute)

	// A second pass over the same feed finds nothing new
	created, err := refresher.RefreshFeed(context.Background(), stored)
	require.NoError(t, err)
	assert.Zero(t, created)
}

func TestRefreshAllSkipsFreshFeeds(t *testing.T) {
	database := testDB(t)

	var requests int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer server.Close()

	feed, err := database.CreateFeed(models.FeedInput{URL: server.URL, Name: "Fresh"})
	require.NoError(t, err)
	require.NoError(t, database.TouchFeedFetched(feed.ID, time.Now()))

	refresher := rss.NewRefresher(database, rss.NewFetcher("gleaner-test/1.0", 0, nil), nil, 2)

	event, ran := refresher.RefreshAll(context.Background())
	require.True(t, ran)
	assert.Zero(t, event.FeedsChecked)
	assert.Zero(t, event.NewArticles)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, requests)
}

func TestTryRefreshAllDropsConcurrentRuns(t *testing.T) {
	database := testDB(t)

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML))
	}))
	defer server.Close()

	_, err := database.CreateFeed(models.FeedInput{URL: server.URL, Name: "Slow"})
	require.NoError(t, err)

	refresher := rss.NewRefresher(database, rss.NewFetcher("gleaner-test/1.0", 0, nil), nil, 2)

	assert.True(t, refresher.TryRefreshAll(context.Background()))
	assert.True(t, refresher.Running())
	assert.False(t, refresher.TryRefreshAll(context.Background()))

	close(release)
	assert.Eventually(t, func() bool { return !refresher.Running() }, 5*time.Second, 10*time.Millisecond)

	count, err := database.CountArticles()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
