package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"gleaner/config"
	"gleaner/db"
	"gleaner/llm"
	"gleaner/models"
	"gleaner/rss"
	"gleaner/server"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	answer string
	err    error
}

func (f *fakeClient) Complete(ctx context.Context, request llm.CompletionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

const articleText = "The probe returned a detailed map of the asteroid belt, " +
	"charting thousands of objects that had never been catalogued before."

func testDB(t *testing.T) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gleaner.db")
	require.NoError(t, db.Migrate(path))

	database, err := db.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return database
}

func testApp(t *testing.T, database *db.DB, client llm.Client) *fiber.App {
	t.Helper()

	generator := llm.NewGenerator(client)

	return server.Server(&server.ServerConfig{
		Store:           database,
		Processor:       llm.NewProcessor(database, generator),
		Generator:       generator,
		Refresher:       rss.NewRefresher(database, rss.NewFetcher("gleaner-test/1.0", 0, nil), nil, 1),
		Broadcaster:     server.NewBroadcaster(),
		AvailableModels: []string{"gpt-4o-mini", "gpt-4o"},
	})
}

func jsonRequest(t *testing.T, method string, target string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()

	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func seedFeed(t *testing.T, database *db.DB, url string) models.Feed {
	t.Helper()

	feed, err := database.CreateFeed(models.FeedInput{URL: url, Name: "Test Feed"})
	require.NoError(t, err)
	return feed
}

func seedArticle(t *testing.T, database *db.DB, feedID int64, title string, published time.Time) int64 {
	t.Helper()

	id, created, err := database.CreateArticle(models.Article{
		FeedID:      feedID,
		Title:       title,
		URL:         "https://example.com/" + title,
		PublishedAt: published,
		ContentText: articleText,
		ContentHTML: "<p>" + articleText + "</p>",
		WordCount:   20,
	})
	require.NoError(t, err)
	require.True(t, created)
	return id
}

func TestInitialConfig(t *testing.T) {
	database := testDB(t)
	seedFeed(t, database, "https://example.com/feed.xml")
	app := testApp(t, database, &fakeClient{answer: "ok"})

	resp, err := app.Test(jsonRequest(t, "GET", "/api/initial-config", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var initial models.InitialConfig
	decodeJSON(t, resp, &initial)

	assert.Equal(t, config.DefaultPageSize, initial.Settings.PageSize)
	assert.Equal(t, config.DefaultSummaryPrompt, initial.Defaults.SummaryPrompt)
	assert.Contains(t, initial.AvailableModels, "gpt-4o-mini")
	require.Len(t, initial.Feeds, 1)
	assert.Equal(t, "Test Feed", initial.Feeds[0].Name)
}

func TestUpdateConfig(t *testing.T) {
	database := testDB(t)
	app := testApp(t, database, &fakeClient{answer: "ok"})

	pageSize := 12
	resp, err := app.Test(jsonRequest(t, "PUT", "/api/config", models.SettingsUpdate{PageSize: &pageSize}), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var settings models.Settings
	decodeJSON(t, resp, &settings)
	assert.Equal(t, 12, settings.PageSize)

	stored, err := database.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, 12, stored.PageSize)
}

func TestUpdateConfigValidation(t *testing.T) {
	database := testDB(t)
	app := testApp(t, database, &fakeClient{answer: "ok"})

	badPageSize := 99
	badInterval := 1
	badPrompt := "Summarize this."

	tests := []struct {
		name   string
		update models.SettingsUpdate
	}{
		{name: "page size out of range", update: models.SettingsUpdate{PageSize: &badPageSize}},
		{name: "interval below minimum", update: models.SettingsUpdate{RSSCheckIntervalMinutes: &badInterval}},
		{name: "summary prompt missing placeholder", update: models.SettingsUpdate{SummaryPrompt: &badPrompt}},
		{name: "chat prompt missing placeholder", update: models.SettingsUpdate{ChatPrompt: &badPrompt}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(jsonRequest(t, "PUT", "/api/config", tt.update), -1)
			require.NoError(t, err)
			assert.Equal(t, 400, resp.StatusCode)

			var body map[string]string
			decodeJSON(t, resp, &body)
			assert.NotEmpty(t, body["detail"])
		})
	}
}

func TestSummariesPage(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")

	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 3; i++ {
		seedArticle(t, database, feed.ID, fmt.Sprintf("story-%d", i), base.Add(time.Duration(i)*time.Hour))
	}

	app := testApp(t, database, &fakeClient{answer: "A tidy summary."})

	resp, err := app.Test(jsonRequest(t, "POST", "/api/articles/summaries", models.SummariesRequest{Page: 1, PageSize: 2}), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var page models.SummariesResponse
	decodeJSON(t, resp, &page)

	assert.Equal(t, 3, page.TotalArticlesAvailable)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.ProcessedArticlesOnPage, 2)

	// Newest first, with summaries generated on demand
	assert.Equal(t, "story-2", page.ProcessedArticlesOnPage[0].Title)
	assert.Equal(t, "A tidy summary.", page.ProcessedArticlesOnPage[0].Summary)
	assert.False(t, page.ProcessedArticlesOnPage[0].SummaryError)
}

func TestSummariesPageClampsPastEnd(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")
	seedArticle(t, database, feed.ID, "only", time.Now())

	app := testApp(t, database, &fakeClient{answer: "A tidy summary."})

	resp, err := app.Test(jsonRequest(t, "POST", "/api/articles/summaries", models.SummariesRequest{Page: 99, PageSize: 6}), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var page models.SummariesResponse
	decodeJSON(t, resp, &page)

	assert.Equal(t, 1, page.TotalPages)
	require.Len(t, page.ProcessedArticlesOnPage, 1)
	assert.Equal(t, "only", page.ProcessedArticlesOnPage[0].Title)
}

func TestFavoriteToggle(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")
	id := seedArticle(t, database, feed.ID, "starred", time.Now())

	app := testApp(t, database, &fakeClient{answer: "ok"})

	resp, err := app.Test(jsonRequest(t, "POST", fmt.Sprintf("/api/articles/%d/favorite", id), nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var card models.ProcessedArticle
	decodeJSON(t, resp, &card)
	assert.True(t, card.Favorite)

	resp, err = app.Test(jsonRequest(t, "POST", fmt.Sprintf("/api/articles/%d/favorite", id), nil), -1)
	require.NoError(t, err)
	decodeJSON(t, resp, &card)
	assert.False(t, card.Favorite)

	resp, err = app.Test(jsonRequest(t, "POST", "/api/articles/9999/favorite", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestRegenerateSummary(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")
	id := seedArticle(t, database, feed.ID, "regen", time.Now())

	app := testApp(t, database, &fakeClient{answer: "Fresh take."})

	resp, err := app.Test(jsonRequest(t, "POST", fmt.Sprintf("/api/articles/%d/regenerate-summary", id), models.RegenerateRequest{}), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var card models.ProcessedArticle
	decodeJSON(t, resp, &card)
	assert.Equal(t, "Fresh take.", card.Summary)

	summary, ok, err := database.CurrentSummary(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Fresh take.", summary.Content)

	resp, err = app.Test(jsonRequest(t, "POST", "/api/articles/9999/regenerate-summary", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestNewArticlesStatus(t *testing.T) {
	database := testDB(t)
	app := testApp(t, database, &fakeClient{answer: "ok"})

	resp, err := app.Test(jsonRequest(t, "GET", "/api/articles/status/new-articles", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var status models.NewArticlesStatus
	decodeJSON(t, resp, &status)
	assert.False(t, status.NewArticlesAvailable)
	assert.Zero(t, status.ArticleCount)
	assert.Empty(t, status.LatestArticleTimestamp)

	feed := seedFeed(t, database, "https://example.com/feed.xml")
	seedArticle(t, database, feed.ID, "one", time.Now())
	seedArticle(t, database, feed.ID, "two", time.Now())

	resp, err = app.Test(jsonRequest(t, "GET", "/api/articles/status/new-articles", nil), -1)
	require.NoError(t, err)
	decodeJSON(t, resp, &status)
	assert.False(t, status.NewArticlesAvailable)
	assert.Equal(t, int64(2), status.ArticleCount)
	require.NotEmpty(t, status.LatestArticleTimestamp)

	// Nothing newer than the reported watermark
	resp, err = app.Test(jsonRequest(t, "GET", "/api/articles/status/new-articles?since_timestamp="+status.LatestArticleTimestamp, nil), -1)
	require.NoError(t, err)
	decodeJSON(t, resp, &status)
	assert.False(t, status.NewArticlesAvailable)
	assert.Zero(t, status.ArticleCount)

	// Everything is newer than an hour-old watermark
	hourAgo := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	resp, err = app.Test(jsonRequest(t, "GET", "/api/articles/status/new-articles?since_timestamp="+hourAgo, nil), -1)
	require.NoError(t, err)
	decodeJSON(t, resp, &status)
	assert.True(t, status.NewArticlesAvailable)
	assert.Equal(t, int64(2), status.ArticleCount)

	resp, err = app.Test(jsonRequest(t, "GET", "/api/articles/status/new-articles?since_timestamp=yesterday", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestChatWithArticle(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")
	id := seedArticle(t, database, feed.ID, "chatty", time.Now())

	app := testApp(t, database, &fakeClient{answer: "Because the probe mapped it."})

	resp, err := app.Test(jsonRequest(t, "POST", "/api/chat-with-article", models.ChatRequest{ArticleID: id, Question: "Why?"}), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var chat models.ChatResponse
	decodeJSON(t, resp, &chat)
	assert.Equal(t, "Because the probe mapped it.", chat.Answer)

	resp, err = app.Test(jsonRequest(t, "GET", fmt.Sprintf("/api/article/%d/chat-history", id), nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var history models.ChatHistory
	decodeJSON(t, resp, &history)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, models.ChatRoleUser, history.Messages[0].Role)
	assert.Equal(t, "Why?", history.Messages[0].Content)
	assert.Equal(t, models.ChatRoleAssistant, history.Messages[1].Role)

	resp, err = app.Test(jsonRequest(t, "POST", "/api/chat-with-article", models.ChatRequest{ArticleID: id, Question: "  "}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestChatFailureReturns502(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")
	id := seedArticle(t, database, feed.ID, "chatty", time.Now())

	app := testApp(t, database, &fakeClient{err: errors.New("model overloaded")})

	resp, err := app.Test(jsonRequest(t, "POST", "/api/chat-with-article", models.ChatRequest{ArticleID: id, Question: "Why?"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 502, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Contains(t, body["detail"], "model overloaded")

	// Failed turns never reach the transcript
	messages, err := database.GetChatHistory(id)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestFeedsCRUD(t *testing.T) {
	database := testDB(t)
	app := testApp(t, database, &fakeClient{answer: "ok"})

	resp, err := app.Test(jsonRequest(t, "POST", "/api/feeds", models.FeedInput{URL: "https://www.example.com/rss.xml"}), -1)
	require.NoError(t, err)
	require.Equal(t, 201, resp.StatusCode)

	var feed models.Feed
	decodeJSON(t, resp, &feed)
	assert.Equal(t, "example.com", feed.Name)
	assert.Equal(t, config.DefaultFetchIntervalMinutes, feed.FetchIntervalMinutes)

	resp, err = app.Test(jsonRequest(t, "POST", "/api/feeds", models.FeedInput{URL: "https://www.example.com/rss.xml"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 409, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, "POST", "/api/feeds", models.FeedInput{URL: "not a url"}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	name := "Renamed"
	interval := 30
	resp, err = app.Test(jsonRequest(t, "PUT", fmt.Sprintf("/api/feeds/%d", feed.ID), models.FeedUpdate{Name: &name, FetchIntervalMinutes: &interval}), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	decodeJSON(t, resp, &feed)
	assert.Equal(t, "Renamed", feed.Name)
	assert.Equal(t, 30, feed.FetchIntervalMinutes)

	bad := -5
	resp, err = app.Test(jsonRequest(t, "PUT", fmt.Sprintf("/api/feeds/%d", feed.ID), models.FeedUpdate{FetchIntervalMinutes: &bad}), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, "DELETE", fmt.Sprintf("/api/feeds/%d", feed.ID), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 204, resp.StatusCode)

	resp, err = app.Test(jsonRequest(t, "DELETE", fmt.Sprintf("/api/feeds/%d", feed.ID), nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestTriggerRefresh(t *testing.T) {
	database := testDB(t)
	app := testApp(t, database, &fakeClient{answer: "ok"})

	resp, err := app.Test(jsonRequest(t, "POST", "/api/trigger-rss-refresh", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 202, resp.StatusCode)

	var status models.RefreshStatus
	decodeJSON(t, resp, &status)
	assert.Contains(t, []string{models.RefreshStarted, models.RefreshAlreadyRunning}, status.Status)
}

func TestCleanupOldData(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")
	seedArticle(t, database, feed.ID, "ancient", time.Now().AddDate(0, 0, -200))
	seedArticle(t, database, feed.ID, "recent", time.Now())

	app := testApp(t, database, &fakeClient{answer: "ok"})

	resp, err := app.Test(jsonRequest(t, "DELETE", "/api/admin/cleanup-old-data?days_old=90", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var result models.CleanupResult
	decodeJSON(t, resp, &result)
	assert.Equal(t, int64(1), result.DeletedArticles)

	resp, err = app.Test(jsonRequest(t, "DELETE", "/api/admin/cleanup-old-data?days_old=0", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestArticleContentRefetchesThinEntries(t *testing.T) {
	database := testDB(t)
	feed := seedFeed(t, database, "https://example.com/feed.xml")

	pageHTML := "<p>The probe returned a detailed map of the asteroid belt, charting " +
		"thousands of objects that had never been catalogued before. Mission scientists " +
		"called the dataset a once in a decade windfall for planetary defence work.</p>"
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(pageHTML))
	}))
	defer page.Close()

	id, created, err := database.CreateArticle(models.Article{
		FeedID:      feed.ID,
		Title:       "thin",
		URL:         page.URL + "/story",
		PublishedAt: time.Now(),
		ContentText: "too short",
		ContentHTML: "<p>too short</p>",
		WordCount:   2,
	})
	require.NoError(t, err)
	require.True(t, created)

	generator := llm.NewGenerator(&fakeClient{answer: "ok"})
	app := server.Server(&server.ServerConfig{
		Store:       database,
		Processor:   llm.NewProcessor(database, generator),
		Generator:   generator,
		Refresher:   rss.NewRefresher(database, rss.NewFetcher("gleaner-test/1.0", 0, nil), nil, 1),
		Scraper:     rss.NewScraper("gleaner-test/1.0"),
		Broadcaster: server.NewBroadcaster(),
	})

	resp, err := app.Test(jsonRequest(t, "GET", fmt.Sprintf("/api/articles/%d/content", id), nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var content models.ArticleContent
	decodeJSON(t, resp, &content)
	assert.Equal(t, id, content.ArticleID)
	assert.Contains(t, content.ContentHTML, "asteroid belt")

	stored, err := database.GetArticle(id)
	require.NoError(t, err)
	assert.Greater(t, stored.WordCount, 2)

	resp, err = app.Test(jsonRequest(t, "GET", "/api/articles/9999/content", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestBroadcaster(t *testing.T) {
	bc := server.NewBroadcaster()

	articles := make(chan models.ArticleCreatedEvent, 10)
	refreshes := make(chan models.RefreshCompletedEvent, 10)
	bc.AddClient("client-1", articles, refreshes)

	bc.ArticleCreated(models.Article{ID: 7, Title: "hello"})
	select {
	case event := <-articles:
		assert.Equal(t, int64(7), event.Article.ID)
	default:
		t.Fatal("expected a buffered article event")
	}

	bc.RefreshCompleted(models.RefreshCompletedEvent{NewArticles: 3})
	select {
	case event := <-refreshes:
		assert.Equal(t, 3, event.NewArticles)
	default:
		t.Fatal("expected a buffered refresh event")
	}

	bc.RemoveClient("client-1")
	_, open := <-articles
	assert.False(t, open)

	// Removing twice is a no-op
	bc.RemoveClient("client-1")

	// Broadcasting with no clients is fine
	bc.ArticleCreated(models.Article{ID: 8})
}
