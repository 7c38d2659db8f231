package tui

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gleaner/config"
	"gleaner/models"
)

// fakeBackend records calls and answers from canned fields, so tests
// can drive the update loop without a server.
type fakeBackend struct {
	summariesResponse models.SummariesResponse
	summariesErr      error
	favoriteResult    models.ProcessedArticle
	content           models.ArticleContent
	chatResponse      models.ChatResponse
	settings          models.Settings
	refresh           models.RefreshStatus
	feeds             []models.Feed

	summariesCalls []models.SummariesRequest
	favoriteCalls  []int64
	chatCalls      []models.ChatRequest
	saveCalls      []models.SettingsUpdate
	refreshCalls   int
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) InitialConfig(context.Context) (models.InitialConfig, error) {
	return models.InitialConfig{
		Settings: config.DefaultSettings(),
		Defaults: config.DefaultSettings(),
		Feeds:    f.feeds,
	}, nil
}

func (f *fakeBackend) SaveConfig(_ context.Context, update models.SettingsUpdate) (models.Settings, error) {
	f.saveCalls = append(f.saveCalls, update)
	return f.settings, nil
}

func (f *fakeBackend) Summaries(_ context.Context, request models.SummariesRequest) (models.SummariesResponse, error) {
	f.summariesCalls = append(f.summariesCalls, request)
	return f.summariesResponse, f.summariesErr
}

func (f *fakeBackend) NewArticlesStatus(context.Context, string) (models.NewArticlesStatus, error) {
	return models.NewArticlesStatus{}, nil
}

func (f *fakeBackend) ToggleFavorite(_ context.Context, id int64) (models.ProcessedArticle, error) {
	f.favoriteCalls = append(f.favoriteCalls, id)
	return f.favoriteResult, nil
}

func (f *fakeBackend) RegenerateSummary(_ context.Context, id int64, _ models.RegenerateRequest) (models.ProcessedArticle, error) {
	return f.favoriteResult, nil
}

func (f *fakeBackend) ArticleContent(context.Context, int64) (models.ArticleContent, error) {
	return f.content, nil
}

func (f *fakeBackend) ChatHistory(_ context.Context, id int64) (models.ChatHistory, error) {
	return models.ChatHistory{ArticleID: id}, nil
}

func (f *fakeBackend) Chat(_ context.Context, request models.ChatRequest) (models.ChatResponse, error) {
	f.chatCalls = append(f.chatCalls, request)
	return f.chatResponse, nil
}

func (f *fakeBackend) ListFeeds(context.Context) ([]models.Feed, error) {
	return f.feeds, nil
}

func (f *fakeBackend) CreateFeed(_ context.Context, input models.FeedInput) (models.Feed, error) {
	return models.Feed{ID: 99, URL: input.URL, Name: input.Name}, nil
}

func (f *fakeBackend) UpdateFeed(_ context.Context, id int64, _ models.FeedUpdate) (models.Feed, error) {
	return models.Feed{ID: id}, nil
}

func (f *fakeBackend) DeleteFeed(context.Context, int64) error { return nil }

func (f *fakeBackend) TriggerRefresh(context.Context) (models.RefreshStatus, error) {
	f.refreshCalls++
	return f.refresh, nil
}

func sampleArticles(ids ...int64) []models.ProcessedArticle {
	articles := make([]models.ProcessedArticle, 0, len(ids))
	for _, id := range ids {
		articles = append(articles, models.ProcessedArticle{
			ID:          id,
			Title:       fmt.Sprintf("Article %d", id),
			Publisher:   "example.com",
			PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			Summary:     "A short summary of the article.",
			WordCount:   400,
		})
	}
	return articles
}

func newTestModel(t *testing.T, backend Backend) Model {
	t.Helper()
	m := NewModel(backend)
	m.width = 100
	m.height = 30
	m.session.Load(models.InitialConfig{
		Settings: config.DefaultSettings(),
		Defaults: config.DefaultSettings(),
	})
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	next, ok := updated.(Model)
	require.True(t, ok)
	return next, cmd
}

func pressKey(t *testing.T, m Model, key string) (Model, tea.Cmd) {
	t.Helper()
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "ctrl+s":
		msg = tea.KeyMsg{Type: tea.KeyCtrlS}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	return update(t, m, msg)
}

func loadPage(t *testing.T, m Model, page int, total int, articles ...int64) Model {
	t.Helper()
	m, _ = update(t, m, listLoadedMsg{page: page, response: models.SummariesResponse{
		ProcessedArticlesOnPage: sampleArticles(articles...),
		TotalArticlesAvailable:  total,
	}})
	return m
}

func TestInitialConfigBootstrapsModel(t *testing.T) {
	backend := &fakeBackend{feeds: []models.Feed{{ID: 1, Name: "Ars"}}}
	m := NewModel(backend)

	m, cmd := update(t, m, initialConfigMsg{config: models.InitialConfig{
		Settings:        config.DefaultSettings(),
		Defaults:        config.DefaultSettings(),
		AvailableModels: []string{"small", "large"},
		Feeds:           backend.feeds,
	}})

	require.NotNil(t, cmd, "bootstrap must schedule the first page fetch")
	assert.True(t, m.loading)
	assert.Equal(t, backend.feeds, m.feeds)
	assert.Equal(t, []string{"small", "large"}, m.availableModels)
	assert.Equal(t, config.DefaultPageSize, m.session.PageSize())
}

func TestFirstPageReplacesList(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})

	m = loadPage(t, m, 1, 13, 1, 2, 3)

	assert.False(t, m.loading)
	assert.Len(t, m.articles, 3)
	assert.Equal(t, 3, m.session.TotalPages())
	assert.Equal(t, 0, m.cursor)
}

func TestScrollPastBottomLoadsNextPageOnce(t *testing.T) {
	backend := &fakeBackend{summariesResponse: models.SummariesResponse{
		ProcessedArticlesOnPage: sampleArticles(6, 7, 8),
		TotalArticlesAvailable:  18,
	}}
	m := newTestModel(t, backend)
	m = loadPage(t, m, 1, 18, 1, 2, 3, 4, 5, 6)
	m.cursor = 5

	m, cmd := pressKey(t, m, "j")
	require.NotNil(t, cmd)
	assert.Equal(t, 2, m.session.Page())
	assert.True(t, m.session.LoadingMore())

	// A second trigger while the fetch is pending is dropped.
	m, dropped := pressKey(t, m, "j")
	assert.Nil(t, dropped)

	msg := cmd()
	require.Len(t, backend.summariesCalls, 1)
	assert.Equal(t, 2, backend.summariesCalls[0].Page)

	loaded, ok := msg.(listLoadedMsg)
	require.True(t, ok)
	m, _ = update(t, m, loaded)

	// Article 6 was already on screen; the append dedupes it.
	assert.Len(t, m.articles, 8)
	assert.False(t, m.session.LoadingMore())
}

func TestLoadMoreErrorKeepsPageAndClamps(t *testing.T) {
	backend := &fakeBackend{summariesErr: errors.New("boom")}
	m := newTestModel(t, backend)
	m = loadPage(t, m, 1, 18, 1, 2, 3, 4, 5, 6)
	m.cursor = 5

	m, cmd := pressKey(t, m, "j")
	require.NotNil(t, cmd)

	m, _ = update(t, m, cmd())

	assert.Equal(t, "boom", m.moreErr)
	assert.Len(t, m.articles, 6, "the loaded cards stay on screen")
	assert.False(t, m.session.CanLoadMore())
	assert.False(t, m.session.LoadingMore())
}

func TestPollWithNewArticlesResetsToFrontPage(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)
	m.session.ApplyKeywordFilter("mars")

	m, cmd := update(t, m, pollStatusMsg{status: models.NewArticlesStatus{
		NewArticlesAvailable:   true,
		LatestArticleTimestamp: "2026-03-02T08:00:00Z",
	}})

	require.NotNil(t, cmd)
	assert.Equal(t, FilterNone, m.session.FilterKind())
	assert.Equal(t, 1, m.session.Page())
	assert.Equal(t, "2026-03-02T08:00:00Z", m.session.Watermark())

	cmd()
	require.Len(t, backend.summariesCalls, 1)
	assert.Empty(t, backend.summariesCalls[0].Keyword)
	assert.Equal(t, 1, backend.summariesCalls[0].Page)
}

func TestPollWithoutNewArticlesOnlyMovesWatermark(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	m.session.ApplyKeywordFilter("mars")

	status := models.NewArticlesStatus{LatestArticleTimestamp: "2026-03-02T08:00:00Z"}
	m, cmd := update(t, m, pollStatusMsg{status: status})

	assert.Nil(t, cmd, "no refetch without new articles")
	assert.Equal(t, FilterKeyword, m.session.FilterKind())
	assert.Equal(t, "2026-03-02T08:00:00Z", m.session.Watermark())

	// The same status again is a no-op.
	m, cmd = update(t, m, pollStatusMsg{status: status})
	assert.Nil(t, cmd)
	assert.Equal(t, "2026-03-02T08:00:00Z", m.session.Watermark())
}

func TestSearchAppliesKeywordFilter(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	m = loadPage(t, m, 1, 3, 1, 2, 3)

	m, _ = pressKey(t, m, "/")
	assert.True(t, m.searching)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("mars")})
	m, cmd := pressKey(t, m, "enter")

	require.NotNil(t, cmd)
	assert.False(t, m.searching)
	assert.Equal(t, FilterKeyword, m.session.FilterKind())
	assert.Equal(t, "mars", m.session.Keyword())
	assert.True(t, m.loading)
}

func TestDigitKeysToggleTags(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	articles := sampleArticles(1)
	articles[0].Tags = []models.Tag{{ID: 101, Name: "space"}, {ID: 102, Name: "ai"}}
	m, _ = update(t, m, listLoadedMsg{page: 1, response: models.SummariesResponse{
		ProcessedArticlesOnPage: articles,
		TotalArticlesAvailable:  1,
	}})

	m, cmd := pressKey(t, m, "2")
	require.NotNil(t, cmd)
	assert.Equal(t, FilterTags, m.session.FilterKind())
	assert.Equal(t, []int64{102}, m.session.TagIDs())

	// Toggling the same tag off empties the selection.
	m, _ = pressKey(t, m, "2")
	assert.Equal(t, FilterNone, m.session.FilterKind())

	// A digit past the article's tags does nothing.
	m, cmd = pressKey(t, m, "9")
	assert.Nil(t, cmd)
}

func TestFavoriteToggleReplacesCard(t *testing.T) {
	starred := sampleArticles(1)[0]
	starred.Favorite = true
	backend := &fakeBackend{favoriteResult: starred}
	m := newTestModel(t, backend)
	m = loadPage(t, m, 1, 2, 1, 2)

	m, cmd := pressKey(t, m, "s")
	require.NotNil(t, cmd)

	m, _ = update(t, m, cmd())

	assert.Equal(t, []int64{1}, backend.favoriteCalls)
	assert.True(t, m.articles[0].Favorite)
	assert.False(t, m.articles[1].Favorite)
}

func TestReaderLoadsSanitizedContent(t *testing.T) {
	backend := &fakeBackend{content: models.ArticleContent{
		ArticleID:   1,
		Title:       "Article 1",
		ContentHTML: "<p>Hello <b>world</b></p><script>alert(1)</script>",
	}}
	m := newTestModel(t, backend)
	m = loadPage(t, m, 1, 1, 1)

	m, cmd := pressKey(t, m, "enter")
	require.NotNil(t, cmd)
	assert.Equal(t, modeReader, m.mode)
	assert.True(t, m.reader.loading)

	m, _ = update(t, m, cmd())

	assert.False(t, m.reader.loading)
	assert.Contains(t, m.reader.text, "Hello world")
	assert.NotContains(t, m.reader.text, "alert")

	// A stale content message for another article is ignored.
	m, _ = update(t, m, contentLoadedMsg{content: models.ArticleContent{ArticleID: 42, ContentHTML: "<p>other</p>"}})
	assert.Contains(t, m.reader.text, "Hello world")
}

func TestChatSendsPriorTranscriptOnly(t *testing.T) {
	backend := &fakeBackend{chatResponse: models.ChatResponse{Answer: "Because orbits decay."}}
	m := newTestModel(t, backend)
	m = loadPage(t, m, 1, 1, 1)

	m, _ = pressKey(t, m, "c")
	require.Equal(t, modeChat, m.mode)

	m, _ = update(t, m, chatHistoryMsg{history: models.ChatHistory{
		ArticleID: 1,
		Messages: []models.ChatMessage{
			{Role: models.ChatRoleUser, Content: "What is this about?"},
			{Role: models.ChatRoleAssistant, Content: "Satellites."},
		},
	}})
	require.Len(t, m.chat.messages, 2)

	m.chat.input.SetValue("Why do they fall?")
	m, cmd := pressKey(t, m, "enter")
	require.NotNil(t, cmd)

	// The question and a placeholder answer appear immediately.
	require.Len(t, m.chat.messages, 4)
	assert.Equal(t, "Why do they fall?", m.chat.messages[2].Content)
	assert.Equal(t, pendingAnswer, m.chat.messages[3].Content)
	assert.True(t, m.chat.waiting)

	msg := cmd()
	require.Len(t, backend.chatCalls, 1)
	sent := backend.chatCalls[0]
	assert.Equal(t, "Why do they fall?", sent.Question)
	require.Len(t, sent.ChatHistory, 2, "the optimistic turns stay out of the upstream transcript")
	assert.Equal(t, "Satellites.", sent.ChatHistory[1].Content)

	m, _ = update(t, m, msg)
	assert.False(t, m.chat.waiting)
	assert.Equal(t, "Because orbits decay.", m.chat.messages[3].Content)

	// An answer for a different article cannot clobber this transcript.
	m, _ = update(t, m, chatAnswerMsg{articleID: 42, answer: "stale"})
	assert.Equal(t, "Because orbits decay.", m.chat.messages[3].Content)
}

func TestChatErrorReplacesPlaceholder(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	m = loadPage(t, m, 1, 1, 1)
	m, _ = pressKey(t, m, "c")
	m, _ = update(t, m, chatHistoryMsg{history: models.ChatHistory{ArticleID: 1}})

	m.chat.input.SetValue("Why?")
	m, _ = pressKey(t, m, "enter")
	require.Len(t, m.chat.messages, 2)

	m, _ = update(t, m, chatErrMsg{articleID: 1, err: errors.New("model unavailable")})

	assert.False(t, m.chat.waiting)
	assert.Equal(t, "model unavailable", m.chat.err)
	assert.Equal(t, "The answer failed: model unavailable", m.chat.messages[1].Content)
	assert.Equal(t, "Why?", m.chat.messages[0].Content, "the question stays in the transcript")
}

func TestEmptyChatQuestionIsNotSent(t *testing.T) {
	backend := &fakeBackend{}
	m := newTestModel(t, backend)
	m = loadPage(t, m, 1, 1, 1)
	m, _ = pressKey(t, m, "c")
	m, _ = update(t, m, chatHistoryMsg{history: models.ChatHistory{ArticleID: 1}})

	m.chat.input.SetValue("   ")
	m, cmd := pressKey(t, m, "enter")

	assert.Nil(t, cmd)
	assert.Empty(t, m.chat.messages)
	assert.Empty(t, backend.chatCalls)
}

func TestFeedDeletionDropsItsFilter(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	m.session.ApplyFeedFilter(4)

	m, cmd := update(t, m, feedDeletedMsg{id: 4})

	require.NotNil(t, cmd)
	assert.Equal(t, FilterNone, m.session.FilterKind())
	assert.True(t, m.loading, "the unfiltered front page reloads")
	assert.Equal(t, "Feed removed", m.status)
}

func TestUnrelatedFeedDeletionKeepsFilter(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	m.session.ApplyFeedFilter(4)

	m, _ = update(t, m, feedDeletedMsg{id: 9})

	assert.Equal(t, FilterFeed, m.session.FilterKind())
	assert.Equal(t, int64(4), m.session.FeedID())
	assert.False(t, m.loading)
}

func TestSettingsValidationBlocksBadSaves(t *testing.T) {
	tests := []struct {
		name    string
		field   int
		value   string
		wantErr string
	}{
		{"page size zero", settingPageSize, "0", fmt.Sprintf("Page size must be between 1 and %d.", config.MaxPageSize)},
		{"page size huge", settingPageSize, "500", fmt.Sprintf("Page size must be between 1 and %d.", config.MaxPageSize)},
		{"interval too short", settingInterval, "2", fmt.Sprintf("RSS check interval must be at least %d minutes.", config.MinFetchIntervalMinutes)},
		{"negative word count", settingMinWords, "-1", "Minimum word count cannot be negative."},
		{"summary prompt without placeholder", settingSummaryPrompt, "just summarize", "Summary prompt must contain the {text} placeholder."},
		{"chat prompt without placeholder", settingChatPrompt, "just answer", "Chat prompt must contain the {question} placeholder."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			m := newTestModel(t, backend)
			m.mode = modeSettings
			m.settingsView.load(config.DefaultSettings())
			m.settingsView.fields[tt.field].value = tt.value

			m, cmd := pressKey(t, m, "ctrl+s")

			assert.Nil(t, cmd, "invalid settings never reach the server")
			assert.Equal(t, tt.wantErr, m.settingsView.err)
			assert.Empty(t, backend.saveCalls)
		})
	}
}

func TestSettingsSaveAppliesServerResponse(t *testing.T) {
	saved := config.DefaultSettings()
	saved.PageSize = 12
	backend := &fakeBackend{settings: saved}
	m := newTestModel(t, backend)
	m.mode = modeSettings
	m.settingsView.load(config.DefaultSettings())
	m.settingsView.fields[settingPageSize].value = "12"

	m, cmd := pressKey(t, m, "ctrl+s")
	require.NotNil(t, cmd)

	msg := cmd()
	require.Len(t, backend.saveCalls, 1)
	require.NotNil(t, backend.saveCalls[0].PageSize)
	assert.Equal(t, 12, *backend.saveCalls[0].PageSize)

	m, _ = update(t, m, msg)
	assert.Equal(t, 12, m.session.PageSize())
	assert.Equal(t, 1, m.session.Page())
	assert.Equal(t, "Settings saved", m.status)
	assert.True(t, m.loading)
}

func TestRefreshKeyReportsStatus(t *testing.T) {
	backend := &fakeBackend{refresh: models.RefreshStatus{Status: models.RefreshStarted}}
	m := newTestModel(t, backend)

	m, cmd := pressKey(t, m, "r")
	require.NotNil(t, cmd)

	m, _ = update(t, m, cmd())
	assert.Equal(t, 1, backend.refreshCalls)
	assert.Equal(t, "Refresh started", m.status)

	m, _ = update(t, m, refreshTriggeredMsg{status: models.RefreshStatus{Status: models.RefreshAlreadyRunning}})
	assert.Equal(t, "Refresh already running", m.status)
}

func TestStaleStatusClearIsIgnored(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})

	m, _ = update(t, m, refreshTriggeredMsg{status: models.RefreshStatus{Status: models.RefreshStarted}})
	first := m.statusID
	m, _ = update(t, m, refreshTriggeredMsg{status: models.RefreshStatus{Status: models.RefreshAlreadyRunning}})

	m, _ = update(t, m, statusClearMsg{id: first})
	assert.Equal(t, "Refresh already running", m.status, "an old clear must not wipe a newer status")

	m, _ = update(t, m, statusClearMsg{id: m.statusID})
	assert.Empty(t, m.status)
}

func TestViewRendersEachMode(t *testing.T) {
	m := newTestModel(t, &fakeBackend{})
	articles := sampleArticles(1, 2)
	articles[0].Tags = []models.Tag{{ID: 101, Name: "space"}}
	m, _ = update(t, m, listLoadedMsg{page: 1, response: models.SummariesResponse{
		ProcessedArticlesOnPage: articles,
		TotalArticlesAvailable:  2,
	}})

	out := m.View()
	assert.Contains(t, out, "gleaner")
	assert.Contains(t, out, "Article 1")
	assert.Contains(t, out, "[1 space]")

	m.mode = modeFeeds
	m.feeds = []models.Feed{{ID: 1, Name: "Ars Technica", URL: "https://arstechnica.com/feed", FetchIntervalMinutes: 60}}
	assert.Contains(t, m.View(), "Ars Technica")

	m.mode = modeSettings
	m.settingsView.load(config.DefaultSettings())
	assert.Contains(t, m.View(), "Summary prompt")

	m.mode = modeList
	m.session.ApplyKeywordFilter("mars")
	assert.Contains(t, m.View(), `"mars"`)
}
