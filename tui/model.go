package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"gleaner/client"
	"gleaner/models"
	"gleaner/sanitize"
)

// Backend is the slice of the REST API the reader uses. *client.Client
// satisfies it; tests substitute a fake.
type Backend interface {
	InitialConfig(ctx context.Context) (models.InitialConfig, error)
	SaveConfig(ctx context.Context, update models.SettingsUpdate) (models.Settings, error)
	Summaries(ctx context.Context, request models.SummariesRequest) (models.SummariesResponse, error)
	NewArticlesStatus(ctx context.Context, since string) (models.NewArticlesStatus, error)
	ToggleFavorite(ctx context.Context, id int64) (models.ProcessedArticle, error)
	RegenerateSummary(ctx context.Context, id int64, request models.RegenerateRequest) (models.ProcessedArticle, error)
	ArticleContent(ctx context.Context, id int64) (models.ArticleContent, error)
	ChatHistory(ctx context.Context, id int64) (models.ChatHistory, error)
	Chat(ctx context.Context, request models.ChatRequest) (models.ChatResponse, error)
	ListFeeds(ctx context.Context) ([]models.Feed, error)
	CreateFeed(ctx context.Context, input models.FeedInput) (models.Feed, error)
	UpdateFeed(ctx context.Context, id int64, update models.FeedUpdate) (models.Feed, error)
	DeleteFeed(ctx context.Context, id int64) error
	TriggerRefresh(ctx context.Context) (models.RefreshStatus, error)
}

const (
	requestTimeout = 15 * time.Second
	// Summary pages may generate summaries on demand, so they get the
	// long leash
	summariesTimeout = 2 * time.Minute
	pollInterval     = time.Minute
	statusLinger     = 4 * time.Second
)

type viewMode int

const (
	modeList viewMode = iota
	modeReader
	modeChat
	modeFeeds
	modeSettings
)

// Messages carrying command results back into the update loop.

type initialConfigMsg struct{ config models.InitialConfig }

type initialConfigErrMsg struct{ err error }

type listLoadedMsg struct {
	page     int
	response models.SummariesResponse
}

type listErrMsg struct {
	page int
	err  error
}

type pollTickMsg struct{}

type pollStatusMsg struct{ status models.NewArticlesStatus }

type pollErrMsg struct{ err error }

type favoriteToggledMsg struct{ article models.ProcessedArticle }

type summaryRegeneratedMsg struct{ article models.ProcessedArticle }

type contentLoadedMsg struct{ content models.ArticleContent }

type contentErrMsg struct{ err error }

type refreshTriggeredMsg struct{ status models.RefreshStatus }

type actionErrMsg struct{ err error }

type statusClearMsg struct{ id int }

type readerState struct {
	article  models.ProcessedArticle
	text     string
	loading  bool
	err      string
	viewport viewport.Model
}

// Model is the root Bubble Tea model. All backend calls run as
// commands; their result messages re-enter Update on the one logical
// thread, so state transitions stay sequential.
type Model struct {
	backend Backend
	session *Session

	articles        []models.ProcessedArticle
	cursor          int
	selectedID      int64
	feeds           []models.Feed
	availableModels []string

	mode    viewMode
	width   int
	height  int
	loading bool
	listErr string
	moreErr string
	pollErr string

	status   string
	statusID int

	searching bool
	search    textinput.Model
	spinner   spinner.Model

	reader       readerState
	chat         chatState
	feedView     feedsState
	settingsView settingsState
}

func NewModel(backend Backend) Model {
	search := textinput.New()
	search.Placeholder = "keyword"
	search.CharLimit = 100
	search.Width = 40

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)

	return Model{
		backend:      backend,
		session:      NewSession(),
		loading:      true,
		search:       search,
		spinner:      s,
		chat:         newChatState(),
		feedView:     newFeedsState(),
		settingsView: newSettingsState(),
	}
}

// Run starts the reader against the given backend and blocks until the
// user quits.
func Run(backend Backend) error {
	program := tea.NewProgram(NewModel(backend), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, initialConfigCmd(m.backend))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.reader.viewport.Width = msg.Width - 4
		m.reader.viewport.Height = msg.Height - 6
		m.chat.viewport.Width = msg.Width - 4
		m.chat.viewport.Height = msg.Height - 8
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusClearMsg:
		// Ignore clears for statuses that were replaced in the meantime
		if msg.id == m.statusID {
			m.status = ""
		}
		return m, nil

	case initialConfigMsg:
		m.session.Load(msg.config)
		m.feeds = msg.config.Feeds
		m.availableModels = msg.config.AvailableModels
		m.settingsView.load(m.session.Settings())
		m.loading = true
		return m, tea.Batch(
			summariesCmd(m.backend, m.session.SummariesRequest()),
			pollStatusCmd(m.backend, m.session.Watermark()),
			pollTickCmd(),
		)

	case initialConfigErrMsg:
		m.loading = false
		m.listErr = errorDetail(msg.err)
		return m, nil

	case listLoadedMsg:
		return m.handleListLoaded(msg)

	case listErrMsg:
		m.loading = false
		m.session.EndLoadMore()
		if msg.page <= 1 {
			m.articles = nil
			m.listErr = errorDetail(msg.err)
		} else {
			m.moreErr = errorDetail(msg.err)
			m.session.ClampToCurrentPage()
		}
		return m, nil

	case pollTickMsg:
		return m, tea.Batch(
			pollStatusCmd(m.backend, m.session.Watermark()),
			pollTickCmd(),
		)

	case pollStatusMsg:
		m.pollErr = ""
		if msg.status.NewArticlesAvailable {
			// Fresh articles reset the reader to the unfiltered front page
			m.session.ClearFilter()
			m.session.AdvanceWatermark(msg.status.LatestArticleTimestamp)
			return m, summariesCmd(m.backend, m.session.SummariesRequest())
		}
		m.session.AdvanceWatermark(msg.status.LatestArticleTimestamp)
		return m, nil

	case pollErrMsg:
		// Nothing to retry; the next tick polls again
		m.pollErr = errorDetail(msg.err)
		return m, nil

	case favoriteToggledMsg:
		m.replaceArticle(msg.article)
		if m.reader.article.ID == msg.article.ID {
			m.reader.article = msg.article
		}
		return m, nil

	case summaryRegeneratedMsg:
		m.replaceArticle(msg.article)
		return m.withStatus("Summary regenerated")

	case contentLoadedMsg:
		if msg.content.ArticleID == m.reader.article.ID {
			m.reader.loading = false
			m.reader.text = sanitize.Text(msg.content.ContentHTML)
			m.reader.viewport.SetContent(wrapText(m.reader.text, m.reader.viewport.Width))
			m.reader.viewport.GotoTop()
		}
		return m, nil

	case contentErrMsg:
		m.reader.loading = false
		m.reader.err = errorDetail(msg.err)
		return m, nil

	case refreshTriggeredMsg:
		if msg.status.Status == models.RefreshAlreadyRunning {
			return m.withStatus("Refresh already running")
		}
		return m.withStatus("Refresh started")

	case actionErrMsg:
		return m.withStatus(errorDetail(msg.err))

	case chatHistoryMsg, chatAnswerMsg, chatErrMsg:
		return m.updateChatMsg(msg)

	case feedsLoadedMsg, feedSavedMsg, feedDeletedMsg, feedErrMsg:
		return m.updateFeedsMsg(msg)

	case settingsSavedMsg, settingsErrMsg:
		return m.updateSettingsMsg(msg)

	case tea.KeyMsg:
		switch m.mode {
		case modeList:
			return m.updateList(msg)
		case modeReader:
			return m.updateReader(msg)
		case modeChat:
			return m.updateChat(msg)
		case modeFeeds:
			return m.updateFeeds(msg)
		case modeSettings:
			return m.updateSettings(msg)
		}
	}

	return m.updateFocusedInput(msg)
}

func (m Model) handleListLoaded(msg listLoadedMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	m.session.EndLoadMore()
	m.session.SetTotals(msg.response.TotalArticlesAvailable)
	m.listErr = ""
	m.moreErr = ""

	if msg.page <= 1 {
		m.articles = msg.response.ProcessedArticlesOnPage
		m.restoreCursor()
		return m, nil
	}

	// The server clamps past-the-end pages, so an append can carry
	// cards we already show
	known := lo.SliceToMap(m.articles, func(article models.ProcessedArticle) (int64, struct{}) {
		return article.ID, struct{}{}
	})
	fresh := lo.Filter(msg.response.ProcessedArticlesOnPage, func(article models.ProcessedArticle, _ int) bool {
		_, seen := known[article.ID]
		return !seen
	})
	m.articles = append(m.articles, fresh...)
	return m, nil
}

func (m *Model) restoreCursor() {
	if m.selectedID != 0 {
		if _, index, found := lo.FindIndexOf(m.articles, func(article models.ProcessedArticle) bool {
			return article.ID == m.selectedID
		}); found {
			m.cursor = index
			return
		}
	}
	m.cursor = 0
	if len(m.articles) > 0 {
		m.selectedID = m.articles[0].ID
	}
}

func (m *Model) replaceArticle(article models.ProcessedArticle) {
	for i := range m.articles {
		if m.articles[i].ID == article.ID {
			m.articles[i] = article
			return
		}
	}
}

func (m Model) selectedArticle() (models.ProcessedArticle, bool) {
	if m.cursor < 0 || m.cursor >= len(m.articles) {
		return models.ProcessedArticle{}, false
	}
	return m.articles[m.cursor], true
}

func (m Model) withStatus(status string) (tea.Model, tea.Cmd) {
	m.status = status
	m.statusID++
	return m, clearStatusCmd(m.statusID)
}

// reloadList fetches page 1 of the current session view.
func (m Model) reloadList() (tea.Model, tea.Cmd) {
	m.loading = true
	return m, summariesCmd(m.backend, m.session.SummariesRequest())
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch msg.String() {
		case "esc":
			m.searching = false
			m.search.Reset()
			return m, nil
		case "enter":
			m.searching = false
			m.session.ApplyKeywordFilter(m.search.Value())
			m.search.Reset()
			return m.reloadList()
		}
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.selectedID = m.articles[m.cursor].ID
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.articles)-1 {
			m.cursor++
			m.selectedID = m.articles[m.cursor].ID
			return m, nil
		}
		// Bottom of the rendered list: fetch the next page if one exists
		if m.session.BeginLoadMore() {
			m.session.AdvancePage()
			return m, summariesCmd(m.backend, m.session.SummariesRequest())
		}
		return m, nil

	case "enter":
		article, ok := m.selectedArticle()
		if !ok {
			return m, nil
		}
		m.mode = modeReader
		m.reader = readerState{article: article, loading: true, viewport: viewport.New(m.width-4, m.height-6)}
		return m, contentCmd(m.backend, article.ID)

	case "c":
		article, ok := m.selectedArticle()
		if !ok {
			return m, nil
		}
		return m.openChat(article)

	case "s":
		article, ok := m.selectedArticle()
		if !ok {
			return m, nil
		}
		return m, toggleFavoriteCmd(m.backend, article.ID)

	case "g":
		article, ok := m.selectedArticle()
		if !ok {
			return m, nil
		}
		return m, regenerateCmd(m.backend, article.ID, m.session.RegenerateRequest())

	case "r":
		return m, triggerRefreshCmd(m.backend)

	case "*":
		m.session.ToggleFavoritesOnly()
		return m.reloadList()

	case "/":
		m.searching = true
		m.search.Focus()
		return m, textinput.Blink

	case "esc":
		if m.session.FilterKind() == FilterNone && !m.session.FavoritesOnly() {
			return m, nil
		}
		m.session.ClearFilter()
		if m.session.FavoritesOnly() {
			m.session.ToggleFavoritesOnly()
		}
		return m.reloadList()

	case "f":
		m.mode = modeFeeds
		m.feedView.reset()
		return m, listFeedsCmd(m.backend)

	case "S":
		m.mode = modeSettings
		m.settingsView.load(m.session.Settings())
		return m, nil

	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		article, ok := m.selectedArticle()
		if !ok {
			return m, nil
		}
		index := int(msg.String()[0] - '1')
		if index >= len(article.Tags) {
			return m, nil
		}
		m.session.ToggleTag(article.Tags[index].ID)
		return m.reloadList()
	}

	return m, nil
}

func (m Model) updateReader(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.mode = modeList
		return m, nil
	case "c":
		return m.openChat(m.reader.article)
	case "s":
		return m, toggleFavoriteCmd(m.backend, m.reader.article.ID)
	}

	var cmd tea.Cmd
	m.reader.viewport, cmd = m.reader.viewport.Update(msg)
	return m, cmd
}

// updateFocusedInput routes component messages (cursor blinks and the
// like) to whichever text input currently has focus.
func (m Model) updateFocusedInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.searching:
		m.search, cmd = m.search.Update(msg)
	case m.mode == modeChat:
		m.chat.input, cmd = m.chat.input.Update(msg)
	case m.mode == modeFeeds && m.feedView.mode == feedsForm:
		m.feedView.inputs[m.feedView.focus], cmd = m.feedView.inputs[m.feedView.focus].Update(msg)
	case m.mode == modeSettings && m.settingsView.editing:
		m.settingsView.input, cmd = m.settingsView.input.Update(msg)
	}
	return m, cmd
}

// errorDetail prefers the server's own message over Go error prose.
func errorDetail(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return err.Error()
}

// Commands

func initialConfigCmd(backend Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		config, err := backend.InitialConfig(ctx)
		if err != nil {
			return initialConfigErrMsg{err: err}
		}
		return initialConfigMsg{config: config}
	}
}

func summariesCmd(backend Backend, request models.SummariesRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), summariesTimeout)
		defer cancel()

		response, err := backend.Summaries(ctx, request)
		if err != nil {
			return listErrMsg{page: request.Page, err: err}
		}
		return listLoadedMsg{page: request.Page, response: response}
	}
}

func pollTickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return pollTickMsg{}
	})
}

func pollStatusCmd(backend Backend, since string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		status, err := backend.NewArticlesStatus(ctx, since)
		if err != nil {
			return pollErrMsg{err: err}
		}
		return pollStatusMsg{status: status}
	}
}

func toggleFavoriteCmd(backend Backend, id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		article, err := backend.ToggleFavorite(ctx, id)
		if err != nil {
			return actionErrMsg{err: err}
		}
		return favoriteToggledMsg{article: article}
	}
}

func regenerateCmd(backend Backend, id int64, request models.RegenerateRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), summariesTimeout)
		defer cancel()

		article, err := backend.RegenerateSummary(ctx, id, request)
		if err != nil {
			return actionErrMsg{err: err}
		}
		return summaryRegeneratedMsg{article: article}
	}
}

func contentCmd(backend Backend, id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		content, err := backend.ArticleContent(ctx, id)
		if err != nil {
			return contentErrMsg{err: err}
		}
		return contentLoadedMsg{content: content}
	}
}

func triggerRefreshCmd(backend Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		status, err := backend.TriggerRefresh(ctx)
		if err != nil {
			return actionErrMsg{err: err}
		}
		return refreshTriggeredMsg{status: status}
	}
}

func clearStatusCmd(id int) tea.Cmd {
	return tea.Tick(statusLinger, func(time.Time) tea.Msg {
		return statusClearMsg{id: id}
	})
}
