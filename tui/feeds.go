package tui

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"gleaner/config"
	"gleaner/models"
)

type feedsMode int

const (
	feedsBrowse feedsMode = iota
	feedsForm
	feedsConfirm
)

type feedsLoadedMsg struct{ feeds []models.Feed }

type feedSavedMsg struct{ feed models.Feed }

type feedDeletedMsg struct{ id int64 }

type feedErrMsg struct{ err error }

// Form fields, in focus order. Editing an existing feed skips the URL
// field since the server treats the URL as the feed's identity.
const (
	feedFieldURL = iota
	feedFieldName
	feedFieldInterval
	feedFieldCount
)

type feedsState struct {
	mode      feedsMode
	cursor    int
	editingID int64
	inputs    [feedFieldCount]textinput.Model
	focus     int
	err       string
	deleting  models.Feed
}

func newFeedsState() feedsState {
	var state feedsState
	for i := range state.inputs {
		state.inputs[i] = textinput.New()
		state.inputs[i].CharLimit = 200
		state.inputs[i].Width = 50
	}
	state.inputs[feedFieldURL].Placeholder = "https://example.com/rss.xml"
	state.inputs[feedFieldName].Placeholder = "display name (optional)"
	state.inputs[feedFieldInterval].Placeholder = strconv.Itoa(config.DefaultFetchIntervalMinutes)
	return state
}

func (f *feedsState) reset() {
	f.mode = feedsBrowse
	f.cursor = 0
	f.err = ""
}

func (f *feedsState) startCreate() {
	f.mode = feedsForm
	f.editingID = 0
	f.err = ""
	for i := range f.inputs {
		f.inputs[i].Reset()
		f.inputs[i].Blur()
	}
	f.focus = feedFieldURL
	f.inputs[f.focus].Focus()
}

func (f *feedsState) startEdit(feed models.Feed) {
	f.mode = feedsForm
	f.editingID = feed.ID
	f.err = ""
	for i := range f.inputs {
		f.inputs[i].Reset()
		f.inputs[i].Blur()
	}
	f.inputs[feedFieldURL].SetValue(feed.URL)
	f.inputs[feedFieldName].SetValue(feed.Name)
	f.inputs[feedFieldInterval].SetValue(strconv.Itoa(feed.FetchIntervalMinutes))
	f.focus = feedFieldName
	f.inputs[f.focus].Focus()
}

func (f *feedsState) firstField() int {
	if f.editingID != 0 {
		return feedFieldName
	}
	return feedFieldURL
}

func (f *feedsState) moveFocus(step int) {
	f.inputs[f.focus].Blur()
	first := f.firstField()
	span := feedFieldCount - first
	f.focus = first + ((f.focus-first+step)%span+span)%span
	f.inputs[f.focus].Focus()
}

func (m Model) updateFeeds(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.feedView.mode {
	case feedsForm:
		return m.updateFeedForm(msg)
	case feedsConfirm:
		switch msg.String() {
		case "y":
			id := m.feedView.deleting.ID
			m.feedView.mode = feedsBrowse
			return m, deleteFeedCmd(m.backend, id)
		case "n", "esc":
			m.feedView.mode = feedsBrowse
			return m, nil
		}
		return m, nil
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc", "q":
		m.mode = modeList
		return m, nil

	case "up", "k":
		if m.feedView.cursor > 0 {
			m.feedView.cursor--
		}
		return m, nil

	case "down", "j":
		if m.feedView.cursor < len(m.feeds)-1 {
			m.feedView.cursor++
		}
		return m, nil

	case "enter":
		if m.feedView.cursor >= len(m.feeds) {
			return m, nil
		}
		m.session.ApplyFeedFilter(m.feeds[m.feedView.cursor].ID)
		m.mode = modeList
		return m.reloadList()

	case "a":
		m.feedView.startCreate()
		return m, textinput.Blink

	case "e":
		if m.feedView.cursor >= len(m.feeds) {
			return m, nil
		}
		m.feedView.startEdit(m.feeds[m.feedView.cursor])
		return m, textinput.Blink

	case "d":
		if m.feedView.cursor >= len(m.feeds) {
			return m, nil
		}
		m.feedView.mode = feedsConfirm
		m.feedView.deleting = m.feeds[m.feedView.cursor]
		return m, nil

	case "r":
		return m, listFeedsCmd(m.backend)
	}

	return m, nil
}

func (m Model) updateFeedForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.feedView.mode = feedsBrowse
		m.feedView.err = ""
		return m, nil

	case "tab", "down":
		m.feedView.moveFocus(1)
		return m, nil

	case "shift+tab", "up":
		m.feedView.moveFocus(-1)
		return m, nil

	case "enter":
		return m.submitFeedForm()
	}

	var cmd tea.Cmd
	m.feedView.inputs[m.feedView.focus], cmd = m.feedView.inputs[m.feedView.focus].Update(msg)
	return m, cmd
}

func (m Model) submitFeedForm() (tea.Model, tea.Cmd) {
	name := strings.TrimSpace(m.feedView.inputs[feedFieldName].Value())
	rawInterval := strings.TrimSpace(m.feedView.inputs[feedFieldInterval].Value())

	interval := 0
	if rawInterval != "" {
		parsed, err := strconv.Atoi(rawInterval)
		if err != nil || parsed < config.MinFetchIntervalMinutes {
			m.feedView.err = fmt.Sprintf("Fetch interval must be at least %d minutes.", config.MinFetchIntervalMinutes)
			return m, nil
		}
		interval = parsed
	}

	if m.feedView.editingID != 0 {
		update := models.FeedUpdate{}
		if name != "" {
			update.Name = lo.ToPtr(name)
		}
		if interval > 0 {
			update.FetchIntervalMinutes = lo.ToPtr(interval)
		}
		m.feedView.mode = feedsBrowse
		return m, updateFeedCmd(m.backend, m.feedView.editingID, update)
	}

	rawURL := strings.TrimSpace(m.feedView.inputs[feedFieldURL].Value())
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		m.feedView.err = "Feed URL must be a valid http or https address."
		return m, nil
	}

	input := models.FeedInput{URL: parsed.String(), Name: name, FetchIntervalMinutes: interval}
	m.feedView.mode = feedsBrowse
	return m, createFeedCmd(m.backend, input)
}

func (m Model) updateFeedsMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case feedsLoadedMsg:
		m.feeds = msg.feeds
		if m.feedView.cursor >= len(m.feeds) && len(m.feeds) > 0 {
			m.feedView.cursor = len(m.feeds) - 1
		}
		return m, nil

	case feedSavedMsg:
		m.feedView.err = ""
		model, cmd := m.withStatus("Saved " + msg.feed.Name)
		return model, tea.Batch(cmd, listFeedsCmd(m.backend))

	case feedDeletedMsg:
		wasFiltered := m.session.FilterKind() == FilterFeed && m.session.FeedID() == msg.id
		m.session.HandleFeedDeleted(msg.id)
		cmds := []tea.Cmd{listFeedsCmd(m.backend)}
		if wasFiltered {
			// The filtered feed is gone, so the list falls back to
			// the unfiltered front page
			m.loading = true
			cmds = append(cmds, summariesCmd(m.backend, m.session.SummariesRequest()))
		}
		model, statusCmd := m.withStatus("Feed removed")
		cmds = append(cmds, statusCmd)
		return model, tea.Batch(cmds...)

	case feedErrMsg:
		m.feedView.err = errorDetail(msg.err)
		return m, nil
	}
	return m, nil
}

func listFeedsCmd(backend Backend) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		feeds, err := backend.ListFeeds(ctx)
		if err != nil {
			return feedErrMsg{err: err}
		}
		return feedsLoadedMsg{feeds: feeds}
	}
}

func createFeedCmd(backend Backend, input models.FeedInput) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		feed, err := backend.CreateFeed(ctx, input)
		if err != nil {
			return feedErrMsg{err: err}
		}
		return feedSavedMsg{feed: feed}
	}
}

func updateFeedCmd(backend Backend, id int64, update models.FeedUpdate) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		feed, err := backend.UpdateFeed(ctx, id, update)
		if err != nil {
			return feedErrMsg{err: err}
		}
		return feedSavedMsg{feed: feed}
	}
}

func deleteFeedCmd(backend Backend, id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		if err := backend.DeleteFeed(ctx, id); err != nil {
			return feedErrMsg{err: err}
		}
		return feedDeletedMsg{id: id}
	}
}
