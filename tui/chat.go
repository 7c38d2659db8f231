package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"gleaner/models"
)

// pendingAnswer is the optimistic assistant turn shown while the model
// is thinking. It is replaced in place by the answer or an error turn.
const pendingAnswer = "Thinking..."

type chatHistoryMsg struct{ history models.ChatHistory }

type chatAnswerMsg struct {
	articleID int64
	answer    string
}

type chatErrMsg struct {
	articleID int64
	err       error
}

type chatState struct {
	articleID int64
	title     string
	messages  []models.ChatMessage
	input     textinput.Model
	viewport  viewport.Model
	waiting   bool
	loading   bool
	err       string
}

func newChatState() chatState {
	input := textinput.New()
	input.Placeholder = "ask about this article"
	input.CharLimit = 500
	input.Width = 60
	return chatState{input: input}
}

func (m Model) openChat(article models.ProcessedArticle) (tea.Model, tea.Cmd) {
	m.mode = modeChat
	m.chat.articleID = article.ID
	m.chat.title = article.Title
	m.chat.messages = nil
	m.chat.loading = true
	m.chat.waiting = false
	m.chat.err = ""
	m.chat.viewport = viewport.New(m.width-4, m.height-8)
	m.chat.input.Reset()
	m.chat.input.Focus()
	return m, tea.Batch(chatHistoryCmd(m.backend, article.ID), textinput.Blink)
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.mode = modeList
		m.chat.input.Blur()
		return m, nil

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.chat.viewport, cmd = m.chat.viewport.Update(msg)
		return m, cmd

	case "enter":
		question := strings.TrimSpace(m.chat.input.Value())
		if question == "" || m.chat.waiting {
			return m, nil
		}

		// The transcript snapshot from before this turn is what goes
		// upstream; the question and the placeholder stay local until
		// the server persists them
		history := append([]models.ChatMessage(nil), m.chat.messages...)
		m.chat.messages = append(m.chat.messages,
			models.ChatMessage{Role: models.ChatRoleUser, Content: question},
			models.ChatMessage{Role: models.ChatRoleAssistant, Content: pendingAnswer},
		)
		m.chat.waiting = true
		m.chat.err = ""
		m.chat.input.Reset()
		m.syncChatViewport()

		request := models.ChatRequest{
			ArticleID:   m.chat.articleID,
			Question:    question,
			ChatHistory: history,
		}
		return m, chatCmd(m.backend, request)
	}

	var cmd tea.Cmd
	m.chat.input, cmd = m.chat.input.Update(msg)
	return m, cmd
}

func (m Model) updateChatMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case chatHistoryMsg:
		if msg.history.ArticleID != m.chat.articleID {
			return m, nil
		}
		m.chat.loading = false
		m.chat.messages = msg.history.Messages
		m.syncChatViewport()
		return m, nil

	case chatAnswerMsg:
		if msg.articleID != m.chat.articleID {
			return m, nil
		}
		m.chat.waiting = false
		m.replacePendingAnswer(msg.answer)
		m.syncChatViewport()
		return m, nil

	case chatErrMsg:
		if msg.articleID != m.chat.articleID {
			return m, nil
		}
		m.chat.loading = false
		m.chat.waiting = false
		m.chat.err = errorDetail(msg.err)
		m.replacePendingAnswer("The answer failed: " + errorDetail(msg.err))
		m.syncChatViewport()
		return m, nil
	}
	return m, nil
}

func (m *Model) replacePendingAnswer(content string) {
	if len(m.chat.messages) == 0 {
		return
	}
	last := len(m.chat.messages) - 1
	if m.chat.messages[last].Role == models.ChatRoleAssistant {
		m.chat.messages[last].Content = content
	}
}

func (m *Model) syncChatViewport() {
	m.chat.viewport.SetContent(renderTranscript(m.chat.messages, m.chat.viewport.Width))
	m.chat.viewport.GotoBottom()
}

func chatHistoryCmd(backend Backend, id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		history, err := backend.ChatHistory(ctx, id)
		if err != nil {
			return chatErrMsg{articleID: id, err: err}
		}
		return chatHistoryMsg{history: history}
	}
}

func chatCmd(backend Backend, request models.ChatRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), summariesTimeout)
		defer cancel()

		response, err := backend.Chat(ctx, request)
		if err != nil {
			return chatErrMsg{articleID: request.ArticleID, err: err}
		}
		return chatAnswerMsg{articleID: request.ArticleID, answer: response.Answer}
	}
}
