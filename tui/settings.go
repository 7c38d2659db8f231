package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"gleaner/config"
	"gleaner/models"
)

type settingsSavedMsg struct{ settings models.Settings }

type settingsErrMsg struct{ err error }

type fieldKind int

const (
	fieldText fieldKind = iota
	fieldNumber
	fieldModel
)

const (
	settingSummaryPrompt = iota
	settingTagPrompt
	settingChatPrompt
	settingSummaryModel
	settingChatModel
	settingTagModel
	settingPageSize
	settingInterval
	settingMinWords
	settingCount
)

type settingsField struct {
	label string
	value string
	kind  fieldKind
}

type settingsState struct {
	fields  [settingCount]settingsField
	cursor  int
	editing bool
	input   textinput.Model
	err     string
}

func newSettingsState() settingsState {
	input := textinput.New()
	input.CharLimit = 2000
	input.Width = 70
	return settingsState{input: input}
}

func (s *settingsState) load(settings models.Settings) {
	s.fields = [settingCount]settingsField{
		settingSummaryPrompt: {label: "Summary prompt", value: settings.SummaryPrompt, kind: fieldText},
		settingTagPrompt:     {label: "Tag prompt", value: settings.TagGenerationPrompt, kind: fieldText},
		settingChatPrompt:    {label: "Chat prompt", value: settings.ChatPrompt, kind: fieldText},
		settingSummaryModel:  {label: "Summary model", value: settings.SummaryModel, kind: fieldModel},
		settingChatModel:     {label: "Chat model", value: settings.ChatModel, kind: fieldModel},
		settingTagModel:      {label: "Tag model", value: settings.TagModel, kind: fieldModel},
		settingPageSize:      {label: "Page size", value: strconv.Itoa(settings.PageSize), kind: fieldNumber},
		settingInterval:      {label: "Refresh interval (minutes)", value: strconv.Itoa(settings.RSSCheckIntervalMinutes), kind: fieldNumber},
		settingMinWords:      {label: "Minimum word count", value: strconv.Itoa(settings.MinimumWordCount), kind: fieldNumber},
	}
	s.cursor = 0
	s.editing = false
	s.err = ""
}

// cycleModel steps the model selector fields through the server's
// available model list.
func (s *settingsState) cycleModel(available []string, step int) {
	if len(available) == 0 {
		return
	}
	field := &s.fields[s.cursor]
	index := lo.IndexOf(available, field.value)
	index = ((index+step)%len(available) + len(available)) % len(available)
	field.value = available[index]
}

func (m Model) updateSettings(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.settingsView.editing {
		switch msg.String() {
		case "esc":
			m.settingsView.editing = false
			m.settingsView.input.Blur()
			return m, nil
		case "enter":
			m.settingsView.fields[m.settingsView.cursor].value = m.settingsView.input.Value()
			m.settingsView.editing = false
			m.settingsView.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.settingsView.input, cmd = m.settingsView.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc", "q":
		m.mode = modeList
		return m, nil

	case "up", "k":
		if m.settingsView.cursor > 0 {
			m.settingsView.cursor--
		}
		return m, nil

	case "down", "j":
		if m.settingsView.cursor < settingCount-1 {
			m.settingsView.cursor++
		}
		return m, nil

	case "left", "h":
		if m.settingsView.fields[m.settingsView.cursor].kind == fieldModel {
			m.settingsView.cycleModel(m.availableModels, -1)
		}
		return m, nil

	case "right", "l":
		if m.settingsView.fields[m.settingsView.cursor].kind == fieldModel {
			m.settingsView.cycleModel(m.availableModels, 1)
		}
		return m, nil

	case "enter":
		field := m.settingsView.fields[m.settingsView.cursor]
		if field.kind == fieldModel && len(m.availableModels) > 0 {
			m.settingsView.cycleModel(m.availableModels, 1)
			return m, nil
		}
		m.settingsView.editing = true
		m.settingsView.input.SetValue(field.value)
		m.settingsView.input.CursorEnd()
		m.settingsView.input.Focus()
		return m, textinput.Blink

	case "ctrl+s":
		return m.saveSettings()
	}

	return m, nil
}

// saveSettings validates the form locally and only then talks to the
// server. A bad prompt or number never leaves the terminal.
func (m Model) saveSettings() (tea.Model, tea.Cmd) {
	fields := m.settingsView.fields

	pageSize, err := strconv.Atoi(strings.TrimSpace(fields[settingPageSize].value))
	if err != nil || pageSize < 1 || pageSize > config.MaxPageSize {
		m.settingsView.err = fmt.Sprintf("Page size must be between 1 and %d.", config.MaxPageSize)
		return m, nil
	}

	interval, err := strconv.Atoi(strings.TrimSpace(fields[settingInterval].value))
	if err != nil || interval < config.MinFetchIntervalMinutes {
		m.settingsView.err = fmt.Sprintf("RSS check interval must be at least %d minutes.", config.MinFetchIntervalMinutes)
		return m, nil
	}

	minWords, err := strconv.Atoi(strings.TrimSpace(fields[settingMinWords].value))
	if err != nil || minWords < 0 {
		m.settingsView.err = "Minimum word count cannot be negative."
		return m, nil
	}

	if !models.PromptHasPlaceholder(fields[settingSummaryPrompt].value, models.TextPlaceholder) {
		m.settingsView.err = "Summary prompt must contain the {text} placeholder."
		return m, nil
	}
	if !models.PromptHasPlaceholder(fields[settingTagPrompt].value, models.TextPlaceholder) {
		m.settingsView.err = "Tag generation prompt must contain the {text} placeholder."
		return m, nil
	}
	if !models.PromptHasPlaceholder(fields[settingChatPrompt].value, models.QuestionPlaceholder) {
		m.settingsView.err = "Chat prompt must contain the {question} placeholder."
		return m, nil
	}

	m.settingsView.err = ""
	update := models.SettingsUpdate{
		SummaryPrompt:           lo.ToPtr(fields[settingSummaryPrompt].value),
		TagGenerationPrompt:     lo.ToPtr(fields[settingTagPrompt].value),
		ChatPrompt:              lo.ToPtr(fields[settingChatPrompt].value),
		SummaryModel:            lo.ToPtr(fields[settingSummaryModel].value),
		ChatModel:               lo.ToPtr(fields[settingChatModel].value),
		TagModel:                lo.ToPtr(fields[settingTagModel].value),
		PageSize:                lo.ToPtr(pageSize),
		RSSCheckIntervalMinutes: lo.ToPtr(interval),
		MinimumWordCount:        lo.ToPtr(minWords),
	}
	return m, saveConfigCmd(m.backend, update)
}

func (m Model) updateSettingsMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case settingsSavedMsg:
		m.session.ApplySettings(msg.settings)
		m.settingsView.load(msg.settings)
		// The page size or prompts may have changed, so the list
		// starts over from page 1
		m.loading = true
		model, statusCmd := m.withStatus("Settings saved")
		return model, tea.Batch(statusCmd, summariesCmd(m.backend, m.session.SummariesRequest()))

	case settingsErrMsg:
		m.settingsView.err = errorDetail(msg.err)
		return m, nil
	}
	return m, nil
}

func saveConfigCmd(backend Backend, update models.SettingsUpdate) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		settings, err := backend.SaveConfig(ctx, update)
		if err != nil {
			return settingsErrMsg{err: err}
		}
		return settingsSavedMsg{settings: settings}
	}
}
