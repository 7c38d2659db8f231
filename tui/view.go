package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"gleaner/models"
)

var (
	accentColor = lipgloss.Color("#58a6ff")

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#c9d1d9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b949e"))
	faintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#484f58"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#f85149"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ffffff"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#c9d1d9"))
	starStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d29922"))
	tagStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#7ee787"))
	summaryStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a8b1bb"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3fb950"))
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
)

func (m Model) View() string {
	switch m.mode {
	case modeReader:
		return m.viewReader()
	case modeChat:
		return m.viewChat()
	case modeFeeds:
		return m.viewFeeds()
	case modeSettings:
		return m.viewSettings()
	}
	return m.viewList()
}

func (m Model) viewList() string {
	var b strings.Builder

	header := fmt.Sprintf("gleaner · %d articles · page %d/%d",
		m.session.TotalArticles(), m.session.Page(), max(m.session.TotalPages(), 1))
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if label := m.filterLabel(); label != "" {
		b.WriteString(promptStyle.Render("Filter: " + label))
		b.WriteString(dimStyle.Render("  (esc clears)"))
		b.WriteString("\n")
	}

	if m.searching {
		b.WriteString(promptStyle.Render("Search: "))
		b.WriteString(m.search.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.listErr != "":
		b.WriteString(errorStyle.Render("Could not load articles: " + m.listErr))
		b.WriteString("\n")
	case m.loading && len(m.articles) == 0:
		b.WriteString(dimStyle.Render(m.spinner.View() + " Loading articles..."))
		b.WriteString("\n")
	case len(m.articles) == 0:
		b.WriteString(dimStyle.Render("No articles yet. Press f to add feeds, r to refresh."))
		b.WriteString("\n")
	default:
		b.WriteString(m.renderCards())
	}

	if m.moreErr != "" {
		b.WriteString(errorStyle.Render("Could not load more: " + m.moreErr))
		b.WriteString("\n")
	}
	if m.session.LoadingMore() {
		b.WriteString(dimStyle.Render(m.spinner.View() + " Loading more..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.footer("j/k move · enter read · c chat · s star · g resummarize · / search · 1-9 tags · * starred · f feeds · S settings · r refresh · q quit"))
	return b.String()
}

func (m Model) filterLabel() string {
	var label string
	switch m.session.FilterKind() {
	case FilterFeed:
		name := fmt.Sprintf("feed #%d", m.session.FeedID())
		if feed, ok := lo.Find(m.feeds, func(f models.Feed) bool { return f.ID == m.session.FeedID() }); ok {
			name = feed.Name
		}
		label = name
	case FilterTags:
		label = "tags " + joinTagNames(m.articles, m.session.TagIDs())
	case FilterKeyword:
		label = fmt.Sprintf("%q", m.session.Keyword())
	}
	if m.session.FavoritesOnly() {
		if label != "" {
			label += " · "
		}
		label += "starred only"
	}
	return label
}

// joinTagNames resolves ids against the tags visible on the current
// page; ids without a visible name render as #id.
func joinTagNames(articles []models.ProcessedArticle, ids []int64) string {
	names := make(map[int64]string)
	for _, article := range articles {
		for _, tag := range article.Tags {
			names[tag.ID] = tag.Name
		}
	}
	parts := lo.Map(ids, func(id int64, _ int) string {
		if name, ok := names[id]; ok {
			return name
		}
		return fmt.Sprintf("#%d", id)
	})
	return strings.Join(parts, ", ")
}

func (m Model) renderCards() string {
	visible := (m.height - 8) / 5
	if visible < 1 {
		visible = 1
	}
	start := m.cursor - visible/2
	if start < 0 {
		start = 0
	}
	end := start + visible
	if end > len(m.articles) {
		end = len(m.articles)
		start = max(0, end-visible)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(m.renderCard(m.articles[i], i == m.cursor))
		b.WriteString("\n")
	}
	if end < len(m.articles) || m.session.CanLoadMore() {
		b.WriteString(faintStyle.Render("  ···"))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderCard(article models.ProcessedArticle, selected bool) string {
	width := m.width
	if width <= 0 {
		width = 100
	}

	marker := "  "
	style := titleStyle
	if selected {
		marker = promptStyle.Render("> ")
		style = selectedStyle
	}

	star := ""
	if article.Favorite {
		star = starStyle.Render("* ")
	}

	meta := dimStyle.Render(fmt.Sprintf("  %s · %s · %d words",
		article.Publisher, article.PublishedAt.Format("2006-01-02"), article.WordCount))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString(star)
	b.WriteString(style.Render(truncate(article.Title, width-20)))
	b.WriteString(meta)
	b.WriteString("\n")

	summary := article.Summary
	summaryRender := summaryStyle
	if article.SummaryError {
		summaryRender = errorStyle
	}
	for _, line := range clipLines(summary, width-6, 2) {
		b.WriteString("    ")
		b.WriteString(summaryRender.Render(line))
		b.WriteString("\n")
	}

	if len(article.Tags) > 0 {
		chips := lo.Map(article.Tags, func(tag models.Tag, i int) string {
			return tagStyle.Render(fmt.Sprintf("[%d %s]", i+1, tag.Name))
		})
		b.WriteString("    ")
		b.WriteString(strings.Join(chips, " "))
		b.WriteString("\n")
	}

	return b.String()
}

func (m Model) viewReader() string {
	var b strings.Builder
	article := m.reader.article

	star := ""
	if article.Favorite {
		star = starStyle.Render("* ")
	}
	b.WriteString(star)
	b.WriteString(headerStyle.Render(article.Title))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s · %s · %s",
		article.Publisher, article.PublishedAt.Format("2006-01-02"), article.URL)))
	b.WriteString("\n\n")

	switch {
	case m.reader.loading:
		b.WriteString(dimStyle.Render(m.spinner.View() + " Loading content..."))
	case m.reader.err != "":
		b.WriteString(errorStyle.Render("Could not load content: " + m.reader.err))
	default:
		b.WriteString(m.reader.viewport.View())
	}
	b.WriteString("\n\n")
	b.WriteString(m.footer("up/down scroll · c chat · s star · esc back"))
	return b.String()
}

func (m Model) viewChat() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Chat · " + truncate(m.chat.title, max(m.width-10, 20))))
	b.WriteString("\n\n")

	if m.chat.loading {
		b.WriteString(dimStyle.Render(m.spinner.View() + " Loading transcript..."))
	} else {
		b.WriteString(m.chat.viewport.View())
	}
	b.WriteString("\n")

	if m.chat.err != "" {
		b.WriteString(errorStyle.Render(m.chat.err))
		b.WriteString("\n")
	}

	b.WriteString(promptStyle.Render("> "))
	b.WriteString(m.chat.input.View())
	b.WriteString("\n")
	b.WriteString(m.footer("enter send · up/down scroll · esc back"))
	return b.String()
}

func renderTranscript(messages []models.ChatMessage, width int) string {
	if len(messages) == 0 {
		return dimStyle.Render("No questions yet. Ask away.")
	}

	var b strings.Builder
	for _, message := range messages {
		label := promptStyle.Render("You")
		if message.Role == models.ChatRoleAssistant {
			label = statusStyle.Render("AI")
		}
		b.WriteString(label)
		b.WriteString("\n")
		b.WriteString(wrapText(message.Content, width))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) viewFeeds() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Feeds"))
	b.WriteString("\n\n")

	switch m.feedView.mode {
	case feedsForm:
		b.WriteString(m.renderFeedForm())
	case feedsConfirm:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Delete %q and all of its articles? (y/n)", m.feedView.deleting.Name)))
		b.WriteString("\n")
	default:
		if len(m.feeds) == 0 {
			b.WriteString(dimStyle.Render("No feeds yet. Press a to add one."))
			b.WriteString("\n")
		}
		for i, feed := range m.feeds {
			marker := "  "
			style := lipgloss.NewStyle()
			if i == m.feedView.cursor {
				marker = promptStyle.Render("> ")
				style = selectedStyle
			}
			b.WriteString(marker)
			b.WriteString(style.Render(feed.Name))
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s · every %dm · %d articles",
				feed.URL, feed.FetchIntervalMinutes, feed.ArticleCount)))
			b.WriteString("\n")
		}
	}

	if m.feedView.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.feedView.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch m.feedView.mode {
	case feedsForm:
		b.WriteString(m.footer("tab next field · enter save · esc cancel"))
	default:
		b.WriteString(m.footer("enter filter by feed · a add · e edit · d delete · r reload · esc back"))
	}
	return b.String()
}

func (m Model) renderFeedForm() string {
	var b strings.Builder
	if m.feedView.editingID != 0 {
		b.WriteString(dimStyle.Render("Editing " + m.feedView.inputs[feedFieldURL].Value()))
		b.WriteString("\n\n")
	} else {
		b.WriteString("URL\n  ")
		b.WriteString(m.feedView.inputs[feedFieldURL].View())
		b.WriteString("\n")
	}
	b.WriteString("Name\n  ")
	b.WriteString(m.feedView.inputs[feedFieldName].View())
	b.WriteString("\n")
	b.WriteString("Fetch interval (minutes)\n  ")
	b.WriteString(m.feedView.inputs[feedFieldInterval].View())
	b.WriteString("\n")
	return b.String()
}

func (m Model) viewSettings() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Settings"))
	b.WriteString("\n\n")

	for i, field := range m.settingsView.fields {
		marker := "  "
		style := lipgloss.NewStyle()
		if i == m.settingsView.cursor {
			marker = promptStyle.Render("> ")
			style = selectedStyle
		}
		value := truncate(strings.ReplaceAll(field.value, "\n", " "), max(m.width-30, 30))
		if field.kind == fieldModel {
			value = "< " + value + " >"
		}
		b.WriteString(marker)
		b.WriteString(style.Render(field.label))
		b.WriteString(dimStyle.Render(": " + value))
		b.WriteString("\n")

		if m.settingsView.editing && i == m.settingsView.cursor {
			b.WriteString("    ")
			b.WriteString(m.settingsView.input.View())
			b.WriteString("\n")
		}
	}

	if m.settingsView.err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.settingsView.err))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.footer("enter edit · left/right cycle model · ctrl+s save · esc back"))
	return b.String()
}

func (m Model) footer(hints string) string {
	if m.status != "" {
		return statusStyle.Render(m.status)
	}
	line := faintStyle.Render(hints)
	if m.pollErr != "" {
		line += "\n" + faintStyle.Render("poll: "+m.pollErr)
	}
	return line
}

// wrapText is a greedy word wrapper; it never splits a word.
func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > width {
				lines = append(lines, line)
				line = word
				continue
			}
			line += " " + word
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// clipLines wraps text and keeps at most maxLines lines, marking the
// cut with an ellipsis.
func clipLines(text string, width int, maxLines int) []string {
	wrapped := strings.Split(wrapText(text, width), "\n")
	if len(wrapped) <= maxLines {
		return wrapped
	}
	clipped := wrapped[:maxLines]
	clipped[maxLines-1] += " ..."
	return clipped
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
