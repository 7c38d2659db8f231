package config

import "gleaner/models"

// Compiled-in defaults. User edits live in the settings table and are
// overlaid on these at read time, so clearing a setting falls back here.
const (
	DefaultPageSize             = 6
	MaxPageSize                 = 50
	DefaultFetchIntervalMinutes = 60
	MinFetchIntervalMinutes     = 5
	DefaultMinimumWordCount     = 0
	DefaultMaxArticlesPerFeed   = 25
	DefaultCleanupDays          = 90

	DefaultSummaryModel = "gpt-4o-mini"
	DefaultChatModel    = "gpt-4o-mini"
	DefaultTagModel     = "gpt-4o-mini"
)

// DefaultModels is the fallback model list offered to clients when the
// config file does not declare one.
var DefaultModels = []string{
	"gpt-4o-mini",
	"gpt-4o",
	"gpt-4.1-mini",
	"o3-mini",
}

const DefaultSummaryPrompt = `Summarize the following article in three to five sentences.
Stick to the key facts and conclusions and leave out filler phrases.

{text}

Summary:`

const DefaultTagGenerationPrompt = `Generate up to five short topical tags for the following article.
Respond with a comma-separated list only, no numbering and no commentary.

{text}

Tags:`

const DefaultChatPrompt = `You are a helpful assistant answering questions about a news article.
Base your answers on the article and the conversation so far.

Article:
{article_text}

{question}`

// ChatNoArticlePrompt is used when the article has no usable text.
const ChatNoArticlePrompt = `The article content could not be loaded. Answer the question as well
as you can and mention that the article text is unavailable.

{question}`

// DefaultSettings returns the settings a fresh installation runs with.
func DefaultSettings() models.Settings {
	return models.Settings{
		SummaryPrompt:           DefaultSummaryPrompt,
		ChatPrompt:              DefaultChatPrompt,
		TagGenerationPrompt:     DefaultTagGenerationPrompt,
		SummaryModel:            DefaultSummaryModel,
		ChatModel:               DefaultChatModel,
		TagModel:                DefaultTagModel,
		PageSize:                DefaultPageSize,
		RSSCheckIntervalMinutes: DefaultFetchIntervalMinutes,
		MinimumWordCount:        DefaultMinimumWordCount,
	}
}
