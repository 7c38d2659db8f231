package models

import (
	"strings"
	"time"
)

// Prompt templates are plain strings with literal substitution markers.
// A summary or tag prompt must carry TextPlaceholder, a chat prompt
// QuestionPlaceholder (and optionally ArticleTextPlaceholder).
const (
	TextPlaceholder        = "{text}"
	ArticleTextPlaceholder = "{article_text}"
	QuestionPlaceholder    = "{question}"
)

// PromptHasPlaceholder reports whether the prompt contains the literal marker.
func PromptHasPlaceholder(prompt string, placeholder string) bool {
	return strings.Contains(prompt, placeholder)
}

// Feed is a configured RSS origin
type Feed struct {
	ID                   int64      `json:"id"`
	URL                  string     `json:"url"`
	Name                 string     `json:"name"`
	FetchIntervalMinutes int        `json:"fetch_interval_minutes"`
	LastFetchedAt        *time.Time `json:"last_fetched_at,omitempty"`
	ArticleCount         int64      `json:"article_count"`
}

// FeedInput carries the mutable feed fields for create/update calls
type FeedInput struct {
	URL                  string `json:"url"`
	Name                 string `json:"name,omitempty"`
	FetchIntervalMinutes int    `json:"fetch_interval_minutes,omitempty"`
}

// FeedUpdate is a partial feed write. Nil fields keep their stored
// value.
type FeedUpdate struct {
	Name                 *string `json:"name,omitempty"`
	FetchIntervalMinutes *int    `json:"fetch_interval_minutes,omitempty"`
}

// Article is the stored form of a fetched feed entry
type Article struct {
	ID          int64     `json:"id"`
	FeedID      int64     `json:"feed_source_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher"`
	Language    string    `json:"language,omitempty"`
	PublishedAt time.Time `json:"published_date"`
	FetchedAt   time.Time `json:"fetched_at"`
	ContentText string    `json:"-"`
	ContentHTML string    `json:"-"`
	WordCount   int       `json:"word_count"`
	Favorite    bool      `json:"favorite"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Summary is one generated summary version for an article. The current
// summary of an article is the latest non-error row, or the latest row
// when every attempt failed.
type Summary struct {
	ID        int64     `json:"id"`
	ArticleID int64     `json:"article_id"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	IsError   bool      `json:"is_error"`
	CreatedAt time.Time `json:"created_at"`
}

// ProcessedArticle is one card on a feed page: the article plus its
// current summary and tags.
type ProcessedArticle struct {
	ID           int64     `json:"id"`
	FeedID       int64     `json:"feed_source_id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Publisher    string    `json:"publisher"`
	Language     string    `json:"language,omitempty"`
	PublishedAt  time.Time `json:"published_date"`
	Summary      string    `json:"summary"`
	SummaryError bool      `json:"summary_is_error"`
	Tags         []Tag     `json:"tags"`
	WordCount    int       `json:"word_count"`
	Favorite     bool      `json:"favorite"`
}

// SummariesRequest is the paginated, filterable article query. The three
// filter kinds are mutually exclusive on the client; the server composes
// whatever it is given.
type SummariesRequest struct {
	Page                int     `json:"page"`
	PageSize            int     `json:"page_size"`
	FeedSourceIDs       []int64 `json:"feed_source_ids,omitempty"`
	TagIDs              []int64 `json:"tag_ids,omitempty"`
	Keyword             string  `json:"keyword,omitempty"`
	FavoritesOnly       bool    `json:"favorites_only,omitempty"`
	SummaryPrompt       string  `json:"summary_prompt,omitempty"`
	TagGenerationPrompt string  `json:"tag_generation_prompt,omitempty"`
}

type SummariesResponse struct {
	ProcessedArticlesOnPage []ProcessedArticle `json:"processed_articles_on_page"`
	TotalArticlesAvailable  int                `json:"total_articles_available"`
	TotalPages              int                `json:"total_pages"`
}

// NewArticlesStatus answers the polling check. LatestArticleTimestamp is
// RFC3339 or empty when the store holds no articles.
type NewArticlesStatus struct {
	NewArticlesAvailable   bool   `json:"new_articles_available"`
	ArticleCount           int64  `json:"article_count"`
	LatestArticleTimestamp string `json:"latest_article_timestamp,omitempty"`
}

// Settings is the user-tunable configuration persisted server-side.
type Settings struct {
	SummaryPrompt           string `json:"summary_prompt"`
	ChatPrompt              string `json:"chat_prompt"`
	TagGenerationPrompt     string `json:"tag_generation_prompt"`
	SummaryModel            string `json:"summary_model"`
	ChatModel               string `json:"chat_model"`
	TagModel                string `json:"tag_model"`
	PageSize                int    `json:"page_size"`
	RSSCheckIntervalMinutes int    `json:"rss_check_interval_minutes"`
	MinimumWordCount        int    `json:"minimum_word_count"`
}

// SettingsUpdate is a partial settings write. Nil fields keep their
// stored value.
type SettingsUpdate struct {
	SummaryPrompt           *string `json:"summary_prompt,omitempty"`
	ChatPrompt              *string `json:"chat_prompt,omitempty"`
	TagGenerationPrompt     *string `json:"tag_generation_prompt,omitempty"`
	SummaryModel            *string `json:"summary_model,omitempty"`
	ChatModel               *string `json:"chat_model,omitempty"`
	TagModel                *string `json:"tag_model,omitempty"`
	PageSize                *int    `json:"page_size,omitempty"`
	RSSCheckIntervalMinutes *int    `json:"rss_check_interval_minutes,omitempty"`
	MinimumWordCount        *int    `json:"minimum_word_count,omitempty"`
}

// InitialConfig bootstraps a client session: current settings, the
// defaults they fall back to, selectable models and the feed list.
type InitialConfig struct {
	Settings        Settings `json:"settings"`
	Defaults        Settings `json:"defaults"`
	AvailableModels []string `json:"available_models"`
	Feeds           []Feed   `json:"feeds"`
}

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type ChatHistory struct {
	ArticleID int64         `json:"article_id"`
	Messages  []ChatMessage `json:"messages"`
}

// ChatRequest carries a question about an article. ChatHistory is the
// transcript as the client last knew it, excluding the just-appended
// question and its placeholder turn.
type ChatRequest struct {
	ArticleID   int64         `json:"article_id"`
	Question    string        `json:"question"`
	ChatHistory []ChatMessage `json:"chat_history,omitempty"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

type RegenerateRequest struct {
	SummaryPrompt       string `json:"summary_prompt,omitempty"`
	TagGenerationPrompt string `json:"tag_generation_prompt,omitempty"`
}

type ArticleContent struct {
	ArticleID   int64  `json:"article_id"`
	Title       string `json:"title"`
	ContentHTML string `json:"content_html"`
}

type CleanupResult struct {
	DeletedArticles int64 `json:"deleted_articles"`
}

const (
	RefreshStarted        = "started"
	RefreshAlreadyRunning = "already_running"
)

type RefreshStatus struct {
	Status string `json:"status"`
}

// ArticleCreatedEvent fired when ingest stores a new article
type ArticleCreatedEvent struct {
	Article Article `json:"article"`
}

// RefreshCompletedEvent fired after a full refresh cycle
type RefreshCompletedEvent struct {
	FeedsChecked   int       `json:"feeds_checked"`
	NewArticles    int       `json:"new_articles"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	CompletedAt    time.Time `json:"completed_at"`
}
