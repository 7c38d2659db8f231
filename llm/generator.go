package llm

import (
	"context"
	"errors"
	"strings"

	"gleaner/config"
	"gleaner/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

var (
	completionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gleaner_llm_completions_total",
		Help: "The total number of completion requests by task and outcome",
	}, []string{"task", "outcome"})

	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gleaner_llm_completion_duration_seconds",
		Help:    "Duration of completion requests by task",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // Start at 250ms, double each bucket, 10 buckets
	}, []string{"task"})
)

// Generation parameters per task. Summaries and tags want repeatable
// output, chat can be a little looser.
const (
	summaryTemperature = 0.2
	summaryMaxTokens   = 1024

	chatTemperature = 0.5
	chatMaxTokens   = 4096

	tagTemperature = 0.1
	tagMaxTokens   = 100
)

// MinimumContentLength is the shortest article text worth summarizing.
// Anything shorter is answered locally.
const MinimumContentLength = 50

// MinimumContextLength is the shortest article text the tag and chat
// tasks still work with.
const MinimumContextLength = 20

// MaxTagsPerArticle caps how many tags a single response may yield.
const MaxTagsPerArticle = 5

// EmptyAnswerFallback is shown when the model technically succeeds but
// returns nothing.
const EmptyAnswerFallback = "AI returned an empty answer."

// ContentTooShortMessage is recorded instead of a summary when the
// article text is too short to summarize.
const ContentTooShortMessage = "Article content is too short to summarize."

// ErrContentTooShort signals that no completion was attempted because
// the article text is below MinimumContentLength.
var ErrContentTooShort = errors.New("article content too short")

// Generator runs the completion tasks against a Client.
type Generator struct {
	client Client
}

func NewGenerator(client Client) *Generator {
	return &Generator{client: client}
}

// Summarize produces a summary of the article text. A custom prompt is
// only used when it carries the {text} placeholder, otherwise the
// default prompt takes over.
func (g *Generator) Summarize(ctx context.Context, text string, prompt string, model string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) < MinimumContentLength {
		return "", ErrContentTooShort
	}

	template := resolvePrompt(prompt, config.DefaultSummaryPrompt)

	return g.complete(ctx, "summary", CompletionRequest{
		Model:       model,
		Prompt:      strings.ReplaceAll(template, models.TextPlaceholder, text),
		Temperature: summaryTemperature,
		MaxTokens:   summaryMaxTokens,
	})
}

// GenerateTags produces topical tags for the article text.
func (g *Generator) GenerateTags(ctx context.Context, text string, prompt string, model string) ([]string, error) {
	text = strings.TrimSpace(text)
	if len(text) < MinimumContextLength {
		return nil, ErrContentTooShort
	}

	template := resolvePrompt(prompt, config.DefaultTagGenerationPrompt)

	answer, err := g.complete(ctx, "tags", CompletionRequest{
		Model:       model,
		Prompt:      strings.ReplaceAll(template, models.TextPlaceholder, text),
		Temperature: tagTemperature,
		MaxTokens:   tagMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return ParseTags(answer), nil
}

// Answer responds to a question about an article, weaving the earlier
// conversation into the prompt.
func (g *Generator) Answer(ctx context.Context, articleText string, question string, history []models.ChatMessage, prompt string, model string) (string, error) {
	template := strings.TrimSpace(prompt)
	if template == "" {
		template = config.DefaultChatPrompt
	} else if !models.PromptHasPlaceholder(template, models.QuestionPlaceholder) {
		log.Warn("Custom chat prompt is missing the {question} placeholder, using the default")
		template = config.DefaultChatPrompt
	}

	articleText = strings.TrimSpace(articleText)
	if len(articleText) < MinimumContextLength {
		template = config.ChatNoArticlePrompt
	} else {
		template = strings.ReplaceAll(template, models.ArticleTextPlaceholder, articleText)
	}

	// Everything before {question} stays a preamble, the conversation is
	// replayed as "Speaker: text" lines and the question goes last.
	prefix, tail, _ := strings.Cut(template, models.QuestionPlaceholder)

	var b strings.Builder
	b.WriteString(prefix)
	for _, message := range history {
		b.WriteString(speakerLabel(message.Role))
		b.WriteString(": ")
		b.WriteString(message.Content)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(question)
	if tail != "" {
		b.WriteString(tail)
	} else {
		b.WriteString("\nAI:")
	}

	answer, err := g.complete(ctx, "chat", CompletionRequest{
		Model:       model,
		Prompt:      b.String(),
		Temperature: chatTemperature,
		MaxTokens:   chatMaxTokens,
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(answer) == "" {
		return EmptyAnswerFallback, nil
	}

	return answer, nil
}

func (g *Generator) complete(ctx context.Context, task string, request CompletionRequest) (string, error) {
	timer := prometheus.NewTimer(completionDuration.WithLabelValues(task))
	defer timer.ObserveDuration()

	answer, err := g.client.Complete(ctx, request)
	if err != nil {
		completionsTotal.WithLabelValues(task, "error").Inc()
		return "", err
	}

	completionsTotal.WithLabelValues(task, "ok").Inc()
	return answer, nil
}

// ParseTags splits a comma separated model response into clean,
// deduplicated tag names.
func ParseTags(answer string) []string {
	tags := []string{}
	for _, part := range strings.Split(answer, ",") {
		tag := strings.TrimSpace(part)
		tag = strings.Trim(tag, `"'.`)
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		tags = append(tags, strings.ToLower(tag))
	}

	tags = lo.Uniq(tags)
	if len(tags) > MaxTagsPerArticle {
		tags = tags[:MaxTagsPerArticle]
	}

	return tags
}

func resolvePrompt(prompt string, fallback string) string {
	if strings.TrimSpace(prompt) == "" {
		return fallback
	}
	if !models.PromptHasPlaceholder(prompt, models.TextPlaceholder) {
		log.Warn("Custom prompt is missing the {text} placeholder, using the default")
		return fallback
	}
	return prompt
}

func speakerLabel(role string) string {
	if role == models.ChatRoleAssistant {
		return "AI"
	}
	return "User"
}
