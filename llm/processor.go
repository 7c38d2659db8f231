package llm

import (
	"context"
	"errors"

	"gleaner/db"
	"gleaner/models"

	log "github.com/sirupsen/logrus"
)

// Processor fills in missing summaries and tags for stored articles. It
// runs synchronously during page requests, so a page is only returned
// once its articles are processed.
type Processor struct {
	store     *db.DB
	generator *Generator
}

func NewProcessor(store *db.DB, generator *Generator) *Processor {
	return &Processor{store: store, generator: generator}
}

// Prompts carries optional per-request prompt overrides. Empty fields
// fall back to the stored settings.
type Prompts struct {
	Summary string
	Tags    string
}

func (prompts Prompts) withDefaults(settings models.Settings) (string, string) {
	summary := prompts.Summary
	if summary == "" {
		summary = settings.SummaryPrompt
	}
	tags := prompts.Tags
	if tags == "" {
		tags = settings.TagGenerationPrompt
	}
	return summary, tags
}

// EnsureProcessed generates whatever is missing on a page of articles
// and updates the slice in place. Articles whose last summary attempt
// failed are retried. Individual failures degrade to error summaries
// instead of failing the whole page.
func (p *Processor) EnsureProcessed(ctx context.Context, articles []models.ProcessedArticle, settings models.Settings, prompts Prompts) {
	summaryPrompt, tagPrompt := prompts.withDefaults(settings)

	for i := range articles {
		article := &articles[i]

		needsSummary := article.Summary == "" || article.SummaryError
		needsTags := len(article.Tags) == 0
		if !needsSummary && !needsTags {
			continue
		}

		stored, err := p.store.GetArticle(article.ID)
		if err != nil {
			log.WithField("article", article.ID).WithError(err).Error("Failed to load article for processing")
			continue
		}

		if needsSummary {
			p.summarize(ctx, article, stored.ContentText, summaryPrompt, settings.SummaryModel)
		}
		if needsTags {
			p.tag(ctx, article, stored.ContentText, tagPrompt, settings.TagModel)
		}
	}
}

// Regenerate forces a fresh summary and tags for one article, e.g.
// after the user tuned a prompt. Returns the updated card.
func (p *Processor) Regenerate(ctx context.Context, articleID int64, settings models.Settings, prompts Prompts) (models.ProcessedArticle, error) {
	stored, err := p.store.GetArticle(articleID)
	if err != nil {
		return models.ProcessedArticle{}, err
	}

	article := models.ProcessedArticle{
		ID:          stored.ID,
		FeedID:      stored.FeedID,
		Title:       stored.Title,
		URL:         stored.URL,
		Publisher:   stored.Publisher,
		Language:    stored.Language,
		PublishedAt: stored.PublishedAt,
		WordCount:   stored.WordCount,
		Favorite:    stored.Favorite,
		Tags:        []models.Tag{},
	}

	// Keep the current tags around in case regeneration fails
	if tags, err := p.store.ArticleTags(articleID); err == nil {
		article.Tags = tags
	}

	summaryPrompt, tagPrompt := prompts.withDefaults(settings)
	p.summarize(ctx, &article, stored.ContentText, summaryPrompt, settings.SummaryModel)
	p.tag(ctx, &article, stored.ContentText, tagPrompt, settings.TagModel)

	return article, nil
}

func (p *Processor) summarize(ctx context.Context, article *models.ProcessedArticle, text string, prompt string, model string) {
	summary, err := p.generator.Summarize(ctx, text, prompt, model)
	switch {
	case errors.Is(err, ErrContentTooShort):
		// Answered locally, nothing persisted
		article.Summary = ContentTooShortMessage
		article.SummaryError = true
		return
	case err != nil:
		log.WithField("article", article.ID).WithError(err).Error("Summary generation failed")
		article.Summary = "Summary generation failed: " + err.Error()
		article.SummaryError = true
		if err := p.store.SaveSummary(article.ID, article.Summary, model, true); err != nil {
			log.WithField("article", article.ID).WithError(err).Error("Failed to store summary")
		}
		return
	}

	article.Summary = summary
	article.SummaryError = false
	if err := p.store.SaveSummary(article.ID, summary, model, false); err != nil {
		log.WithField("article", article.ID).WithError(err).Error("Failed to store summary")
	}
}

func (p *Processor) tag(ctx context.Context, article *models.ProcessedArticle, text string, prompt string, model string) {
	names, err := p.generator.GenerateTags(ctx, text, prompt, model)
	if errors.Is(err, ErrContentTooShort) {
		return
	}
	if err != nil {
		log.WithField("article", article.ID).WithError(err).Error("Tag generation failed")
		return
	}
	if len(names) == 0 {
		return
	}

	if err := p.store.ReplaceArticleTags(article.ID, names); err != nil {
		log.WithField("article", article.ID).WithError(err).Error("Failed to store tags")
		return
	}

	tags, err := p.store.ArticleTags(article.ID)
	if err != nil {
		log.WithField("article", article.ID).WithError(err).Error("Failed to reload tags")
		return
	}
	article.Tags = tags
}
