package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gleaner/config"
	"gleaner/db"
	"gleaner/llm"
	"gleaner/models"
	"gleaner/rss"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

type ServerConfig struct {

	// The store backing all read and write operations
	Store *db.DB

	// Fills in missing summaries and tags while pages are served
	Processor *llm.Processor

	// Answers chat questions about articles
	Generator *llm.Generator

	// Used by the manual refresh trigger
	Refresher *rss.Refresher

	// Refetches article pages whose feed entry carried no content
	Scraper *rss.Scraper

	// Broadcast channels to pass ingest events to SSE clients
	Broadcaster *Broadcaster

	// Models selectable in the settings screen
	AvailableModels []string

	// Origins allowed to call the API from a browser
	AllowOrigins string
}

// detail writes an error response in the {"detail": "..."} shape shared
// by every endpoint.
func detail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"detail": message})
}

// paramID parses the :id route parameter.
func paramID(c *fiber.Ctx) (int64, bool) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, false
	}
	return int64(id), true
}

// Returns a fiber.App instance serving the gleaner REST API
func Server(cfg *ServerConfig) *fiber.App {

	store := cfg.Store
	bc := cfg.Broadcaster

	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		// start timer
		start := time.Now()

		// next routes
		err := c.Next()

		// stop timer
		stop := time.Now()

		// Diff
		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": stop.Sub(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	// Setup CORS for the web client origin
	allowOrigins := cfg.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "http://localhost:3001"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowHeaders:     "Cache-Control",
		AllowCredentials: true,
	}))

	// Cache article content responses; everything else is served fresh
	app.Use(cache.New(cache.Config{
		Expiration: 5 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			return !strings.HasSuffix(c.Path(), "/content")
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			// Get URL with query string to use as cache key
			return c.Request().URI().String()
		},
	}))

	api := app.Group("/api")

	api.Get("/initial-config", func(c *fiber.Ctx) error {
		settings, err := store.GetSettings()
		if err != nil {
			log.WithError(err).Error("Failed to load settings")
			return detail(c, 500, "Failed to load settings.")
		}

		feeds, err := store.ListFeeds()
		if err != nil {
			log.WithError(err).Error("Failed to list feeds")
			return detail(c, 500, "Failed to list feeds.")
		}

		return c.JSON(models.InitialConfig{
			Settings:        settings,
			Defaults:        config.DefaultSettings(),
			AvailableModels: cfg.AvailableModels,
			Feeds:           feeds,
		})
	})

	api.Put("/config", func(c *fiber.Ctx) error {
		update := new(models.SettingsUpdate)
		if err := c.BodyParser(update); err != nil {
			return detail(c, 400, "Invalid request body.")
		}

		if message, ok := validateSettings(update); !ok {
			return detail(c, 400, message)
		}

		settings, err := store.UpdateSettings(*update)
		if err != nil {
			log.WithError(err).Error("Failed to save settings")
			return detail(c, 500, "Failed to save settings.")
		}

		return c.JSON(settings)
	})

	api.Post("/articles/summaries", func(c *fiber.Ctx) error {
		request := new(models.SummariesRequest)
		if err := c.BodyParser(request); err != nil {
			return detail(c, 400, "Invalid request body.")
		}

		settings, err := store.GetSettings()
		if err != nil {
			log.WithError(err).Error("Failed to load settings")
			return detail(c, 500, "Failed to load settings.")
		}

		pageSize := request.PageSize
		if pageSize <= 0 {
			pageSize = settings.PageSize
		}
		if pageSize > config.MaxPageSize {
			pageSize = config.MaxPageSize
		}

		page := request.Page
		if page < 1 {
			page = 1
		}

		filters := db.BuildFilters(*request, settings.MinimumWordCount)

		articles, total, err := store.GetArticlePage(filters, page, pageSize)
		if err != nil {
			log.WithError(err).Error("Failed to load article page")
			return detail(c, 500, "Failed to load articles.")
		}

		totalPages := (total + pageSize - 1) / pageSize
		if page > totalPages && totalPages > 0 {
			// Past the end, serve the last page instead
			page = totalPages
			articles, total, err = store.GetArticlePage(filters, page, pageSize)
			if err != nil {
				log.WithError(err).Error("Failed to load article page")
				return detail(c, 500, "Failed to load articles.")
			}
		}

		cfg.Processor.EnsureProcessed(c.Context(), articles, settings, llm.Prompts{
			Summary: request.SummaryPrompt,
			Tags:    request.TagGenerationPrompt,
		})

		if articles == nil {
			articles = []models.ProcessedArticle{}
		}

		return c.JSON(models.SummariesResponse{
			ProcessedArticlesOnPage: articles,
			TotalArticlesAvailable:  total,
			TotalPages:              totalPages,
		})
	})

	api.Get("/articles/status/new-articles", func(c *fiber.Ctx) error {
		latest, err := store.LatestArticleTime()
		if err != nil {
			log.WithError(err).Error("Failed to load latest article time")
			return detail(c, 500, "Failed to check for new articles.")
		}

		watermark := ""
		if !latest.IsZero() {
			watermark = latest.Format(time.RFC3339)
		}

		raw := c.Query("since_timestamp", "")
		if raw == "" {
			// No watermark yet: report the total and let the client
			// bootstrap from the latest timestamp
			count, err := store.CountArticles()
			if err != nil {
				log.WithError(err).Error("Failed to count articles")
				return detail(c, 500, "Failed to check for new articles.")
			}
			return c.JSON(models.NewArticlesStatus{
				NewArticlesAvailable:   false,
				ArticleCount:           count,
				LatestArticleTimestamp: watermark,
			})
		}

		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return detail(c, 400, "Invalid since_timestamp, expected an RFC 3339 time.")
		}

		count, err := store.CountArticlesSince(since)
		if err != nil {
			log.WithError(err).Error("Failed to count new articles")
			return detail(c, 500, "Failed to check for new articles.")
		}

		return c.JSON(models.NewArticlesStatus{
			NewArticlesAvailable:   count > 0,
			ArticleCount:           count,
			LatestArticleTimestamp: watermark,
		})
	})

	api.Post("/articles/:id/favorite", func(c *fiber.Ctx) error {
		id, ok := paramID(c)
		if !ok {
			return detail(c, 400, "Invalid article id.")
		}

		article, err := store.GetArticle(id)
		if errors.Is(err, sql.ErrNoRows) {
			return detail(c, 404, "Article not found.")
		} else if err != nil {
			log.WithError(err).Error("Failed to load article")
			return detail(c, 500, "Failed to load article.")
		}

		if err := store.SetFavorite(id, !article.Favorite); err != nil {
			log.WithError(err).Error("Failed to update favorite")
			return detail(c, 500, "Failed to update favorite.")
		}

		card, err := store.GetProcessedArticle(id)
		if err != nil {
			log.WithError(err).Error("Failed to load article")
			return detail(c, 500, "Failed to load article.")
		}

		return c.JSON(card)
	})

	api.Post("/articles/:id/regenerate-summary", func(c *fiber.Ctx) error {
		id, ok := paramID(c)
		if !ok {
			return detail(c, 400, "Invalid article id.")
		}

		request := new(models.RegenerateRequest)
		if len(c.Body()) > 0 {
			if err := c.BodyParser(request); err != nil {
				return detail(c, 400, "Invalid request body.")
			}
		}

		settings, err := store.GetSettings()
		if err != nil {
			log.WithError(err).Error("Failed to load settings")
			return detail(c, 500, "Failed to load settings.")
		}

		card, err := cfg.Processor.Regenerate(c.Context(), id, settings, llm.Prompts{
			Summary: request.SummaryPrompt,
			Tags:    request.TagGenerationPrompt,
		})
		if errors.Is(err, sql.ErrNoRows) {
			return detail(c, 404, "Article not found.")
		} else if err != nil {
			log.WithError(err).Error("Failed to regenerate summary")
			return detail(c, 500, "Failed to regenerate summary.")
		}

		return c.JSON(card)
	})

	api.Get("/articles/:id/content", func(c *fiber.Ctx) error {
		id, ok := paramID(c)
		if !ok {
			return detail(c, 400, "Invalid article id.")
		}

		article, err := store.GetArticle(id)
		if errors.Is(err, sql.ErrNoRows) {
			return detail(c, 404, "Article not found.")
		} else if err != nil {
			log.WithError(err).Error("Failed to load article")
			return detail(c, 500, "Failed to load article.")
		}

		// Thin feed entries get one shot at the article page itself
		if len(strings.TrimSpace(article.ContentText)) < llm.MinimumContentLength && cfg.Scraper != nil {
			scraped, err := cfg.Scraper.Scrape(c.Context(), article.URL)
			if err != nil {
				log.WithField("article", id).WithError(err).Warn("Failed to fetch article page")
			} else if scraped.WordCount > article.WordCount {
				if err := store.UpdateArticleContent(id, scraped.HTML, scraped.Text, scraped.WordCount); err != nil {
					log.WithField("article", id).WithError(err).Error("Failed to store fetched content")
				} else {
					article.ContentHTML = scraped.HTML
				}
			}
		}

		return c.JSON(models.ArticleContent{
			ArticleID:   article.ID,
			Title:       article.Title,
			ContentHTML: article.ContentHTML,
		})
	})

	api.Get("/article/:id/chat-history", func(c *fiber.Ctx) error {
		id, ok := paramID(c)
		if !ok {
			return detail(c, 400, "Invalid article id.")
		}

		messages, err := store.GetChatHistory(id)
		if err != nil {
			log.WithError(err).Error("Failed to load chat history")
			return detail(c, 500, "Failed to load chat history.")
		}

		return c.JSON(models.ChatHistory{ArticleID: id, Messages: messages})
	})

	api.Post("/chat-with-article", func(c *fiber.Ctx) error {
		request := new(models.ChatRequest)
		if err := c.BodyParser(request); err != nil {
			return detail(c, 400, "Invalid request body.")
		}
		if strings.TrimSpace(request.Question) == "" {
			return detail(c, 400, "Question cannot be empty.")
		}

		article, err := store.GetArticle(request.ArticleID)
		if errors.Is(err, sql.ErrNoRows) {
			return detail(c, 404, "Article not found.")
		} else if err != nil {
			log.WithError(err).Error("Failed to load article")
			return detail(c, 500, "Failed to load article.")
		}

		settings, err := store.GetSettings()
		if err != nil {
			log.WithError(err).Error("Failed to load settings")
			return detail(c, 500, "Failed to load settings.")
		}

		answer, err := cfg.Generator.Answer(c.Context(), article.ContentText, request.Question, request.ChatHistory, settings.ChatPrompt, settings.ChatModel)
		if err != nil {
			log.WithField("article", request.ArticleID).WithError(err).Error("Chat completion failed")
			return detail(c, 502, "Failed to get an answer: "+err.Error())
		}

		// Only successful turns become part of the transcript
		if err := store.SaveChatMessage(request.ArticleID, models.ChatRoleUser, request.Question); err != nil {
			log.WithError(err).Error("Failed to store chat question")
		} else if err := store.SaveChatMessage(request.ArticleID, models.ChatRoleAssistant, answer); err != nil {
			log.WithError(err).Error("Failed to store chat answer")
		}

		return c.JSON(models.ChatResponse{Answer: answer})
	})

	api.Get("/feeds", func(c *fiber.Ctx) error {
		feeds, err := store.ListFeeds()
		if err != nil {
			log.WithError(err).Error("Failed to list feeds")
			return detail(c, 500, "Failed to list feeds.")
		}
		return c.JSON(feeds)
	})

	api.Post("/feeds", func(c *fiber.Ctx) error {
		input := new(models.FeedInput)
		if err := c.BodyParser(input); err != nil {
			return detail(c, 400, "Invalid request body.")
		}

		parsed, err := url.Parse(strings.TrimSpace(input.URL))
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return detail(c, 400, "Invalid feed URL.")
		}
		input.URL = parsed.String()

		if input.FetchIntervalMinutes < 0 {
			return detail(c, 400, "Fetch interval must be positive.")
		}

		if _, err := store.FeedByURL(input.URL); err == nil {
			return detail(c, 409, "Feed URL already exists.")
		} else if !errors.Is(err, sql.ErrNoRows) {
			log.WithError(err).Error("Failed to check feed URL")
			return detail(c, 500, "Failed to add feed.")
		}

		if input.Name == "" {
			// Fall back to the host until a fetch discovers the title
			input.Name = strings.TrimPrefix(parsed.Host, "www.")
		}

		feed, err := store.CreateFeed(*input)
		if err != nil {
			log.WithError(err).Error("Failed to add feed")
			return detail(c, 500, "Failed to add feed.")
		}

		return c.Status(201).JSON(feed)
	})

	api.Put("/feeds/:id", func(c *fiber.Ctx) error {
		id, ok := paramID(c)
		if !ok {
			return detail(c, 400, "Invalid feed id.")
		}

		update := new(models.FeedUpdate)
		if err := c.BodyParser(update); err != nil {
			return detail(c, 400, "Invalid request body.")
		}

		if update.FetchIntervalMinutes != nil && *update.FetchIntervalMinutes <= 0 {
			return detail(c, 400, "Fetch interval must be positive.")
		}

		feed, err := store.UpdateFeed(id, *update)
		if errors.Is(err, sql.ErrNoRows) {
			return detail(c, 404, "Feed source not found.")
		} else if err != nil {
			log.WithError(err).Error("Failed to update feed")
			return detail(c, 500, "Failed to update feed.")
		}

		return c.JSON(feed)
	})

	api.Delete("/feeds/:id", func(c *fiber.Ctx) error {
		id, ok := paramID(c)
		if !ok {
			return detail(c, 400, "Invalid feed id.")
		}

		err := store.DeleteFeed(id)
		if errors.Is(err, sql.ErrNoRows) {
			return detail(c, 404, "Feed source not found.")
		} else if err != nil {
			log.WithError(err).Error("Failed to delete feed")
			return detail(c, 500, "Failed to delete feed.")
		}

		return c.SendStatus(204)
	})

	api.Post("/trigger-rss-refresh", func(c *fiber.Ctx) error {
		// Background context: the refresh outlives this request
		status := models.RefreshAlreadyRunning
		if cfg.Refresher.TryRefreshAll(context.Background()) {
			status = models.RefreshStarted
		}

		return c.Status(202).JSON(models.RefreshStatus{Status: status})
	})

	api.Delete("/admin/cleanup-old-data", func(c *fiber.Ctx) error {
		days := config.DefaultCleanupDays
		if raw := c.Query("days_old", ""); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				return detail(c, 400, "days_old must be a positive integer.")
			}
			days = parsed
		}

		deleted, err := store.DeleteArticlesOlderThan(days)
		if err != nil {
			log.WithError(err).Error("Failed to delete old articles")
			return detail(c, 500, "Failed to delete old articles.")
		}

		log.WithFields(log.Fields{
			"days":    days,
			"deleted": deleted,
		}).Info("Cleaned up old articles")

		return c.JSON(models.CleanupResult{DeletedArticles: deleted})
	})

	api.Delete("/events/sse", func(c *fiber.Ctx) error {
		key := c.Query("key", "")
		bc.RemoveClient(key)
		return c.Status(200).SendString("OK")
	})

	api.Get("/events/sse", eventStream(bc))

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	return app
}

// validateSettings rejects updates that would break summary, tag or chat
// generation. The bool reports validity.
func validateSettings(update *models.SettingsUpdate) (string, bool) {
	if update.PageSize != nil && (*update.PageSize < 1 || *update.PageSize > config.MaxPageSize) {
		return fmt.Sprintf("Page size must be between 1 and %d.", config.MaxPageSize), false
	}
	if update.RSSCheckIntervalMinutes != nil && *update.RSSCheckIntervalMinutes < config.MinFetchIntervalMinutes {
		return fmt.Sprintf("RSS check interval must be at least %d minutes.", config.MinFetchIntervalMinutes), false
	}
	if update.MinimumWordCount != nil && *update.MinimumWordCount < 0 {
		return "Minimum word count cannot be negative.", false
	}
	if update.SummaryPrompt != nil && *update.SummaryPrompt != "" && !models.PromptHasPlaceholder(*update.SummaryPrompt, models.TextPlaceholder) {
		return "Summary prompt must contain the {text} placeholder.", false
	}
	if update.TagGenerationPrompt != nil && *update.TagGenerationPrompt != "" && !models.PromptHasPlaceholder(*update.TagGenerationPrompt, models.TextPlaceholder) {
		return "Tag generation prompt must contain the {text} placeholder.", false
	}
	if update.ChatPrompt != nil && *update.ChatPrompt != "" && !models.PromptHasPlaceholder(*update.ChatPrompt, models.QuestionPlaceholder) {
		return "Chat prompt must contain the {question} placeholder.", false
	}
	return "", true
}
