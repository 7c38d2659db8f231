/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"gleaner/config"
	"gleaner/db"
	"gleaner/llm"
	"gleaner/models"
	"gleaner/rss"
	"gleaner/server"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the gleaner server",
		Description: `Starts the HTTP server and the background feed scheduler.

Feeds are checked on their configured interval, new articles are stored in
the SQLite database, and summaries and tags are generated on demand as
summary pages are requested. Connected clients are notified about new
articles over the event stream.

Seed feeds listed in the configuration file are registered on startup when
their URL is not yet known.`,
		Flags: append(configFlags(),
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Address for the HTTP server to listen on",
				EnvVars: []string{"GLEANER_ADDR"},
			},
			&cli.StringFlag{
				Name:    "llm-api-base",
				Usage:   "Base URL of the OpenAI-compatible completion endpoint",
				EnvVars: []string{"GLEANER_LLM_API_BASE"},
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the completion endpoint",
				EnvVars: []string{"GLEANER_LLM_API_KEY"},
			},
		),
		Action: func(ctx *cli.Context) error {
			cfg, err := resolveConfig(ctx)
			if err != nil {
				return err
			}
			if addr := ctx.String("addr"); addr != "" {
				cfg.Server.Addr = addr
			}
			if base := ctx.String("llm-api-base"); base != "" {
				cfg.LLM.APIBase = base
			}
			if key := ctx.String("llm-api-key"); key != "" {
				cfg.LLM.APIKey = key
			}

			log.Info("Starting gleaner...")

			if err := db.Migrate(cfg.Database.Path); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			store, err := db.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			seedFeeds(store, cfg.Feeds)

			generator := llm.NewGenerator(llm.NewHTTPClient(cfg.LLM.APIBase, cfg.LLM.APIKey))
			processor := llm.NewProcessor(store, generator)

			var detector *rss.Detector
			if cfg.RSS.LanguageDetection {
				detector = rss.NewDetector(cfg.RSS.Languages, cfg.RSS.ConfidenceThreshold)
			}

			fetcher := rss.NewFetcher(cfg.RSS.UserAgent, cfg.RSS.MaxArticlesPerFeed, detector)
			broadcaster := server.NewBroadcaster()
			refresher := rss.NewRefresher(store, fetcher, broadcaster, cfg.RSS.FetchWorkers)

			app := server.Server(&server.ServerConfig{
				Store:           store,
				Processor:       processor,
				Generator:       generator,
				Refresher:       refresher,
				Scraper:         rss.NewScraper(cfg.RSS.UserAgent),
				Broadcaster:     broadcaster,
				AvailableModels: cfg.LLM.Models,
				AllowOrigins:    cfg.Server.AllowOrigins,
			})

			schedulerCtx, stopScheduler := context.WithCancel(ctx.Context)
			defer stopScheduler()

			// The scheduler ticks every minute; feeds that are not due
			// yet are skipped, so their own intervals still apply
			go rss.NewScheduler(refresher, time.Minute).Run(schedulerCtx)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			go func() {
				<-quit
				log.Info("Gracefully shutting down...")
				stopScheduler()
				if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
					log.WithError(err).Error("Server shutdown failed")
				}
				broadcaster.Shutdown()
			}()

			log.WithField("addr", cfg.Server.Addr).Info("Starting server")
			if err := app.Listen(cfg.Server.Addr); err != nil {
				return fmt.Errorf("server stopped: %w", err)
			}

			log.Info("Done!")
			return nil
		},
	}
}

// configFlags are shared by the commands that read the config file and
// open the database directly.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the TOML configuration file",
			EnvVars: []string{"GLEANER_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "database",
			Aliases: []string{"d"},
			Usage:   "SQLite database file location",
			EnvVars: []string{"GLEANER_DATABASE"},
		},
	}
}

// resolveConfig loads the config file when one is given and falls back
// to defaults otherwise. The database flag overrides the file value.
func resolveConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if database := ctx.String("database"); database != "" {
		cfg.Database.Path = database
	}
	return cfg, nil
}

// seedFeeds registers the configured feeds that are not in the store
// yet. Feeds the user has since edited or removed are left alone.
func seedFeeds(store *db.DB, feeds []config.TomlFeed) {
	for _, feed := range feeds {
		if feed.URL == "" {
			continue
		}

		_, err := store.FeedByURL(feed.URL)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			log.WithField("feed", feed.URL).WithError(err).Error("Failed to look up seed feed")
			continue
		}

		created, err := store.CreateFeed(models.FeedInput{
			URL:                  feed.URL,
			Name:                 feed.Name,
			FetchIntervalMinutes: feed.FetchIntervalMinutes,
		})
		if err != nil {
			log.WithField("feed", feed.URL).WithError(err).Error("Failed to register seed feed")
			continue
		}
		log.WithFields(log.Fields{"feed": created.URL, "id": created.ID}).Info("Registered seed feed")
	}
}
