/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"gleaner/db"
	"gleaner/models"
	"gleaner/rss"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Run one feed refresh cycle and print the new articles",
		Description: `Checks every due feed once, stores the new articles in the database
and exits. No server is required.

Returns each stored article as a JSON object on a single line. Use a tool
like jq to process the output.

Prints all other log messages to stderr.`,
		Flags: configFlags(),
		Action: func(ctx *cli.Context) error {
			// Keep stdout clean for the article lines
			log.SetOutput(os.Stderr)

			cfg, err := resolveConfig(ctx)
			if err != nil {
				return err
			}

			if err := db.Migrate(cfg.Database.Path); err != nil {
				return fmt.Errorf("failed to migrate database: %w", err)
			}

			store, err := db.New(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer store.Close()

			seedFeeds(store, cfg.Feeds)

			var detector *rss.Detector
			if cfg.RSS.LanguageDetection {
				detector = rss.NewDetector(cfg.RSS.Languages, cfg.RSS.ConfidenceThreshold)
			}

			fetcher := rss.NewFetcher(cfg.RSS.UserAgent, cfg.RSS.MaxArticlesPerFeed, detector)
			refresher := rss.NewRefresher(store, fetcher, printNotifier{}, cfg.RSS.FetchWorkers)

			event, _ := refresher.RefreshAll(ctx.Context)
			log.WithFields(log.Fields{
				"feeds": event.FeedsChecked,
				"new":   event.NewArticles,
			}).Info("Fetch completed")

			return nil
		},
	}
}

// printNotifier writes each stored article to stdout as a single JSON
// line.
type printNotifier struct{}

func (printNotifier) ArticleCreated(article models.Article) {
	line, err := json.Marshal(article)
	if err == nil {
		fmt.Println(string(line))
	}
}

func (printNotifier) RefreshCompleted(models.RefreshCompletedEvent) {}
