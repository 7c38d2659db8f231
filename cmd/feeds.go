/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cqroot/prompt"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"gleaner/client"
	"gleaner/models"
)

func feedsCmd() *cli.Command {
	return &cli.Command{
		Name:  "feeds",
		Usage: "Manage the feed sources of a running server",
		Subcommands: []*cli.Command{
			feedsListCmd(),
			feedsAddCmd(),
			feedsRemoveCmd(),
		},
	}
}

func serverFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Value:   "http://localhost:3000",
		Usage:   "Base URL of the gleaner server",
		EnvVars: []string{"GLEANER_SERVER"},
	}
}

func feedsListCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List registered feeds",
		Flags: []cli.Flag{serverFlag()},
		Action: func(ctx *cli.Context) error {
			feeds, err := client.New(ctx.String("server"), nil).ListFeeds(ctx.Context)
			if err != nil {
				return err
			}
			if len(feeds) == 0 {
				fmt.Println("No feeds registered.")
				return nil
			}
			for _, feed := range feeds {
				fmt.Printf("%4d  %-30s  every %3dm  %5d articles  %s\n",
					feed.ID, feedDisplayName(feed), feed.FetchIntervalMinutes, feed.ArticleCount, feed.URL)
			}
			return nil
		},
	}
}

func feedsAddCmd() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Register a new feed",
		ArgsUsage: "<feed url>",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.StringFlag{
				Name:    "name",
				Aliases: []string{"n"},
				Usage:   "Display name (defaults to the feed title after the first fetch)",
			},
			&cli.IntFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Fetch interval in minutes",
			},
		},
		Action: func(ctx *cli.Context) error {
			url := ctx.Args().First()
			name := ctx.String("name")

			// No URL argument drops into interactive mode
			if url == "" {
				var err error
				url, err = prompt.New().Ask("Feed URL:").Input("")
				if err != nil {
					return err
				}
				if url == "" {
					return errors.New("please provide the feed URL")
				}
				if name == "" {
					name, err = prompt.New().Ask("Display name (empty uses the feed title):").Input("")
					if err != nil {
						return err
					}
				}
			}

			feed, err := client.New(ctx.String("server"), nil).CreateFeed(ctx.Context, models.FeedInput{
				URL:                  url,
				Name:                 name,
				FetchIntervalMinutes: ctx.Int("interval"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("Registered feed %d: %s\n", feed.ID, feedDisplayName(feed))
			return nil
		},
	}
}

func feedsRemoveCmd() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a feed and all of its articles",
		ArgsUsage: "<feed id>",
		Flags: []cli.Flag{
			serverFlag(),
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
		Action: func(ctx *cli.Context) error {
			id, err := strconv.ParseInt(ctx.Args().First(), 10, 64)
			if err != nil {
				return errors.New("please provide the feed id as an argument, see: gleaner feeds list")
			}

			api := client.New(ctx.String("server"), nil)

			feeds, err := api.ListFeeds(ctx.Context)
			if err != nil {
				return err
			}
			feed, found := lo.Find(feeds, func(f models.Feed) bool { return f.ID == id })
			if !found {
				return fmt.Errorf("no feed with id %d", id)
			}

			if !ctx.Bool("yes") {
				answer, err := prompt.New().
					Ask(fmt.Sprintf("Delete %q and its %d articles? (y/N)", feedDisplayName(feed), feed.ArticleCount)).
					Input("N")
				if err != nil {
					return err
				}
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "y", "yes":
				default:
					fmt.Println("Aborted.")
					return nil
				}
			}

			if err := api.DeleteFeed(ctx.Context, id); err != nil {
				return err
			}

			fmt.Println("Removed feed", feedDisplayName(feed))
			return nil
		},
	}
}

// feedDisplayName falls back to the URL before the first fetch has
// filled the name in.
func feedDisplayName(feed models.Feed) string {
	if feed.Name != "" {
		return feed.Name
	}
	return feed.URL
}
