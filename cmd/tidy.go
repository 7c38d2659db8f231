/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"gleaner/config"
	"gleaner/db"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing articles that are old.

		Removes articles published before the cutoff from the database,
		together with their summaries, tags and chat history. This keeps
		the database size down.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database",
				Aliases: []string{"d"},
				Value:   "gleaner.db",
				Usage:   "SQLite database file location",
				EnvVars: []string{"GLEANER_DATABASE"},
			},
			&cli.IntFlag{
				Name:  "days",
				Value: config.DefaultCleanupDays,
				Usage: "Remove articles older than this many days",
			},
		},
		Action: func(ctx *cli.Context) error {
			database := ctx.String("database")
			fmt.Println("Database configured: ", database)

			store, err := db.New(database)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.DeleteArticlesOlderThan(ctx.Int("days"))
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d articles older than %d days\n", removed, ctx.Int("days"))
			return nil
		},
	}
}
