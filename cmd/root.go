/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "gleaner",
		Usage: "An RSS reader that summarizes, tags and answers questions about articles",
		Description: `Gleaner pulls articles from your RSS and Atom feeds into an
		SQLite database and has a language model write a short summary and
		topic tags for each one. The HTTP API serves paginated summary
		cards with feed, tag, keyword and favorite filters, per-article
		chat, and a server-sent event stream for new articles.

		The bundled terminal reader (gleaner read) browses a running server.

		Flags can generally be set via environment variables, e.g.:

		--database => GLEANER_DATABASE=gleaner.db
		--addr => GLEANER_ADDR=:3000
		`,
		Commands: []*cli.Command{
			serveCmd(),
			readCmd(),
			fetchCmd(),
			feedsCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func Execute() {
	if err := RootApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
