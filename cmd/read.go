/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"github.com/urfave/cli/v2"

	"gleaner/client"
	"gleaner/tui"
)

// The terminal reader talks to the server through the API client.
var _ tui.Backend = (*client.Client)(nil)

func readCmd() *cli.Command {
	return &cli.Command{
		Name:  "read",
		Usage: "Browse articles in the terminal",
		Description: `Opens the terminal reader against a running gleaner server.

The reader shows the summary cards with their tags, lets you filter by
feed, tag, keyword or favorites, opens article content, and answers
questions about an article in a chat view. Settings and feeds can be
managed without leaving the terminal.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:3000",
				Usage:   "Base URL of the gleaner server",
				EnvVars: []string{"GLEANER_SERVER"},
			},
		},
		Action: func(ctx *cli.Context) error {
			return tui.Run(client.New(ctx.String("server"), nil))
		},
	}
}
