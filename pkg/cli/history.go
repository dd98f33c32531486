package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Manage raw chat history",
		Commands: []*cli.Command{
			historyListCommand(),
			historyDeleteCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	var (
		cfg    config
		userID string
		limit  int64
	)

	flags := []cli.Flag{
		userIDFlag(&userID),
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of records",
			Value:       20,
			Destination: &limit,
		},
	}
	flags = append(flags, historyFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List questions and answers of a user, newest first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.Close()

			repo, err := cfg.newHistory(ctx)
			if err != nil {
				return err
			}
			if repo == nil {
				return goerr.New("history backend is disabled")
			}

			histories, err := repo.ListHistory(ctx, userID, int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list histories")
			}

			w := c.Root().Writer
			if len(histories) == 0 {
				fmt.Fprintf(w, "No history found for user %s\n", userID)
				return nil
			}

			for _, h := range histories {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					h.ID,
					h.CreatedAt.Format("2006-01-02 15:04:05"),
					h.Query,
				)
			}
			return nil
		},
	}
}

func historyDeleteCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a history record",
		ArgsUsage: "<history-id>",
		Flags:     historyFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.Close()

			if c.Args().Len() != 1 {
				return goerr.New("history ID is required")
			}
			id := model.HistoryID(c.Args().First())

			repo, err := cfg.newHistory(ctx)
			if err != nil {
				return err
			}
			if repo == nil {
				return goerr.New("history backend is disabled")
			}

			if err := repo.DeleteHistory(ctx, id); err != nil {
				return goerr.Wrap(err, "failed to delete history", goerr.V("id", id))
			}

			fmt.Fprintf(c.Root().Writer, "Deleted %s\n", id)
			return nil
		},
	}
}
