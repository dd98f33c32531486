package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func recallCommand() *cli.Command {
	var (
		cfg   config
		limit int64
	)

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"n"},
			Usage:       "Maximum number of memories to show",
			Value:       5,
			Sources:     cli.EnvVars("WANDERSYNC_RECALL_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)

	return &cli.Command{
		Name:      "recall",
		Usage:     "Search past answers by meaning",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.Close()

			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return goerr.New("query is required")
			}

			store, err := cfg.newMemory(ctx)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			result := store.Retrieve(ctx, query, int(limit))
			if len(result.Memories) == 0 {
				fmt.Fprintf(w, "%s\n", result.Message)
				return nil
			}

			for _, m := range result.Memories {
				fmt.Fprintf(w, "[%.3f] %s\n", m.Score, m.ID)
				if m.Query != "" {
					fmt.Fprintf(w, "  Q: %s\n", m.Query)
				}
				fmt.Fprintf(w, "  A: %s\n", firstLine(m.Response))
			}
			return nil
		},
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
