package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	if err := newApp().Run(ctx, argv); err != nil {
		logging.From(ctx).Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

func newApp() *cli.Command {
	var (
		logLevel  string
		logFormat string
	)

	return &cli.Command{
		Name:  "wandersync",
		Usage: "Travel planning assistant with long-term memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("WANDERSYNC_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (console, json)",
				Value:       logging.FormatConsole,
				Sources:     cli.EnvVars("WANDERSYNC_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// stdout carries answers, logs go to stderr
			logger := logging.New(logLevel, logFormat, os.Stderr)
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			askCommand(),
			chatCommand(),
			recallCommand(),
			historyCommand(),
		},
	}
}
