package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/usecase/chat"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg         config
		userID      string
		historyFile string
	)
	tools := builtinTools()

	flags := []cli.Flag{
		userIDFlag(&userID),
		&cli.StringFlag{
			Name:        "history-file",
			Usage:       "File to keep the input history of the prompt",
			Sources:     cli.EnvVars("WANDERSYNC_CHAT_HISTORY_FILE"),
			Destination: &historyFile,
		},
	}
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, historyFlags(&cfg)...)
	flags = append(flags, orchestratorFlags(&cfg)...)
	flags = append(flags, toolFlags(tools)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive travel planning session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.Close()

			uc, err := cfg.newUseCase(ctx, tools)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "\033[36m>\033[0m ",
				HistoryFile:     historyFile,
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start prompt")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Where would you like to go? Type 'exit' to quit.\n")

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				query := strings.TrimSpace(line)
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					break
				}

				out, err := askWithSpinner(ctx, uc, chat.AskInput{UserID: userID, Query: query})
				if out != nil && out.Response != "" {
					fmt.Fprintf(w, "\n%s\n\n", out.Response)
				}
				if err != nil {
					// one failed question does not end the session
					if errors.Is(err, chat.ErrMemoryCommit) {
						logging.From(ctx).Warn("answer was not saved to memory", "error", err)
						continue
					}
					if ctx.Err() != nil {
						return ctx.Err()
					}
					logging.From(ctx).Error("failed to answer", "error", err)
				}
			}

			fmt.Fprintf(w, "Have a nice trip!\n")
			return nil
		},
	}
}

func askWithSpinner(ctx context.Context, uc *chat.UseCase, input chat.AskInput) (*chat.AskOutput, error) {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Suffix = " planning..."
	sp.Start()
	defer sp.Stop()

	return uc.Ask(ctx, input)
}
