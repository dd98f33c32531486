package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/usecase/chat"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func askCommand() *cli.Command {
	var (
		cfg       config
		userID    string
		audioPath string
	)
	tools := builtinTools()

	flags := []cli.Flag{
		userIDFlag(&userID),
		&cli.StringFlag{
			Name:        "audio",
			Usage:       "Recorded question to transcribe instead of text arguments",
			Destination: &audioPath,
		},
	}
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, historyFlags(&cfg)...)
	flags = append(flags, orchestratorFlags(&cfg)...)
	flags = append(flags, toolFlags(tools)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a single travel question",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.Close()

			query := strings.Join(c.Args().Slice(), " ")
			if query == "" && audioPath == "" {
				return goerr.New("question or --audio is required")
			}

			uc, err := cfg.newUseCase(ctx, tools)
			if err != nil {
				return err
			}

			var out *chat.AskOutput
			if audioPath != "" {
				audio, err := os.ReadFile(audioPath)
				if err != nil {
					return goerr.Wrap(err, "failed to read audio file", goerr.V("path", audioPath))
				}
				out, err = uc.AskAudio(ctx, userID, audio, audioMIMEType(audioPath))
				if out != nil && out.Query != "" {
					fmt.Fprintf(c.Root().Writer, "> %s\n\n", out.Query)
				}
				return printAnswer(ctx, c, out, err)
			}

			out, err = uc.Ask(ctx, chat.AskInput{UserID: userID, Query: query})
			return printAnswer(ctx, c, out, err)
		},
	}
}

func userIDFlag(dst *string) cli.Flag {
	return &cli.StringFlag{
		Name:        "user-id",
		Aliases:     []string{"u"},
		Usage:       "User ID recorded in the history",
		Value:       "cli",
		Sources:     cli.EnvVars("WANDERSYNC_USER_ID"),
		Destination: dst,
	}
}

// printAnswer writes the answer when there is one. A memory commit failure
// still shows the answer before the error is returned.
func printAnswer(ctx context.Context, c *cli.Command, out *chat.AskOutput, err error) error {
	if out != nil && out.Response != "" {
		fmt.Fprintln(c.Root().Writer, out.Response)
		logging.From(ctx).Debug("turn finished",
			"history_id", out.HistoryID,
			"memory_id", out.MemoryID,
			"cycles", out.Cycles,
			"exhausted", out.Exhausted)
	}
	if err != nil {
		if errors.Is(err, chat.ErrMemoryCommit) {
			return goerr.Wrap(err, "answer was not saved to memory")
		}
		return err
	}
	return nil
}

func audioMIMEType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".webm":
		return "audio/webm"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
