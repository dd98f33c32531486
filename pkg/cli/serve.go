package cli

import (
	"context"

	server "github.com/m-mizutani/wandersync/pkg/controller/http"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg  config
		addr string
	)
	tools := builtinTools()

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Aliases:     []string{"a"},
			Usage:       "Listen address of the HTTP server",
			Value:       "127.0.0.1:8080",
			Sources:     cli.EnvVars("WANDERSYNC_ADDR"),
			Destination: &addr,
		},
	}
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, memoryFlags(&cfg)...)
	flags = append(flags, historyFlags(&cfg)...)
	flags = append(flags, orchestratorFlags(&cfg)...)
	flags = append(flags, toolFlags(tools)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API server",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			defer cfg.Close()

			uc, err := cfg.newUseCase(ctx, tools)
			if err != nil {
				return err
			}

			ctx, stop := signalContext(ctx)
			defer stop()

			return server.New(uc).Run(ctx, addr)
		},
	}
}
