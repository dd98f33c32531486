package cli

import (
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/tool/geoapify"
	"github.com/m-mizutani/wandersync/pkg/tool/pexels"
	"github.com/m-mizutani/wandersync/pkg/tool/recall"
	"github.com/m-mizutani/wandersync/pkg/tool/tavily"
	"github.com/m-mizutani/wandersync/pkg/tool/tripadvisor"
	"github.com/m-mizutani/wandersync/pkg/tool/unsplash"
	"github.com/m-mizutani/wandersync/pkg/tool/weather"
	"github.com/urfave/cli/v3"
)

// builtinTools returns fresh instances of every built-in capability provider.
// Each command owns its set so that flag destinations are not shared.
func builtinTools() []tool.Tool {
	return []tool.Tool{
		geoapify.New(),
		weather.New(),
		tripadvisor.New(),
		unsplash.New(),
		pexels.New(),
		tavily.New(),
		recall.New(),
	}
}

func toolFlags(tools []tool.Tool) []cli.Flag {
	var flags []cli.Flag
	for _, t := range tools {
		flags = append(flags, t.Flags()...)
	}
	return flags
}
