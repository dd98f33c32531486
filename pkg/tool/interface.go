package tool

import (
	"context"

	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/urfave/cli/v3"
)

// Tool provides one or more capabilities that the reasoning step can request
type Tool interface {
	// Specs returns the capabilities this tool provides
	Specs() []*model.CapabilitySpec

	// Init prepares the tool with shared resources and reports whether it is enabled
	Init(ctx context.Context, client *Client) (bool, error)

	// Execute runs the named capability. A returned error becomes the
	// capability's error string, so its message should be short and readable.
	Execute(ctx context.Context, name string, args map[string]any) (any, error)

	// Prompt returns additional information to be added to the system prompt
	// Returns empty string if no additional prompt is needed
	Prompt(ctx context.Context) string

	// Flags returns CLI flags for this tool
	// Returns nil if no flags are needed
	Flags() []cli.Flag
}

// Cacheable is implemented by tools whose results must not be cached
type Cacheable interface {
	Cacheable() bool
}

func isCacheable(t Tool) bool {
	if c, ok := t.(Cacheable); ok {
		return c.Cacheable()
	}
	return true
}
