package recall

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/memory"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/urfave/cli/v3"
)

const maxLimit = 10

type recall struct {
	store *memory.Store
}

// New creates the recall_memory capability. The memory store is taken from
// tool.Client at Init.
func New() *recall {
	return &recall{}
}

func (x *recall) Flags() []cli.Flag {
	return nil
}

func (x *recall) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if client == nil || client.Memory == nil {
		return false, nil
	}
	x.store = client.Memory
	return true, nil
}

// Cacheable is false because the memory grows with every turn
func (x *recall) Cacheable() bool {
	return false
}

func (x *recall) Prompt(ctx context.Context) string {
	return "Use recall_memory to look up itineraries and answers from earlier conversations before planning from scratch."
}

func (x *recall) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        "recall_memory",
			Description: "Search past travel answers that are semantically similar to the query",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "What to look for, e.g. 'beach holiday in Dubai'"},
					"limit": {Type: "integer", Description: "Number of memories (default 3, max 10)"},
				},
				Required: []string{"query"},
			},
		},
	}
}

func (x *recall) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	if x.store == nil {
		return nil, goerr.New("memory is not configured")
	}

	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.Query == "" {
		return nil, goerr.New("query is required")
	}

	return x.store.Retrieve(ctx, input.Query, min(input.Limit, maxLimit)), nil
}
