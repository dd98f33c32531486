package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

// Provider exposes the tools of connected MCP servers as capabilities
type Provider struct {
	client *Client
	specs  []*model.CapabilitySpec
}

var _ tool.Tool = (*Provider)(nil)

func NewProvider(client *Client) *Provider {
	return &Provider{client: client}
}

// Close disconnects from all servers
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Flags returns nil; MCP servers are configured by file
func (p *Provider) Flags() []cli.Flag {
	return nil
}

// Init builds a spec for every capability the client registered
func (p *Provider) Init(ctx context.Context, client *tool.Client) (bool, error) {
	if p.client == nil {
		return false, nil
	}

	p.specs = nil
	for _, capability := range p.client.Capabilities() {
		spec, err := convertToSpec(capability.Name, capability.Tool)
		if err != nil {
			return false, goerr.Wrap(err, "failed to convert tool",
				goerr.V("server", capability.Server),
				goerr.V("tool", capability.Tool.Name))
		}
		p.specs = append(p.specs, spec)
	}

	return len(p.specs) > 0, nil
}

// convertToSpec converts the loosely typed MCP input schema into a capability spec
func convertToSpec(name string, t *mcp.Tool) (*model.CapabilitySpec, error) {
	spec := &model.CapabilitySpec{
		Name:        name,
		Description: t.Description,
	}
	if t.InputSchema == nil {
		return spec, nil
	}

	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal input schema")
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal input schema")
	}
	spec.Parameters = &schema
	return spec, nil
}

// Specs returns the capabilities discovered at Init
func (p *Provider) Specs() []*model.CapabilitySpec {
	return p.specs
}

// Prompt returns additional prompt information
func (p *Provider) Prompt(ctx context.Context) string {
	if len(p.specs) == 0 {
		return ""
	}
	return "Some capabilities are provided by external MCP servers. Prefer the built-in travel capabilities when both can answer."
}

func (p *Provider) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	return p.client.Call(ctx, name, args)
}
