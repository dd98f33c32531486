package mcp

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"gopkg.in/yaml.v3"
)

// maxCapabilityName is the longest function name the model API accepts
const maxCapabilityName = 64

// Client keeps sessions to the configured MCP servers and maps their tools
// onto capability names that are unique across servers.
type Client struct {
	sessions     map[string]*mcp.ClientSession
	capabilities map[string]*Capability
	order        []*Capability
}

// Capability is an MCP tool reachable under a capability name
type Capability struct {
	Name   string
	Server string
	Tool   *mcp.Tool
}

// ServerConfig is one entry of the MCP config file
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   []string          `yaml:"command"`
	URL       string            `yaml:"url"`
	Env       map[string]string `yaml:"env"`
}

// Config is the MCP config file
type Config struct {
	Servers []ServerConfig `yaml:"servers"`
}

func NewClient() *Client {
	return &Client{
		sessions:     make(map[string]*mcp.ClientSession),
		capabilities: make(map[string]*Capability),
	}
}

// Connect opens a session to the server and registers its tools. A tool keeps
// its own name unless an earlier server already took it; then it is prefixed
// with the server name.
func (c *Client) Connect(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return goerr.New("server name is required")
	}
	if _, exists := c.sessions[cfg.Name]; exists {
		return goerr.New("server already connected", goerr.V("name", cfg.Name))
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to create transport", goerr.V("server", cfg.Name))
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "wandersync", Version: "0.1.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to MCP server", goerr.V("server", cfg.Name))
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		return goerr.Wrap(err, "failed to list tools", goerr.V("server", cfg.Name))
	}

	c.sessions[cfg.Name] = session
	for _, t := range listed.Tools {
		name := c.capabilityName(cfg.Name, t.Name)
		if name == "" {
			logging.From(ctx).Warn("MCP tool name collides, ignored", "server", cfg.Name, "tool", t.Name)
			continue
		}
		capability := &Capability{Name: name, Server: cfg.Name, Tool: t}
		c.capabilities[name] = capability
		c.order = append(c.order, capability)
	}
	return nil
}

// capabilityName returns "" when both the plain and the prefixed name are taken
func (c *Client) capabilityName(server, tool string) string {
	for _, name := range []string{sanitizeName(tool), sanitizeName(server + "_" + tool)} {
		if _, taken := c.capabilities[name]; !taken {
			return name
		}
	}
	return ""
}

// sanitizeName maps a name onto [A-Za-z0-9_-]{1,64}
func sanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, name)
	if len(name) > maxCapabilityName {
		name = name[:maxCapabilityName]
	}
	return name
}

func newTransport(cfg ServerConfig) (mcp.Transport, error) {
	switch cfg.Transport {
	case "stdio":
		if len(cfg.Command) == 0 {
			return nil, goerr.New("command is required for stdio transport")
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &mcp.CommandTransport{Command: cmd}, nil

	case "http":
		if cfg.URL == "" {
			return nil, goerr.New("url is required for http transport")
		}
		return &mcp.StreamableClientTransport{Endpoint: cfg.URL}, nil

	default:
		return nil, goerr.New("unsupported transport",
			goerr.V("transport", cfg.Transport),
			goerr.V("supported", []string{"stdio", "http"}))
	}
}

// Servers returns the names of connected servers in sorted order
func (c *Client) Servers() []string {
	names := make([]string, 0, len(c.sessions))
	for name := range c.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capabilities returns the registered tools in connection order
func (c *Client) Capabilities() []*Capability {
	return c.order
}

// Call invokes the tool behind a capability name and shapes its result into a
// payload for the model. Structured content is returned as is; otherwise the
// content blocks are flattened into text. A tool-level error becomes a Go error.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	capability, ok := c.capabilities[name]
	if !ok {
		return nil, goerr.New("capability not found", goerr.V("name", name))
	}

	result, err := c.sessions[capability.Server].CallTool(ctx, &mcp.CallToolParams{
		Name:      capability.Tool.Name,
		Arguments: args,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call tool",
			goerr.V("server", capability.Server),
			goerr.V("tool", capability.Tool.Name))
	}

	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "tool returned an error"
		}
		return nil, goerr.New(text, goerr.V("server", capability.Server), goerr.V("tool", capability.Tool.Name))
	}

	if result.StructuredContent != nil {
		return result.StructuredContent, nil
	}
	return text, nil
}

// flattenContent keeps text and replaces binary blocks with a short marker
// the model can mention to the user
func flattenContent(contents []mcp.Content) string {
	var parts []string
	for _, content := range contents {
		switch v := content.(type) {
		case *mcp.TextContent:
			if v.Text != "" {
				parts = append(parts, v.Text)
			}
		case *mcp.ImageContent:
			parts = append(parts, "[image "+v.MIMEType+" omitted]")
		case *mcp.AudioContent:
			parts = append(parts, "[audio "+v.MIMEType+" omitted]")
		case *mcp.ResourceLink:
			parts = append(parts, "[resource "+v.Name+"] "+v.URI)
		case *mcp.EmbeddedResource:
			if v.Resource == nil {
				continue
			}
			if v.Resource.Text != "" {
				parts = append(parts, v.Resource.Text)
			} else {
				parts = append(parts, "[resource] "+v.Resource.URI)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// Close closes all sessions
func (c *Client) Close() error {
	var firstErr error
	for name, session := range c.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = goerr.Wrap(err, "failed to close session", goerr.V("server", name))
		}
	}
	c.sessions = make(map[string]*mcp.ClientSession)
	c.capabilities = make(map[string]*Capability)
	c.order = nil
	return firstErr
}

// LoadConfig reads the YAML server list
func LoadConfig(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve config path", goerr.V("path", path))
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read MCP config file", goerr.V("path", absPath))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse MCP config file", goerr.V("path", absPath))
	}
	return &cfg, nil
}

// LoadAndConnect loads MCP configuration from file and connects to all servers.
// It returns nil without error when no config is given or no server could be
// reached; unreachable servers are logged and skipped.
func LoadAndConnect(ctx context.Context, configPath string) (*Provider, error) {
	if configPath == "" {
		return nil, nil
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.From(ctx)
	if len(cfg.Servers) == 0 {
		logger.Info("no MCP servers configured", "path", configPath)
		return nil, nil
	}

	client := NewClient()
	var failed int
	for _, serverCfg := range cfg.Servers {
		if err := client.Connect(ctx, serverCfg); err != nil {
			logger.Warn("failed to connect to MCP server", "server", serverCfg.Name, "error", err)
			failed++
			continue
		}
		logger.Info("connected to MCP server", "server", serverCfg.Name)
	}

	if len(client.Servers()) == 0 {
		logger.Warn("no MCP servers connected", "failed", failed)
		return nil, nil
	}

	return NewProvider(client), nil
}
