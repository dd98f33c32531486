package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/urfave/cli/v3"
)

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultMaxResults = 5
	maxMaxResults     = 20
)

type tavily struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Tavily tool
type Option func(*tavily)

// WithAPIKey sets the API key instead of the CLI flag
func WithAPIKey(key string) Option {
	return func(x *tavily) {
		x.apiKey = key
	}
}

// WithBaseURL replaces the API endpoint
func WithBaseURL(u string) Option {
	return func(x *tavily) {
		x.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(x *tavily) {
		x.httpClient = c
	}
}

// New creates a Tavily web search tool
func New(opts ...Option) *tavily {
	x := &tavily{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *tavily) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tavily-api-key",
			Sources:     cli.EnvVars("WANDERSYNC_TAVILY_API_KEY", "TAVILY_API_KEY"),
			Usage:       "Tavily API key",
			Destination: &x.apiKey,
		},
	}
}

func (x *tavily) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.apiKey != "", nil
}

func (x *tavily) Prompt(ctx context.Context) string {
	return "Use web_search for up-to-date facts such as opening hours, events, visa rules or ticket prices."
}

func (x *tavily) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        "web_search",
			Description: "Search the web and return a short answer with sources",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query":       {Type: "string", Description: "Search query"},
					"max_results": {Type: "integer", Description: "Number of results (default 5, max 20)"},
				},
				Required: []string{"query"},
			},
		},
	}
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Result is one web page found by the search
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// SearchResult is the payload of web_search
type SearchResult struct {
	Query   string    `json:"query"`
	Answer  string    `json:"answer,omitempty"`
	Results []*Result `json:"results"`
}

func (x *tavily) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	var input struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.Query == "" {
		return nil, goerr.New("query is required")
	}
	if input.MaxResults <= 0 {
		input.MaxResults = defaultMaxResults
	}
	input.MaxResults = min(input.MaxResults, maxMaxResults)

	body, err := json.Marshal(&searchRequest{
		Query:         input.Query,
		MaxResults:    input.MaxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+x.apiKey)

	out := &SearchResult{Query: input.Query, Results: []*Result{}}
	if err := tool.DoJSON(x.httpClient, req, out); err != nil {
		return nil, goerr.Wrap(err, "tavily search failed")
	}
	out.Query = input.Query
	return out, nil
}
