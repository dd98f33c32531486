package unsplash

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/urfave/cli/v3"
)

const (
	defaultBaseURL = "https://api.unsplash.com"
	perPage        = 3
)

type unsplash struct {
	accessKey  string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Unsplash tool
type Option func(*unsplash)

// WithAccessKey sets the access key instead of the CLI flag
func WithAccessKey(key string) Option {
	return func(x *unsplash) {
		x.accessKey = key
	}
}

// WithBaseURL replaces the API endpoint
func WithBaseURL(u string) Option {
	return func(x *unsplash) {
		x.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(x *unsplash) {
		x.httpClient = c
	}
}

// New creates an Unsplash photo search tool
func New(opts ...Option) *unsplash {
	x := &unsplash{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *unsplash) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "unsplash-access-key",
			Sources:     cli.EnvVars("WANDERSYNC_UNSPLASH_ACCESS_KEY"),
			Usage:       "Unsplash access key",
			Destination: &x.accessKey,
		},
	}
}

func (x *unsplash) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.accessKey != "", nil
}

func (x *unsplash) Prompt(ctx context.Context) string {
	return ""
}

func (x *unsplash) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        "search_photos",
			Description: "Find photo URLs of a place or landmark",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Place or landmark, e.g. 'Eiffel Tower'"},
				},
				Required: []string{"query"},
			},
		},
	}
}

// Photos is the payload of search_photos
type Photos struct {
	Query     string   `json:"query"`
	PhotoURLs []string `json:"photo_urls"`
}

type searchResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

func (x *unsplash) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	var input struct {
		Query string `json:"query"`
	}
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.Query == "" {
		return nil, goerr.New("query is required")
	}

	q := url.Values{}
	q.Set("query", input.Query)
	q.Set("per_page", strconv.Itoa(perPage))

	header := http.Header{}
	header.Set("Authorization", "Client-ID "+x.accessKey)
	header.Set("Accept-Version", "v1")

	var resp searchResponse
	if err := tool.GetJSON(ctx, x.httpClient, x.baseURL+"/search/photos?"+q.Encode(), header, &resp); err != nil {
		return nil, goerr.Wrap(err, "unsplash search failed")
	}

	out := &Photos{Query: input.Query, PhotoURLs: []string{}}
	for _, r := range resp.Results {
		if len(out.PhotoURLs) >= perPage {
			break
		}
		if r.URLs.Regular != "" {
			out.PhotoURLs = append(out.PhotoURLs, r.URLs.Regular)
		}
	}
	return out, nil
}
