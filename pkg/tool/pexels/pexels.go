package pexels

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
	defaultBaseURL = "https://api.pexels.com"
	perPage        = 3
)

type pexels struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Pexels tool
type Option func(*pexels)

// WithAPIKey sets the API key instead of the CLI flag
func WithAPIKey(key string) Option {
	return func(x *pexels) {
		x.apiKey = key
	}
}

// WithBaseURL replaces the API endpoint
func WithBaseURL(u string) Option {
	return func(x *pexels) {
		x.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(x *pexels) {
		x.httpClient = c
	}
}

// New creates a Pexels video search tool
func New(opts ...Option) *pexels {
	x := &pexels{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *pexels) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "pexels-api-key",
			Sources:     cli.EnvVars("WANDERSYNC_PEXELS_API_KEY"),
			Usage:       "Pexels API key",
			Destination: &x.apiKey,
		},
	}
}

func (x *pexels) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.apiKey != "", nil
}

func (x *pexels) Prompt(ctx context.Context) string {
	return ""
}

func (x *pexels) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        "search_videos",
			Description: "Find short travel videos of a place",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"query": {Type: "string", Description: "Place or topic, e.g. 'Dubai skyline'"},
				},
				Required: []string{"query"},
			},
		},
	}
}

// Video is a single search hit
type Video struct {
	URL      string `json:"url"`
	Image    string `json:"image"`
	Duration int    `json:"duration"`
	VideoURL string `json:"video_url,omitempty"`
}

// Videos is the payload of search_videos
type Videos struct {
	Query  string   `json:"query"`
	Videos []*Video `json:"videos"`
}

type searchResponse struct {
	Videos []struct {
		URL        string `json:"url"`
		Image      string `json:"image"`
		Duration   int    `json:"duration"`
		VideoFiles []struct {
			Quality string `json:"quality"`
			Link    string `json:"link"`
		} `json:"video_files"`
	} `json:"videos"`
}

func (x *pexels) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
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
	header.Set("Authorization", x.apiKey)

	var resp searchResponse
	if err := tool.GetJSON(ctx, x.httpClient, x.baseURL+"/videos/search?"+q.Encode(), header, &resp); err != nil {
		return nil, goerr.Wrap(err, "pexels search failed")
	}

	out := &Videos{Query: input.Query, Videos: []*Video{}}
	for _, v := range resp.Videos[:min(perPage, len(resp.Videos))] {
		video := &Video{URL: v.URL, Image: v.Image, Duration: v.Duration}
		// prefer an HD rendition, fall back to the first file
		for _, f := range v.VideoFiles {
			if video.VideoURL == "" || f.Quality == "hd" {
				video.VideoURL = f.Link
			}
			if f.Quality == "hd" {
				break
			}
		}
		out.Videos = append(out.Videos, video)
	}
	return out, nil
}
