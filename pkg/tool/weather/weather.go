package weather

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/urfave/cli/v3"
)

const defaultBaseURL = "https://wttr.in"

type weather struct {
	baseURL    string
	disabled   bool
	httpClient *http.Client
}

// Option configures the weather tool
type Option func(*weather)

// WithBaseURL replaces the wttr.in endpoint
func WithBaseURL(u string) Option {
	return func(x *weather) {
		x.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(x *weather) {
		x.httpClient = c
	}
}

// New creates a weather tool backed by wttr.in, which needs no API key
func New(opts ...Option) *weather {
	x := &weather{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *weather) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "disable-weather",
			Sources:     cli.EnvVars("WANDERSYNC_DISABLE_WEATHER"),
			Usage:       "Disable the get_weather capability",
			Destination: &x.disabled,
		},
	}
}

func (x *weather) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return !x.disabled, nil
}

func (x *weather) Prompt(ctx context.Context) string {
	return ""
}

func (x *weather) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        "get_weather",
			Description: "Get the current weather condition and temperature of a city",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"city": {Type: "string", Description: "City name"},
				},
				Required: []string{"city"},
			},
		},
	}
}

func (x *weather) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	var input struct {
		City string `json:"city"`
	}
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.City == "" {
		return nil, goerr.New("city is required")
	}

	// wttr.in expects a literal "+" between format specifiers
	endpoint := fmt.Sprintf("%s/%s?format=%%C+%%t", x.baseURL, url.PathEscape(input.City))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create request")
	}

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "weather request failed", goerr.V("city", input.City))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read weather response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("weather request failed with status "+resp.Status,
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	return fmt.Sprintf("The weather in %s is %s.", input.City, strings.TrimSpace(string(body))), nil
}
