package tripadvisor

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	defaultBaseURL = "https://api.content.tripadvisor.com/api/v1"
	maxPlaces      = 5
	maxPhotos      = 3
)

type tripadvisor struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Tripadvisor tool
type Option func(*tripadvisor)

// WithAPIKey sets the API key instead of the CLI flag
func WithAPIKey(key string) Option {
	return func(x *tripadvisor) {
		x.apiKey = key
	}
}

// WithBaseURL replaces the API endpoint
func WithBaseURL(u string) Option {
	return func(x *tripadvisor) {
		x.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(x *tripadvisor) {
		x.httpClient = c
	}
}

// New creates a Tripadvisor attraction search tool
func New(opts ...Option) *tripadvisor {
	x := &tripadvisor{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *tripadvisor) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tripadvisor-api-key",
			Sources:     cli.EnvVars("WANDERSYNC_TRIPADVISOR_API_KEY"),
			Usage:       "Tripadvisor Content API key",
			Destination: &x.apiKey,
		},
	}
}

func (x *tripadvisor) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.apiKey != "", nil
}

func (x *tripadvisor) Prompt(ctx context.Context) string {
	return "Use search_attractions to find the top places to visit in a city. Each place comes with photo URLs you can embed as markdown images."
}

func (x *tripadvisor) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        "search_attractions",
			Description: "Find top attractions of a city with photos",
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

// Attraction is one place returned by search_attractions
type Attraction struct {
	Name       string   `json:"name"`
	LocationID string   `json:"location_id"`
	Photos     []string `json:"photos"`
}

// Attractions is the payload of search_attractions
type Attractions struct {
	City      string        `json:"city"`
	TopPlaces []*Attraction `json:"top_places"`
}

type searchResponse struct {
	Data []struct {
		LocationID string `json:"location_id"`
		Name       string `json:"name"`
	} `json:"data"`
}

type photosResponse struct {
	Data []struct {
		Images struct {
			Large struct {
				URL string `json:"url"`
			} `json:"large"`
		} `json:"images"`
	} `json:"data"`
}

func (x *tripadvisor) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	var input struct {
		City string `json:"city"`
	}
	if err := tool.DecodeArgs(args, &input); err != nil {
		return nil, err
	}
	if input.City == "" {
		return nil, goerr.New("city is required")
	}

	q := url.Values{}
	q.Set("key", x.apiKey)
	q.Set("searchQuery", input.City)

	var resp searchResponse
	if err := tool.GetJSON(ctx, x.httpClient, x.baseURL+"/location/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "tripadvisor search failed")
	}
	if len(resp.Data) == 0 {
		return fmt.Sprintf("No places found for %s", input.City), nil
	}

	out := &Attractions{City: input.City}
	for _, p := range resp.Data[:min(maxPlaces, len(resp.Data))] {
		out.TopPlaces = append(out.TopPlaces, &Attraction{
			Name:       p.Name,
			LocationID: p.LocationID,
			Photos:     x.photos(ctx, p.LocationID),
		})
	}
	return out, nil
}

// photos returns up to three large photo URLs. A failure leaves the list
// empty and does not fail the search.
func (x *tripadvisor) photos(ctx context.Context, locationID string) []string {
	photos := []string{}

	q := url.Values{}
	q.Set("key", x.apiKey)
	endpoint := fmt.Sprintf("%s/location/%s/photos?%s", x.baseURL, url.PathEscape(locationID), q.Encode())

	var resp photosResponse
	if err := tool.GetJSON(ctx, x.httpClient, endpoint, nil, &resp); err != nil {
		logging.From(ctx).Warn("failed to fetch tripadvisor photos", "error", err, "location_id", locationID)
		return photos
	}

	for _, ph := range resp.Data {
		if len(photos) >= maxPhotos {
			break
		}
		if u := ph.Images.Large.URL; u != "" {
			photos = append(photos, u)
		}
	}
	return photos
}
