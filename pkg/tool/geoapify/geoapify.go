package geoapify

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
	"github.com/urfave/cli/v3"
)

const (
	defaultBaseURL  = "https://api.geoapify.com"
	defaultCategory = "commercial.supermarket"
	placesLimit     = 10

	nameCoordinates = "get_place_coordinates"
	namePlaces      = "search_places_in_area"
)

type geoapify struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures the Geoapify tool
type Option func(*geoapify)

// WithAPIKey sets the API key instead of the CLI flag
func WithAPIKey(key string) Option {
	return func(x *geoapify) {
		x.apiKey = key
	}
}

// WithBaseURL replaces the API endpoint
func WithBaseURL(u string) Option {
	return func(x *geoapify) {
		x.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(x *geoapify) {
		x.httpClient = c
	}
}

// New creates a new Geoapify tool providing geocoding and place search
func New(opts ...Option) *geoapify {
	x := &geoapify{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *geoapify) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "geoapify-api-key",
			Sources:     cli.EnvVars("WANDERSYNC_GEOAPIFY_API_KEY"),
			Usage:       "Geoapify API key",
			Destination: &x.apiKey,
		},
	}
}

func (x *geoapify) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return x.apiKey != "", nil
}

func (x *geoapify) Prompt(ctx context.Context) string {
	return ""
}

func (x *geoapify) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		{
			Name:        nameCoordinates,
			Description: "Get latitude and longitude of a place",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"place": {Type: "string", Description: "Place name, e.g. 'Burj Khalifa, Dubai'"},
				},
				Required: []string{"place"},
			},
		},
		{
			Name:        namePlaces,
			Description: "Find places such as supermarkets within a bounding box",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"bbox": {
						Type:        "string",
						Description: "Bounding box as 'lon1,lat1,lon2,lat2'",
					},
					"categories": {
						Type:        "string",
						Description: "Comma separated Geoapify categories. Default: " + defaultCategory,
					},
				},
				Required: []string{"bbox"},
			},
		},
	}
}

func (x *geoapify) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case nameCoordinates:
		var input struct {
			Place string `json:"place"`
		}
		if err := tool.DecodeArgs(args, &input); err != nil {
			return nil, err
		}
		if input.Place == "" {
			return nil, goerr.New("place is required")
		}
		return x.coordinates(ctx, input.Place)

	case namePlaces:
		var input struct {
			BBox       string `json:"bbox"`
			Categories string `json:"categories"`
		}
		if err := tool.DecodeArgs(args, &input); err != nil {
			return nil, err
		}
		if input.BBox == "" {
			return nil, goerr.New("bbox is required")
		}
		if input.Categories == "" {
			input.Categories = defaultCategory
		}
		return x.places(ctx, input.BBox, input.Categories)

	default:
		return nil, goerr.New("unknown capability", goerr.V("name", name))
	}
}

type featureCollection struct {
	Features []struct {
		Properties struct {
			Name      string `json:"name"`
			Formatted string `json:"formatted"`
		} `json:"properties"`
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// Coordinates is the geocoding result
type Coordinates struct {
	Place     string  `json:"place"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a point of interest found in an area
type Place struct {
	Name    string  `json:"name"`
	Address string  `json:"address"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (x *geoapify) coordinates(ctx context.Context, place string) (any, error) {
	q := url.Values{}
	q.Set("text", place)
	q.Set("apiKey", x.apiKey)

	var resp featureCollection
	if err := tool.GetJSON(ctx, x.httpClient, x.baseURL+"/v1/geocode/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "geoapify geocoding failed")
	}

	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		return &Coordinates{
			Place:     place,
			Longitude: f.Geometry.Coordinates[0],
			Latitude:  f.Geometry.Coordinates[1],
		}, nil
	}
	return fmt.Sprintf("No coordinates found for %s", place), nil
}

func (x *geoapify) places(ctx context.Context, bbox, categories string) (any, error) {
	q := url.Values{}
	q.Set("categories", categories)
	q.Set("filter", "rect:"+bbox)
	q.Set("limit", fmt.Sprint(placesLimit))
	q.Set("apiKey", x.apiKey)

	var resp featureCollection
	if err := tool.GetJSON(ctx, x.httpClient, x.baseURL+"/v2/places?"+q.Encode(), nil, &resp); err != nil {
		return nil, goerr.Wrap(err, "geoapify places search failed")
	}

	var places []*Place
	for _, f := range resp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		places = append(places, &Place{
			Name:    f.Properties.Name,
			Address: f.Properties.Formatted,
			Lon:     f.Geometry.Coordinates[0],
			Lat:     f.Geometry.Coordinates[1],
		})
	}
	if len(places) == 0 {
		return "No places found in this area.", nil
	}
	return places, nil
}
