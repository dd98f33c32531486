// Package testtools provides deterministic capabilities for chat tests
package testtools

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/urfave/cli/v3"
)

// Recorder counts calls per capability and keeps their arguments
type Recorder struct {
	mu    sync.Mutex
	calls map[string][]map[string]any
}

func (r *Recorder) record(name string, args map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string][]map[string]any)
	}
	r.calls[name] = append(r.calls[name], args)
}

// Calls returns the arguments of every call to name
func (r *Recorder) Calls(name string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.calls[name]...)
}

func citySpec(name, description string) *model.CapabilitySpec {
	return &model.CapabilitySpec{
		Name:        name,
		Description: description,
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"city": {Type: "string", Description: "City name"},
			},
			Required: []string{"city"},
		},
	}
}

// travelTool serves get_weather and search_attractions from fixed tables
type travelTool struct {
	Recorder
	weather     map[string]string
	attractions map[string][]string
}

// NewTravelTool creates a tool with weather and attractions for Dubai and Rome
func NewTravelTool() *travelTool {
	return &travelTool{
		weather: map[string]string{
			"Dubai": "Sunny +35°C",
			"Rome":  "Partly cloudy +24°C",
		},
		attractions: map[string][]string{
			"Dubai": {"Jumeirah Beach", "Dubai Mall", "Burj Khalifa"},
			"Rome":  {"Colosseum", "Trevi Fountain", "Vatican Museums"},
		},
	}
}

func (x *travelTool) Flags() []cli.Flag { return nil }

func (x *travelTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return true, nil
}

func (x *travelTool) Prompt(ctx context.Context) string { return "" }

func (x *travelTool) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{
		citySpec("get_weather", "Current weather of a city"),
		citySpec("search_attractions", "Top attractions of a city"),
	}
}

func (x *travelTool) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	x.record(name, args)
	city, _ := args["city"].(string)

	switch name {
	case "get_weather":
		w, ok := x.weather[city]
		if !ok {
			return nil, goerr.New("unknown location " + city)
		}
		return fmt.Sprintf("The weather in %s is %s.", city, w), nil

	case "search_attractions":
		places, ok := x.attractions[city]
		if !ok {
			return fmt.Sprintf("No places found for %s", city), nil
		}
		top := make([]map[string]any, 0, len(places))
		for _, p := range places {
			top = append(top, map[string]any{"name": p, "photos": []string{}})
		}
		return map[string]any{"city": city, "top_places": top}, nil
	}
	return nil, goerr.New("unknown capability " + name)
}

// failingTool always fails, like a backend returning 5xx
type failingTool struct {
	Recorder
	name    string
	message string
}

// NewFailingTool creates a capability that always returns message as error
func NewFailingTool(name, message string) *failingTool {
	return &failingTool{name: name, message: message}
}

func (x *failingTool) Flags() []cli.Flag { return nil }

func (x *failingTool) Init(ctx context.Context, client *tool.Client) (bool, error) {
	return true, nil
}

func (x *failingTool) Prompt(ctx context.Context) string { return "" }

func (x *failingTool) Specs() []*model.CapabilitySpec {
	return []*model.CapabilitySpec{citySpec(x.name, "Always failing capability")}
}

func (x *failingTool) Execute(ctx context.Context, name string, args map[string]any) (any, error) {
	x.record(name, args)
	return nil, goerr.New(x.message)
}
