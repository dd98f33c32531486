package geoapify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/tool/geoapify"
)

func TestGetPlaceCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/v1/geocode/search")
		gt.Equal(t, r.URL.Query().Get("apiKey"), "test-key")

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("text") {
		case "Burj Khalifa":
			w.Write([]byte(`{"features":[{"properties":{"name":"Burj Khalifa"},"geometry":{"coordinates":[55.2744,25.1972]}}]}`))
		default:
			w.Write([]byte(`{"features":[]}`))
		}
	}))
	defer srv.Close()

	x := geoapify.New(geoapify.WithAPIKey("test-key"), geoapify.WithBaseURL(srv.URL))

	out, err := x.Execute(context.Background(), "get_place_coordinates", map[string]any{"place": "Burj Khalifa"})
	gt.NoError(t, err)
	coords := out.(*geoapify.Coordinates)
	gt.Equal(t, coords.Place, "Burj Khalifa")
	gt.Equal(t, coords.Latitude, 25.1972)
	gt.Equal(t, coords.Longitude, 55.2744)

	out, err = x.Execute(context.Background(), "get_place_coordinates", map[string]any{"place": "Atlantis"})
	gt.NoError(t, err)
	gt.Equal(t, out.(string), "No coordinates found for Atlantis")
}

func TestSearchPlacesInArea(t *testing.T) {
	var gotFilter, gotCategories string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/v2/places")
		gotFilter = r.URL.Query().Get("filter")
		gotCategories = r.URL.Query().Get("categories")
		w.Write([]byte(`{"features":[
			{"properties":{"name":"Carrefour","formatted":"Mall of the Emirates, Dubai"},"geometry":{"coordinates":[55.20,25.11]}},
			{"properties":{"name":"Spinneys","formatted":"Jumeirah Beach Road, Dubai"},"geometry":{"coordinates":[55.25,25.21]}}
		]}`))
	}))
	defer srv.Close()

	x := geoapify.New(geoapify.WithAPIKey("test-key"), geoapify.WithBaseURL(srv.URL))
	out, err := x.Execute(context.Background(), "search_places_in_area", map[string]any{"bbox": "55.1,25.0,55.3,25.3"})
	gt.NoError(t, err)
	gt.Equal(t, gotFilter, "rect:55.1,25.0,55.3,25.3")
	gt.Equal(t, gotCategories, "commercial.supermarket")

	places := out.([]*geoapify.Place)
	gt.A(t, places).Length(2)
	gt.Equal(t, places[0].Name, "Carrefour")
	gt.Equal(t, places[0].Lat, 25.11)
	gt.Equal(t, places[1].Address, "Jumeirah Beach Road, Dubai")
}

func TestSearchPlacesEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features":[]}`))
	}))
	defer srv.Close()

	x := geoapify.New(geoapify.WithAPIKey("test-key"), geoapify.WithBaseURL(srv.URL))
	out, err := x.Execute(context.Background(), "search_places_in_area", map[string]any{"bbox": "0,0,1,1", "categories": "catering.cafe"})
	gt.NoError(t, err)
	gt.Equal(t, out.(string), "No places found in this area.")
}

func TestGeoapifyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid apiKey", http.StatusUnauthorized)
	}))
	defer srv.Close()

	x := geoapify.New(geoapify.WithAPIKey("bad"), geoapify.WithBaseURL(srv.URL))
	reg := tool.New([]tool.Tool{x})
	gt.NoError(t, reg.Init(context.Background(), &tool.Client{}))

	res := reg.Invoke(context.Background(), &model.CapabilityRequest{
		ID:   "c1",
		Name: "get_place_coordinates",
		Args: map[string]any{"place": "Dubai"},
	})
	gt.True(t, res.Failed())
	gt.S(t, res.Error).Contains("401")
}

func TestGeoapifyDisabledWithoutKey(t *testing.T) {
	enabled, err := geoapify.New().Init(context.Background(), &tool.Client{})
	gt.NoError(t, err)
	gt.False(t, enabled)
}

func TestUnreachableBackendHidesAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	reg := tool.New([]tool.Tool{geoapify.New(geoapify.WithAPIKey("SECRET-GEO-KEY"), geoapify.WithBaseURL(baseURL))})

	for _, req := range []*model.CapabilityRequest{
		{ID: "c1", Name: "get_place_coordinates", Args: map[string]any{"place": "Dubai"}},
		{ID: "c2", Name: "search_places_in_area", Args: map[string]any{"bbox": "55.1,25.0,55.3,25.3"}},
	} {
		res := reg.Invoke(context.Background(), req)
		gt.True(t, res.Failed())
		gt.S(t, res.Error).NotContains("SECRET-GEO-KEY")
		gt.S(t, res.Error).Contains(baseURL)
	}
}
