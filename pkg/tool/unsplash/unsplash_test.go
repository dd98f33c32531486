package unsplash_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/tool/unsplash"
)

func TestSearchPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.URL.Path, "/search/photos")
		gt.Equal(t, r.Header.Get("Authorization"), "Client-ID test-key")
		gt.Equal(t, r.URL.Query().Get("query"), "Burj Khalifa")
		gt.Equal(t, r.URL.Query().Get("per_page"), "3")
		w.Write([]byte(`{"results":[
			{"urls":{"regular":"https://images.unsplash.com/a"}},
			{"urls":{"regular":"https://images.unsplash.com/b"}},
			{"urls":{"regular":"https://images.unsplash.com/c"}},
			{"urls":{"regular":"https://images.unsplash.com/d"}}
		]}`))
	}))
	defer srv.Close()

	x := unsplash.New(unsplash.WithAccessKey("test-key"), unsplash.WithBaseURL(srv.URL))
	out, err := x.Execute(context.Background(), "search_photos", map[string]any{"query": "Burj Khalifa"})
	gt.NoError(t, err)

	photos := out.(*unsplash.Photos)
	gt.Equal(t, photos.Query, "Burj Khalifa")
	gt.Equal(t, photos.PhotoURLs, []string{
		"https://images.unsplash.com/a",
		"https://images.unsplash.com/b",
		"https://images.unsplash.com/c",
	})
}

func TestSearchPhotosEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	x := unsplash.New(unsplash.WithAccessKey("test-key"), unsplash.WithBaseURL(srv.URL))
	out, err := x.Execute(context.Background(), "search_photos", map[string]any{"query": "nothing"})
	gt.NoError(t, err)
	gt.A(t, out.(*unsplash.Photos).PhotoURLs).Length(0)
}

func TestSearchPhotosFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Rate Limit Exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	reg := tool.New([]tool.Tool{unsplash.New(unsplash.WithAccessKey("k"), unsplash.WithBaseURL(srv.URL))})
	res := reg.Invoke(context.Background(), &model.CapabilityRequest{
		ID:   "u1",
		Name: "search_photos",
		Args: map[string]any{"query": "Dubai"},
	})
	gt.True(t, res.Failed())
	gt.S(t, res.Error).Contains("403")
}
