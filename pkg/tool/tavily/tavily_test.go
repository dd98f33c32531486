package tavily_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/tool/tavily"
)

func TestWebSearch(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.Equal(t, r.Method, http.MethodPost)
		gt.Equal(t, r.URL.Path, "/search")
		gt.Equal(t, r.Header.Get("Authorization"), "Bearer test-key")
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"query":"Louvre opening hours",
			"answer":"The Louvre opens at 9:00 and is closed on Tuesdays.",
			"results":[{"title":"Louvre","url":"https://www.louvre.fr","content":"Hours and admission"}]
		}`))
	}))
	defer srv.Close()

	x := tavily.New(tavily.WithAPIKey("test-key"), tavily.WithBaseURL(srv.URL))
	out, err := x.Execute(context.Background(), "web_search", map[string]any{"query": "Louvre opening hours"})
	gt.NoError(t, err)

	gt.Equal(t, got["query"].(string), "Louvre opening hours")
	gt.Equal(t, got["max_results"].(float64), 5.0)
	gt.Equal(t, got["include_answer"].(bool), true)

	result := out.(*tavily.SearchResult)
	gt.Equal(t, result.Answer, "The Louvre opens at 9:00 and is closed on Tuesdays.")
	gt.A(t, result.Results).Length(1)
	gt.Equal(t, result.Results[0].URL, "https://www.louvre.fr")
}

func TestWebSearchMaxResults(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gt.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	x := tavily.New(tavily.WithAPIKey("test-key"), tavily.WithBaseURL(srv.URL))
	_, err := x.Execute(context.Background(), "web_search", map[string]any{"query": "Rome", "max_results": float64(100)})
	gt.NoError(t, err)
	gt.Equal(t, got["max_results"].(float64), 20.0)
}

func TestWebSearchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":{"error":"Unauthorized"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	reg := tool.New([]tool.Tool{tavily.New(tavily.WithAPIKey("bad"), tavily.WithBaseURL(srv.URL))})
	res := reg.Invoke(context.Background(), &model.CapabilityRequest{
		ID:   "s1",
		Name: "web_search",
		Args: map[string]any{"query": "Rome"},
	})
	gt.True(t, res.Failed())
	gt.S(t, res.Error).Contains("401")
}
