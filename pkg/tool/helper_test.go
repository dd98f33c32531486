package tool_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/wandersync/pkg/tool"
)

func TestGetJSONTransportErrorOmitsQuery(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	var out map[string]any
	err := tool.GetJSON(context.Background(), http.DefaultClient, baseURL+"/v1/search?apiKey=SECRET&text=Dubai", nil, &out)
	gt.Error(t, err)
	gt.S(t, err.Error()).NotContains("SECRET")
	gt.S(t, err.Error()).Contains(baseURL + "/v1/search")

	var gErr *goerr.Error
	gt.True(t, errors.As(err, &gErr))
	for _, v := range gErr.Values() {
		if s, ok := v.(string); ok {
			gt.S(t, s).NotContains("SECRET")
		}
	}
}

func TestGetJSONKeepsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var out map[string]any
	err := tool.GetJSON(ctx, srv.Client(), srv.URL+"/slow?key=SECRET", nil, &out)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, context.DeadlineExceeded))
	gt.S(t, err.Error()).NotContains("SECRET")
}
