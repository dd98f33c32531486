package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/m-mizutani/goerr/v2"
)

// maxErrorBody bounds how much of a failed response body is kept in errors
const maxErrorBody = 512

// DecodeArgs converts capability arguments into a typed input struct
func DecodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal arguments")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "invalid arguments")
	}
	return nil
}

// DoJSON sends req and decodes a 2xx JSON body into out. Other statuses
// become an error carrying the status and the head of the body.
func DoJSON(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		endpoint := endpointOf(req.URL)
		return goerr.Wrap(withoutURL(err), "request to "+endpoint+" failed", goerr.V("url", endpoint))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return goerr.New("unexpected status "+resp.Status,
			goerr.V("status", resp.StatusCode),
			goerr.V("body", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "failed to decode response")
	}
	return nil
}

// GetJSON is DoJSON for a GET request
func GetJSON(ctx context.Context, client *http.Client, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return goerr.Wrap(withoutURL(err), "failed to create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return DoJSON(client, req, out)
}

// endpointOf returns scheme, host and path of u without query or credentials
func endpointOf(u *url.URL) string {
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
}

// withoutURL drops the URL text of a *url.Error. Some backends take the API
// key as a query parameter.
func withoutURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
