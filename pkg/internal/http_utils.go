// Package internal holds the HTTP plumbing shared by the webhook-backed workflows.
package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// MaxErrorBodySize bounds how much of an error response is read.
const MaxErrorBodySize = 64 << 10

// RequestIDHeader carries a per-call id so backend logs can be correlated.
const RequestIDHeader = "X-Request-ID"

// PostJSON sends body as a JSON POST to url. Extra headers are added as given.
// The caller owns the response body.
func PostJSON(ctx context.Context, client *http.Client, url string, body interface{}, header http.Header) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return send(client, req, header)
}

// PostForm sends form as an application/x-www-form-urlencoded POST to endpoint.
// The caller owns the response body.
func PostForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return send(client, req, nil)
}

func send(client *http.Client, req *http.Request, header http.Header) (*http.Response, error) {
	req.Header.Set(RequestIDHeader, uuid.NewString())
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return client.Do(req)
}

// ErrorMessage extracts the "message" field of a JSON error body, or returns fallback.
func ErrorMessage(resp *http.Response, fallback string) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
	if err != nil || len(data) == 0 {
		return fallback
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return fallback
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	return fallback
}

// Success reports whether the status code is 2xx.
func Success(code int) bool {
	return code >= 200 && code < 300
}

// DrainAndClose discards what is left of body and closes it.
func DrainAndClose(body io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxErrorBodySize))
	return body.Close()
}
