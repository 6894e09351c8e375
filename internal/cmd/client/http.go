package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// BaseURLFunc returns the HTTP base URL of the relay server.
type BaseURLFunc func() string

// apiError is the JSON error body returned by the server.
type apiError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func endpoint(baseURL BaseURLFunc, path string, q url.Values) string {
	u := strings.TrimRight(baseURL(), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// postJSON sends body to path and decodes a 2xx response into out.
func postJSON(ctx context.Context, baseURL BaseURLFunc, path string, body, out any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(baseURL, path, nil), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

func getJSON(ctx context.Context, baseURL BaseURLFunc, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint(baseURL, path, q), nil)
	if err != nil {
		return err
	}
	return do(req, out)
}

func do(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return responseError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError prefers the server's error message over the bare status.
func responseError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e apiError
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("http error: %s: %s", resp.Status, e.Error)
	}
	return fmt.Errorf("http error: %s", resp.Status)
}
