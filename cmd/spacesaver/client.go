package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"spacesaver/internal/catalog"
)

// apiClient is a thin wrapper over the daemon's HTTP surface. Every CLI
// command that reads or mutates catalog state through a running daemon
// goes through here rather than opening the SQLite file directly, so the
// daemon remains the single writer while it is running.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(listenAddr string) *apiClient {
	return &apiClient{
		base: "http://" + listenAddr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

var errDaemonUnreachable = errors.New("spacesaver daemon is not reachable; start it with `spacesaver serve`")

func (c *apiClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return errDaemonUnreachable
		}
		return errDaemonUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = resp.Status
		}
		return &apiError{status: resp.StatusCode, message: payload.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return e.message
}

func (c *apiClient) version(ctx context.Context) (string, error) {
	var payload struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/version", &payload); err != nil {
		return "", err
	}
	return payload.Version, nil
}

func (c *apiClient) status(ctx context.Context) (statusResponse, error) {
	var payload statusResponse
	err := c.do(ctx, http.MethodGet, "/status", &payload)
	return payload, err
}

type statusResponse struct {
	UptimeS     float64        `json:"uptime_s"`
	EntryCounts map[string]int `json:"entry_counts"`
	Total       int            `json:"total"`
}

func (c *apiClient) list(ctx context.Context, state, category string) ([]catalog.MediaEntry, error) {
	query := ""
	if state != "" {
		query += "state=" + state
	}
	if category != "" {
		if query != "" {
			query += "&"
		}
		query += "category=" + category
	}
	path := "/list"
	if query != "" {
		path += "?" + query
	}
	var payload struct {
		Entries []catalog.MediaEntry `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

func (c *apiClient) show(ctx context.Context, id string) (catalog.MediaEntry, error) {
	var entry catalog.MediaEntry
	err := c.do(ctx, http.MethodGet, "/list/"+id, &entry)
	return entry, err
}

func (c *apiClient) enqueue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/request/enqueue/"+id, nil)
}

func (c *apiClient) enqueueBest(ctx context.Context) (string, error) {
	var payload struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/request/enqueue/best", &payload)
	return payload.ID, err
}
