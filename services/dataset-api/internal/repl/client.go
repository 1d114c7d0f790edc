// services/dataset-api/internal/repl/client.go
package repl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// APIError — ответ сервера с кодом, отличным от 200.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Detail)
}

// QueryResult — строки в порядке Columns.
type QueryResult struct {
	Columns []string
	Rows    []map[string]any
}

// Health — тело GET /health.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Client — HTTP-клиент к dataset-api.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient создаёт клиента к baseURL, например "http://localhost:8000".
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		hc: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Query выполняет POST /query.
func (c *Client) Query(ctx context.Context, query string, params map[string]any) (*QueryResult, error) {
	body, err := json.Marshal(map[string]any{"query": query, "params": params})
	if err != nil {
		return nil, fmt.Errorf("repl: encode request: %w", err)
	}
	var out struct {
		Result  []map[string]any `json:"result"`
		Columns []string         `json:"columns"`
	}
	if err := c.do(ctx, http.MethodPost, "/query", bytes.NewReader(body), &out); err != nil {
		return nil, err
	}
	return &QueryResult{Columns: out.Columns, Rows: out.Result}, nil
}

// Columns выполняет GET /columns.
func (c *Client) Columns(ctx context.Context) ([]string, error) {
	var out struct {
		Columns []string `json:"columns"`
	}
	if err := c.do(ctx, http.MethodGet, "/columns", nil, &out); err != nil {
		return nil, err
	}
	return out.Columns, nil
}

// Health выполняет GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("repl: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("repl: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("repl: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e struct {
			Detail any `json:"detail"`
		}
		apiErr := &APIError{Status: resp.StatusCode}
		if json.Unmarshal(raw, &e) == nil && e.Detail != nil {
			if s, ok := e.Detail.(string); ok {
				apiErr.Detail = s
			} else {
				apiErr.Detail = fmt.Sprint(e.Detail)
			}
		} else {
			apiErr.Detail = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("repl: decode response: %w", err)
	}
	return nil
}
