// Package preview calls the external metadata-extraction service. The
// service owns its own retries and circuit breaking; this client makes one
// bounded attempt and reports failure.
package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Metadata is what the extraction service reports for a target URL. Fields
// the service could not extract come back empty.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	FaviconURL  string `json:"favicon"`
}

// Fetcher is the interface the metadata job depends on.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*Metadata, error)
}

type Client struct {
	endpoint string
	client   *http.Client
}

func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (c *Client) Fetch(ctx context.Context, targetURL string) (*Metadata, error) {
	body, err := json.Marshal(map[string]string{"url": targetURL})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("preview service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("preview service returned %d", resp.StatusCode)
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("preview service response malformed: %w", err)
	}
	return &meta, nil
}
