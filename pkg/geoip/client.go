// Package geoip resolves an IP address to a coarse location via a remote
// lookup service. Enrichment is best effort: any failure degrades to
// Unknown, never to a dropped click.
package geoip

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Unknown is recorded when lookup is skipped or fails.
const Unknown = "Unknown"

type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// Resolver is the interface the click job depends on.
type Resolver interface {
	Lookup(ctx context.Context, ip string) Location
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

// Lookup resolves ip to a location. Loopback, private, and unparseable
// addresses are not worth a network round trip and resolve to Unknown.
func (c *Client) Lookup(ctx context.Context, ip string) Location {
	unknown := Location{Country: Unknown, City: Unknown}

	if SkipLookup(ip) {
		return unknown
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+url.PathEscape(ip), nil)
	if err != nil {
		return unknown
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return unknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return unknown
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return unknown
	}
	if loc.Country == "" {
		loc.Country = Unknown
	}
	if loc.City == "" {
		loc.City = Unknown
	}
	return loc
}

// SkipLookup reports whether ip is local or malformed, in which case the
// remote lookup is skipped entirely.
func SkipLookup(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast()
}
