// Package arcgis queries ArcGIS REST feature layers and dashboard items.
package arcgis

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ncov-ph/ncov-cli/internal/fetcher"
)

// DefaultMaxPages bounds pagination when no explicit limit is configured.
const DefaultMaxPages = 50

// Client issues read-only requests against ArcGIS REST endpoints.
type Client struct {
	fetcher  fetcher.Fetcher
	pageSize int
	maxPages int
}

// Option configures the client.
type Option func(*Client)

// WithPageSize sets resultRecordCount on every query. Zero leaves it unset so
// the server applies its own maximum.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxPages bounds the number of pages fetched per layer.
func WithMaxPages(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// NewClient creates a client that issues every request through f.
func NewClient(f fetcher.Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher:  f,
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is the error envelope ArcGIS returns with an HTTP 200 status.
type APIError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("arcgis: error %d: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// LayerURL returns the URL of layer 0 of the named feature service.
func LayerURL(baseURL, service string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(service) + "/FeatureServer/0"
}
