// Package birdeye queries the Birdeye token overview endpoint.
package birdeye

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://public-api.birdeye.so"

// Client implements provider.MetricProvider.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a Birdeye client.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ provider.MetricProvider = (*Client)(nil)

// Name returns "birdeye".
func (c *Client) Name() string { return "birdeye" }

// Supplies returns marketcap, holders and volume24h.
func (c *Client) Supplies() []domain.MetricName {
	return []domain.MetricName{domain.MetricMarketcap, domain.MetricHolders, domain.MetricVolume24h}
}

// QueryMetric reads /defi/token_overview.
func (c *Client) QueryMetric(ctx context.Context, chain domain.Chain, address string) (domain.PartialMetrics, error) {
	endpoint := c.baseURL + "/defi/token_overview?address=" + url.QueryEscape(address)
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", provider.ErrMalformed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("x-chain", string(chain))

	doc, err := provider.GetJSON(ctx, c.http, req)
	if err != nil {
		return nil, err
	}

	if success := doc.Get("success"); success.Exists() && !success.Bool() {
		return nil, provider.ErrNotFound
	}
	data := doc.Get("data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, provider.ErrNotFound
	}
	if !data.IsObject() {
		return nil, fmt.Errorf("%w: data is not an object", provider.ErrMalformed)
	}

	out := domain.PartialMetrics{}
	for _, path := range []string{"marketCap", "mc"} {
		if v, ok := provider.Decimal(data.Get(path)); ok {
			out[domain.MetricMarketcap] = v
			break
		}
	}
	if v, ok := provider.Decimal(data.Get("holder")); ok {
		out[domain.MetricHolders] = v
	}
	if v, ok := provider.Decimal(data.Get("v24hUSD")); ok {
		out[domain.MetricVolume24h] = v
	}
	return out, nil
}
