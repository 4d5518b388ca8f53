// Package dexscreener queries the public DexScreener token endpoint.
package dexscreener

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client implements provider.MetricProvider.
// A token can trade in many pairs; the most liquid pair quoting it as base
// token is used.
type Client struct {
	baseURL string
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

// New creates a DexScreener client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ provider.MetricProvider = (*Client)(nil)

// Name returns "dexscreener".
func (c *Client) Name() string { return "dexscreener" }

// Supplies returns marketcap and volume24h.
func (c *Client) Supplies() []domain.MetricName {
	return []domain.MetricName{domain.MetricMarketcap, domain.MetricVolume24h}
}

// QueryMetric fetches the token's pairs and reads the best one.
func (c *Client) QueryMetric(ctx context.Context, chain domain.Chain, address string) (domain.PartialMetrics, error) {
	endpoint := fmt.Sprintf("%s/tokens/v1/%s/%s", c.baseURL, url.PathEscape(chainID(chain)), url.PathEscape(address))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", provider.ErrMalformed, err)
	}
	req.Header.Set("Accept", "application/json")

	doc, err := provider.GetJSON(ctx, c.http, req)
	if err != nil {
		return nil, err
	}
	if !doc.IsArray() {
		return nil, fmt.Errorf("%w: expected pair array", provider.ErrMalformed)
	}

	pair, ok := bestPair(doc, address, chain)
	if !ok {
		return nil, provider.ErrNotFound
	}

	out := domain.PartialMetrics{}
	if mc, ok := provider.Decimal(pair.Get("marketCap")); ok {
		out[domain.MetricMarketcap] = mc
	} else if fdv, ok := provider.Decimal(pair.Get("fdv")); ok {
		out[domain.MetricMarketcap] = fdv
	}
	if vol, ok := provider.Decimal(pair.Get("volume.h24")); ok {
		out[domain.MetricVolume24h] = vol
	}
	return out, nil
}

// bestPair picks the highest-liquidity pair whose base token is address.
func bestPair(doc gjson.Result, address string, chain domain.Chain) (gjson.Result, bool) {
	var (
		best    gjson.Result
		bestLiq = decimal.NewFromInt(-1)
		found   bool
	)
	doc.ForEach(func(_, pair gjson.Result) bool {
		if !sameAddress(pair.Get("baseToken.address").String(), address, chain) {
			return true
		}
		liq, ok := provider.Decimal(pair.Get("liquidity.usd"))
		if !ok {
			liq = decimal.Zero
		}
		if liq.GreaterThan(bestLiq) {
			best, bestLiq, found = pair, liq, true
		}
		return true
	})
	return best, found
}

func sameAddress(a, b string, chain domain.Chain) bool {
	if chain.IsEVM() {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// chainID maps chains onto DexScreener chain slugs.
func chainID(chain domain.Chain) string {
	if chain == domain.ChainBSC {
		return "bsc"
	}
	return string(chain)
}
