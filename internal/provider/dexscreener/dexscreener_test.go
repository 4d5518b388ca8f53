package dexscreener

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
)

const pairsJSON = `[
  {"chainId":"solana","baseToken":{"address":"MintAAA"},"marketCap":50000,"fdv":60000,"volume":{"h24":100},"liquidity":{"usd":1000}},
  {"chainId":"solana","baseToken":{"address":"MintAAA"},"marketCap":52000,"volume":{"h24":2500.5},"liquidity":{"usd":9000}},
  {"chainId":"solana","baseToken":{"address":"Other"},"marketCap":1,"volume":{"h24":1},"liquidity":{"usd":99999}}
]`

func TestClient_QueryMetric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/v1/solana/MintAAA", r.URL.Path)
		w.Write([]byte(pairsJSON))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	got, err := c.QueryMetric(context.Background(), domain.ChainSolana, "MintAAA")
	require.NoError(t, err)

	assert.Equal(t, "52000", got[domain.MetricMarketcap].String())
	assert.Equal(t, "2500.5", got[domain.MetricVolume24h].String())
}

func TestClient_FDVFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"baseToken":{"address":"0xabc"},"fdv":"777","liquidity":{"usd":1}}]`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	got, err := c.QueryMetric(context.Background(), domain.ChainBase, "0xABC")
	require.NoError(t, err)

	assert.Equal(t, "777", got[domain.MetricMarketcap].String())
	_, hasVolume := got[domain.MetricVolume24h]
	assert.False(t, hasVolume)
}

func TestClient_NoPairs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := c.QueryMetric(context.Background(), domain.ChainSolana, "MintAAA")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestClient_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":null}`))
	}))
	defer server.Close()

	c := New(WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	_, err := c.QueryMetric(context.Background(), domain.ChainSolana, "MintAAA")
	assert.ErrorIs(t, err, provider.ErrMalformed)
}
