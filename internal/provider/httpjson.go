package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// maxBodyBytes caps provider response bodies.
const maxBodyBytes = 4 << 20

// GetJSON performs req and returns the parsed body. Status codes are mapped
// onto the provider sentinels: 404 is ErrNotFound, 429 and 5xx are
// ErrUnavailable, any other non-200 or invalid JSON is ErrMalformed.
func GetJSON(ctx context.Context, client *http.Client, req *http.Request) (gjson.Result, error) {
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return gjson.Result{}, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return gjson.Result{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return gjson.Result{}, fmt.Errorf("%w: status %d", ErrMalformed, resp.StatusCode)
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	return gjson.ParseBytes(body), nil
}

// Decimal extracts a number from a JSON number or numeric string.
// Null, missing and non-numeric values report false.
func Decimal(r gjson.Result) (decimal.Decimal, bool) {
	switch r.Type {
	case gjson.Number:
		d, err := decimal.NewFromString(r.Raw)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case gjson.String:
		d, err := decimal.NewFromString(r.Str)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	}
	return decimal.Decimal{}, false
}
