package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers JSON-RPC requests with handler(method, params).
func rpcServer(t *testing.T, handler func(method string, params []json.RawMessage) (interface{}, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		result, rpcErr := handler(req.Method, req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetTokenLargestAccounts(t *testing.T) {
	server := rpcServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method != "getTokenLargestAccounts" {
			t.Errorf("expected method getTokenLargestAccounts, got %s", method)
		}
		var mint string
		json.Unmarshal(params[0], &mint)
		if mint != "Mint111" {
			t.Errorf("expected mint Mint111, got %s", mint)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": []map[string]interface{}{
				{"address": "acc1", "amount": "900000000000000000000", "decimals": 6, "uiAmountString": "900000000000000"},
				{"address": "acc2", "amount": "15", "decimals": 6},
			},
		}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	accounts, err := client.GetTokenLargestAccounts(context.Background(), "Mint111")
	if err != nil {
		t.Fatalf("GetTokenLargestAccounts: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Address != "acc1" || accounts[0].Amount.String() != "900000000000000000000" {
		t.Errorf("unexpected first account: %+v", accounts[0])
	}
	if accounts[1].Decimals != 6 {
		t.Errorf("expected decimals 6, got %d", accounts[1].Decimals)
	}
}

func TestHTTPClient_GetTokenLargestAccounts_NotAMint(t *testing.T) {
	server := rpcServer(t, func(string, []json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: -32602, Message: "Invalid param: not a Token mint"}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	_, err := client.GetTokenLargestAccounts(context.Background(), "Nope")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestHTTPClient_GetTokenAccountOwners(t *testing.T) {
	server := rpcServer(t, func(method string, params []json.RawMessage) (interface{}, *RPCError) {
		if method != "getMultipleAccounts" {
			t.Errorf("expected method getMultipleAccounts, got %s", method)
		}
		var accounts []string
		json.Unmarshal(params[0], &accounts)

		values := make([]interface{}, len(accounts))
		for i, a := range accounts {
			if a == "missing" {
				values[i] = nil
				continue
			}
			values[i] = map[string]interface{}{
				"owner": "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
				"data": map[string]interface{}{
					"program": "spl-token",
					"parsed": map[string]interface{}{
						"type": "account",
						"info": map[string]interface{}{"mint": "Mint111", "owner": "wallet-" + a},
					},
				},
			}
		}
		return map[string]interface{}{"value": values}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	owners, err := client.GetTokenAccountOwners(context.Background(), []string{"acc1", "missing", "acc2"})
	if err != nil {
		t.Fatalf("GetTokenAccountOwners: %v", err)
	}

	if len(owners) != 2 {
		t.Fatalf("expected 2 owners, got %d: %v", len(owners), owners)
	}
	if owners["acc1"] != "wallet-acc1" || owners["acc2"] != "wallet-acc2" {
		t.Errorf("unexpected owners: %v", owners)
	}
}

func TestHTTPClient_GetTokenAccountOwners_Chunks(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(_ string, params []json.RawMessage) (interface{}, *RPCError) {
		calls.Add(1)
		var accounts []string
		json.Unmarshal(params[0], &accounts)
		values := make([]interface{}, len(accounts))
		return map[string]interface{}{"value": values}, nil
	})
	defer server.Close()

	accounts := make([]string, 150)
	for i := range accounts {
		accounts[i] = "acc"
	}

	client := NewHTTPClient(server.URL)
	if _, err := client.GetTokenAccountOwners(context.Background(), accounts); err != nil {
		t.Fatalf("GetTokenAccountOwners: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestHTTPClient_GetTokenSupply(t *testing.T) {
	server := rpcServer(t, func(method string, _ []json.RawMessage) (interface{}, *RPCError) {
		if method != "getTokenSupply" {
			t.Errorf("expected method getTokenSupply, got %s", method)
		}
		return map[string]interface{}{
			"value": map[string]interface{}{"amount": "1000000000000000", "decimals": 6},
		}, nil
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)
	supply, err := client.GetTokenSupply(context.Background(), "Mint111")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply.Amount.String() != "1000000000000000" {
		t.Errorf("expected supply 1000000000000000, got %s", supply.Amount)
	}
	if supply.Decimals != 6 {
		t.Errorf("expected decimals 6, got %d", supply.Decimals)
	}
}

func TestHTTPClient_RetryOn429(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": map[string]interface{}{"amount": "5", "decimals": 0}},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(5*time.Millisecond), WithMaxRetries(3))
	supply, err := client.GetTokenSupply(context.Background(), "Mint111")
	if err != nil {
		t.Fatalf("GetTokenSupply: %v", err)
	}
	if supply.Amount.Int64() != 5 {
		t.Errorf("expected 5, got %s", supply.Amount)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(1))
	_, err := client.GetTokenSupply(context.Background(), "Mint111")
	if err == nil {
		t.Fatal("expected error after retries")
	}
}

func TestHTTPClient_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond), WithMaxRetries(3))
	if _, err := client.GetTokenSupply(context.Background(), "Mint111"); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestHTTPClient_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Second))
	_, err := client.GetTokenSupply(ctx, "Mint111")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
