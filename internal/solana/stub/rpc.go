package stub

import (
	"context"
	"math/big"
	"sync/atomic"

	"token-sentinel/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	Largest  map[string][]solana.TokenAccountBalance
	Owners   map[string]string
	Supplies map[string]*solana.TokenSupply

	// Err, when set, is returned by every method.
	Err error

	calls atomic.Int64
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Largest:  make(map[string][]solana.TokenAccountBalance),
		Owners:   make(map[string]string),
		Supplies: make(map[string]*solana.TokenSupply),
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetTokenLargestAccounts returns the stored accounts for mint.
func (c *RPCClient) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	accounts, ok := c.Largest[mint]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	return accounts, nil
}

// GetTokenAccountOwners returns stored owners for the known accounts.
func (c *RPCClient) GetTokenAccountOwners(_ context.Context, accounts []string) (map[string]string, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	out := make(map[string]string, len(accounts))
	for _, a := range accounts {
		if owner, ok := c.Owners[a]; ok {
			out[a] = owner
		}
	}
	return out, nil
}

// GetTokenSupply returns the stored supply for mint.
func (c *RPCClient) GetTokenSupply(_ context.Context, mint string) (*solana.TokenSupply, error) {
	c.calls.Add(1)
	if c.Err != nil {
		return nil, c.Err
	}
	supply, ok := c.Supplies[mint]
	if !ok {
		return nil, solana.ErrAccountNotFound
	}
	return supply, nil
}

// Calls returns the number of RPC calls served.
func (c *RPCClient) Calls() int64 {
	return c.calls.Load()
}

// AddHolder registers a token account for mint held by owner.
func (c *RPCClient) AddHolder(mint, account, owner string, amount int64) {
	c.Largest[mint] = append(c.Largest[mint], solana.TokenAccountBalance{
		Address: account,
		Amount:  big.NewInt(amount),
	})
	c.Owners[account] = owner
}

// SetSupply sets the raw supply of mint.
func (c *RPCClient) SetSupply(mint string, amount *big.Int, decimals int) {
	c.Supplies[mint] = &solana.TokenSupply{Amount: amount, Decimals: decimals}
}
