// Package solanarpc derives holders and supply from Solana JSON-RPC.
package solanarpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/provider"
	"token-sentinel/internal/solana"
)

// Provider implements provider.HolderProvider and provider.SupplyProvider.
type Provider struct {
	rpc solana.RPCClient
}

// New creates a Provider.
func New(rpc solana.RPCClient) *Provider {
	return &Provider{rpc: rpc}
}

var (
	_ provider.HolderProvider = (*Provider)(nil)
	_ provider.SupplyProvider = (*Provider)(nil)
)

// Name returns "solana_rpc".
func (p *Provider) Name() string { return "solana_rpc" }

// FetchHolders returns the largest wallets. Token accounts are folded onto
// their owner so a wallet with several accounts counts once.
func (p *Provider) FetchHolders(ctx context.Context, chain domain.Chain, address string, limit int) ([]domain.HolderRecord, error) {
	if chain != domain.ChainSolana {
		return nil, provider.ErrNotFound
	}

	accounts, err := p.rpc.GetTokenLargestAccounts(ctx, address)
	if err != nil {
		return nil, mapErr("getTokenLargestAccounts", err)
	}
	if len(accounts) == 0 {
		return nil, provider.ErrNotFound
	}

	keys := make([]string, 0, len(accounts))
	for _, a := range accounts {
		keys = append(keys, a.Address)
	}
	owners, err := p.rpc.GetTokenAccountOwners(ctx, keys)
	if err != nil {
		return nil, mapErr("getMultipleAccounts", err)
	}

	byOwner := make(map[string]*big.Int, len(accounts))
	for _, a := range accounts {
		if a.Amount == nil || a.Amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative balance for %s", provider.ErrMalformed, a.Address)
		}
		owner, ok := owners[a.Address]
		if !ok {
			owner = a.Address
		}
		if sum, ok := byOwner[owner]; ok {
			sum.Add(sum, a.Amount)
			continue
		}
		byOwner[owner] = new(big.Int).Set(a.Amount)
	}

	holders := make([]domain.HolderRecord, 0, len(byOwner))
	for owner, bal := range byOwner {
		if bal.Sign() == 0 {
			continue
		}
		holders = append(holders, domain.HolderRecord{Address: owner, Balance: bal})
	}
	domain.SortHoldersDesc(holders)

	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}
	return holders, nil
}

// TotalSupply returns the raw mint supply.
func (p *Provider) TotalSupply(ctx context.Context, chain domain.Chain, address string) (*big.Int, error) {
	if chain != domain.ChainSolana {
		return nil, provider.ErrNotFound
	}

	supply, err := p.rpc.GetTokenSupply(ctx, address)
	if err != nil {
		return nil, mapErr("getTokenSupply", err)
	}
	if supply.Amount == nil {
		return nil, fmt.Errorf("%w: empty supply", provider.ErrMalformed)
	}
	return supply.Amount, nil
}

func mapErr(method string, err error) error {
	switch {
	case errors.Is(err, solana.ErrAccountNotFound):
		return fmt.Errorf("%w: %s: %v", provider.ErrNotFound, method, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %s: %v", provider.ErrUnavailable, method, err)
	}
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %s: %v", provider.ErrMalformed, method, err)
	}
	return fmt.Errorf("%w: %s: %v", provider.ErrUnavailable, method, err)
}
