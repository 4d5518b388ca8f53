package solana

import (
	"context"
	"errors"
	"math/big"
)

// ErrAccountNotFound is returned when the mint or account does not exist.
var ErrAccountNotFound = errors.New("solana: account not found")

// RPCClient defines the Solana RPC HTTP methods used to read SPL token state.
type RPCClient interface {
	// GetTokenLargestAccounts returns up to 20 largest token accounts of a mint.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)

	// GetTokenAccountOwners maps token account addresses to their owner wallets.
	// Accounts that do not exist are absent from the result.
	GetTokenAccountOwners(ctx context.Context, accounts []string) (map[string]string, error)

	// GetTokenSupply returns the raw total supply of a mint.
	GetTokenSupply(ctx context.Context, mint string) (*TokenSupply, error)
}

// TokenAccountBalance is one entry of getTokenLargestAccounts.
type TokenAccountBalance struct {
	Address  string
	Amount   *big.Int // raw units
	Decimals int
}

// TokenSupply is the getTokenSupply result.
type TokenSupply struct {
	Amount   *big.Int // raw units
	Decimals int
}
