// Package sharemath computes holder-concentration percentages from raw
// base-unit balances using arbitrary-precision integers only.
//
// All results carry exactly two decimal digits and are truncated toward zero:
//
//	percent = floor(amount * 10000 / total) / 100
package sharemath

import (
	"math/big"

	"github.com/shopspring/decimal"

	"token-sentinel/internal/domain"
)

// TopN is the number of largest holders used for concentration.
const TopN = 10

var basisPoints = big.NewInt(10000)

// SharePercent returns amount/total as a percentage with two truncated
// decimals. It is absent when total <= 0, or when amount is nil or negative.
func SharePercent(amount, total *big.Int) decimal.NullDecimal {
	if amount == nil || total == nil || total.Sign() <= 0 || amount.Sign() < 0 {
		return decimal.NullDecimal{}
	}

	scaled := new(big.Int).Mul(amount, basisPoints)
	// Both operands are non-negative, so Quo truncation equals floor.
	scaled.Quo(scaled, total)

	return decimal.NewNullDecimal(decimal.NewFromBigInt(scaled, -2))
}

// SumTop returns the sum of the n largest balances. Holders must already be
// sorted descending.
func SumTop(holders []domain.HolderRecord, n int) *big.Int {
	sum := new(big.Int)
	for i := 0; i < len(holders) && i < n; i++ {
		if holders[i].Balance == nil || holders[i].Balance.Sign() < 0 {
			continue
		}
		sum.Add(sum, holders[i].Balance)
	}
	return sum
}

// Top10Percent returns the share held by the ten largest holders.
func Top10Percent(holders []domain.HolderRecord, totalSupply *big.Int) decimal.NullDecimal {
	if len(holders) == 0 {
		return decimal.NullDecimal{}
	}
	return SharePercent(SumTop(holders, TopN), totalSupply)
}

// DevPercent returns the creator's share when the creator is among holders,
// otherwise the largest holder's share as a proxy.
func DevPercent(holders []domain.HolderRecord, creator string, totalSupply *big.Int) decimal.NullDecimal {
	if len(holders) == 0 {
		return decimal.NullDecimal{}
	}
	if creator != "" {
		for _, h := range holders {
			if h.Address == creator {
				return SharePercent(h.Balance, totalSupply)
			}
		}
	}
	return SharePercent(holders[0].Balance, totalSupply)
}

// ParseAmount parses a raw base-unit integer. A leading minus is accepted;
// a leading plus, fractions and empty strings are not.
func ParseAmount(s string) (*big.Int, bool) {
	if s == "" || s[0] == '+' {
		return nil, false
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	return v, true
}
