package domain

import "strings"

// Chain identifies the network a token lives on.
type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
	ChainBase     Chain = "base"
	ChainBSC      Chain = "bsc"
)

// String returns the string representation of Chain.
func (c Chain) String() string {
	return string(c)
}

// IsEVM reports whether addresses on the chain are 0x-prefixed hex.
func (c Chain) IsEVM() bool {
	switch c {
	case ChainEthereum, ChainBase, ChainBSC:
		return true
	}
	return false
}

// ParseChain normalizes a chain identifier. Unknown chains are kept as-is
// (lowercased) so that new networks can be fed without a code change.
func ParseChain(s string) Chain {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "sol", "solana-mainnet":
		return ChainSolana
	case "eth", "mainnet":
		return ChainEthereum
	case "bnb", "binance-smart-chain":
		return ChainBSC
	}
	return Chain(s)
}

// CandidateToken is a newly observed token handed to the evaluation pipeline.
// It is produced by the ingestion boundary and must not be mutated afterwards.
type CandidateToken struct {
	Chain          Chain
	Address        string         // canonical form, see ingestion.CanonicalAddress
	CreatorAddress string         // empty when unknown
	Source         Source         // ingestion transport that produced the candidate
	RawFields      map[string]any // primary record, keyed by canonical field names
}

// HasCreator reports whether a creator address is known.
func (c *CandidateToken) HasCreator() bool {
	return c.CreatorAddress != ""
}

// Field returns a primary-record value by canonical field name.
func (c *CandidateToken) Field(name string) (any, bool) {
	if c.RawFields == nil {
		return nil, false
	}
	v, ok := c.RawFields[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// Canonical primary-record field names. Ingestion normalizes every source
// payload onto these keys.
const (
	FieldMarketcap    = "marketcap"
	FieldHolders      = "holders"
	FieldTop10Percent = "top10Percent"
	FieldDevPercent   = "devPercent"
	FieldVolume24h    = "volume24h"
	FieldTotalSupply  = "totalSupply" // raw base units, integer string
	FieldName         = "name"
	FieldSymbol       = "symbol"
)
