package ingestion

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/observability"
)

// FieldMapping describes how one source's payload maps onto a CandidateToken.
// All paths are gjson paths evaluated against a single record.
type FieldMapping struct {
	// Records selects the record list in the payload. Empty means the payload
	// is either a single record object or a top-level array of records.
	Records string
	// Chain is the path of the chain identifier. DefaultChain is used when
	// the path is empty or resolves to nothing.
	Chain        string
	DefaultChain domain.Chain
	Address      string
	Creator      string
	// Fields maps canonical field names (domain.Field*) to paths.
	Fields map[string]string
}

// DefaultMappings returns the built-in source mappings.
func DefaultMappings() map[string]FieldMapping {
	return map[string]FieldMapping{
		"pumpfun": {
			DefaultChain: domain.ChainSolana,
			Address:      "mint",
			Creator:      "creator",
			Fields: map[string]string{
				domain.FieldMarketcap:   "usd_market_cap",
				domain.FieldTotalSupply: "total_supply",
				domain.FieldName:        "name",
				domain.FieldSymbol:      "symbol",
			},
		},
		"dexscreener": {
			Chain:   "chainId",
			Address: "tokenAddress",
			Fields: map[string]string{
				domain.FieldName: "description",
			},
		},
		"generic": {
			Records: "tokens",
			Chain:   "chain",
			Address: "address",
			Creator: "creator",
			Fields: map[string]string{
				domain.FieldMarketcap:    "marketcap",
				domain.FieldHolders:      "holders",
				domain.FieldTop10Percent: "top10Percent",
				domain.FieldDevPercent:   "devPercent",
				domain.FieldVolume24h:    "volume24h",
				domain.FieldTotalSupply:  "totalSupply",
				domain.FieldName:         "name",
				domain.FieldSymbol:       "symbol",
			},
		},
	}
}

// Normalizer converts raw source payloads into candidates.
type Normalizer struct {
	mappings map[string]FieldMapping
	logger   *zap.Logger
}

// NewNormalizer creates a normalizer. A nil mappings table uses DefaultMappings.
func NewNormalizer(mappings map[string]FieldMapping, logger *zap.Logger) *Normalizer {
	if mappings == nil {
		mappings = DefaultMappings()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{mappings: mappings, logger: logger}
}

// Sources returns the registered source names in sorted order.
func (n *Normalizer) Sources() []string {
	names := make([]string, 0, len(n.mappings))
	for name := range n.mappings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a mapping exists for source.
func (n *Normalizer) Has(source string) bool {
	_, ok := n.mappings[source]
	return ok
}

// Normalize extracts every valid candidate from payload. Records without a
// usable chain or address are dropped and counted; they never fail the
// whole payload. An error is returned only for an unknown source or a
// payload that is not JSON.
func (n *Normalizer) Normalize(source string, transport domain.Source, payload []byte) ([]*domain.CandidateToken, error) {
	m, ok := n.mappings[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, source)
	}
	if !transport.IsValid() {
		return nil, fmt.Errorf("normalize %s: unknown transport %q", source, transport)
	}
	if !gjson.ValidBytes(payload) {
		observability.RecordNormalizationFailure(source, "invalid_json")
		return nil, fmt.Errorf("normalize %s: payload is not valid JSON", source)
	}

	root := gjson.ParseBytes(payload)
	if m.Records != "" {
		root = root.Get(m.Records)
	}

	var records []gjson.Result
	if root.IsArray() {
		records = root.Array()
	} else if root.IsObject() {
		records = []gjson.Result{root}
	}

	out := make([]*domain.CandidateToken, 0, len(records))
	for _, rec := range records {
		cand, err := n.record(m, transport, rec)
		if err != nil {
			observability.RecordNormalizationFailure(source, reason(err))
			n.logger.Debug("dropping record",
				zap.String("source", source),
				zap.Error(err))
			continue
		}
		observability.RecordCandidateReceived(source)
		out = append(out, cand)
	}
	return out, nil
}

func (n *Normalizer) record(m FieldMapping, transport domain.Source, rec gjson.Result) (*domain.CandidateToken, error) {
	chain := m.DefaultChain
	if m.Chain != "" {
		if v := rec.Get(m.Chain); v.Exists() && v.String() != "" {
			chain = domain.ParseChain(v.String())
		}
	}
	if chain == "" {
		return nil, fmt.Errorf("%w: chain", ErrMissingField)
	}

	rawAddr := rec.Get(m.Address).String()
	if rawAddr == "" {
		return nil, fmt.Errorf("%w: address", ErrMissingField)
	}
	addr, err := CanonicalAddress(chain, rawAddr)
	if err != nil {
		return nil, err
	}

	cand := &domain.CandidateToken{
		Chain:     chain,
		Address:   addr,
		Source:    transport,
		RawFields: make(map[string]any, len(m.Fields)),
	}
	if m.Creator != "" {
		cand.CreatorAddress = CanonicalCreator(chain, rec.Get(m.Creator).String())
	}
	for field, path := range m.Fields {
		if v, ok := value(rec.Get(path)); ok {
			cand.RawFields[field] = v
		}
	}
	return cand, nil
}

// value converts a gjson scalar into a RawFields value. Numbers keep their
// literal text so that large supplies survive without float rounding.
func value(r gjson.Result) (any, bool) {
	switch r.Type {
	case gjson.Number:
		return json.Number(r.Raw), true
	case gjson.String:
		if r.Str == "" {
			return nil, false
		}
		return r.Str, true
	}
	return nil, false
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrMissingField):
		return "missing_field"
	}
	return "error"
}
