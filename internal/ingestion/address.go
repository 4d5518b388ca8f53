package ingestion

import (
	"encoding/hex"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"token-sentinel/internal/domain"
)

// solanaKeyLen is the length of a decoded Solana public key.
const solanaKeyLen = 32

// CanonicalAddress validates raw and returns the canonical form used for
// ledger keys. EVM hex addresses are lowercased. Solana base58 is
// case-sensitive, so its canonical form is the re-encoding of the decoded
// 32-byte key, which strips nothing but rejects any malformed input.
func CanonicalAddress(chain domain.Chain, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	switch {
	case chain.IsEVM():
		if len(s) != 42 || !strings.HasPrefix(strings.ToLower(s), "0x") {
			return "", fmt.Errorf("%w: %q is not a 20-byte hex address", ErrInvalidAddress, s)
		}
		if _, err := hex.DecodeString(s[2:]); err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
		}
		return strings.ToLower(s), nil

	case chain == domain.ChainSolana:
		key, err := base58.Decode(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
		}
		if len(key) != solanaKeyLen {
			return "", fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(key))
		}
		return base58.Encode(key), nil
	}

	if strings.ContainsAny(s, " :\t\n") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return s, nil
}

// CanonicalCreator returns the canonical creator address, or "" when raw is
// empty or cannot be the signer of a creation transaction. On Solana a
// signer is an ed25519 public key, so off-curve keys (program-derived
// addresses) are treated as unknown.
func CanonicalCreator(chain domain.Chain, raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	addr, err := CanonicalAddress(chain, raw)
	if err != nil {
		return ""
	}
	if chain == domain.ChainSolana && !onCurve(addr) {
		return ""
	}
	return addr
}

func onCurve(addr string) bool {
	key, err := base58.Decode(addr)
	if err != nil || len(key) != solanaKeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(key)
	return err == nil
}
