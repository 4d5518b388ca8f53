package ingestion

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
)

func TestCanonicalAddress_EVM(t *testing.T) {
	got, err := CanonicalAddress(domain.ChainBase, " 0xAbCdEf0123456789aBCdef0123456789ABCDEF01 ")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", got)

	_, err = CanonicalAddress(domain.ChainEthereum, "0x1234")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = CanonicalAddress(domain.ChainEthereum, "0xZZcdef0123456789abcdef0123456789abcdef01")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCanonicalAddress_Solana(t *testing.T) {
	const mint = "So11111111111111111111111111111111111111112"

	got, err := CanonicalAddress(domain.ChainSolana, mint)
	require.NoError(t, err)
	assert.Equal(t, mint, got, "base58 is case-sensitive and must be preserved")

	lower, err := CanonicalAddress(domain.ChainSolana, "so11111111111111111111111111111111111111112")
	if err == nil {
		assert.NotEqual(t, mint, lower, "case is significant in base58")
	}

	_, err = CanonicalAddress(domain.ChainSolana, "0OIl")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = CanonicalAddress(domain.ChainSolana, "abc")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = CanonicalAddress(domain.ChainSolana, "")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCanonicalCreator(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	signer := base58.Encode(pub)

	assert.Equal(t, signer, CanonicalCreator(domain.ChainSolana, signer))
	assert.Equal(t, "", CanonicalCreator(domain.ChainSolana, ""))
	assert.Equal(t, "", CanonicalCreator(domain.ChainSolana, "not-base58-0OIl"))

	// Search for an off-curve 32-byte value, as program-derived addresses are.
	var offCurve string
	for i := 0; i < 256 && offCurve == ""; i++ {
		sum := sha256.Sum256([]byte{byte(i)})
		if !onCurve(base58.Encode(sum[:])) {
			offCurve = base58.Encode(sum[:])
		}
	}
	require.NotEmpty(t, offCurve)
	assert.Equal(t, "", CanonicalCreator(domain.ChainSolana, offCurve))

	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01",
		CanonicalCreator(domain.ChainEthereum, "0xABCDEF0123456789abcdef0123456789abcdef01"))
}
