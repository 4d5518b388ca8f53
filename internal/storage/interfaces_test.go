package storage

import (
	"testing"

	"token-sentinel/internal/domain"
)

func TestLedgerKey(t *testing.T) {
	got := LedgerKey("", domain.ChainSolana, "So11111111111111111111111111111111111111112")
	want := "sentinel:seen:solana:So11111111111111111111111111111111111111112"
	if got != want {
		t.Errorf("LedgerKey = %s, want %s", got, want)
	}

	got = LedgerKey("custom:", domain.ChainBase, "0xabc")
	if got != "custom:base:0xabc" {
		t.Errorf("LedgerKey with prefix = %s", got)
	}
}
