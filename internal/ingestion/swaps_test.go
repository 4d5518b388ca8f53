package ingestion

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

type recordingWriter struct {
	swaps []storage.SwapRecord
	err   error
}

func (w *recordingWriter) InsertSwaps(_ context.Context, swaps []storage.SwapRecord) error {
	if w.err != nil {
		return w.err
	}
	w.swaps = append(w.swaps, swaps...)
	return nil
}

func TestParseSwaps(t *testing.T) {
	swaps, err := ParseSwaps([]byte(`{"swaps":[
		{"chain":"sol","address":"` + wsolMint + `","timestamp_ms":1700000000000,"volume_usd":12.5},
		{"chain":"solana","address":"bad","timestamp_ms":1700000000000,"volume_usd":1},
		{"chain":"solana","address":"` + wsolMint + `","timestamp_ms":1700000000001,"volume_usd":-3},
		{"chain":"base","address":"0x00000000000000000000000000000000000000AA","timestamp_ms":1700000000002,"volume_usd":"7"}
	]}`))
	require.NoError(t, err)
	require.Len(t, swaps, 2)
	assert.Equal(t, domain.ChainSolana, swaps[0].Chain)
	assert.Equal(t, 12.5, swaps[0].VolumeUSD)
	assert.Equal(t, "0x00000000000000000000000000000000000000aa", swaps[1].Address)
	assert.Equal(t, 7.0, swaps[1].VolumeUSD)

	_, err = ParseSwaps([]byte(`{"swaps":{}}`))
	assert.Error(t, err)
	_, err = ParseSwaps([]byte(`[`))
	assert.Error(t, err)
}

func TestSwapHandler(t *testing.T) {
	w := &recordingWriter{}
	r := mux.NewRouter()
	NewSwapHandler(w, "k", nil).Register(r)

	body := []byte(`[{"chain":"solana","address":"` + wsolMint + `","timestamp_ms":1700000000000,"volume_usd":3}]`)
	assert.Equal(t, http.StatusUnauthorized, post(r, "/swaps", body, "").Code)

	rec := post(r, "/swaps", body, hex.EncodeToString(Sign([]byte("k"), body)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"accepted":1}`, rec.Body.String())
	require.Len(t, w.swaps, 1)

	w.err = errors.New("clickhouse down")
	rec = post(r, "/swaps", body, hex.EncodeToString(Sign([]byte("k"), body)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
