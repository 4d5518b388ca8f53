package ingestion

import (
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"token-sentinel/internal/domain"
	"token-sentinel/internal/storage"
)

// SwapHandler receives trade events at POST /swaps and records them for the
// local 24h volume metric. The body is an array of
// {"chain","address","timestamp_ms","volume_usd"} objects, optionally
// wrapped in {"swaps":[...]}.
type SwapHandler struct {
	writer storage.VolumeWriter
	secret []byte
	logger *zap.Logger
}

// NewSwapHandler creates the handler. An empty secret disables signature
// verification.
func NewSwapHandler(w storage.VolumeWriter, secret string, logger *zap.Logger) *SwapHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SwapHandler{writer: w, logger: logger}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// Register mounts the handler on r.
func (h *SwapHandler) Register(r *mux.Router) {
	r.HandleFunc("/swaps", h.ServeHTTP).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler.
func (h *SwapHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{Error: "body too large"})
		return
	}
	if h.secret != nil && !verifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		writeJSON(w, http.StatusUnauthorized, webhookResponse{Error: "invalid signature"})
		return
	}

	swaps, err := ParseSwaps(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: err.Error()})
		return
	}

	if err := h.writer.InsertSwaps(r.Context(), swaps); err != nil {
		h.logger.Error("recording swaps failed", zap.Int("swaps", len(swaps)), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, webhookResponse{Error: "swap store unavailable"})
		return
	}
	writeJSON(w, http.StatusAccepted, webhookResponse{Accepted: len(swaps)})
}

// ParseSwaps decodes a swap batch. Records with an invalid address or a
// negative amount are skipped.
func ParseSwaps(body []byte) ([]storage.SwapRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.New("payload is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if root.IsObject() {
		root = root.Get("swaps")
	}
	if !root.IsArray() {
		return nil, errors.New("expected an array of swaps")
	}

	var out []storage.SwapRecord
	for _, rec := range root.Array() {
		chain := domain.ParseChain(rec.Get("chain").String())
		addr, err := CanonicalAddress(chain, rec.Get("address").String())
		if err != nil || chain == "" {
			continue
		}
		ts, vol := rec.Get("timestamp_ms").Int(), rec.Get("volume_usd").Float()
		if ts <= 0 || vol < 0 {
			continue
		}
		out = append(out, storage.SwapRecord{
			Chain:       chain,
			Address:     addr,
			TimestampMs: ts,
			VolumeUSD:   vol,
		})
	}
	return out, nil
}
