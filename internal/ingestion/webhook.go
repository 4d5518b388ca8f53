package ingestion

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"token-sentinel/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

const maxWebhookBody = 1 << 20

// WebhookHandler receives pushed token events at POST /webhook/{source}.
type WebhookHandler struct {
	normalizer *Normalizer
	queue      *Queue
	secret     []byte
	logger     *zap.Logger
}

// NewWebhookHandler creates the handler. An empty secret disables
// signature verification.
func NewWebhookHandler(n *Normalizer, q *Queue, secret string, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WebhookHandler{normalizer: n, queue: q, logger: logger}
	if secret != "" {
		h.secret = []byte(secret)
	}
	return h
}

// Register mounts the handler on r.
func (h *WebhookHandler) Register(r *mux.Router) {
	r.HandleFunc("/webhook/{source}", h.ServeHTTP).Methods(http.MethodPost)
}

type webhookResponse struct {
	Accepted int    `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	if !h.normalizer.Has(source) {
		writeJSON(w, http.StatusNotFound, webhookResponse{Error: "unknown source"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, webhookResponse{Error: "body too large"})
		return
	}

	if h.secret != nil && !verifySignature(h.secret, body, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", zap.String("source", source))
		writeJSON(w, http.StatusUnauthorized, webhookResponse{Error: "invalid signature"})
		return
	}

	cands, err := h.normalizer.Normalize(source, domain.SourceWebhook, body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: err.Error()})
		return
	}

	n, err := h.queue.OfferAll(cands)
	if errors.Is(err, ErrQueueFull) {
		h.logger.Warn("intake queue full, rejecting webhook",
			zap.String("source", source),
			zap.Int("accepted", n),
			zap.Int("rejected", len(cands)-n))
		w.Header().Set("Retry-After", "5")
		writeJSON(w, http.StatusServiceUnavailable, webhookResponse{Accepted: n, Error: ErrQueueFull.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, webhookResponse{Accepted: n})
}

// verifySignature checks a hex HMAC-SHA256 signature, with or without a
// "sha256=" prefix, in constant time.
func verifySignature(secret, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, Sign(secret, body))
}

// Sign returns the HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
