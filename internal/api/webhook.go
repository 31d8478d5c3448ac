package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// signatureHeader carries the gateway's hex-encoded HMAC-SHA256 of the raw
// request body.
const signatureHeader = "X-Gateway-Signature"

// webhookEvent is the payment gateway's callback payload.
type webhookEvent struct {
	Type             string `json:"type"`
	ResultID         string `json:"result_id"`
	PaymentReference string `json:"payment_reference"`
}

const (
	eventPaymentSucceeded = "payment.succeeded"
	eventPaymentFailed    = "payment.failed"
)

// handleWebhook is the asynchronous confirmation path. The event must
// authenticate before anything else runs; a bad signature produces no side
// effects at all. A valid success event funnels into the same idempotent
// Confirm as the synchronous path.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !verifySignature(s.webhookSecret, body, r.Header.Get(signatureHeader)) {
		zap.L().Warn("webhook signature rejected",
			zap.String("remote", r.RemoteAddr),
		)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if event.ResultID == "" || event.PaymentReference == "" {
		writeError(w, http.StatusBadRequest, "event missing result id or payment reference")
		return
	}

	switch event.Type {
	case eventPaymentSucceeded:
		result, err := s.unlocks.Confirm(r.Context(), event.ResultID, event.PaymentReference)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, confirmResponse{IsPremium: result.IsPremium})
	case eventPaymentFailed:
		if err := s.unlocks.Fail(r.Context(), event.ResultID, event.PaymentReference); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
	default:
		// Unknown event types are acknowledged so the gateway stops
		// redelivering them.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

// verifySignature checks the hex HMAC-SHA256 of body against the shared
// secret in constant time. A server with no secret configured accepts
// nothing.
func verifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(sig, mac.Sum(nil))
}

// SignPayload computes the signature a trusted caller would attach. Used by
// tests and the local gateway simulator.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
