package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// WebhookVerifyResult contains the normalised data extracted from a webhook
// notification after signature verification.
type WebhookVerifyResult struct {
	Valid           bool
	OrderID         string
	Amount          int64
	Status          string
	ProviderPayload []byte
	Err             error
}

// Provider abstracts signature verification and payload normalisation for an
// upstream payment provider.
type Provider interface {
	VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error)
}

// Sandbox implements Provider for the hosted sandbox gateway. Notifications
// carry an HMAC-SHA256 signature of the raw body in the X-Webhook-Signature
// header.
type Sandbox struct {
	SecretKey string
}

// VerifyWebhook validates the callback signature and normalises the payload.
func (s Sandbox) VerifyWebhook(r *http.Request, body []byte) (WebhookVerifyResult, error) {
	expected := s.computeSignature(body)
	provided := strings.TrimSpace(r.Header.Get("X-Webhook-Signature"))
	if expected == "" || provided == "" || !hmac.Equal([]byte(expected), []byte(provided)) {
		return WebhookVerifyResult{Valid: false, Err: errors.New("invalid signature")}, nil
	}

	var payload struct {
		OrderID string      `json:"order_id"`
		Amount  json.Number `json:"amount"`
		Status  string      `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookVerifyResult{Valid: false, Err: err}, nil
	}

	amount, _ := payload.Amount.Int64()
	if amount == 0 {
		if f, err := payload.Amount.Float64(); err == nil {
			amount = int64(f)
		}
	}

	return WebhookVerifyResult{
		Valid:           true,
		OrderID:         payload.OrderID,
		Amount:          amount,
		Status:          normaliseSandboxStatus(payload.Status),
		ProviderPayload: body,
	}, nil
}

func (s Sandbox) computeSignature(body []byte) string {
	key := strings.TrimSpace(s.SecretKey)
	if key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func normaliseSandboxStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "settled", "success", "captured":
		return StatusPaid
	case "expired":
		return StatusExpired
	case "failed", "canceled", "declined":
		return StatusFailed
	default:
		return StatusPending
	}
}
