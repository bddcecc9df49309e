package payment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/elitegames/backend-store/internal/common"
	"github.com/elitegames/backend-store/internal/events"
	"github.com/elitegames/backend-store/internal/obs"
	"github.com/elitegames/backend-store/internal/order"
)

// Normalised webhook statuses.
const (
	StatusPending = "PENDING"
	StatusPaid    = "PAID"
	StatusFailed  = "FAILED"
	StatusExpired = "EXPIRED"
)

// OrderSettler is the slice of the order store the webhook needs to settle
// payments.
type OrderSettler interface {
	Get(ctx context.Context, id uuid.UUID) (order.Order, error)
	MarkPaidIfPending(ctx context.Context, id uuid.UUID) (order.Order, bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (order.Order, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.DomainEvent, error)
}

// Webhook handles payment provider callbacks, including signature
// verification, replay protection and settlement.
type Webhook struct {
	Orders    OrderSettler
	Providers map[string]Provider
	Replay    *redis.Client
	ReplayTTL time.Duration
	Events    eventEmitter
}

// Handle processes webhook callbacks for the configured payment provider(s).
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil || h.Providers == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	providerKey := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "provider")))
	provider, ok := h.Providers[providerKey]
	if !ok {
		common.JSONError(w, http.StatusNotFound, "PROVIDER_NOT_SUPPORTED", "unknown provider", nil)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	result, err := provider.VerifyWebhook(r, body)
	if err != nil {
		h.count(providerKey, "invalid")
		common.JSONError(w, http.StatusBadRequest, "WEBHOOK_INVALID", err.Error(), nil)
		return
	}
	if !result.Valid {
		h.count(providerKey, "invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	ctx := r.Context()
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:%s:%s", providerKey, common.Sha256Hex(string(body)))
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !fresh {
			h.count(providerKey, "replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}
	orderID, err := uuid.Parse(strings.TrimSpace(result.OrderID))
	if err != nil {
		h.count(providerKey, "invalid")
		common.JSONError(w, http.StatusBadRequest, "INVALID_ORDER_ID", "invalid order identifier", nil)
		return
	}
	current, err := h.Orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			h.count(providerKey, "order_not_found")
			common.JSONError(w, http.StatusNotFound, "ORDER_NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "ORDER_FETCH_ERROR", err.Error(), nil)
		return
	}
	if result.Amount > 0 && result.Amount != current.Total {
		h.count(providerKey, "amount_mismatch")
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "provider amount mismatch", nil)
		return
	}

	switch result.Status {
	case StatusPaid:
		settled, changed, err := h.Orders.MarkPaidIfPending(ctx, orderID)
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "ORDER_UPDATE_ERROR", err.Error(), nil)
			return
		}
		if changed {
			h.count(providerKey, "settled")
			h.emit(ctx, events.TopicOrderPaid, settled)
		} else {
			h.count(providerKey, "duplicate")
		}
	case StatusFailed, StatusExpired:
		if current.Status == order.StatusPendingPayment {
			canceled, err := h.Orders.UpdateStatus(ctx, orderID, order.StatusCanceled)
			if err != nil {
				common.JSONError(w, http.StatusInternalServerError, "ORDER_UPDATE_ERROR", err.Error(), nil)
				return
			}
			h.count(providerKey, "canceled")
			h.emit(ctx, events.TopicOrderCanceled, canceled)
		} else {
			h.count(providerKey, "ignored")
		}
	default:
		h.count(providerKey, "pending")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h Webhook) emit(ctx context.Context, topic string, o order.Order) {
	if h.Events == nil {
		return
	}
	payload := map[string]any{
		"orderId":             o.ID.String(),
		"userId":              o.UserID.String(),
		"status":              o.Status,
		"total":               o.Total,
		"currency":            o.Currency,
		"boardGameCount":      o.BoardGameCount,
		"grantsPremiumAccess": o.GrantsPremiumAccess,
	}
	_, _ = h.Events.Emit(ctx, topic, o.ID, payload)
}

func (h Webhook) count(provider, result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	obs.PaymentWebhookTotal.WithLabelValues(provider, result).Inc()
}
