package payment_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/elitegames/backend-store/internal/events"
	"github.com/elitegames/backend-store/internal/order"
	"github.com/elitegames/backend-store/internal/payment"
)

const webhookSecret = "sandbox-secret"

type memSettler struct {
	orders map[uuid.UUID]order.Order
}

func (m *memSettler) Get(_ context.Context, id uuid.UUID) (order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (m *memSettler) MarkPaidIfPending(_ context.Context, id uuid.UUID) (order.Order, bool, error) {
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, false, order.ErrNotFound
	}
	if o.Status != order.StatusPendingPayment {
		return o, false, nil
	}
	o.Status = order.StatusPaid
	m.orders[id] = o
	return o, true, nil
}

func (m *memSettler) UpdateStatus(_ context.Context, id uuid.UUID, status string) (order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	o.Status = status
	m.orders[id] = o
	return o, nil
}

type recordingEmitter struct {
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.DomainEvent, error) {
	r.topics = append(r.topics, topic)
	return events.DomainEvent{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookFixture(t *testing.T) (payment.Webhook, *memSettler, *recordingEmitter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	settler := &memSettler{orders: map[uuid.UUID]order.Order{}}
	emitter := &recordingEmitter{}
	h := payment.Webhook{
		Orders:    settler,
		Providers: map[string]payment.Provider{"sandbox": payment.Sandbox{SecretKey: webhookSecret}},
		Replay:    rdb,
		ReplayTTL: time.Hour,
		Events:    emitter,
	}
	return h, settler, emitter
}

func postWebhook(h payment.Webhook, provider string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment/"+provider, bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Webhook-Signature", signature)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookSettlesPendingOrder(t *testing.T) {
	h, settler, emitter := webhookFixture(t)
	id := uuid.New()
	settler.orders[id] = order.Order{ID: id, UserID: uuid.New(), Status: order.StatusPendingPayment, Total: 7800, Currency: "EUR", BoardGameCount: 2, GrantsPremiumAccess: true}

	body, err := json.Marshal(map[string]any{"order_id": id.String(), "amount": 7800, "status": "paid"})
	require.NoError(t, err)
	rec := postWebhook(h, "sandbox", body, signBody(body))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, order.StatusPaid, settler.orders[id].Status)
	require.Equal(t, []string{events.TopicOrderPaid}, emitter.topics)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h, settler, emitter := webhookFixture(t)
	id := uuid.New()
	settler.orders[id] = order.Order{ID: id, Status: order.StatusPendingPayment, Total: 100}

	body, err := json.Marshal(map[string]any{"order_id": id.String(), "amount": 100, "status": "paid"})
	require.NoError(t, err)
	rec := postWebhook(h, "sandbox", body, "deadbeef")

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, order.StatusPendingPayment, settler.orders[id].Status)
	require.Empty(t, emitter.topics)
}

func TestWebhookReplayReturnsConflict(t *testing.T) {
	h, _, emitter := webhookFixture(t)
	id := uuid.New()
	h.Orders.(*memSettler).orders[id] = order.Order{ID: id, Status: order.StatusPendingPayment, Total: 500}

	body, err := json.Marshal(map[string]any{"order_id": id.String(), "amount": 500, "status": "paid"})
	require.NoError(t, err)
	sig := signBody(body)

	first := postWebhook(h, "sandbox", body, sig)
	require.Equal(t, http.StatusNoContent, first.Code)

	second := postWebhook(h, "sandbox", body, sig)
	require.Equal(t, http.StatusConflict, second.Code)
	require.Len(t, emitter.topics, 1)
}

func TestWebhookSettleIsIdempotent(t *testing.T) {
	h, settler, emitter := webhookFixture(t)
	id := uuid.New()
	settler.orders[id] = order.Order{ID: id, Status: order.StatusPendingPayment, Total: 500}

	for i := 0; i < 2; i++ {
		body, err := json.Marshal(map[string]any{"order_id": id.String(), "amount": 500, "status": "paid", "attempt": i})
		require.NoError(t, err)
		rec := postWebhook(h, "sandbox", body, signBody(body))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
	require.Equal(t, order.StatusPaid, settler.orders[id].Status)
	require.Equal(t, []string{events.TopicOrderPaid}, emitter.topics)
}

func TestWebhookAmountMismatch(t *testing.T) {
	h, settler, _ := webhookFixture(t)
	id := uuid.New()
	settler.orders[id] = order.Order{ID: id, Status: order.StatusPendingPayment, Total: 500}

	body, err := json.Marshal(map[string]any{"order_id": id.String(), "amount": 999, "status": "paid"})
	require.NoError(t, err)
	rec := postWebhook(h, "sandbox", body, signBody(body))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, order.StatusPendingPayment, settler.orders[id].Status)
}

func TestWebhookFailureCancelsPendingOrder(t *testing.T) {
	h, settler, emitter := webhookFixture(t)
	id := uuid.New()
	settler.orders[id] = order.Order{ID: id, Status: order.StatusPendingPayment, Total: 500}

	body, err := json.Marshal(map[string]any{"order_id": id.String(), "amount": 500, "status": "expired"})
	require.NoError(t, err)
	rec := postWebhook(h, "sandbox", body, signBody(body))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, order.StatusCanceled, settler.orders[id].Status)
	require.Equal(t, []string{events.TopicOrderCanceled}, emitter.topics)
}

func TestWebhookUnknownProvider(t *testing.T) {
	h, _, _ := webhookFixture(t)
	body := []byte(fmt.Sprintf(`{"order_id":%q,"amount":1,"status":"paid"}`, uuid.NewString()))
	rec := postWebhook(h, "legacy", body, signBody(body))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
