package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elitegames/backend-store/internal/events"
)

type memGrantStore struct {
	premium map[uuid.UUID]*time.Time
	grants  map[uuid.UUID]time.Time
}

func newMemGrantStore() *memGrantStore {
	return &memGrantStore{premium: map[uuid.UUID]*time.Time{}, grants: map[uuid.UUID]time.Time{}}
}

func (m *memGrantStore) Grant(_ context.Context, orderID, userID uuid.UUID, now time.Time, d time.Duration) (time.Time, bool, error) {
	if until, ok := m.grants[orderID]; ok {
		return until, false, nil
	}
	current, ok := m.premium[userID]
	if !ok {
		return time.Time{}, false, ErrNotFound
	}
	base := now
	if current != nil && current.After(base) {
		base = *current
	}
	until := base.Add(d)
	m.premium[userID] = &until
	m.grants[orderID] = until
	return until, true, nil
}

func (m *memGrantStore) PremiumUntil(_ context.Context, userID uuid.UUID) (*time.Time, error) {
	until, ok := m.premium[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return until, nil
}

type recordingEmitter struct {
	topics []string
}

func (r *recordingEmitter) Emit(_ context.Context, topic string, aggregateID uuid.UUID, _ any) (events.DomainEvent, error) {
	r.topics = append(r.topics, topic)
	return events.DomainEvent{ID: uuid.New(), Topic: topic, AggregateID: aggregateID}, nil
}

func TestGrantExtendsFromNowWhenExpired(t *testing.T) {
	store := newMemGrantStore()
	emitter := &recordingEmitter{}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGrantor(store, emitter, 365*24*time.Hour).WithNow(func() time.Time { return now })

	userID := uuid.New()
	store.premium[userID] = nil

	until, granted, err := g.Grant(context.Background(), uuid.New(), userID)
	require.NoError(t, err)
	require.True(t, granted)
	require.Equal(t, now.Add(365*24*time.Hour), until)
	require.Equal(t, []string{events.TopicEntitlementGranted}, emitter.topics)
}

func TestGrantStacksOnActivePremium(t *testing.T) {
	store := newMemGrantStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGrantor(store, nil, 365*24*time.Hour).WithNow(func() time.Time { return now })

	userID := uuid.New()
	active := now.Add(30 * 24 * time.Hour)
	store.premium[userID] = &active

	until, granted, err := g.Grant(context.Background(), uuid.New(), userID)
	require.NoError(t, err)
	require.True(t, granted)
	require.Equal(t, active.Add(365*24*time.Hour), until)
}

func TestGrantIsIdempotentPerOrder(t *testing.T) {
	store := newMemGrantStore()
	emitter := &recordingEmitter{}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGrantor(store, emitter, 365*24*time.Hour).WithNow(func() time.Time { return now })

	userID := uuid.New()
	store.premium[userID] = nil
	orderID := uuid.New()

	first, granted, err := g.Grant(context.Background(), orderID, userID)
	require.NoError(t, err)
	require.True(t, granted)

	second, granted, err := g.Grant(context.Background(), orderID, userID)
	require.NoError(t, err)
	require.False(t, granted)
	require.Equal(t, first, second)
	require.Equal(t, []string{events.TopicEntitlementGranted}, emitter.topics)
}

func TestStatusReportsActiveWindow(t *testing.T) {
	store := newMemGrantStore()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewGrantor(store, nil, time.Hour).WithNow(func() time.Time { return now })

	userID := uuid.New()
	store.premium[userID] = nil

	status, err := g.Status(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, status.Premium)

	future := now.Add(time.Hour)
	store.premium[userID] = &future
	status, err = g.Status(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, status.Premium)
	require.Equal(t, &future, status.PremiumUntil)

	past := now.Add(-time.Minute)
	store.premium[userID] = &past
	status, err = g.Status(context.Background(), userID)
	require.NoError(t, err)
	require.False(t, status.Premium)
}

func TestEnqueuerFiltersEvents(t *testing.T) {
	e := Enqueuer{}
	payload := []byte(`{"userId":"` + uuid.NewString() + `","grantsPremiumAccess":true}`)

	err := e.Notify(context.Background(), events.DomainEvent{Topic: events.TopicOrderCreated, AggregateID: uuid.New(), Payload: payload})
	require.NoError(t, err)

	// nil client means the notifier is inert, even for matching topics.
	err = e.Notify(context.Background(), events.DomainEvent{Topic: events.TopicOrderPaid, AggregateID: uuid.New(), Payload: payload})
	require.NoError(t, err)
}
