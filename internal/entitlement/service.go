package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/elitegames/backend-store/internal/events"
	"github.com/elitegames/backend-store/internal/obs"
)

type grantStore interface {
	Grant(ctx context.Context, orderID, userID uuid.UUID, now time.Time, d time.Duration) (time.Time, bool, error)
	PremiumUntil(ctx context.Context, userID uuid.UUID) (*time.Time, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.DomainEvent, error)
}

// Grantor applies premium access grants earned by paid orders.
type Grantor struct {
	store    grantStore
	events   eventEmitter
	duration time.Duration
	now      func() time.Time
}

func NewGrantor(store grantStore, bus eventEmitter, duration time.Duration) *Grantor {
	return &Grantor{store: store, events: bus, duration: duration, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (g *Grantor) WithNow(now func() time.Time) *Grantor {
	g.now = now
	return g
}

// Grant extends the user's premium window for the given order. Repeat grants
// for the same order are no-ops and return the original expiry.
func (g *Grantor) Grant(ctx context.Context, orderID, userID uuid.UUID) (time.Time, bool, error) {
	until, granted, err := g.store.Grant(ctx, orderID, userID, g.now(), g.duration)
	if err != nil {
		g.count("error")
		return time.Time{}, false, err
	}
	if !granted {
		g.count("duplicate")
		return until, false, nil
	}
	g.count("granted")
	if g.events != nil {
		_, _ = g.events.Emit(ctx, events.TopicEntitlementGranted, orderID, map[string]any{
			"orderId":      orderID.String(),
			"userId":       userID.String(),
			"premiumUntil": until.UTC().Format(time.RFC3339),
		})
	}
	return until, true, nil
}

// StatusDTO reports a user's premium standing.
type StatusDTO struct {
	Premium      bool       `json:"premium"`
	PremiumUntil *time.Time `json:"premiumUntil,omitempty"`
}

// Status returns whether the user currently holds premium access.
func (g *Grantor) Status(ctx context.Context, userID uuid.UUID) (StatusDTO, error) {
	until, err := g.store.PremiumUntil(ctx, userID)
	if err != nil {
		return StatusDTO{}, err
	}
	if until == nil || !until.After(g.now()) {
		return StatusDTO{Premium: false, PremiumUntil: until}, nil
	}
	return StatusDTO{Premium: true, PremiumUntil: until}, nil
}

func (g *Grantor) count(result string) {
	if obs.EntitlementGrantsTotal == nil {
		return
	}
	obs.EntitlementGrantsTotal.WithLabelValues(result).Inc()
}
