package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/elitegames/backend-store/internal/events"
)

// TaskTypeGrant is the asynq task type for premium access grants.
const TaskTypeGrant = "entitlement:grant"

type grantTaskPayload struct {
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
}

// NewGrantTask builds the asynq task for a paid order. The task id pins
// enqueueing to once per order.
func NewGrantTask(orderID, userID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(grantTaskPayload{OrderID: orderID.String(), UserID: userID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGrant, payload,
		asynq.TaskID(fmt.Sprintf("%s:%s", TaskTypeGrant, orderID)),
		asynq.MaxRetry(5),
	), nil
}

// Enqueuer schedules grant tasks for paid orders that earn premium access.
// It plugs into the event bus as a notifier.
type Enqueuer struct {
	Client *asynq.Client
	Log    zerolog.Logger
}

// Notify enqueues a grant task when a paid order carries premium access.
func (e Enqueuer) Notify(ctx context.Context, event events.DomainEvent) error {
	if event.Topic != events.TopicOrderPaid || e.Client == nil {
		return nil
	}
	var payload struct {
		UserID              string `json:"userId"`
		GrantsPremiumAccess bool   `json:"grantsPremiumAccess"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("entitlement: decode %s payload: %w", event.Topic, err)
	}
	if !payload.GrantsPremiumAccess {
		return nil
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("entitlement: invalid user id in %s payload: %w", event.Topic, err)
	}
	task, err := NewGrantTask(event.AggregateID, userID)
	if err != nil {
		return err
	}
	if _, err := e.Client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	e.Log.Info().Str("order_id", event.AggregateID.String()).Msg("entitlement grant enqueued")
	return nil
}

// Worker consumes grant tasks.
type Worker struct {
	Grantor *Grantor
	Log     zerolog.Logger
}

// ProcessTask applies the grant for the order carried by the task.
func (w Worker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload grantTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("entitlement: decode task payload: %w", err)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("entitlement: invalid order id: %w", err)
	}
	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return fmt.Errorf("entitlement: invalid user id: %w", err)
	}
	until, granted, err := w.Grantor.Grant(ctx, orderID, userID)
	if err != nil {
		return err
	}
	evt := w.Log.Info().Str("order_id", payload.OrderID).Str("user_id", payload.UserID).Time("premium_until", until)
	if granted {
		evt.Msg("premium access granted")
	} else {
		evt.Msg("premium access already granted")
	}
	return nil
}
