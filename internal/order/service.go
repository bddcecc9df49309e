package order

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elitegames/backend-store/internal/common"
	"github.com/elitegames/backend-store/internal/events"
)

type orderStore interface {
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Order, int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Order, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.DomainEvent, error)
}

// Service exposes order reads and lifecycle transitions.
type Service struct {
	store orderStore
	bus   eventEmitter
}

// NewService constructs a Service.
func NewService(store orderStore, bus eventEmitter) (*Service, error) {
	if store == nil {
		return nil, errors.New("order: store is required")
	}
	return &Service{store: store, bus: bus}, nil
}

// DTO is the public order payload.
type DTO struct {
	ID                  string    `json:"id"`
	Status              string    `json:"status"`
	Items               []ItemDTO `json:"items,omitempty"`
	Subtotal            int64     `json:"subtotal"`
	Shipping            int64     `json:"shipping"`
	Tax                 int64     `json:"tax"`
	Total               int64     `json:"total"`
	Currency            string    `json:"currency"`
	BoardGameCount      int       `json:"boardGameCount"`
	GrantsPremiumAccess bool      `json:"grantsPremiumAccess"`
	CreatedAt           time.Time `json:"createdAt"`
}

// ItemDTO is one line of the public order payload.
type ItemDTO struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

// ToDTO converts a stored order to its public payload.
func ToDTO(o Order) DTO {
	dto := DTO{
		ID:                  o.ID.String(),
		Status:              o.Status,
		Subtotal:            o.Subtotal,
		Shipping:            o.Shipping,
		Tax:                 o.Tax,
		Total:               o.Total,
		Currency:            o.Currency,
		BoardGameCount:      o.BoardGameCount,
		GrantsPremiumAccess: o.GrantsPremiumAccess,
		CreatedAt:           o.CreatedAt,
	}
	for _, item := range o.Items {
		dto.Items = append(dto.Items, ItemDTO{
			ProductID: item.ProductID.String(),
			Name:      item.ProductName,
			Quantity:  item.Qty,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}
	return dto
}

// List returns a page of the user's orders.
func (s *Service) List(ctx context.Context, userID string, page, limit int) ([]DTO, int64, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return nil, 0, unauthorized(err)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	rows, total, err := s.store.ListByUser(ctx, uid, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]DTO, 0, len(rows))
	for _, o := range rows {
		out = append(out, ToDTO(o))
	}
	return out, total, nil
}

// Get returns one of the user's orders with items.
func (s *Service) Get(ctx context.Context, userID, orderID string) (DTO, error) {
	o, err := s.loadOwned(ctx, userID, orderID)
	if err != nil {
		return DTO{}, err
	}
	return ToDTO(o), nil
}

// Cancel cancels a pending order. Paid or fulfilled orders cannot be
// canceled by the customer.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (DTO, error) {
	o, err := s.loadOwned(ctx, userID, orderID)
	if err != nil {
		return DTO{}, err
	}
	if o.Status != StatusPendingPayment {
		return DTO{}, &common.AppError{
			Code:       "ORDER_NOT_CANCELABLE",
			Message:    "only pending orders can be canceled",
			HTTPStatus: http.StatusConflict,
		}
	}
	updated, err := s.store.UpdateStatus(ctx, o.ID, StatusCanceled)
	if err != nil {
		return DTO{}, err
	}
	if s.bus != nil {
		_, _ = s.bus.Emit(ctx, events.TopicOrderCanceled, updated.ID, map[string]any{
			"orderId": updated.ID.String(),
			"userId":  updated.UserID.String(),
		})
	}
	updated.Items = o.Items
	return ToDTO(updated), nil
}

// AdminUpdateStatus transitions any order to the given status.
func (s *Service) AdminUpdateStatus(ctx context.Context, orderID, status string) (DTO, error) {
	id, err := uuid.Parse(strings.TrimSpace(orderID))
	if err != nil {
		return DTO{}, badRequest("id", "invalid order id", err)
	}
	if !ValidStatus(status) {
		return DTO{}, badRequest("status", "unknown order status", nil)
	}
	updated, err := s.store.UpdateStatus(ctx, id, status)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DTO{}, notFound(err)
		}
		return DTO{}, err
	}
	return ToDTO(updated), nil
}

func (s *Service) loadOwned(ctx context.Context, userID, orderID string) (Order, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return Order{}, unauthorized(err)
	}
	id, err := uuid.Parse(strings.TrimSpace(orderID))
	if err != nil {
		return Order{}, badRequest("id", "invalid order id", err)
	}
	o, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Order{}, notFound(err)
		}
		return Order{}, err
	}
	if o.UserID != uid {
		// hide existence of other users' orders
		return Order{}, notFound(ErrNotFound)
	}
	return o, nil
}

func badRequest(field, message string, err error) *common.AppError {
	return &common.AppError{
		Code:       "BAD_REQUEST",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"field": field},
	}
}

func notFound(err error) *common.AppError {
	return &common.AppError{
		Code:       "NOT_FOUND",
		Message:    "order not found",
		HTTPStatus: http.StatusNotFound,
		Err:        err,
	}
}

func unauthorized(err error) *common.AppError {
	return &common.AppError{
		Code:       "UNAUTHORIZED",
		Message:    "unauthorized",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}
