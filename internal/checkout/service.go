package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/elitegames/backend-store/internal/common"
	"github.com/elitegames/backend-store/internal/events"
	"github.com/elitegames/backend-store/internal/obs"
	"github.com/elitegames/backend-store/internal/order"
	"github.com/elitegames/backend-store/internal/pricing"
)

type snapshotter interface {
	Snapshot(ctx context.Context, ids []string) (pricing.LookupFn, error)
}

type configProvider interface {
	PricingConfig(ctx context.Context) (pricing.Config, error)
}

type orderPersister interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, topic string, aggregateID uuid.UUID, payload any) (events.DomainEvent, error)
}

// Service prices carts and turns accepted carts into orders.
type Service struct {
	catalog snapshotter
	shop    configProvider
	orders  orderPersister
	bus     eventEmitter
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Catalog snapshotter
	Shop    configProvider
	Orders  orderPersister
	Bus     eventEmitter
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("checkout: catalog is required")
	}
	if cfg.Shop == nil {
		return nil, errors.New("checkout: shop config is required")
	}
	return &Service{catalog: cfg.Catalog, shop: cfg.Shop, orders: cfg.Orders, bus: cfg.Bus}, nil
}

// CartItem is one requested cart line.
type CartItem struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// Quote is the computed pricing payload returned without side effects.
type Quote struct {
	Items               []QuoteItem `json:"items"`
	Subtotal            int64       `json:"subtotal"`
	Shipping            int64       `json:"shipping"`
	Tax                 int64       `json:"tax"`
	Total               int64       `json:"total"`
	Currency            string      `json:"currency"`
	BoardGameCount      int         `json:"boardGameCount"`
	GrantsPremiumAccess bool        `json:"grantsPremiumAccess"`
}

// QuoteItem is one priced quote line.
type QuoteItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	Total     int64  `json:"total"`
}

// ComputeQuote prices the cart without creating anything.
func (s *Service) ComputeQuote(ctx context.Context, items []CartItem) (Quote, error) {
	result, err := s.price(ctx, items)
	if err != nil {
		return Quote{}, err
	}
	return toQuote(result), nil
}

// CreateOrder prices the cart and persists it as a pending order.
func (s *Service) CreateOrder(ctx context.Context, userID string, items []CartItem) (order.DTO, error) {
	uid, err := uuid.Parse(strings.TrimSpace(userID))
	if err != nil {
		return order.DTO{}, &common.AppError{
			Code:       "UNAUTHORIZED",
			Message:    "unauthorized",
			HTTPStatus: http.StatusUnauthorized,
			Err:        err,
		}
	}
	if s.orders == nil {
		return order.DTO{}, errors.New("checkout: order persister not configured")
	}

	result, err := s.price(ctx, items)
	if err != nil {
		return order.DTO{}, err
	}

	o := order.Order{
		UserID:              uid,
		Status:              order.StatusPendingPayment,
		Subtotal:            int64(result.Subtotal),
		Shipping:            int64(result.Shipping),
		Tax:                 int64(result.Tax),
		Total:               int64(result.Total),
		Currency:            result.Currency,
		BoardGameCount:      result.BoardGameCount,
		GrantsPremiumAccess: result.GrantsPremiumAccess,
	}
	for _, line := range result.Items {
		productID, err := uuid.Parse(line.ProductID)
		if err != nil {
			return order.DTO{}, fmt.Errorf("checkout: invalid product id %q: %w", line.ProductID, err)
		}
		o.Items = append(o.Items, order.Item{
			ProductID:   productID,
			ProductName: line.Product.Name,
			Qty:         line.Qty,
			UnitPrice:   int64(line.UnitPrice),
			Total:       int64(line.Total),
		})
	}

	stored, err := s.orders.CreateOrder(ctx, o)
	if err != nil {
		return order.DTO{}, err
	}
	if s.bus != nil {
		_, _ = s.bus.Emit(ctx, events.TopicOrderCreated, stored.ID, map[string]any{
			"orderId":             stored.ID.String(),
			"userId":              stored.UserID.String(),
			"total":               stored.Total,
			"currency":            stored.Currency,
			"grantsPremiumAccess": stored.GrantsPremiumAccess,
		})
	}
	return order.ToDTO(stored), nil
}

func (s *Service) price(ctx context.Context, items []CartItem) (pricing.Result, error) {
	cart := make([]pricing.CartItem, 0, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		cart = append(cart, pricing.CartItem{ProductID: item.ProductID, Qty: item.Quantity})
		ids = append(ids, item.ProductID)
	}
	lookup, err := s.catalog.Snapshot(ctx, ids)
	if err != nil {
		return pricing.Result{}, err
	}
	cfg, err := s.shop.PricingConfig(ctx)
	if err != nil {
		return pricing.Result{}, err
	}
	start := time.Now()
	result, err := pricing.Compute(cart, lookup, cfg)
	if obs.PricingComputeDuration != nil {
		obs.PricingComputeDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		return pricing.Result{}, mapPricingError(err)
	}
	return result, nil
}

func mapPricingError(err error) error {
	if productID, ok := pricing.IsUnavailable(err); ok {
		return &common.AppError{
			Code:       "PRODUCT_UNAVAILABLE",
			Message:    "product is unavailable",
			HTTPStatus: http.StatusConflict,
			Err:        err,
			Details:    map[string]any{"productId": productID},
		}
	}
	if pricing.IsValidation(err) {
		return &common.AppError{
			Code:       "VALIDATION_ERROR",
			Message:    err.Error(),
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	}
	return err
}

func toQuote(result pricing.Result) Quote {
	q := Quote{
		Subtotal:            int64(result.Subtotal),
		Shipping:            int64(result.Shipping),
		Tax:                 int64(result.Tax),
		Total:               int64(result.Total),
		Currency:            result.Currency,
		BoardGameCount:      result.BoardGameCount,
		GrantsPremiumAccess: result.GrantsPremiumAccess,
	}
	for _, line := range result.Items {
		q.Items = append(q.Items, QuoteItem{
			ProductID: line.ProductID,
			Name:      line.Product.Name,
			Quantity:  line.Qty,
			UnitPrice: int64(line.UnitPrice),
			Total:     int64(line.Total),
		})
	}
	return q
}

// TxOrderPersister persists orders inside a transaction so the header and
// its items land atomically.
type TxOrderPersister struct {
	Pool *pgxpool.Pool
}

// CreateOrder implements orderPersister on top of Postgres.
func (p TxOrderPersister) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return order.Order{}, fmt.Errorf("begin checkout tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored, err := order.NewStore(tx).Create(ctx, o)
	if err != nil {
		return order.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("commit checkout tx: %w", err)
	}
	return stored, nil
}
