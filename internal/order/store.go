package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order: not found")

// Order statuses.
const (
	StatusPendingPayment = "pending_payment"
	StatusPaid           = "paid"
	StatusCanceled       = "canceled"
	StatusFulfilled      = "fulfilled"
)

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPendingPayment, StatusPaid, StatusCanceled, StatusFulfilled:
		return true
	}
	return false
}

// Order is the persisted order header. Amounts are minor units.
type Order struct {
	ID                  uuid.UUID
	UserID              uuid.UUID
	Status              string
	Subtotal            int64
	Shipping            int64
	Tax                 int64
	Total               int64
	Currency            string
	BoardGameCount      int
	GrantsPremiumAccess bool
	Items               []Item
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Item is one priced order line. UnitPrice is the effective price after
// sale and board-game tier overrides.
type Item struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Qty         int
	UnitPrice   int64
	Total       int64
}

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so checkout can persist
// orders inside its own transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists orders in Postgres.
type Store struct {
	db DBTX
}

// NewStore constructs a Store.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a Store bound to the given transaction.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const orderColumns = `id, user_id, status, subtotal, shipping, tax, total, currency, board_game_count, grants_premium_access, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.Shipping, &o.Tax, &o.Total,
		&o.Currency, &o.BoardGameCount, &o.GrantsPremiumAccess, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// Create inserts the order header and its items.
func (s *Store) Create(ctx context.Context, o Order) (Order, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, subtotal, shipping, tax, total, currency, board_game_count, grants_premium_access)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+orderColumns,
		o.UserID, o.Status, o.Subtotal, o.Shipping, o.Tax, o.Total,
		o.Currency, o.BoardGameCount, o.GrantsPremiumAccess,
	)
	stored, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	for _, item := range o.Items {
		var id uuid.UUID
		err := s.db.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, qty, unit_price, total)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			stored.ID, item.ProductID, item.ProductName, item.Qty, item.UnitPrice, item.Total,
		).Scan(&id)
		if err != nil {
			return Order{}, fmt.Errorf("create order item: %w", err)
		}
		item.ID = id
		item.OrderID = stored.ID
		stored.Items = append(stored.Items, item)
	}
	return stored, nil
}

// Get fetches one order with its items.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.db.QueryRow(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	items, err := s.listItems(ctx, id)
	if err != nil {
		return Order{}, err
	}
	o.Items = items
	return o, nil
}

// ListByUser returns a page of the user's orders, newest first, without items.
func (s *Store) ListByUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]Order, int64, error) {
	var total int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders WHERE user_id = $1", userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	rows, err := s.db.Query(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

// UpdateStatus transitions an order to the given status.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (Order, error) {
	row := s.db.QueryRow(ctx,
		"UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 RETURNING "+orderColumns,
		id, status,
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("update order status: %w", err)
	}
	return o, nil
}

// MarkPaidIfPending atomically transitions pending_payment to paid. It
// reports whether the transition happened, so webhook replays are harmless.
func (s *Store) MarkPaidIfPending(ctx context.Context, id uuid.UUID) (Order, bool, error) {
	row := s.db.QueryRow(ctx,
		"UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND status = $3 RETURNING "+orderColumns,
		id, StatusPaid, StatusPendingPayment,
	)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, getErr := s.Get(ctx, id)
		if getErr != nil {
			return Order{}, false, getErr
		}
		return existing, false, nil
	}
	if err != nil {
		return Order{}, false, fmt.Errorf("mark order paid: %w", err)
	}
	return o, true, nil
}

func (s *Store) listItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, qty, unit_price, total
		FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Qty, &item.UnitPrice, &item.Total); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
