package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the settings row has not been seeded yet.
var ErrNotFound = errors.New("shop: settings not found")

// Settings is the persisted singleton configuration row. All amounts are
// minor units, tax is basis points.
type Settings struct {
	FirstBoardGamePrice      int64
	AdditionalBoardGamePrice int64
	FreeShippingThreshold    int64
	StandardShippingCost     int64
	TaxRateBps               int
	Currency                 string
	UpdatedAt                time.Time
}

// Store persists the shop settings in Postgres. A single row with id=1 is
// enforced by the schema.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get loads the settings row.
func (s *Store) Get(ctx context.Context) (Settings, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT first_board_game_price, additional_board_game_price,
		       free_shipping_threshold, standard_shipping_cost,
		       tax_rate_bps, currency, updated_at
		FROM shop_settings WHERE id = 1`)
	var out Settings
	err := row.Scan(
		&out.FirstBoardGamePrice, &out.AdditionalBoardGamePrice,
		&out.FreeShippingThreshold, &out.StandardShippingCost,
		&out.TaxRateBps, &out.Currency, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("get shop settings: %w", err)
	}
	return out, nil
}

// Upsert writes the settings row, creating it when absent.
func (s *Store) Upsert(ctx context.Context, in Settings) (Settings, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO shop_settings (
			id, first_board_game_price, additional_board_game_price,
			free_shipping_threshold, standard_shipping_cost, tax_rate_bps, currency
		)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			first_board_game_price = EXCLUDED.first_board_game_price,
			additional_board_game_price = EXCLUDED.additional_board_game_price,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold,
			standard_shipping_cost = EXCLUDED.standard_shipping_cost,
			tax_rate_bps = EXCLUDED.tax_rate_bps,
			currency = EXCLUDED.currency,
			updated_at = now()
		RETURNING first_board_game_price, additional_board_game_price,
		          free_shipping_threshold, standard_shipping_cost,
		          tax_rate_bps, currency, updated_at`,
		in.FirstBoardGamePrice, in.AdditionalBoardGamePrice,
		in.FreeShippingThreshold, in.StandardShippingCost,
		in.TaxRateBps, in.Currency,
	)
	var out Settings
	err := row.Scan(
		&out.FirstBoardGamePrice, &out.AdditionalBoardGamePrice,
		&out.FreeShippingThreshold, &out.StandardShippingCost,
		&out.TaxRateBps, &out.Currency, &out.UpdatedAt,
	)
	if err != nil {
		return Settings{}, fmt.Errorf("upsert shop settings: %w", err)
	}
	return out, nil
}
