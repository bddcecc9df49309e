package entitlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when the user does not exist.
var ErrNotFound = errors.New("entitlement: user not found")

// Store persists premium access grants on top of PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Grant extends the user's premium window by d, counted from whichever is
// later of now and the current expiry. Each order grants at most once: a
// repeat call for the same order returns the recorded expiry with
// granted=false.
func (s *Store) Grant(ctx context.Context, orderID, userID uuid.UUID, now time.Time, d time.Duration) (time.Time, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO entitlement_grants (order_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (order_id) DO NOTHING`, orderID, userID)
	if err != nil {
		return time.Time{}, false, err
	}
	if tag.RowsAffected() == 0 {
		var until time.Time
		err := tx.QueryRow(ctx, `SELECT granted_until FROM entitlement_grants WHERE order_id = $1`, orderID).Scan(&until)
		if err != nil {
			return time.Time{}, false, err
		}
		return until, false, nil
	}

	var until time.Time
	err = tx.QueryRow(ctx, `
		UPDATE users
		SET premium_until = GREATEST(COALESCE(premium_until, $2::timestamptz), $2::timestamptz) + make_interval(secs => $3::double precision),
		    updated_at = now()
		WHERE id = $1
		RETURNING premium_until`, userID, now.UTC(), d.Seconds()).Scan(&until)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, ErrNotFound
		}
		return time.Time{}, false, err
	}
	if _, err := tx.Exec(ctx, `UPDATE entitlement_grants SET granted_until = $2 WHERE order_id = $1`, orderID, until); err != nil {
		return time.Time{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, false, err
	}
	return until, true, nil
}

// PremiumUntil returns the user's current premium expiry, or nil when the
// user never held premium access.
func (s *Store) PremiumUntil(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	var until *time.Time
	err := s.pool.QueryRow(ctx, `SELECT premium_until FROM users WHERE id = $1`, userID).Scan(&until)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return until, nil
}
