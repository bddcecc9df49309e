package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a user or session row does not exist.
var ErrNotFound = errors.New("auth: not found")

// UserRow is the persisted user record.
type UserRow struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionRow is a persisted refresh session. RefreshToken holds the SHA-256
// hash of the opaque token, never the token itself.
type SessionRow struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RefreshToken string
	UserAgent    string
	IP           string
	ExpiresAt    time.Time
}

// Store persists users and refresh sessions in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = "id, name, email, password_hash, roles, created_at, updated_at"

func scanUser(row pgx.Row) (UserRow, error) {
	var u UserRow
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a user with the customer role.
func (s *Store) CreateUser(ctx context.Context, name, email, passwordHash string) (UserRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password_hash, roles)
		VALUES ($1, $2, $3, ARRAY['customer'])
		RETURNING `+userColumns,
		name, email, passwordHash,
	)
	u, err := scanUser(row)
	if err != nil {
		return UserRow{}, err
	}
	return u, nil
}

// GetUserByEmail fetches a user by normalised email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (UserRow, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRow{}, ErrNotFound
	}
	if err != nil {
		return UserRow{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// GetUserByID fetches a user by id.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (UserRow, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRow{}, ErrNotFound
	}
	if err != nil {
		return UserRow{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// CreateSession stores a refresh session.
func (s *Store) CreateSession(ctx context.Context, session SessionRow) (SessionRow, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (user_id, refresh_token, user_agent, ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, refresh_token, user_agent, ip, expires_at`,
		session.UserID, session.RefreshToken, session.UserAgent, session.IP, session.ExpiresAt,
	)
	var out SessionRow
	if err := row.Scan(&out.ID, &out.UserID, &out.RefreshToken, &out.UserAgent, &out.IP, &out.ExpiresAt); err != nil {
		return SessionRow{}, fmt.Errorf("create session: %w", err)
	}
	return out, nil
}

// GetSessionByToken fetches a session by hashed refresh token.
func (s *Store) GetSessionByToken(ctx context.Context, tokenHash string) (SessionRow, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT id, user_id, refresh_token, user_agent, ip, expires_at FROM sessions WHERE refresh_token = $1",
		tokenHash,
	)
	var out SessionRow
	err := row.Scan(&out.ID, &out.UserID, &out.RefreshToken, &out.UserAgent, &out.IP, &out.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRow{}, ErrNotFound
	}
	if err != nil {
		return SessionRow{}, fmt.Errorf("get session by token: %w", err)
	}
	return out, nil
}

// RotateSessionToken replaces the hashed token and expiry on an existing session.
func (s *Store) RotateSessionToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1",
		id, tokenHash, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("rotate session token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSessionByToken revokes a session by hashed refresh token.
func (s *Store) DeleteSessionByToken(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE refresh_token = $1", tokenHash)
	if err != nil {
		return fmt.Errorf("delete session by token: %w", err)
	}
	return nil
}

// DeleteSessionsByUser revokes every session belonging to a user.
func (s *Store) DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM sessions WHERE user_id = $1", userID)
	if err != nil {
		return fmt.Errorf("delete sessions by user: %w", err)
	}
	return nil
}
