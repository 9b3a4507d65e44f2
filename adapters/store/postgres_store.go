package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id   TEXT PRIMARY KEY,
	nonce     TEXT,
	issued_at TIMESTAMPTZ,
	jwt_token TEXT
)`

const postgresAddTokenColumn = `ALTER TABLE users ADD COLUMN IF NOT EXISTS jwt_token TEXT`

// PostgresStore keeps one row per identity in the users table. A consumed nonce
// leaves the row with a NULL nonce and the issued token in jwt_token.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and verifies the connection.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the users table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, postgresAddTokenColumn); err != nil {
		return fmt.Errorf("failed to add jwt_token column: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// UpsertNonce inserts the identity row or replaces its nonce.
func (s *PostgresStore) UpsertNonce(ctx context.Context, identity core.Identity, nonce core.Nonce) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, nonce, issued_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET nonce = EXCLUDED.nonce, issued_at = EXCLUDED.issued_at`,
		identity.String(), nonce.Value, nonce.IssuedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// GetNonce returns the outstanding nonce, or core.ErrNonceNotFound when the row
// is missing or already consumed.
func (s *PostgresStore) GetNonce(ctx context.Context, identity core.Identity) (core.Nonce, error) {
	var nonce core.Nonce
	err := s.pool.QueryRow(ctx,
		`SELECT nonce, issued_at FROM users WHERE user_id = $1 AND nonce IS NOT NULL`,
		identity.String(),
	).Scan(&nonce.Value, &nonce.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to load nonce: %w", err)
	}
	nonce.IssuedAt = nonce.IssuedAt.UTC()
	return nonce, nil
}

// ConsumeNonce clears the nonce and stores token in a single UPDATE guarded by
// the expected nonce value.
func (s *PostgresStore) ConsumeNonce(ctx context.Context, identity core.Identity, value, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET nonce = NULL, issued_at = NULL, jwt_token = $3 WHERE user_id = $1 AND nonce = $2`,
		identity.String(), value, token,
	)
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNonceNotFound
	}
	return nil
}

// RecordToken stores token on the identity row without touching the nonce.
func (s *PostgresStore) RecordToken(ctx context.Context, identity core.Identity, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET jwt_token = $2 WHERE user_id = $1`,
		identity.String(), token,
	)
	if err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNonceNotFound
	}
	return nil
}

// LastToken returns the stored jwt_token for identity, or "" when none is set.
func (s *PostgresStore) LastToken(ctx context.Context, identity core.Identity) (string, error) {
	var token *string
	err := s.pool.QueryRow(ctx, `SELECT jwt_token FROM users WHERE user_id = $1`, identity.String()).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", core.ErrNonceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		return "", nil
	}
	return *token, nil
}

var _ ports.NonceStore = (*PostgresStore)(nil)
