package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	user_id   TEXT PRIMARY KEY,
	nonce     TEXT,
	issued_at INTEGER,
	jwt_token TEXT
)`

// SQLiteStore is the single-file variant of PostgresStore. issued_at is stored as
// unix nanoseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer keeps compare-and-delete serialised.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	// Databases created before jwt_token existed get the column added in place.
	var columns int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('users') WHERE name = 'jwt_token'`,
	).Scan(&columns)
	if err != nil {
		return fmt.Errorf("failed to inspect users table: %w", err)
	}
	if columns == 0 {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE users ADD COLUMN jwt_token TEXT`); err != nil {
			return fmt.Errorf("failed to add jwt_token column: %w", err)
		}
	}
	return nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertNonce inserts the identity row or replaces its nonce.
func (s *SQLiteStore) UpsertNonce(ctx context.Context, identity core.Identity, nonce core.Nonce) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, nonce, issued_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET nonce = excluded.nonce, issued_at = excluded.issued_at`,
		identity.String(), nonce.Value, nonce.IssuedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// GetNonce returns the outstanding nonce, or core.ErrNonceNotFound.
func (s *SQLiteStore) GetNonce(ctx context.Context, identity core.Identity) (core.Nonce, error) {
	var (
		value    string
		issuedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT nonce, issued_at FROM users WHERE user_id = ? AND nonce IS NOT NULL`,
		identity.String(),
	).Scan(&value, &issuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Nonce{}, core.ErrNonceNotFound
	}
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to load nonce: %w", err)
	}
	return core.Nonce{Value: value, IssuedAt: time.Unix(0, issuedAt).UTC()}, nil
}

// ConsumeNonce clears the nonce and stores token in one guarded UPDATE.
func (s *SQLiteStore) ConsumeNonce(ctx context.Context, identity core.Identity, value, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET nonce = NULL, issued_at = NULL, jwt_token = ? WHERE user_id = ? AND nonce = ?`,
		token, identity.String(), value,
	)
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume nonce: %w", err)
	}
	if n == 0 {
		return core.ErrNonceNotFound
	}
	return nil
}

// RecordToken stores token on the identity row without touching the nonce.
func (s *SQLiteStore) RecordToken(ctx context.Context, identity core.Identity, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET jwt_token = ? WHERE user_id = ?`,
		token, identity.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record token: %w", err)
	}
	if n == 0 {
		return core.ErrNonceNotFound
	}
	return nil
}

// LastToken returns the stored jwt_token for identity, or "" when none is set.
func (s *SQLiteStore) LastToken(ctx context.Context, identity core.Identity) (string, error) {
	var token sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT jwt_token FROM users WHERE user_id = ?`, identity.String(),
	).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", core.ErrNonceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return token.String, nil
}

var _ ports.NonceStore = (*SQLiteStore)(nil)
