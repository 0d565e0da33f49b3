// Package postgres provides pgx-backed store adapters.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marketloop/chat-service/internal/store"
)

// Store bundles the pgx pool behind the three persistence ports.
type Store struct {
	pool *pgxpool.Pool
}

// Connect creates a pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports storage reachability for the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              UUID PRIMARY KEY,
	type            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	owner_id        TEXT NOT NULL DEFAULT '',
	member_ids      TEXT[] NOT NULL,
	admin_ids       TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL,
	last_message_at TIMESTAMPTZ NOT NULL,
	archived        BOOLEAN NOT NULL DEFAULT FALSE,
	direct_key      TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS conversations_direct_unique
	ON conversations (direct_key) WHERE type = 'DIRECT' AND NOT archived;

CREATE TABLE IF NOT EXISTS conversation_membership (
	id              UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	user_id         TEXT NOT NULL,
	role            TEXT NOT NULL,
	last_read_at    TIMESTAMPTZ NOT NULL,
	muted           BOOLEAN NOT NULL DEFAULT FALSE,
	joined_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (conversation_id, user_id)
);
CREATE INDEX IF NOT EXISTS membership_user_idx ON conversation_membership (user_id);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY,
	conversation_id UUID NOT NULL REFERENCES conversations(id),
	sender_id       TEXT NOT NULL,
	sender_name     TEXT NOT NULL,
	kind            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	attachments     JSONB,
	reply_to_id     UUID,
	created_at      TIMESTAMPTZ NOT NULL,
	edited_at       TIMESTAMPTZ,
	edited          BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at      TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS messages_conv_created_idx
	ON messages (conversation_id, created_at, id);

CREATE TABLE IF NOT EXISTS message_read_status (
	message_id   UUID NOT NULL REFERENCES messages(id),
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL,
	read_at      TIMESTAMPTZ NOT NULL,
	UNIQUE (message_id, user_id)
);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func directKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// withTx runs fn in a transaction with rollback on error.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
