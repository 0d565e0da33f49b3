package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

// Memberships returns the membership port view of the store.
func (s *Store) Memberships() store.MembershipStore { return &membershipStore{s} }

type membershipStore struct{ s *Store }

const membershipColumns = `id, conversation_id, user_id, role, last_read_at, muted, joined_at`

func scanMembership(row pgx.Row) (*model.Membership, error) {
	var m model.Membership
	err := row.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.LastReadAt, &m.Muted, &m.JoinedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &m, nil
}

func (st *membershipStore) Get(ctx context.Context, conversationID, userID string) (*model.Membership, error) {
	row := st.s.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM conversation_membership
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	return scanMembership(row)
}

func (st *membershipStore) list(ctx context.Context, query string, arg any) ([]*model.Membership, error) {
	rows, err := st.s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (st *membershipStore) ListByConversation(ctx context.Context, conversationID string) ([]*model.Membership, error) {
	return st.list(ctx, `
		SELECT `+membershipColumns+` FROM conversation_membership
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id
	`, conversationID)
}

func (st *membershipStore) ListByUser(ctx context.Context, userID string) ([]*model.Membership, error) {
	return st.list(ctx, `
		SELECT `+membershipColumns+` FROM conversation_membership
		WHERE user_id = $1
	`, userID)
}

func (st *membershipStore) Count(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := st.s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM conversation_membership WHERE conversation_id = $1
	`, conversationID).Scan(&count)
	return count, err
}

func (st *membershipStore) SetMuted(ctx context.Context, conversationID, userID string, muted bool) error {
	ct, err := st.s.pool.Exec(ctx, `
		UPDATE conversation_membership SET muted = $3
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, muted)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *membershipStore) AdvanceLastRead(ctx context.Context, conversationID, userID string, ts time.Time) (bool, error) {
	// Conditional update: concurrent acks converge to the highest
	// timestamp and never regress.
	ct, err := st.s.pool.Exec(ctx, `
		UPDATE conversation_membership SET last_read_at = $3
		WHERE conversation_id = $1 AND user_id = $2 AND last_read_at < $3
	`, conversationID, userID, ts)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}

	// Distinguish a stale ack (no-op) from a missing membership row.
	var exists bool
	err = st.s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_membership
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, store.ErrNotFound
	}
	return false, nil
}
