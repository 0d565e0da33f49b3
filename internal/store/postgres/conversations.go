package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

// Conversations returns the conversation port view of the store.
func (s *Store) Conversations() store.ConversationStore { return &conversationStore{s} }

type conversationStore struct{ s *Store }

func insertMembership(ctx context.Context, tx pgx.Tx, m *model.Membership) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO conversation_membership (id, conversation_id, user_id, role, last_read_at, muted, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id, user_id)
		DO UPDATE SET role = EXCLUDED.role, muted = EXCLUDED.muted
	`, m.ID, m.ConversationID, m.UserID, m.Role, m.LastReadAt, m.Muted, m.JoinedAt)
	return err
}

func updateConversationRow(ctx context.Context, tx pgx.Tx, conv *model.Conversation) error {
	var key *string
	if conv.Type == model.ConversationDirect && !conv.Archived {
		k := directKey(conv.MemberIDs[0], conv.MemberIDs[1])
		key = &k
	}
	ct, err := tx.Exec(ctx, `
		UPDATE conversations
		SET title = $2, owner_id = $3, member_ids = $4, admin_ids = $5, archived = $6, direct_key = $7
		WHERE id = $1
	`, conv.ID, conv.Title, conv.OwnerID, conv.MemberIDs, conv.AdminIDs, conv.Archived, key)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (c *conversationStore) Create(ctx context.Context, conv *model.Conversation, members []*model.Membership) error {
	return c.s.withTx(ctx, func(tx pgx.Tx) error {
		var key *string
		if conv.Type == model.ConversationDirect {
			k := directKey(conv.MemberIDs[0], conv.MemberIDs[1])
			key = &k
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO conversations (id, type, title, owner_id, member_ids, admin_ids, created_at, last_message_at, archived, direct_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9)
		`, conv.ID, conv.Type, conv.Title, conv.OwnerID, conv.MemberIDs, conv.AdminIDs, conv.CreatedAt, conv.LastMessageAt, key)
		if err != nil {
			return err
		}
		for _, m := range members {
			if err := insertMembership(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

const conversationColumns = `id, type, title, owner_id, member_ids, admin_ids, created_at, last_message_at, archived`

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var conv model.Conversation
	err := row.Scan(&conv.ID, &conv.Type, &conv.Title, &conv.OwnerID, &conv.MemberIDs,
		&conv.AdminIDs, &conv.CreatedAt, &conv.LastMessageAt, &conv.Archived)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &conv, nil
}

func (c *conversationStore) Get(ctx context.Context, id string) (*model.Conversation, error) {
	row := c.s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (c *conversationStore) FindDirect(ctx context.Context, userA, userB string) (*model.Conversation, error) {
	row := c.s.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE type = 'DIRECT' AND NOT archived AND direct_key = $1
	`, directKey(userA, userB))
	return scanConversation(row)
}

func (c *conversationStore) Update(ctx context.Context, conv *model.Conversation) error {
	return c.s.withTx(ctx, func(tx pgx.Tx) error {
		return updateConversationRow(ctx, tx, conv)
	})
}

func (c *conversationStore) AddMembers(ctx context.Context, conv *model.Conversation, members []*model.Membership) error {
	return c.s.withTx(ctx, func(tx pgx.Tx) error {
		if err := updateConversationRow(ctx, tx, conv); err != nil {
			return err
		}
		for _, m := range members {
			if err := insertMembership(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *conversationStore) RemoveMember(ctx context.Context, conv *model.Conversation, userID string) error {
	return c.s.withTx(ctx, func(tx pgx.Tx) error {
		if err := updateConversationRow(ctx, tx, conv); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			DELETE FROM conversation_membership WHERE conversation_id = $1 AND user_id = $2
		`, conv.ID, userID)
		return err
	})
}

func (c *conversationStore) UpdateRoles(ctx context.Context, conv *model.Conversation, changed ...*model.Membership) error {
	return c.s.withTx(ctx, func(tx pgx.Tx) error {
		if err := updateConversationRow(ctx, tx, conv); err != nil {
			return err
		}
		for _, m := range changed {
			ct, err := tx.Exec(ctx, `
				UPDATE conversation_membership SET role = $3
				WHERE conversation_id = $1 AND user_id = $2
			`, m.ConversationID, m.UserID, m.Role)
			if err != nil {
				return err
			}
			if ct.RowsAffected() == 0 {
				return store.ErrNotFound
			}
		}
		return nil
	})
}

func (c *conversationStore) TouchLastMessageAt(ctx context.Context, id string, ts time.Time) error {
	// Conditional update keeps the timestamp monotonic under concurrent
	// senders; losing the race is a no-op, not an error.
	_, err := c.s.pool.Exec(ctx, `
		UPDATE conversations SET last_message_at = $2
		WHERE id = $1 AND last_message_at < $2
	`, id, ts)
	return err
}

func (c *conversationStore) ListForUser(ctx context.Context, userID string, page, size int) ([]*model.Conversation, int64, error) {
	var total int64
	err := c.s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM conversations c
		JOIN conversation_membership m ON m.conversation_id = c.id
		WHERE m.user_id = $1 AND NOT c.archived
	`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := c.s.pool.Query(ctx, `
		SELECT c.id, c.type, c.title, c.owner_id, c.member_ids, c.admin_ids, c.created_at, c.last_message_at, c.archived
		FROM conversations c
		JOIN conversation_membership m ON m.conversation_id = c.id
		WHERE m.user_id = $1 AND NOT c.archived
		ORDER BY c.last_message_at DESC, c.id DESC
		LIMIT $2 OFFSET $3
	`, userID, size, page*size)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var convs []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, err
		}
		convs = append(convs, conv)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return convs, total, nil
}
