package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/marketloop/chat-service/internal/model"
	"github.com/marketloop/chat-service/internal/store"
)

// Messages returns the message ledger port view of the store.
func (s *Store) Messages() store.MessageStore { return &messageStore{s} }

type messageStore struct{ s *Store }

const messageColumns = `id, conversation_id, sender_id, sender_name, kind, content, attachments, reply_to_id, created_at, edited_at, edited, deleted_at`

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		msg         model.Message
		attachments []byte
		replyTo     *string
	)
	err := row.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &msg.Kind,
		&msg.Content, &attachments, &replyTo, &msg.CreatedAt, &msg.EditedAt, &msg.Edited, &msg.DeletedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, err
		}
	}
	if replyTo != nil {
		msg.ReplyToID = *replyTo
	}
	return &msg, nil
}

func marshalAttachments(atts []model.Attachment) ([]byte, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	return json.Marshal(atts)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (st *messageStore) Append(ctx context.Context, msg *model.Message) error {
	attachments, err := marshalAttachments(msg.Attachments)
	if err != nil {
		return err
	}
	_, err = st.s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, kind, content, attachments, reply_to_id, created_at, edited, edited_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE, NULL, NULL)
	`, msg.ID, msg.ConversationID, msg.SenderID, msg.SenderName, msg.Kind, msg.Content,
		attachments, nullable(msg.ReplyToID), msg.CreatedAt)
	return err
}

func (st *messageStore) Get(ctx context.Context, id string) (*model.Message, error) {
	msg, err := scanMessage(st.s.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := st.loadReceipts(ctx, []*model.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (st *messageStore) Update(ctx context.Context, msg *model.Message) error {
	attachments, err := marshalAttachments(msg.Attachments)
	if err != nil {
		return err
	}
	ct, err := st.s.pool.Exec(ctx, `
		UPDATE messages
		SET content = $2, attachments = $3, reply_to_id = $4, edited = $5, edited_at = $6, deleted_at = $7
		WHERE id = $1
	`, msg.ID, msg.Content, attachments, nullable(msg.ReplyToID), msg.Edited, msg.EditedAt, msg.DeletedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (st *messageStore) List(ctx context.Context, conversationID string, q store.MessageQuery) ([]*model.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		rows pgx.Rows
		err  error
		// keyset windows over the (created_at, id) index; newest-first
		// windows are reversed below so callers always see ascending order
		descending bool
	)
	switch {
	case q.Before != nil && q.BeforeID != "":
		descending = true
		rows, err = st.s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND deleted_at IS NULL AND (created_at, id) < ($2, $3::uuid)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, conversationID, *q.Before, q.BeforeID, limit)
	case q.Before != nil:
		descending = true
		rows, err = st.s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND deleted_at IS NULL AND created_at < $2
			ORDER BY created_at DESC, id DESC
			LIMIT $3
		`, conversationID, *q.Before, limit)
	case q.After != nil && q.AfterID != "":
		rows, err = st.s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND deleted_at IS NULL AND (created_at, id) > ($2, $3::uuid)
			ORDER BY created_at, id
			LIMIT $4
		`, conversationID, *q.After, q.AfterID, limit)
	case q.After != nil:
		rows, err = st.s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND deleted_at IS NULL AND created_at > $2
			ORDER BY created_at, id
			LIMIT $3
		`, conversationID, *q.After, limit)
	default:
		descending = true
		rows, err = st.s.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND deleted_at IS NULL
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, conversationID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}

	if err := st.loadReceipts(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (st *messageStore) Latest(ctx context.Context, conversationID string) (*model.Message, error) {
	msg, err := scanMessage(st.s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, conversationID))
	if err != nil {
		return nil, err
	}
	if err := st.loadReceipts(ctx, []*model.Message{msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

func (st *messageStore) Count(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := st.s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND deleted_at IS NULL
	`, conversationID).Scan(&count)
	return count, err
}

func (st *messageStore) CountAfter(ctx context.Context, conversationID string, ts time.Time) (int, error) {
	var count int
	err := st.s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE conversation_id = $1 AND deleted_at IS NULL AND created_at > $2
	`, conversationID, ts).Scan(&count)
	return count, err
}

func (st *messageStore) UpsertReceipt(ctx context.Context, messageID string, receipt model.ReadReceipt) error {
	_, err := st.s.pool.Exec(ctx, `
		INSERT INTO message_read_status (message_id, user_id, display_name, read_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id)
		DO UPDATE SET read_at = EXCLUDED.read_at, display_name = EXCLUDED.display_name
	`, messageID, receipt.UserID, receipt.DisplayName, receipt.ReadAt)
	return err
}

// loadReceipts fills the materialized read-by lists for the given
// messages with one query.
func (st *messageStore) loadReceipts(ctx context.Context, msgs []*model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ids := make([]string, len(msgs))
	byID := make(map[string]*model.Message, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
		byID[msg.ID] = msg
	}

	rows, err := st.s.pool.Query(ctx, `
		SELECT message_id, user_id, display_name, read_at
		FROM message_read_status
		WHERE message_id = ANY($1)
		ORDER BY read_at
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			messageID string
			receipt   model.ReadReceipt
		)
		if err := rows.Scan(&messageID, &receipt.UserID, &receipt.DisplayName, &receipt.ReadAt); err != nil {
			return err
		}
		if msg := byID[messageID]; msg != nil {
			msg.ReadBy = append(msg.ReadBy, receipt)
		}
	}
	return rows.Err()
}
