package pg

import (
	"context"
	"errors"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/module/chat/model"

	"github.com/jackc/pgx/v5"
	pkgerrors "github.com/pkg/errors"
)

func (s *Store) FindDirect(ctx context.Context, dmKey string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, is_group, dm_key, created_at FROM conversations WHERE dm_key = $1`, dmKey)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, pkgerrors.WithMessagef(err, "find direct %q", dmKey)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, is_group, dm_key, created_at FROM conversations WHERE id = $1`, conversationID)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, pkgerrors.WithMessagef(err, "get conversation %q", conversationID)
	}
	return conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation, members []string) error {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversations (id, is_group, dm_key, created_at) VALUES ($1, $2, $3, $4)`,
			conv.ID, conv.IsGroup, nullText(conv.DMKey), database.Micros(conv.CreatedAt),
		); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, uid := range members {
			batch.Queue(`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, uid)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.WithMessagef(database.ErrConflict, "create conversation %q", conv.DMKey)
		}
		return pkgerrors.Wrapf(err, "create conversation %q", conv.ID)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, conversationID, userID string) (*model.Participant, error) {
	var lastRead *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT last_read_at FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&lastRead)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get participant %q/%q", conversationID, userID)
	}
	return &model.Participant{ConversationID: conversationID, UserID: userID, LastReadAt: utcPtr(lastRead)}, nil
}

func (s *Store) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, last_read_at FROM conversation_participants WHERE conversation_id = $1 ORDER BY user_id`,
		conversationID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list participants %q", conversationID)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p := model.Participant{ConversationID: conversationID}
		var lastRead *time.Time
		if err := rows.Scan(&p.UserID, &lastRead); err != nil {
			return nil, pkgerrors.Wrap(err, "scan participant")
		}
		p.LastReadAt = utcPtr(lastRead)
		out = append(out, p)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate participants")
}

const advanceLastReadSQL = `UPDATE conversation_participants
SET last_read_at = GREATEST(COALESCE(last_read_at, $1), $1)
WHERE conversation_id = $2 AND user_id = $3`

func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		created := database.Micros(msg.CreatedAt)
		tag, err := tx.Exec(ctx, advanceLastReadSQL, created, msg.ConversationID, msg.SenderID)
		if err != nil {
			return pkgerrors.Wrap(err, "advance sender last_read_at")
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO messages (id, conversation_id, sender_id, content, attachment_url, created_at, edited_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING seq`,
			msg.ID, msg.ConversationID, msg.SenderID, nullText(msg.Content), nullText(msg.AttachmentURL),
			created, msg.EditedAt,
		).Scan(&msg.Seq)
		if err != nil {
			return pkgerrors.Wrapf(err, "insert message %q", msg.ID)
		}
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT seq, id, conversation_id, sender_id, content, attachment_url, created_at, edited_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2 OFFSET $3`,
		conversationID, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list messages %q", conversationID)
	}
	defer rows.Close()

	out := make([]model.Message, 0, limit)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate messages")
}

// ListConversationStates 一条语句带出最后一条消息与对端成员
func (s *Store) ListConversationStates(ctx context.Context, userID string) ([]model.ConversationState, error) {
	rows, err := s.pool.Query(ctx, `
SELECT c.id, c.is_group, c.dm_key, c.created_at, p.last_read_at,
       COALESCE((SELECT array_agg(o.user_id ORDER BY o.user_id)
                 FROM conversation_participants o
                 WHERE o.conversation_id = c.id AND o.user_id <> $1), '{}') AS others,
       m.seq, m.id, m.sender_id, m.content, m.attachment_url, m.created_at, m.edited_at
FROM conversation_participants p
JOIN conversations c ON c.id = p.conversation_id
LEFT JOIN LATERAL (
    SELECT seq, id, sender_id, content, attachment_url, created_at, edited_at
    FROM messages WHERE conversation_id = c.id
    ORDER BY created_at DESC, seq DESC LIMIT 1
) m ON TRUE
WHERE p.user_id = $1`, userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list conversations of %q", userID)
	}
	defer rows.Close()

	var out []model.ConversationState
	for rows.Next() {
		var (
			st         model.ConversationState
			dmKey      *string
			lastRead   *time.Time
			seq        *int64
			msgID      *string
			senderID   *string
			content    *string
			attachment *string
			msgAt      *time.Time
			editedAt   *time.Time
		)
		if err := rows.Scan(&st.Conversation.ID, &st.Conversation.IsGroup, &dmKey, &st.Conversation.CreatedAt,
			&lastRead, &st.OtherUserIDs, &seq, &msgID, &senderID, &content, &attachment, &msgAt, &editedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan conversation state")
		}
		st.Conversation.DMKey = deref(dmKey)
		st.Conversation.CreatedAt = st.Conversation.CreatedAt.UTC()
		st.LastReadAt = utcPtr(lastRead)
		if msgID != nil {
			st.Latest = &model.Message{
				ID:             *msgID,
				ConversationID: st.Conversation.ID,
				SenderID:       deref(senderID),
				Content:        deref(content),
				AttachmentURL:  deref(attachment),
				CreatedAt:      msgAt.UTC(),
				EditedAt:       utcPtr(editedAt),
				Seq:            *seq,
			}
		}
		out = append(out, st)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate conversation states")
}

func (s *Store) AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, advanceLastReadSQL, database.Micros(at), conversationID, userID)
	if err != nil {
		return pkgerrors.Wrapf(err, "advance last_read_at %q/%q", conversationID, userID)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (*model.Conversation, error) {
	var (
		c     model.Conversation
		dmKey *string
	)
	if err := row.Scan(&c.ID, &c.IsGroup, &dmKey, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "scan conversation")
	}
	c.DMKey = deref(dmKey)
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var (
		m          model.Message
		content    *string
		attachment *string
		edited     *time.Time
	)
	if err := row.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &content, &attachment, &m.CreatedAt, &edited); err != nil {
		return nil, pkgerrors.Wrap(err, "scan message")
	}
	m.Content = deref(content)
	m.AttachmentURL = deref(attachment)
	m.CreatedAt = m.CreatedAt.UTC()
	m.EditedAt = utcPtr(edited)
	return &m, nil
}

func nullText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
