package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/module/chat/model"

	pkgerrors "github.com/pkg/errors"
)

func (s *Store) FindDirect(ctx context.Context, dmKey string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, is_group, dm_key, created_at FROM conversations WHERE dm_key = ?`, dmKey)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, pkgerrors.WithMessagef(err, "find direct %q", dmKey)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, conversationID string) (*model.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, is_group, dm_key, created_at FROM conversations WHERE id = ?`, conversationID)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, pkgerrors.WithMessagef(err, "get conversation %q", conversationID)
	}
	return conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *model.Conversation, members []string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, is_group, dm_key, created_at) VALUES (?, ?, ?, ?)`,
			conv.ID, boolToInt(conv.IsGroup), nullString(conv.DMKey), toMicros(conv.CreatedAt),
		); err != nil {
			return err
		}
		for _, uid := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id) VALUES (?, ?)`,
				conv.ID, uid,
			); err != nil {
				return err
			}
		}
		return nil
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
	var lastRead sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_read_at FROM conversation_participants WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID,
	).Scan(&lastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get participant %q/%q", conversationID, userID)
	}
	return &model.Participant{ConversationID: conversationID, UserID: userID, LastReadAt: timePtr(lastRead)}, nil
}

func (s *Store) ListParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, last_read_at FROM conversation_participants WHERE conversation_id = ? ORDER BY user_id`,
		conversationID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list participants %q", conversationID)
	}
	defer rows.Close()

	var out []model.Participant
	for rows.Next() {
		p := model.Participant{ConversationID: conversationID}
		var lastRead sql.NullInt64
		if err := rows.Scan(&p.UserID, &lastRead); err != nil {
			return nil, pkgerrors.Wrap(err, "scan participant")
		}
		p.LastReadAt = timePtr(lastRead)
		out = append(out, p)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate participants")
}

func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		created := toMicros(msg.CreatedAt)
		res, err := tx.ExecContext(ctx, advanceLastReadSQL, created, created, msg.ConversationID, msg.SenderID)
		if err != nil {
			return pkgerrors.Wrap(err, "advance sender last_read_at")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return database.ErrNotFound
		}
		res, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, sender_id, content, attachment_url, created_at, edited_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.SenderID, nullString(msg.Content), nullString(msg.AttachmentURL),
			created, nullMicros(msg.EditedAt),
		)
		if err != nil {
			return pkgerrors.Wrapf(err, "insert message %q", msg.ID)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return pkgerrors.Wrap(err, "message seq")
		}
		msg.Seq = seq
		return nil
	})
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, conversation_id, sender_id, content, attachment_url, created_at, edited_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at DESC, seq DESC
		 LIMIT ? OFFSET ?`,
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

func (s *Store) ListConversationStates(ctx context.Context, userID string) ([]model.ConversationState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.is_group, c.dm_key, c.created_at, p.last_read_at
		 FROM conversation_participants p
		 JOIN conversations c ON c.id = p.conversation_id
		 WHERE p.user_id = ?`, userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list conversations of %q", userID)
	}
	var states []model.ConversationState
	for rows.Next() {
		var (
			st       model.ConversationState
			isGroup  int
			dmKey    sql.NullString
			created  int64
			lastRead sql.NullInt64
		)
		if err := rows.Scan(&st.Conversation.ID, &isGroup, &dmKey, &created, &lastRead); err != nil {
			_ = rows.Close()
			return nil, pkgerrors.Wrap(err, "scan conversation state")
		}
		st.Conversation.IsGroup = isGroup != 0
		st.Conversation.DMKey = dmKey.String
		st.Conversation.CreatedAt = fromMicros(created)
		st.LastReadAt = timePtr(lastRead)
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, pkgerrors.Wrap(err, "iterate conversation states")
	}
	// 单连接：必须先关掉游标再发起后续查询
	_ = rows.Close()

	for i := range states {
		id := states[i].Conversation.ID
		others, err := s.otherParticipants(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		states[i].OtherUserIDs = others

		latest, err := s.ListMessages(ctx, id, 0, 1)
		if err != nil {
			return nil, err
		}
		if len(latest) > 0 {
			states[i].Latest = &latest[0]
		}
	}
	return states, nil
}

func (s *Store) otherParticipants(ctx context.Context, conversationID, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = ? AND user_id <> ? ORDER BY user_id`,
		conversationID, userID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list other participants %q", conversationID)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, pkgerrors.Wrap(err, "scan participant id")
		}
		out = append(out, uid)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate participant ids")
}

const advanceLastReadSQL = `UPDATE conversation_participants
SET last_read_at = CASE WHEN last_read_at IS NULL OR last_read_at < ? THEN ? ELSE last_read_at END
WHERE conversation_id = ? AND user_id = ?`

func (s *Store) AdvanceLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	v := toMicros(at)
	res, err := s.db.ExecContext(ctx, advanceLastReadSQL, v, v, conversationID, userID)
	if err != nil {
		return pkgerrors.Wrapf(err, "advance last_read_at %q/%q", conversationID, userID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner) (*model.Conversation, error) {
	var (
		c       model.Conversation
		isGroup int
		dmKey   sql.NullString
		created int64
	)
	if err := row.Scan(&c.ID, &isGroup, &dmKey, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, pkgerrors.Wrap(err, "scan conversation")
	}
	c.IsGroup = isGroup != 0
	c.DMKey = dmKey.String
	c.CreatedAt = fromMicros(created)
	return &c, nil
}

func scanMessage(row scanner) (*model.Message, error) {
	var (
		m          model.Message
		content    sql.NullString
		attachment sql.NullString
		created    int64
		edited     sql.NullInt64
	)
	if err := row.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &content, &attachment, &created, &edited); err != nil {
		return nil, pkgerrors.Wrap(err, "scan message")
	}
	m.Content = content.String
	m.AttachmentURL = attachment.String
	m.CreatedAt = fromMicros(created)
	m.EditedAt = timePtr(edited)
	return &m, nil
}
