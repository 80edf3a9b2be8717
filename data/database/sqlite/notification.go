package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"PPRealtime/data/database"
	"PPRealtime/module/notification/model"

	pkgerrors "github.com/pkg/errors"
)

func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, recipient, sender, type, post_id, comment_id, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Recipient, n.Sender, string(n.Type), nullInt64(n.SubjectPostID), nullInt64(n.SubjectCommentID),
		boolToInt(n.Read), toMicros(n.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return pkgerrors.WithMessagef(database.ErrConflict, "insert notification %d", n.ID)
		}
		return pkgerrors.Wrapf(err, "insert notification %d", n.ID)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, recipient string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = -1 // sqlite: LIMIT -1 不限
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, recipient, sender, type, post_id, comment_id, is_read, created_at
		 FROM notifications WHERE recipient = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, recipient, limit)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list notifications of %q", recipient)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n       model.Notification
			typ     string
			post    sql.NullInt64
			comment sql.NullInt64
			read    int
			created int64
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Sender, &typ, &post, &comment, &read, &created); err != nil {
			return nil, pkgerrors.Wrap(err, "scan notification")
		}
		n.Type = model.Type(typ)
		n.SubjectPostID = int64Ptr(post)
		n.SubjectCommentID = int64Ptr(comment)
		n.Read = read != 0
		n.CreatedAt = fromMicros(created)
		out = append(out, n)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate notifications")
}

func (s *Store) CountUnread(ctx context.Context, recipient string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient = ? AND is_read = 0`, recipient,
	).Scan(&n)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "count unread of %q", recipient)
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, id int64, recipient string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND recipient = ?`, id, recipient)
	if err != nil {
		return pkgerrors.Wrapf(err, "mark notification %d read", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE recipient = ? AND is_read = 0`, recipient)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "mark all read of %q", recipient)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*database.Profile, error) {
	p := database.Profile{UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT username, email, avatar_url FROM user_profiles WHERE user_id = ?`, userID,
	).Scan(&p.Username, &p.Email, &p.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get profile %q", userID)
	}
	return &p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *database.Profile) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, username, email, avatar_url) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET username = excluded.username, email = excluded.email, avatar_url = excluded.avatar_url`,
		p.UserID, p.Username, p.Email, p.AvatarURL)
	if err != nil {
		return pkgerrors.Wrapf(err, "upsert profile %q", p.UserID)
	}
	return nil
}
