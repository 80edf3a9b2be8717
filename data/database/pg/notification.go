package pg

import (
	"context"
	"errors"

	"PPRealtime/data/database"
	"PPRealtime/module/notification/model"

	"github.com/jackc/pgx/v5"
	pkgerrors "github.com/pkg/errors"
)

func (s *Store) InsertNotification(ctx context.Context, n *model.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, recipient, sender, type, post_id, comment_id, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		n.ID, n.Recipient, n.Sender, string(n.Type), n.SubjectPostID, n.SubjectCommentID, n.Read,
		database.Micros(n.CreatedAt),
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
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, recipient, sender, type, post_id, comment_id, is_read, created_at
		 FROM notifications WHERE recipient = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, recipient, limitArg)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "list notifications of %q", recipient)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var (
			n   model.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.Recipient, &n.Sender, &typ, &n.SubjectPostID, &n.SubjectCommentID, &n.Read, &n.CreatedAt); err != nil {
			return nil, pkgerrors.Wrap(err, "scan notification")
		}
		n.Type = model.Type(typ)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, pkgerrors.Wrap(rows.Err(), "iterate notifications")
}

func (s *Store) CountUnread(ctx context.Context, recipient string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient = $1 AND NOT is_read`, recipient,
	).Scan(&n)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "count unread of %q", recipient)
	}
	return n, nil
}

func (s *Store) MarkRead(ctx context.Context, id int64, recipient string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient = $2`, id, recipient)
	if err != nil {
		return pkgerrors.Wrapf(err, "mark notification %d read", id)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, recipient string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE recipient = $1 AND NOT is_read`, recipient)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "mark all read of %q", recipient)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*database.Profile, error) {
	p := database.Profile{UserID: userID}
	err := s.pool.QueryRow(ctx,
		`SELECT username, email, avatar_url FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&p.Username, &p.Email, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get profile %q", userID)
	}
	return &p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *database.Profile) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_profiles (user_id, username, email, avatar_url) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email, avatar_url = EXCLUDED.avatar_url`,
		p.UserID, p.Username, p.Email, p.AvatarURL)
	if err != nil {
		return pkgerrors.Wrapf(err, "upsert profile %q", p.UserID)
	}
	return nil
}
