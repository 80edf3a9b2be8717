package pg

import (
	"context"
	"errors"

	"PPRealtime/data/database"
	"PPRealtime/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
  id         TEXT PRIMARY KEY,
  is_group   BOOLEAN NOT NULL DEFAULT FALSE,
  dm_key     TEXT UNIQUE,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_participants (
  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
  user_id         TEXT NOT NULL,
  last_read_at    TIMESTAMPTZ,
  PRIMARY KEY (conversation_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants (user_id);
CREATE TABLE IF NOT EXISTS messages (
  seq             BIGSERIAL PRIMARY KEY,
  id              TEXT NOT NULL UNIQUE,
  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
  sender_id       TEXT NOT NULL,
  content         TEXT,
  attachment_url  TEXT,
  created_at      TIMESTAMPTZ NOT NULL,
  edited_at       TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation_time ON messages (conversation_id, created_at DESC, seq DESC);
CREATE TABLE IF NOT EXISTS notifications (
  id         BIGINT PRIMARY KEY,
  recipient  TEXT NOT NULL,
  sender     TEXT NOT NULL,
  type       TEXT NOT NULL CHECK (type IN ('MENTION','COMMENT','REPLY','LIKE')),
  post_id    BIGINT,
  comment_id BIGINT,
  is_read    BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient_time ON notifications (recipient, created_at DESC, id DESC);
CREATE TABLE IF NOT EXISTS user_profiles (
  user_id    TEXT PRIMARY KEY,
  username   TEXT NOT NULL,
  email      TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT ''
);
`

// 唯一约束冲突
const uniqueViolation = "23505"

var (
	_ database.ChatStore         = (*Store)(nil)
	_ database.NotificationStore = (*Store)(nil)
	_ database.ProfileStore      = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
}

// Open 连接池 + 建表
func Open(ctx context.Context, databaseURL string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "parse database url")
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "unable to connect to database")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "ping database")
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, pkgerrors.Wrap(err, "apply schema")
	}
	logger.Infof("[pg] connected, max_conns=%d", cfg.MaxConns)
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return pkgerrors.Wrap(tx.Commit(ctx), "commit transaction")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
