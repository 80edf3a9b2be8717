package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"PPRealtime/data/database"
	"PPRealtime/logger"

	sqlite3 "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS conversations (
  id         TEXT PRIMARY KEY,
  is_group   INTEGER NOT NULL DEFAULT 0,
  dm_key     TEXT UNIQUE,
  created_at INTEGER NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS conversation_participants (
  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
  user_id         TEXT NOT NULL,
  last_read_at    INTEGER,
  PRIMARY KEY (conversation_id, user_id)
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_participants_user
ON conversation_participants (user_id);
`,
	`
CREATE TABLE IF NOT EXISTS messages (
  seq             INTEGER PRIMARY KEY AUTOINCREMENT,
  id              TEXT NOT NULL UNIQUE,
  conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
  sender_id       TEXT NOT NULL,
  content         TEXT,
  attachment_url  TEXT,
  created_at      INTEGER NOT NULL,
  edited_at       INTEGER
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_conversation_time
ON messages (conversation_id, created_at DESC, seq DESC);
`,
	`
CREATE TABLE IF NOT EXISTS notifications (
  id         INTEGER PRIMARY KEY,
  recipient  TEXT NOT NULL,
  sender     TEXT NOT NULL,
  type       TEXT NOT NULL CHECK(type IN ('MENTION','COMMENT','REPLY','LIKE')),
  post_id    INTEGER,
  comment_id INTEGER,
  is_read    INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_notifications_recipient_time
ON notifications (recipient, created_at DESC, id DESC);
`,
	`
CREATE TABLE IF NOT EXISTS user_profiles (
  user_id    TEXT PRIMARY KEY,
  username   TEXT NOT NULL,
  email      TEXT NOT NULL DEFAULT '',
  avatar_url TEXT NOT NULL DEFAULT ''
);
`,
}

var (
	_ database.ChatStore         = (*Store)(nil)
	_ database.NotificationStore = (*Store)(nil)
	_ database.ProfileStore      = (*Store)(nil)
)

// Store 嵌入式存储，开发与测试使用。单连接串行化所有事务。
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
}

// Open 按 DSN 打开（例如 file:realtime.db?_busy_timeout=5000&_foreign_keys=on）
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open sqlite database")
	}
	// sqlite 只有一个写者，单连接让事务天然排队，也避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "ping sqlite database")
	}
	s := &Store{db: db}
	if err := s.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenPath 打开指定路径的数据库文件
func OpenPath(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", filepath.ToSlash(path))
	return Open(dsn)
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.db.Close()
	})
	return closeErr
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return pkgerrors.Wrap(err, "read schema version")
	}
	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return pkgerrors.Wrap(err, "begin migration transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return pkgerrors.Wrapf(err, "apply migration %d", i+1)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return pkgerrors.Wrapf(err, "set schema version %d", i+1)
		}
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "commit migration transaction")
	}
	logger.Infof("[sqlite] schema migrated %d -> %d", version, len(migrations))
	return nil
}

// withTx 执行 fn，出错回滚
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "commit transaction")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toMicros(t time.Time) int64 {
	return database.Micros(t).UnixMicro()
}

func fromMicros(v int64) time.Time {
	return time.UnixMicro(v).UTC()
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicros(v.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
