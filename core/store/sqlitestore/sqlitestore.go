// Package sqlitestore 提供基于 SQLite 的本地会话持久化。
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	coreerrors "github.com/dnslin/tokenretry/core/errors"
	"github.com/dnslin/tokenretry/core/store"
)

const schema = `CREATE TABLE IF NOT EXISTS sessions (
	name       TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// DB 持有 SQLite 连接，可为多个命名会话提供存储。
type DB struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open 打开（或创建）SQLite 文件并建表。
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidArgument, "sqlitestore: 路径不能为空")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{sqlDB: sqlDB, now: time.Now}, nil
}

// Close 关闭连接。
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// Store 是 DB 中以 name 区分的一条会话记录。
type Store[T any] struct {
	db   *DB
	name string
}

// NewStore 在 db 上创建命名会话存储。
func NewStore[T any](db *DB, name string) (*Store[T], error) {
	if db == nil || db.sqlDB == nil {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidConfig, "sqlitestore: 数据库未打开")
	}
	if name == "" {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidArgument, "sqlitestore: 会话名不能为空")
	}
	return &Store[T]{db: db, name: name}, nil
}

func (s *Store[T]) SaveSession(session T) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInvalidArgument, "sqlitestore: 会话序列化失败", err)
	}
	_, err = s.db.sqlDB.ExecContext(context.Background(),
		`INSERT INTO sessions (name, payload, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.name, payload, s.db.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store[T]) LoadSession() (T, error) {
	var out T
	var payload []byte
	err := s.db.sqlDB.QueryRowContext(context.Background(),
		`SELECT payload FROM sessions WHERE name = ?`, s.name,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return out, store.ErrNotFound
	}
	if err != nil {
		return out, fmt.Errorf("load session: %w", err)
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, coreerrors.Wrap(coreerrors.ErrCodeInvalidState, "sqlitestore: 会话数据损坏", err)
	}
	return out, nil
}

func (s *Store[T]) ClearSession() error {
	if _, err := s.db.sqlDB.ExecContext(context.Background(), `DELETE FROM sessions WHERE name = ?`, s.name); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
