package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend 在 kv 表中保存一行
// Close 之后的操作返回 ErrClosed
type SQLiteBackend struct {
	db     *sql.DB
	closed atomic.Bool
}

// OpenSQLiteBackend 打开（必要时创建）数据库文件；path 为 ":memory:" 时使用内存库
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  updated_at TEXT NOT NULL
);`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Load() ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	row := b.db.QueryRow(`SELECT value FROM kv WHERE key=?`, StorageKey)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

func (b *SQLiteBackend) Save(blob []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	_, err := b.db.Exec(`
INSERT INTO kv (key, value, updated_at)
VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, StorageKey, blob, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save kv: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Clear() error {
	if b.closed.Load() {
		return ErrClosed
	}
	if _, err := b.db.Exec(`DELETE FROM kv WHERE key=?`, StorageKey); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.db.Close()
}
