package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteBackend 以 <Path>/<Database>.db 为库文件、ObjectStore 为表名保存图片。
type SQLiteBackend struct {
	sqlDB *sql.DB
	table string
}

// OpenSQLite 打开图片库并创建对象仓库表。
func OpenSQLite(basePath string, loc Location) (*SQLiteBackend, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	loc = loc.normalized()
	if !identPattern.MatchString(loc.ObjectStore) {
		return nil, fmt.Errorf("invalid object store name: %q", loc.ObjectStore)
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	dsn := filepath.Join(filepath.Clean(basePath), loc.Database+".db") +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		blob_id   TEXT PRIMARY KEY,
		mime_type TEXT NOT NULL,
		data      BLOB NOT NULL
	)`, loc.ObjectStore)
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create object store %s: %w", loc.ObjectStore, err)
	}
	return &SQLiteBackend{sqlDB: sqlDB, table: loc.ObjectStore}, nil
}

// Close releases the underlying SQLite connection.
func (s *SQLiteBackend) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *SQLiteBackend) Put(ctx context.Context, id string, blob Blob) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin blob tx: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (blob_id, mime_type, data) VALUES (?, ?, ?)
		ON CONFLICT(blob_id) DO UPDATE SET mime_type = excluded.mime_type, data = excluded.data`, s.table)
	data := blob.Data
	if data == nil {
		data = []byte{}
	}
	if _, err := tx.ExecContext(ctx, query, id, blob.MIME, data); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("put blob %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Get(ctx context.Context, id string) (Blob, error) {
	var blob Blob
	query := fmt.Sprintf(`SELECT mime_type, data FROM %s WHERE blob_id = ?`, s.table)
	err := s.sqlDB.QueryRowContext(ctx, query, id).Scan(&blob.MIME, &blob.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, ErrNotFound
	}
	if err != nil {
		return Blob{}, fmt.Errorf("get blob %s: %w", id, err)
	}
	return blob, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE blob_id = ?`, s.table)
	if _, err := s.sqlDB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete blob %s: %w", id, err)
	}
	return nil
}
