package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/IshaanNene/MapPhone/internal/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS businesses (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL DEFAULT '',
	website    TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(name, website, phone)
)`

// SQLiteStorage accumulates records across runs in a local database.
// Duplicate tuples are ignored.
type SQLiteStorage struct {
	db     *sql.DB
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string, logger *slog.Logger) (*SQLiteStorage, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("open: %w", err)}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("ping: %w", err)}
	}

	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, &types.StorageError{Backend: "sqlite", Err: fmt.Errorf("create table: %w", err)}
	}

	return &SQLiteStorage{
		db:     db,
		path:   path,
		logger: logger.With("component", "sqlite_storage"),
	}, nil
}

func (s *SQLiteStorage) Name() string { return "sqlite" }

func (s *SQLiteStorage) Store(records []types.BusinessRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO businesses (name, website, phone) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := int64(0)
	for _, r := range records {
		res, err := stmt.Exec(r.Name, r.Website, r.Phone)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("records stored in sqlite", "records", len(records), "inserted", inserted)
	return nil
}

// Count returns the number of stored rows.
func (s *SQLiteStorage) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM businesses`).Scan(&n)
	return n, err
}

func (s *SQLiteStorage) Close() error {
	s.logger.Info("sqlite storage closing", "path", s.path)
	return s.db.Close()
}
