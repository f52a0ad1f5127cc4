package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists the records of one run.
	Store(records []types.BusinessRecord) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the backends listed in cfg.Types. "csv" produces both the full
// phones view and the website-only view. More than one backend is wrapped in
// a MultiStorage.
func New(cfg config.StorageConfig, logger *slog.Logger) (Storage, error) {
	kinds := cfg.Types
	if len(kinds) == 0 {
		kinds = []string{"csv"}
	}

	var backends []Storage
	closeAll := func() {
		for _, b := range backends {
			_ = b.Close()
		}
	}

	for _, t := range kinds {
		switch t {
		case "csv":
			phones, err := NewPhonesCSV(filepath.Join(cfg.OutputDir, cfg.PhonesFile), logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			websites, err := NewWebsitesCSV(filepath.Join(cfg.OutputDir, cfg.WebsitesFile), logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, phones, websites)
		case "json":
			s, err := NewJSONStorage(filepath.Join(cfg.OutputDir, cfg.JSONFile), logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, s)
		case "sqlite":
			s, err := NewSQLiteStorage(filepath.Join(cfg.OutputDir, cfg.SQLiteFile), logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, s)
		case "excel":
			s, err := NewExcelStorage(filepath.Join(cfg.OutputDir, cfg.ExcelFile), logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, s)
		case "mongo":
			s, err := NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection, logger)
			if err != nil {
				closeAll()
				return nil, err
			}
			backends = append(backends, s)
		default:
			closeAll()
			return nil, fmt.Errorf("unsupported storage type: %s", t)
		}
	}

	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStorage(backends, logger), nil
}

// ensureDir creates the directory that will hold path.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

// replaceFile writes via a temp file in the same directory and renames it
// over path, so readers never see a half-written file.
func replaceFile(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
