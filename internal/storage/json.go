package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/IshaanNene/MapPhone/internal/types"
)

// JSONStorage writes records as an indented JSON array.
type JSONStorage struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewJSONStorage creates a new JSON file storage.
func NewJSONStorage(outputPath string, logger *slog.Logger) (*JSONStorage, error) {
	if err := ensureDir(outputPath); err != nil {
		return nil, err
	}
	return &JSONStorage{
		path:   outputPath,
		logger: logger.With("component", "json_storage"),
	}, nil
}

func (s *JSONStorage) Name() string { return "json" }

func (s *JSONStorage) Store(records []types.BusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []types.BusinessRecord{}
	}
	err := replaceFile(s.path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("JSON written", "path", s.path, "records", len(records))
	return nil
}

func (s *JSONStorage) Close() error { return nil }
