package storage

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/IshaanNene/MapPhone/internal/types"
)

// Placeholder written for fields that were not extracted.
const Placeholder = "N/A"

// PhonesCSV writes every record with all three columns. Each Store replaces
// the file with the given records.
type PhonesCSV struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewPhonesCSV creates the full-view CSV sink.
func NewPhonesCSV(path string, logger *slog.Logger) (*PhonesCSV, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &PhonesCSV{
		path:   path,
		logger: logger.With("component", "phones_csv"),
	}, nil
}

func (s *PhonesCSV) Name() string { return "phones_csv" }

// Path returns the output file.
func (s *PhonesCSV) Path() string { return s.path }

func (s *PhonesCSV) Store(records []types.BusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := writeCSV(s.path, []string{"Business Name", "Website", "Phone"}, len(records), func(i int) []string {
		r := records[i]
		return []string{orPlaceholder(r.Name), orPlaceholder(r.Website), orPlaceholder(r.Phone)}
	})
	if err != nil {
		return err
	}
	s.logger.Info("CSV written", "path", s.path, "records", len(records))
	return nil
}

func (s *PhonesCSV) Close() error { return nil }

// WebsitesCSV writes only the records that have a website.
type WebsitesCSV struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewWebsitesCSV creates the website-only CSV sink.
func NewWebsitesCSV(path string, logger *slog.Logger) (*WebsitesCSV, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &WebsitesCSV{
		path:   path,
		logger: logger.With("component", "websites_csv"),
	}, nil
}

func (s *WebsitesCSV) Name() string { return "websites_csv" }

// Path returns the output file.
func (s *WebsitesCSV) Path() string { return s.path }

func (s *WebsitesCSV) Store(records []types.BusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	withSite := make([]types.BusinessRecord, 0, len(records))
	for _, r := range records {
		if r.Website != "" {
			withSite = append(withSite, r)
		}
	}

	err := writeCSV(s.path, []string{"Business Name", "Website"}, len(withSite), func(i int) []string {
		return []string{orPlaceholder(withSite[i].Name), withSite[i].Website}
	})
	if err != nil {
		return err
	}
	s.logger.Info("CSV written", "path", s.path, "records", len(withSite))
	return nil
}

func (s *WebsitesCSV) Close() error { return nil }

func writeCSV(path string, header []string, n int, row func(i int) []string) error {
	return replaceFile(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		for i := 0; i < n; i++ {
			if err := w.Write(row(i)); err != nil {
				return fmt.Errorf("write CSV row: %w", err)
			}
		}
		w.Flush()
		return w.Error()
	})
}

func orPlaceholder(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}
