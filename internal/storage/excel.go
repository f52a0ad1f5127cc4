package storage

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/IshaanNene/MapPhone/internal/types"
)

const excelSheet = "Businesses"

// ExcelStorage writes records to a single-sheet workbook. Each Store replaces
// the workbook.
type ExcelStorage struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewExcelStorage creates an .xlsx sink.
func NewExcelStorage(path string, logger *slog.Logger) (*ExcelStorage, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &ExcelStorage{
		path:   path,
		logger: logger.With("component", "excel_storage"),
	}, nil
}

func (s *ExcelStorage) Name() string { return "excel" }

func (s *ExcelStorage) Store(records []types.BusinessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), excelSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := []any{"Business Name", "Website", "Phone"}
	if err := f.SetSheetRow(excelSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(excelSheet, "A1", "C1", style); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{orPlaceholder(r.Name), orPlaceholder(r.Website), orPlaceholder(r.Phone)}
		if err := f.SetSheetRow(excelSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(excelSheet, "A", "A", 40)
	_ = f.SetColWidth(excelSheet, "B", "C", 30)

	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	s.logger.Info("workbook written", "path", s.path, "records", len(records))
	return nil
}

func (s *ExcelStorage) Close() error { return nil }
