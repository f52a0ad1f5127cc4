package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

var sample = []types.BusinessRecord{
	{Name: "Joe's Pizza", Website: "https://joespizza.example/", Phone: "+12125551234"},
	{Name: "Corner Deli", Phone: "2125550000"},
	{Name: "Quiet Books", Website: "https://quietbooks.example/"},
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestPhonesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "phones.csv")
	s, err := NewPhonesCSV(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(sample); err != nil {
		t.Fatalf("Store: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 4 {
		t.Fatalf("expected header + 3 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "Business Name,Website,Phone" {
		t.Errorf("header: %v", rows[0])
	}
	if rows[2][1] != "N/A" || rows[3][2] != "N/A" {
		t.Errorf("missing fields should be N/A: %v %v", rows[2], rows[3])
	}
}

func TestPhonesCSVReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phones.csv")
	s, _ := NewPhonesCSV(path, testLogger)

	_ = s.Store(sample)
	_ = s.Store(sample[:1])

	if rows := readCSV(t, path); len(rows) != 2 {
		t.Errorf("second store should replace the file, got %d rows", len(rows))
	}
}

func TestWebsitesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "websites.csv")
	s, err := NewWebsitesCSV(path, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(sample); err != nil {
		t.Fatal(err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if strings.Join(rows[0], ",") != "Business Name,Website" {
		t.Errorf("header: %v", rows[0])
	}
	for _, r := range rows[1:] {
		if r[0] == "Corner Deli" {
			t.Error("record without website should be omitted")
		}
	}
}

func TestJSONStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "businesses.json")
	s, _ := NewJSONStorage(path, testLogger)
	if err := s.Store(sample); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got []types.BusinessRecord
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 3 || got[0] != sample[0] {
		t.Errorf("unexpected JSON content: %+v", got)
	}
	if !strings.Contains(string(data), `"business_name"`) {
		t.Error("JSON should use the business_name key")
	}
}

func TestExcelStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "businesses.xlsx")
	s, _ := NewExcelStorage(path, testLogger)
	if err := s.Store(sample); err != nil {
		t.Fatalf("Store: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := f.GetRows(excelSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 || rows[1][0] != "Joe's Pizza" || rows[2][1] != "N/A" {
		t.Errorf("unexpected rows: %v", rows)
	}
}

func TestSQLiteStorageIgnoresDuplicates(t *testing.T) {
	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "businesses.db"), testLogger)
	if err != nil {
		if strings.Contains(err.Error(), "cgo") {
			t.Skip("sqlite driver needs cgo")
		}
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Store(sample); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(sample); err != nil {
		t.Fatal(err)
	}
	n, err := s.Count()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 unique rows, got %d", n)
	}
}

type failingStorage struct{ stored int }

func (f *failingStorage) Name() string { return "failing" }
func (f *failingStorage) Store([]types.BusinessRecord) error {
	f.stored++
	return errors.New("disk full")
}
func (f *failingStorage) Close() error { return nil }

func TestMultiStorageContinuesPastFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phones.csv")
	csvSink, _ := NewPhonesCSV(path, testLogger)
	bad := &failingStorage{}

	m := NewMultiStorage([]Storage{bad, csvSink}, testLogger)
	err := m.Store(sample)

	var se *types.StorageError
	if !errors.As(err, &se) || se.Backend != "failing" {
		t.Fatalf("expected StorageError from the failing backend, got %v", err)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Error("healthy backend should still be written")
	}
}

func TestNewDefaultCSV(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.OutputDir = t.TempDir()

	s, err := New(cfg, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	multi, ok := s.(*MultiStorage)
	if !ok || len(multi.Backends()) != 2 {
		t.Fatalf("csv should expand to both CSV views, got %T", s)
	}
	if err := s.Store(sample); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"phones.csv", "websites.csv"} {
		if _, err := os.Stat(filepath.Join(cfg.OutputDir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
}

func TestNewUnknownType(t *testing.T) {
	cfg := config.DefaultConfig().Storage
	cfg.OutputDir = t.TempDir()
	cfg.Types = []string{"json", "parquet"}
	if _, err := New(cfg, testLogger); err == nil {
		t.Fatal("expected an error for an unknown storage type")
	}
}
