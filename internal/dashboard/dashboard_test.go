package dashboard

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestServesIndex(t *testing.T) {
	d := New(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type: %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"/start_scrape", "/scrape_status/", "searchTerm"} {
		if !strings.Contains(body, want) {
			t.Errorf("page should reference %q", want)
		}
	}
}
