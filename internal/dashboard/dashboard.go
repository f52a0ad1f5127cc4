// Package dashboard serves the single-page search UI.
package dashboard

import (
	"log/slog"
	"net/http"
)

// Dashboard serves the search page.
type Dashboard struct {
	logger *slog.Logger
}

// New creates a dashboard.
func New(logger *slog.Logger) *Dashboard {
	return &Dashboard{logger: logger.With("component", "dashboard")}
}

func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(indexHTML)); err != nil {
		d.logger.Debug("write page", "error", err)
	}
}
