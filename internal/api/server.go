// Package api serves the browser front end: job submission, status polling,
// batch views and CSV downloads.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/queue"
	"github.com/IshaanNene/MapPhone/internal/storage"
	"github.com/IshaanNene/MapPhone/internal/types"
)

// JobQueue is the part of *queue.Queue the server needs.
type JobQueue interface {
	Submit(term string) (queue.Job, error)
	Get(id string) (queue.Job, error)
}

// Server routes the front-end endpoints.
type Server struct {
	router    *mux.Router
	cfg       config.ServerConfig
	downloads map[string]string // download name -> path on disk
	phones    string
	websites  string
	jobs      JobQueue
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewServer creates the server. index serves the single-page UI at "/".
func NewServer(cfg config.ServerConfig, st config.StorageConfig, jobs JobQueue, index http.Handler, metrics *observability.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		downloads: map[string]string{
			filepath.Base(st.PhonesFile):   filepath.Join(st.OutputDir, st.PhonesFile),
			filepath.Base(st.WebsitesFile): filepath.Join(st.OutputDir, st.WebsitesFile),
		},
		phones:   filepath.Base(st.PhonesFile),
		websites: filepath.Base(st.WebsitesFile),
		jobs:     jobs,
		metrics:  metrics,
		logger:   logger.With("component", "api_server"),
	}
	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 30
	}

	s.registerRoutes(index)
	return s
}

func (s *Server) registerRoutes(index http.Handler) {
	s.router.Use(s.logRequests)

	if index != nil {
		s.router.Handle("/", index).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/start_scrape", s.handleStartScrape).Methods(http.MethodPost)
	s.router.HandleFunc("/scrape_status/{id}", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/scrape_batch/{id}/{batch:[0-9]+}", s.handleBatch).Methods(http.MethodGet)
	s.router.HandleFunc("/download/{filename}", s.handleDownload).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an *http.Server bound to the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleStartScrape(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SearchTerm string `json:"search_term"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	job, err := s.jobs.Submit(body.SearchTerm)
	switch {
	case errors.Is(err, types.ErrEmptySearchTerm):
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Search term is required"})
		return
	case errors.Is(err, types.ErrQueueFull):
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"error": "Too many scrapes queued, try again later"})
		return
	case err != nil:
		s.logger.Error("submit failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": "queued",
	})
}

// row is one business as the front end renders it.
type row struct {
	BusinessName string `json:"business_name"`
	Website      string `json:"website"`
	Phone        string `json:"phone"`
}

func rows(records []types.BusinessRecord) []row {
	out := make([]row, 0, len(records))
	for _, r := range records {
		out = append(out, row{
			BusinessName: orPlaceholder(r.Name),
			Website:      orPlaceholder(r.Website),
			Phone:        orPlaceholder(r.Phone),
		})
	}
	return out
}

func orPlaceholder(s string) string {
	if s == "" {
		return storage.Placeholder
	}
	return s
}

// lookup writes the not_found or in-progress responses and reports whether
// the caller should go on with a finished job.
func (s *Server) lookup(w http.ResponseWriter, id string) (queue.Job, bool) {
	job, err := s.jobs.Get(id)
	if err != nil {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"status": "not_found"})
		return job, false
	}

	switch job.Status {
	case queue.StatusPending, queue.StatusRunning:
		s.jsonResponse(w, http.StatusOK, map[string]string{"status": "running"})
		return job, false
	case queue.StatusFailed:
		resp := map[string]any{"status": "failed", "error": job.Error}
		if len(job.Records) > 0 {
			resp["result"] = rows(job.Records)
		}
		s.jsonResponse(w, http.StatusOK, resp)
		return job, false
	}
	return job, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, s.completeBody(job, "result"))
}

func (s *Server) completeBody(job queue.Job, key string) map[string]any {
	return map[string]any{
		"status":       "complete",
		key:            rows(job.Records),
		"message":      fmt.Sprintf("Scraping complete! Found %d phone numbers.", types.PhoneCount(job.Records)),
		"websites_csv": "/download/" + s.websites,
		"phones_csv":   "/download/" + s.phones,
	}
}

// handleBatch pages through a finished job in fixed-size batches. Each batch
// response carries every record up to and including that batch.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	batch, err := strconv.Atoi(vars["batch"])
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid batch"})
		return
	}
	job, ok := s.lookup(w, vars["id"])
	if !ok {
		return
	}

	size := s.cfg.BatchSize
	start := batch * size
	if start >= len(job.Records) {
		s.jsonResponse(w, http.StatusOK, s.completeBody(job, "results"))
		return
	}

	end := min(start+size, len(job.Records))
	seen := job.Records[:end]
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":     "batch_complete",
		"results":    rows(seen),
		"next_batch": batch + 1,
		"remaining":  len(job.Records) - end,
		"message": fmt.Sprintf("Batch %d complete. Processed %d businesses. Total phone numbers: %d.",
			batch+1, end-start, types.PhoneCount(seen)),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	path, ok := s.downloads[name]
	if !ok {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid file"})
		return
	}
	if _, err := os.Stat(path); err != nil {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": name + " not found"})
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Type", "text/csv")
	http.ServeFile(w, r, path)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("write response", "error", err)
	}
}
