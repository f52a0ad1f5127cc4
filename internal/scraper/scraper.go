// Package scraper runs one search against the map interface: submit the
// term, paginate the results feed, harvest detail links and extract a
// BusinessRecord from each detail page.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/pipeline"
	"github.com/IshaanNene/MapPhone/internal/storage"
	"github.com/IshaanNene/MapPhone/internal/types"
)

// Phase is a step of a run.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseSessionOpen
	PhaseSearchSubmitted
	PhasePaginating
	PhaseHarvesting
	PhaseExtracting
	PhaseFinalizing
	PhaseClosed
	PhaseAborted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseSessionOpen:
		return "session_open"
	case PhaseSearchSubmitted:
		return "search_submitted"
	case PhasePaginating:
		return "paginating"
	case PhaseHarvesting:
		return "harvesting"
	case PhaseExtracting:
		return "extracting"
	case PhaseFinalizing:
		return "finalizing"
	case PhaseClosed:
		return "closed"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// InterruptMode selects what Run returns when its context is cancelled.
type InterruptMode int

const (
	// ReturnPartial returns the partial result with a nil error.
	ReturnPartial InterruptMode = iota
	// Propagate returns the partial result together with the context error.
	Propagate
)

// SessionOpener opens a browser session. *browser.Manager implements it.
type SessionOpener interface {
	Open(ctx context.Context) (browser.Session, error)
}

// Result is the outcome of one run.
type Result struct {
	SearchTerm     string
	Records        []types.BusinessRecord
	Phase          Phase
	Err            error // why the run aborted, if it did
	Interrupted    bool
	Pagination     PaginationResult
	LinksHarvested int
	LinksVisited   int
	Elapsed        time.Duration
}

// PhoneCount returns how many records carry a phone number.
func (r *Result) PhoneCount() int {
	return types.PhoneCount(r.Records)
}

// Message is the human-readable completion line.
func (r *Result) Message() string {
	switch {
	case r.Err != nil:
		return fmt.Sprintf("Scraping failed: %v", r.Err)
	case r.Interrupted:
		return fmt.Sprintf("Scraping interrupted. Found %d phone numbers.", r.PhoneCount())
	default:
		return fmt.Sprintf("Scraping complete! Found %d phone numbers.", r.PhoneCount())
	}
}

// Scraper orchestrates runs. It holds no per-run state and may be shared by
// concurrent runs, each of which opens its own session.
type Scraper struct {
	cfg       config.ScrapeConfig
	opener    SessionOpener
	store     storage.Storage
	pipeline  *pipeline.Pipeline
	paginator *Paginator
	harvester *Harvester
	mode      InterruptMode
	now       func() time.Time
	metrics   *observability.Metrics
	base      *slog.Logger
	logger    *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithStorage persists each run's records to s.
func WithStorage(s storage.Storage) Option {
	return func(sc *Scraper) { sc.store = s }
}

// WithMetrics records run metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(sc *Scraper) { sc.metrics = m }
}

// WithInterruptMode sets the cancellation behavior.
func WithInterruptMode(mode InterruptMode) Option {
	return func(sc *Scraper) { sc.mode = mode }
}

// WithClock replaces time.Now for budget checks.
func WithClock(now func() time.Time) Option {
	return func(sc *Scraper) { sc.now = now }
}

// WithPipeline replaces the default record pipeline.
func WithPipeline(p *pipeline.Pipeline) Option {
	return func(sc *Scraper) { sc.pipeline = p }
}

// New creates a Scraper.
func New(cfg config.ScrapeConfig, opener SessionOpener, logger *slog.Logger, opts ...Option) *Scraper {
	sc := &Scraper{
		cfg:    cfg,
		opener: opener,
		now:    time.Now,
		base:   logger,
		logger: logger.With("component", "scraper"),
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.pipeline == nil {
		sc.pipeline = pipeline.NewDefault(logger)
	}

	sc.paginator = NewPaginator(cfg, sc.now, logger, sc.metrics)
	sc.harvester = NewHarvester(cfg, logger, sc.metrics)
	return sc
}

// run carries the state of a single Run call. Each run paces its own
// detail navigations so concurrent runs do not throttle each other.
type run struct {
	sc        *Scraper
	extractor *Extractor
	res       *Result
	records   *types.ResultSet
	start     time.Time
	logger    *slog.Logger
}

func (r *run) setPhase(p Phase, attrs ...any) {
	r.res.Phase = p
	r.logger.Info("phase", append([]any{"phase", p.String()}, attrs...)...)
}

func (r *run) elapsed() time.Duration {
	return r.sc.now().Sub(r.start)
}

// Run performs one search. A blank term returns types.ErrEmptySearchTerm
// before any browser work. Session and search failures abort the run and are
// reported in Result.Err with a nil error. On cancellation the partial
// records are persisted and the InterruptMode decides the returned error.
func (sc *Scraper) Run(ctx context.Context, term string) (*Result, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, types.ErrEmptySearchTerm
	}

	r := &run{
		sc:        sc,
		extractor: NewExtractor(sc.cfg, sc.base, sc.metrics),
		res:       &Result{SearchTerm: term, Phase: PhaseInit},
		records:   types.NewResultSet(),
		start:     sc.now(),
		logger:    sc.logger.With("search_term", term),
	}
	r.logger.Info("scrape started",
		"max_records", sc.cfg.MaxRecords,
		"run_timeout", sc.cfg.RunTimeout,
	)

	r.setPhase(PhaseSessionOpen)
	session, err := sc.opener.Open(ctx)
	if err != nil {
		r.res.Elapsed = r.elapsed()
		if isInterrupt(ctx) {
			return sc.interrupted(ctx, r, err)
		}
		r.res.Err = err
		r.setPhase(PhaseAborted, "error", err)
		sc.metrics.RecordRun("session_failed", r.res.Elapsed)
		return r.res, nil
	}

	closeSession := sync.OnceValue(session.Close)
	defer closeSession()

	driveErr := r.drive(ctx, session, term)

	aborted := false
	if driveErr != nil {
		if isInterrupt(ctx) {
			r.res.Interrupted = true
		} else {
			aborted = true
		}
	}

	if !aborted {
		r.setPhase(PhaseFinalizing, "records", r.records.Len())
	}
	if err := closeSession(); err != nil {
		r.logger.Warn("browser session close failed", "error", err)
	}

	r.res.Records = r.records.Records()
	r.res.Elapsed = r.elapsed()
	sc.persist(r)

	if aborted {
		r.res.Err = driveErr
		r.setPhase(PhaseAborted, "error", driveErr)
		sc.metrics.RecordRun("aborted", r.res.Elapsed)
		return r.res, nil
	}
	if r.res.Interrupted {
		return sc.interrupted(ctx, r, driveErr)
	}

	r.setPhase(PhaseClosed,
		"records", len(r.res.Records),
		"phones", r.res.PhoneCount(),
		"links", r.res.LinksHarvested,
		"elapsed", r.res.Elapsed,
	)
	sc.metrics.RecordRun("complete", r.res.Elapsed)
	r.logger.Info(r.res.Message())
	return r.res, nil
}

func (sc *Scraper) interrupted(ctx context.Context, r *run, cause error) (*Result, error) {
	r.res.Interrupted = true
	r.setPhase(PhaseClosed, "interrupted", true, "records", len(r.res.Records))
	sc.metrics.RecordRun("interrupted", r.res.Elapsed)

	if sc.mode == Propagate {
		if err := ctx.Err(); err != nil {
			return r.res, err
		}
		return r.res, cause
	}
	return r.res, nil
}

// drive runs search, pagination, harvest and extraction on an open session.
func (r *run) drive(ctx context.Context, s browser.Session, term string) error {
	cfg := r.sc.cfg

	if err := r.sc.submitSearch(ctx, s, term); err != nil {
		return err
	}
	r.setPhase(PhaseSearchSubmitted)

	r.setPhase(PhasePaginating)
	deadline := r.sc.now().Add(cfg.PaginationTimeout)
	if runEnd := r.start.Add(cfg.RunTimeout); runEnd.Before(deadline) {
		deadline = runEnd
	}
	pres, err := r.sc.paginator.Run(ctx, s, deadline)
	r.res.Pagination = pres
	if err != nil {
		return err
	}

	r.setPhase(PhaseHarvesting, "pagination", pres.Status.String(), "pages", pres.Pages)
	links, err := r.sc.harvester.Harvest(ctx, s)
	if err != nil {
		return err
	}
	r.res.LinksHarvested = len(links)

	r.setPhase(PhaseExtracting, "links", len(links))
	for i, link := range links {
		if r.records.Len() >= cfg.MaxRecords {
			r.logger.Info("record budget reached", "records", r.records.Len(), "remaining_links", len(links)-i)
			break
		}
		if r.elapsed() >= cfg.RunTimeout {
			r.logger.Info("time budget reached", "elapsed", r.elapsed(), "remaining_links", len(links)-i)
			break
		}

		rec, err := r.extractor.Extract(ctx, s, link)
		r.res.LinksVisited++
		if err != nil {
			return err
		}
		r.accept(rec, i+1, len(links))
	}
	return nil
}

func (r *run) accept(rec types.BusinessRecord, n, total int) {
	out, err := r.sc.pipeline.Process(&rec)
	if err != nil {
		r.logger.Warn("record rejected", "error", err)
		return
	}
	if out == nil {
		return
	}
	if r.records.Add(*out) {
		r.sc.metrics.AddRecords(1)
		r.logger.Info("record added",
			"name", out.Name,
			"progress", fmt.Sprintf("%d/%d", n, total),
			"records", r.records.Len(),
		)
	}
}

// submitSearch types the term into the search box. Any failure other than
// cancellation is reported as a *types.ChallengeError.
func (sc *Scraper) submitSearch(ctx context.Context, s browser.Session, term string) error {
	fail := func(err error) error {
		if isInterrupt(ctx) {
			return err
		}
		kind := browser.ChallengeUnknown
		if html, herr := s.HTML(ctx); herr == nil {
			if k := browser.DetectChallenge(html); k != browser.ChallengeNone {
				kind = k
			}
		}
		return &types.ChallengeError{URL: sc.cfg.TargetURL, Kind: string(kind), Err: err}
	}

	if err := navigate(ctx, s, sc.cfg.TargetURL, sc.cfg.PageLoadTimeout); err != nil {
		return fail(err)
	}

	input, outcome, err := s.Wait(ctx, sc.cfg.SearchInput, sc.cfg.SearchTimeout)
	if err != nil {
		return fail(err)
	}
	if outcome == browser.TimedOut {
		return fail(fmt.Errorf("%w: search input %s", browser.ErrTimeout, sc.cfg.SearchInput))
	}

	if err := input.Input(ctx, term); err != nil {
		return fail(fmt.Errorf("type search term: %w", err))
	}
	if err := input.Submit(ctx); err != nil {
		return fail(fmt.Errorf("submit search: %w", err))
	}
	return nil
}

// persist stores non-empty results. Failures are logged, never returned.
func (sc *Scraper) persist(r *run) {
	if sc.store == nil || len(r.res.Records) == 0 {
		return
	}
	if err := sc.store.Store(r.res.Records); err != nil {
		var se *types.StorageError
		backend := sc.store.Name()
		if errors.As(err, &se) {
			backend = se.Backend
		}
		sc.metrics.RecordStorageError(backend)
		r.logger.Error("failed to persist results", "backend", backend, "error", err)
		return
	}
	r.logger.Info("results persisted", "backend", sc.store.Name(), "records", len(r.res.Records))
}
