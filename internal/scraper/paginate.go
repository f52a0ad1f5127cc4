package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/retry"
)

// PaginationStatus tells whether the results feed was fully walked.
type PaginationStatus int

const (
	PaginationComplete PaginationStatus = iota
	PaginationIncomplete
)

// String returns the status name.
func (s PaginationStatus) String() string {
	switch s {
	case PaginationComplete:
		return "complete"
	case PaginationIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

// PaginationResult summarizes one pagination pass.
type PaginationResult struct {
	Status  PaginationStatus
	Pages   int // next-page advances
	Scrolls int
}

type advanceOutcome int

const (
	advanced advanceOutcome = iota
	lastPage
)

// Paginator loads as many results as possible by scrolling the results feed
// and clicking the next-page control until it disappears or is disabled.
type Paginator struct {
	cfg     config.ScrapeConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewPaginator creates a Paginator.
func NewPaginator(cfg config.ScrapeConfig, now func() time.Time, logger *slog.Logger, metrics *observability.Metrics) *Paginator {
	return &Paginator{
		cfg:     cfg,
		now:     now,
		logger:  logger.With("component", "paginator"),
		metrics: metrics,
	}
}

// Run paginates until the last page or deadline. Exhausted retries and an
// expired deadline yield PaginationIncomplete with a nil error; only
// cancellation is returned as an error.
func (p *Paginator) Run(ctx context.Context, s browser.Session, deadline time.Time) (PaginationResult, error) {
	var res PaginationResult
	policy := stepPolicy("pagination", p.cfg.MaxAttempts, p.cfg.RetryDelay, p.logger, p.metrics)

	for {
		if !p.now().Before(deadline) {
			p.logger.Warn("pagination budget exhausted", "pages", res.Pages, "scrolls", res.Scrolls)
			res.Status = PaginationIncomplete
			return res, nil
		}

		outcome, err := retry.Value(ctx, policy, func(ctx context.Context) (advanceOutcome, error) {
			n, err := p.scroll(ctx, s, deadline)
			res.Scrolls += n
			if err != nil {
				return advanced, err
			}
			return p.advance(ctx, s)
		})
		if err != nil {
			if isInterrupt(ctx) {
				return res, err
			}
			p.logger.Warn("pagination stopped after retries", "pages", res.Pages, "error", err)
			res.Status = PaginationIncomplete
			return res, nil
		}

		if outcome == lastPage {
			p.logger.Info("pagination complete", "pages", res.Pages, "scrolls", res.Scrolls)
			res.Status = PaginationComplete
			return res, nil
		}
		res.Pages++
		p.logger.Debug("advanced to next page", "pages", res.Pages)
	}
}

// scroll drives the feed's infinite scroll until the result count stops
// growing. A missing feed is not an error.
func (p *Paginator) scroll(ctx context.Context, s browser.Session, deadline time.Time) (int, error) {
	feed, outcome, err := s.Wait(ctx, p.cfg.FeedSelector, p.cfg.ElementTimeout)
	if err != nil {
		return 0, err
	}
	if outcome == browser.TimedOut {
		p.logger.Debug("results feed not found, skipping scroll", "selector", p.cfg.FeedSelector)
		return 0, nil
	}

	scrolls := 0
	for scrolls < p.cfg.MaxScrolls && p.now().Before(deadline) {
		before, err := p.resultCount(ctx, s)
		if err != nil {
			return scrolls, err
		}
		if err := feed.ScrollToBottom(ctx); err != nil {
			return scrolls, fmt.Errorf("scroll feed: %w", err)
		}
		scrolls++

		if err := pause(ctx, p.cfg.ScrollDelayMin, p.cfg.ScrollDelayMax); err != nil {
			return scrolls, err
		}

		after, err := p.resultCount(ctx, s)
		if err != nil {
			return scrolls, err
		}
		if after <= before {
			break
		}
	}
	return scrolls, nil
}

func (p *Paginator) resultCount(ctx context.Context, s browser.Session) (int, error) {
	els, err := s.FindAll(ctx, p.cfg.ResultSelector)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// advance clicks the next-page control and waits for the old one to detach.
func (p *Paginator) advance(ctx context.Context, s browser.Session) (advanceOutcome, error) {
	next, err := s.Find(ctx, p.cfg.NextSelector)
	if errors.Is(err, browser.ErrNotFound) {
		p.logger.Debug("no next-page control")
		return lastPage, nil
	}
	if err != nil {
		return advanced, err
	}

	if _, disabled, err := next.Attribute(ctx, "disabled"); err != nil {
		return advanced, err
	} else if disabled {
		p.logger.Debug("next-page control disabled")
		return lastPage, nil
	}
	if v, ok, err := next.Attribute(ctx, "aria-disabled"); err == nil && ok && v == "true" {
		p.logger.Debug("next-page control aria-disabled")
		return lastPage, nil
	}

	if err := next.Click(ctx); err != nil {
		return advanced, fmt.Errorf("click next: %w", err)
	}

	outcome, err := next.WaitStale(ctx, p.cfg.ElementTimeout)
	if err != nil {
		return advanced, err
	}
	if outcome == browser.TimedOut {
		return advanced, fmt.Errorf("%w: next page did not load", browser.ErrTimeout)
	}
	return advanced, nil
}
