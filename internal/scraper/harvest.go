package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/retry"
)

// Harvester collects detail-page links from the loaded results.
type Harvester struct {
	cfg     config.ScrapeConfig
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHarvester creates a Harvester.
func NewHarvester(cfg config.ScrapeConfig, logger *slog.Logger, metrics *observability.Metrics) *Harvester {
	return &Harvester{
		cfg:     cfg,
		logger:  logger.With("component", "harvester"),
		metrics: metrics,
	}
}

// Harvest returns the distinct place links in page order. When the results
// never appear, it gives up after the retry budget and returns no links and
// no error. Only cancellation is returned as an error.
func (h *Harvester) Harvest(ctx context.Context, s browser.Session) ([]string, error) {
	policy := stepPolicy("harvest", h.cfg.MaxAttempts, h.cfg.RetryDelay, h.logger, h.metrics)

	links, err := retry.Value(ctx, policy, func(ctx context.Context) ([]string, error) {
		return h.collect(ctx, s)
	})
	if err != nil {
		if isInterrupt(ctx) {
			return nil, err
		}
		h.logger.Warn("link harvest failed", "error", err)
		return nil, nil
	}

	if len(links) == 0 {
		h.logger.Warn("no business links found")
	} else {
		h.logger.Info("links harvested", "count", len(links))
	}
	h.metrics.AddLinks(len(links))
	return links, nil
}

func (h *Harvester) collect(ctx context.Context, s browser.Session) ([]string, error) {
	_, outcome, err := s.Wait(ctx, h.cfg.ResultSelector, h.cfg.ElementTimeout)
	if err != nil {
		return nil, err
	}
	if outcome == browser.TimedOut {
		return nil, fmt.Errorf("%w: %s", browser.ErrTimeout, h.cfg.ResultSelector)
	}

	els, err := s.FindAll(ctx, h.cfg.ResultSelector)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(els))
	links := make([]string, 0, len(els))
	skipped := 0
	for _, el := range els {
		href, ok, err := el.Attribute(ctx, "href")
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			skipped++
			continue
		}
		if !ok || !strings.HasPrefix(href, h.cfg.PlacePrefix) {
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}
		links = append(links, href)
	}

	if skipped > 0 {
		h.logger.Debug("skipped unreadable result elements", "count", skipped)
	}
	return links, nil
}
