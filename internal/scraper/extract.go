package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/clean"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/observability"
	"github.com/IshaanNene/MapPhone/internal/parser"
	"github.com/IshaanNene/MapPhone/internal/retry"
	"github.com/IshaanNene/MapPhone/internal/types"
)

// Extractor visits detail pages and reads name, website and phone.
type Extractor struct {
	cfg     config.ScrapeConfig
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewExtractor creates an Extractor. Navigations are paced by
// cfg.NavigationsPerMinute; zero disables pacing.
func NewExtractor(cfg config.ScrapeConfig, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	var limiter *rate.Limiter
	if cfg.NavigationsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.NavigationsPerMinute)), 1)
	}
	return &Extractor{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With("component", "extractor"),
		metrics: metrics,
	}
}

// Extract reads one detail page. A page that never loads yields an empty
// record and a nil error; fields that cannot be found stay empty. Only
// cancellation is returned as an error.
func (e *Extractor) Extract(ctx context.Context, s browser.Session, link string) (types.BusinessRecord, error) {
	var rec types.BusinessRecord
	policy := stepPolicy("detail", e.cfg.MaxAttempts, e.cfg.RetryDelay, e.logger, e.metrics)

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		return e.open(ctx, s, link)
	})
	if err != nil {
		if isInterrupt(ctx) {
			return rec, err
		}
		e.logger.Warn("detail page did not load", "url", link, "error", err)
		return rec, nil
	}

	page := &pageSnapshot{session: s}
	rec.Name = e.field(ctx, page, "name", e.cfg.Fields.Name, link)
	rec.Website = e.field(ctx, page, "website", e.cfg.Fields.Website, link)
	rec.Phone = e.field(ctx, page, "phone", e.cfg.Fields.Phone, link)
	if err := ctx.Err(); err != nil {
		return rec, err
	}
	e.fillStructured(ctx, page, &rec)
	rec.Website = clean.URL(rec.Website)
	rec.Phone = clean.Phone(rec.Phone)

	e.logger.Debug("detail extracted",
		"url", link,
		"name", rec.Name,
		"has_website", rec.Website != "",
		"has_phone", rec.Phone != "",
	)

	if err := pause(ctx, e.cfg.ExtractDelayMin, e.cfg.ExtractDelayMax); err != nil {
		return rec, err
	}
	return rec, nil
}

func (e *Extractor) open(ctx context.Context, s browser.Session, link string) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	e.metrics.IncPagesVisited()

	if err := navigate(ctx, s, link, e.cfg.PageLoadTimeout); err != nil {
		return err
	}
	_, outcome, err := s.Wait(ctx, e.cfg.HeadingSelector, e.cfg.ElementTimeout)
	if err != nil {
		return err
	}
	if outcome == browser.TimedOut {
		return fmt.Errorf("%w: %s", browser.ErrTimeout, e.cfg.HeadingSelector)
	}
	return nil
}

// field tries the live CSS rules first, then every rule against a snapshot
// of the page. A miss is logged and counted, never returned as an error.
func (e *Extractor) field(ctx context.Context, page *pageSnapshot, name string, rules []config.ParseRule, link string) string {
	for _, rule := range rules {
		if rule.Type != "" && rule.Type != "css" {
			continue
		}
		if v := e.live(ctx, page.session, rule); v != "" {
			return v
		}
		if ctx.Err() != nil {
			return ""
		}
	}

	if snap := page.get(ctx); snap != nil {
		v, ruleName, err := snap.First(rules)
		if err != nil {
			e.logger.Debug("snapshot rule failed", "field", name, "error", err)
		}
		if v != "" {
			e.logger.Debug("field found in snapshot", "field", name, "rule", ruleName)
			return v
		}
	}

	e.logger.Debug("field not found", "field", name, "url", link)
	e.metrics.RecordFieldMiss(name)
	return ""
}

// fillStructured fills fields the rules missed from schema.org markup.
func (e *Extractor) fillStructured(ctx context.Context, page *pageSnapshot, rec *types.BusinessRecord) {
	if rec.Name != "" && rec.Website != "" && rec.Phone != "" {
		return
	}
	snap := page.get(ctx)
	if snap == nil {
		return
	}
	b, ok := snap.StructuredBusiness()
	if !ok {
		return
	}
	if rec.Name == "" {
		rec.Name = b.Name
	}
	if rec.Website == "" {
		rec.Website = b.URL
	}
	if rec.Phone == "" {
		rec.Phone = b.Telephone
	}
	e.logger.Debug("filled fields from structured data")
}

func (e *Extractor) live(ctx context.Context, s browser.Session, rule config.ParseRule) string {
	el, err := s.Find(ctx, rule.Selector)
	if err != nil {
		return ""
	}

	var val string
	switch rule.Attribute {
	case "", "text":
		val, err = el.Text(ctx)
	default:
		val, _, err = el.Attribute(ctx, rule.Attribute)
	}
	if err != nil {
		return ""
	}
	return parser.ApplyPattern(rule, val)
}

// pageSnapshot fetches and parses the page HTML at most once.
type pageSnapshot struct {
	session browser.Session
	loaded  bool
	snap    *parser.Snapshot
}

func (p *pageSnapshot) get(ctx context.Context) *parser.Snapshot {
	if p.loaded {
		return p.snap
	}
	p.loaded = true

	html, err := p.session.HTML(ctx)
	if err != nil || html == "" {
		return nil
	}
	snap, err := parser.NewSnapshot(html)
	if err != nil {
		return nil
	}
	p.snap = snap
	return snap
}
