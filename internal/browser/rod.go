package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodLauncher launches Chromium through go-rod.
type RodLauncher struct {
	logger *slog.Logger
}

// NewRodLauncher creates a rod backend.
func NewRodLauncher(logger *slog.Logger) *RodLauncher {
	return &RodLauncher{logger: logger.With("component", "rod")}
}

// Name returns the backend identifier.
func (l *RodLauncher) Name() string { return "rod" }

// Launch starts Chromium with container-friendly flags and opens one page,
// patched by go-rod/stealth when opts.Stealth is set.
func (l *RodLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	lc := launcher.New().
		Headless(opts.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if opts.BinPath != "" {
		lc = lc.Bin(opts.BinPath)
	}
	if opts.Proxy != "" {
		lc = lc.Proxy(opts.Proxy)
	}
	if opts.WindowSize != "" {
		lc = lc.Set("window-size", opts.WindowSize)
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	s := &rodSession{launcher: lc, logger: l.logger}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	s.browser = b

	var page *rod.Page
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			l.logger.Warn("failed to set user agent", "error", err)
		}
	}

	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}

	l.logger.Debug("browser launched", "headless", opts.Headless, "stealth", opts.Stealth, "proxy", opts.Proxy != "")
	return s, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, ctxOr(ctx, err))
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Debug("page load wait failed, continuing", "url", url, "error", err)
	}
	return ctx.Err()
}

func (s *rodSession) Wait(ctx context.Context, selector string, timeout time.Duration) (Element, WaitOutcome, error) {
	var found *rod.Element
	outcome, err := Poll(ctx, timeout, pollInterval, func(ctx context.Context) (bool, error) {
		has, el, err := s.page.Context(ctx).Has(selector)
		if err != nil {
			return false, rodErr(ctx, err)
		}
		if has {
			found = el
		}
		return has, nil
	})
	if err != nil || outcome == TimedOut {
		return nil, outcome, err
	}
	return &rodElement{el: found}, Found, nil
}

func (s *rodSession) Find(ctx context.Context, selector string) (Element, error) {
	has, el, err := s.page.Context(ctx).Has(selector)
	if err != nil {
		return nil, rodErr(ctx, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return &rodElement{el: el}, nil
}

func (s *rodSession) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, rodErr(ctx, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", ctxOr(ctx, err)
	}
	return html, nil
}

// Close shuts the browser down and removes its temporary profile. Safe to
// call on a partially launched session.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.launcher != nil {
			s.launcher.Kill()
			s.launcher.Cleanup()
		}
	})
	return s.closeErr
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	return text, rodErr(ctx, err)
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	val, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", false, rodErr(ctx, err)
	}
	if val == nil {
		return "", false, nil
	}
	return *val, true, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	return rodErr(ctx, e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1))
}

func (e *rodElement) Input(ctx context.Context, text string) error {
	return rodErr(ctx, e.el.Context(ctx).Input(text))
}

func (e *rodElement) Submit(ctx context.Context) error {
	return rodErr(ctx, e.el.Context(ctx).Type(input.Enter))
}

func (e *rodElement) ScrollToBottom(ctx context.Context) error {
	_, err := e.el.Context(ctx).Eval(`() => this.scrollTo(0, this.scrollHeight)`)
	return rodErr(ctx, err)
}

func (e *rodElement) WaitStale(ctx context.Context, timeout time.Duration) (WaitOutcome, error) {
	return Poll(ctx, timeout, pollInterval, func(ctx context.Context) (bool, error) {
		res, err := e.el.Context(ctx).Eval(`() => this.isConnected`)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			// The remote object is gone, which is what we are waiting for.
			return true, nil
		}
		return !res.Value.Bool(), nil
	})
}

// rodErr maps rod failures onto the package's element errors.
func rodErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	var gone *rod.ObjectNotFoundError
	var cdpErr *cdp.Error
	if errors.As(err, &gone) || errors.As(err, &cdpErr) {
		return fmt.Errorf("%w: %v", ErrStale, err)
	}
	return err
}

// ctxOr prefers the context error over whatever the driver reported.
func ctxOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
