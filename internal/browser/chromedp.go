package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// ChromedpLauncher launches Chrome through chromedp's exec allocator.
type ChromedpLauncher struct {
	logger *slog.Logger
}

// NewChromedpLauncher creates a chromedp backend.
func NewChromedpLauncher(logger *slog.Logger) *ChromedpLauncher {
	return &ChromedpLauncher{logger: logger.With("component", "chromedp")}
}

// Name returns the backend identifier.
func (l *ChromedpLauncher) Name() string { return "chromedp" }

// Launch starts Chrome with the same flags as the rod backend. The browser
// outlives ctx; it is released by Close.
func (l *ChromedpLauncher) Launch(ctx context.Context, opts Options) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.BinPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.BinPath))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}
	if opts.WindowSize != "" {
		var w, h int
		if _, err := fmt.Sscanf(opts.WindowSize, "%d,%d", &w, &h); err == nil {
			allocOpts = append(allocOpts, chromedp.WindowSize(w, h))
		}
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &chromedpSession{
		tab:     tabCtx,
		cancels: []context.CancelFunc{cancelTab, cancelAlloc},
		logger:  l.logger,
	}

	// The first Run starts the browser and must use the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = s.Close()
		return nil, err
	}

	l.logger.Debug("browser launched", "headless", opts.Headless, "proxy", opts.Proxy != "")
	return s, nil
}

type chromedpSession struct {
	tab     context.Context
	cancels []context.CancelFunc
	logger  *slog.Logger

	closeOnce sync.Once
}

// run executes actions on the tab, aborting when ctx is done without
// tearing the tab down.
func (s *chromedpSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil && s.tab.Err() != nil {
		return ErrClosed
	}
	return err
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromedpSession) query(ctx context.Context, selector string) ([]*cdp.Node, error) {
	var nodes []*cdp.Node
	err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	return nodes, err
}

func (s *chromedpSession) Wait(ctx context.Context, selector string, timeout time.Duration) (Element, WaitOutcome, error) {
	var found *cdp.Node
	outcome, err := Poll(ctx, timeout, pollInterval, func(ctx context.Context) (bool, error) {
		nodes, err := s.query(ctx, selector)
		if err != nil {
			return false, err
		}
		if len(nodes) > 0 {
			found = nodes[0]
			return true, nil
		}
		return false, nil
	})
	if err != nil || outcome == TimedOut {
		return nil, outcome, err
	}
	return &chromedpElement{s: s, node: found}, Found, nil
}

func (s *chromedpSession) Find(ctx context.Context, selector string) (Element, error) {
	nodes, err := s.query(ctx, selector)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return &chromedpElement{s: s, node: nodes[0]}, nil
}

func (s *chromedpSession) FindAll(ctx context.Context, selector string) ([]Element, error) {
	nodes, err := s.query(ctx, selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromedpElement{s: s, node: n})
	}
	return out, nil
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromedpSession) Close() error {
	s.closeOnce.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
	})
	return nil
}

type chromedpElement struct {
	s    *chromedpSession
	node *cdp.Node
}

func (e *chromedpElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

// do runs actions against the node, reporting a missing node as stale.
func (e *chromedpElement) do(ctx context.Context, actions ...chromedp.Action) error {
	if !e.connected(ctx) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: node %d", ErrStale, e.node.NodeID)
	}
	return e.s.run(ctx, actions...)
}

func (e *chromedpElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.do(ctx, chromedp.TextContent(e.ids(), &text, chromedp.ByNodeID))
	return text, err
}

func (e *chromedpElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	err := e.do(ctx, chromedp.AttributeValue(e.ids(), name, &val, &ok, chromedp.ByNodeID))
	return val, ok, err
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.do(ctx, chromedp.MouseClickNode(e.node))
}

func (e *chromedpElement) Input(ctx context.Context, text string) error {
	return e.do(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
}

func (e *chromedpElement) Submit(ctx context.Context) error {
	return e.do(ctx, chromedp.SendKeys(e.ids(), kb.Enter, chromedp.ByNodeID))
}

func (e *chromedpElement) ScrollToBottom(ctx context.Context) error {
	return e.do(ctx, e.callOn(`function() { this.scrollTo(0, this.scrollHeight); }`, nil))
}

func (e *chromedpElement) WaitStale(ctx context.Context, timeout time.Duration) (WaitOutcome, error) {
	return Poll(ctx, timeout, pollInterval, func(ctx context.Context) (bool, error) {
		connected := e.connected(ctx)
		if err := ctx.Err(); err != nil {
			return false, err
		}
		return !connected, nil
	})
}

// connected resolves the node and asks the page whether it is still attached.
func (e *chromedpElement) connected(ctx context.Context) bool {
	var attached bool
	err := e.s.run(ctx, e.callOn(`function() { return this.isConnected; }`, &attached))
	return err == nil && attached
}

func (e *chromedpElement) callOn(fn string, result *bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(e.node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("%s", exc.Text)
		}
		if result != nil && res != nil {
			*result = strings.TrimSpace(string(res.Value)) == "true"
		}
		return nil
	})
}
