package browser

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/types"
)

// Manager opens browser sessions for scrape runs.
type Manager struct {
	launcher      Launcher
	opts          Options
	proxies       *ProxyRotator
	launchTimeout time.Duration
	logger        *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLauncher overrides the backend selected by browser.engine.
func WithLauncher(l Launcher) ManagerOption {
	return func(m *Manager) { m.launcher = l }
}

// NewLauncher returns the backend registered under engine.
func NewLauncher(engine string, logger *slog.Logger) (Launcher, error) {
	switch engine {
	case "", "rod":
		return NewRodLauncher(logger), nil
	case "chromedp":
		return NewChromedpLauncher(logger), nil
	default:
		return nil, fmt.Errorf("unknown browser engine %q", engine)
	}
}

// NewManager creates a session manager from configuration.
func NewManager(cfg *config.Config, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		opts: Options{
			Headless:   cfg.Browser.Headless,
			UserAgent:  cfg.Browser.UserAgent,
			BinPath:    cfg.Browser.BinPath,
			WindowSize: cfg.Browser.WindowSize,
			Stealth:    cfg.Browser.Stealth,
		},
		proxies:       NewProxyRotator(cfg.Proxy, logger),
		launchTimeout: cfg.Browser.LaunchTimeout,
		logger:        logger.With("component", "session_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.launcher == nil {
		l, err := NewLauncher(cfg.Browser.Engine, logger)
		if err != nil {
			return nil, err
		}
		m.launcher = l
	}
	if m.opts.WindowSize == "" && m.opts.Stealth {
		m.opts.WindowSize = RandomWindowSize()
	}
	if m.launchTimeout <= 0 {
		m.launchTimeout = 60 * time.Second
	}
	return m, nil
}

// Engine returns the backend name.
func (m *Manager) Engine() string {
	return m.launcher.Name()
}

type launchResult struct {
	session Session
	err     error
}

// Open launches a browser session. Failures, including a launch that exceeds
// the launch timeout or panics, are returned as *types.SessionError. The
// returned session's Close runs at most once.
func (m *Manager) Open(ctx context.Context) (Session, error) {
	opts := m.opts
	proxy := m.proxies.Next()
	if proxy != nil {
		opts.Proxy = proxy.String()
	}

	launchCtx, cancel := context.WithTimeout(ctx, m.launchTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan launchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- launchResult{err: fmt.Errorf("launch panicked: %v", r)}
			}
		}()
		s, err := m.launcher.Launch(launchCtx, opts)
		done <- launchResult{session: s, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if res.session != nil {
				_ = res.session.Close()
			}
			m.proxies.MarkFailed(proxy, res.err)
			return nil, &types.SessionError{Engine: m.launcher.Name(), Err: res.err}
		}
		if res.session == nil {
			return nil, &types.SessionError{Engine: m.launcher.Name(), Err: fmt.Errorf("launcher returned no session")}
		}
		m.logger.Info("browser session opened",
			"engine", m.launcher.Name(),
			"proxy", opts.Proxy != "",
			"duration", time.Since(start),
		)
		return &managedSession{Session: res.session, logger: m.logger}, nil

	case <-launchCtx.Done():
		// Reap whatever the launcher eventually produces.
		go func() {
			if res := <-done; res.session != nil {
				_ = res.session.Close()
			}
		}()
		return nil, &types.SessionError{
			Engine: m.launcher.Name(),
			Err:    fmt.Errorf("launch: %w", launchCtx.Err()),
		}
	}
}

// managedSession makes Close idempotent regardless of backend.
type managedSession struct {
	Session
	logger *slog.Logger

	once     sync.Once
	closeErr error
}

func (s *managedSession) Close() error {
	s.once.Do(func() {
		s.closeErr = s.Session.Close()
		if s.closeErr != nil {
			s.logger.Warn("browser session close failed", "error", s.closeErr)
			return
		}
		s.logger.Debug("browser session closed")
	})
	return s.closeErr
}

var viewports = []struct{ w, h int }{
	{1920, 1080}, {1366, 768}, {1536, 864},
	{1440, 900}, {1280, 720}, {2560, 1440},
}

// RandomWindowSize picks a common desktop viewport as "width,height".
func RandomWindowSize() string {
	vp := viewports[rand.Intn(len(viewports))]
	return fmt.Sprintf("%d,%d", vp.w, vp.h)
}
