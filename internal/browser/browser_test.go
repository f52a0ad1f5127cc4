package browser_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/browser/browsertest"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollFound(t *testing.T) {
	var calls atomic.Int32
	outcome, err := browser.Poll(context.Background(), time.Second, time.Millisecond, func(ctx context.Context) (bool, error) {
		return calls.Add(1) >= 3, nil
	})
	if err != nil || outcome != browser.Found {
		t.Fatalf("got %v, %v", outcome, err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 checks, got %d", calls.Load())
	}
}

func TestPollTimesOut(t *testing.T) {
	outcome, err := browser.Poll(context.Background(), 20*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if outcome != browser.TimedOut {
		t.Errorf("expected TimedOut, got %v", outcome)
	}
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := browser.Poll(ctx, time.Minute, time.Millisecond, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDetectChallenge(t *testing.T) {
	tests := []struct {
		html string
		want browser.ChallengeKind
	}{
		{`<div class="g-recaptcha" data-sitekey="abc"></div>`, browser.ChallengeReCaptcha},
		{`<div class="h-captcha"></div>`, browser.ChallengeHCaptcha},
		{`<div class="cf-turnstile"></div>`, browser.ChallengeTurnstile},
		{`Our systems have detected unusual traffic from your computer network.`, browser.ChallengeUnusualTraffic},
		{`<form action="https://consent.google.com/save">`, browser.ChallengeConsent},
		{`<input id="searchboxinput">`, browser.ChallengeNone},
	}
	for _, tt := range tests {
		if got := browser.DetectChallenge(tt.html); got != tt.want {
			t.Errorf("DetectChallenge(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

func TestProxyRotatorRoundRobin(t *testing.T) {
	pr := browser.NewProxyRotator(config.ProxyConfig{
		Enabled:  true,
		Rotation: "round_robin",
		URLs:     []string{"http://p1:8080", "http://p2:8080", "::bad"},
	}, testLogger())

	if pr.Count() != 2 {
		t.Fatalf("expected 2 valid proxies, got %d", pr.Count())
	}
	first, second, third := pr.Next(), pr.Next(), pr.Next()
	if first.Host != "p1:8080" || second.Host != "p2:8080" || third.Host != "p1:8080" {
		t.Errorf("unexpected order: %v %v %v", first, second, third)
	}

	pr.MarkFailed(first, errors.New("refused"))
	if pr.HealthyCount() != 1 {
		t.Errorf("expected 1 healthy proxy, got %d", pr.HealthyCount())
	}
	if got := pr.Next(); got.Host != "p2:8080" {
		t.Errorf("failed proxy should be skipped, got %v", got)
	}
}

func TestProxyRotatorDisabled(t *testing.T) {
	pr := browser.NewProxyRotator(config.ProxyConfig{URLs: []string{"http://p1:8080"}}, testLogger())
	if pr.Next() != nil {
		t.Error("disabled rotation should return nil")
	}
}

type panicLauncher struct{}

func (panicLauncher) Name() string { return "panic" }
func (panicLauncher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	panic("chromium exploded")
}

type slowLauncher struct{ s *browsertest.Session }

func (slowLauncher) Name() string { return "slow" }
func (l slowLauncher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	time.Sleep(100 * time.Millisecond)
	return l.s, nil
}

func newManager(t *testing.T, l browser.Launcher, launchTimeout time.Duration) *browser.Manager {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Browser.LaunchTimeout = launchTimeout
	m, err := browser.NewManager(cfg, testLogger(), browser.WithLauncher(l))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestManagerOpenFailure(t *testing.T) {
	m := newManager(t, &browsertest.Launcher{Err: errors.New("no chrome binary")}, time.Second)
	_, err := m.Open(context.Background())

	var sessErr *types.SessionError
	if !errors.As(err, &sessErr) {
		t.Fatalf("expected *SessionError, got %v", err)
	}
	if sessErr.Engine != "fake" {
		t.Errorf("engine: got %q", sessErr.Engine)
	}
}

func TestManagerOpenPanic(t *testing.T) {
	m := newManager(t, panicLauncher{}, time.Second)
	_, err := m.Open(context.Background())

	var sessErr *types.SessionError
	if !errors.As(err, &sessErr) || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected a SessionError for the panic, got %v", err)
	}
}

func TestManagerOpenTimeout(t *testing.T) {
	fake := browsertest.NewSession(nil)
	m := newManager(t, slowLauncher{s: fake}, 10*time.Millisecond)

	_, err := m.Open(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected launch deadline, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fake.Closes() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fake.Closes() != 1 {
		t.Errorf("late session should be closed once, got %d", fake.Closes())
	}
}

func TestManagedSessionClosesOnce(t *testing.T) {
	fake := browsertest.NewSession(nil)
	m := newManager(t, &browsertest.Launcher{Session: fake}, time.Second)

	s, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = s.Close()
	_ = s.Close()
	if fake.Closes() != 1 {
		t.Errorf("expected exactly one close, got %d", fake.Closes())
	}
}

func TestNewLauncher(t *testing.T) {
	for _, name := range []string{"rod", "chromedp"} {
		l, err := browser.NewLauncher(name, testLogger())
		if err != nil || l.Name() != name {
			t.Errorf("NewLauncher(%q) = %v, %v", name, l, err)
		}
	}
	if _, err := browser.NewLauncher("selenium", testLogger()); err == nil {
		t.Error("expected an error for an unknown engine")
	}
}
