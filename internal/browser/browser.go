// Package browser defines the automation capability the scraper drives and
// the backends that provide it.
//
// Any automation library that can navigate, wait for a CSS selector with a
// bound, read text and attributes, click, type, scroll a container and detect
// element staleness satisfies Session and Element. Two backends ship with the
// package: rod (default) and chromedp.
package browser

import (
	"context"
	"errors"
	"time"
)

// Element errors.
var (
	ErrNotFound = errors.New("element not found")
	ErrStale    = errors.New("element is stale")
	ErrTimeout  = errors.New("wait timed out")
)

// ErrClosed is returned by a session that has already been released.
var ErrClosed = errors.New("browser session closed")

// WaitOutcome is the result of a bounded wait.
type WaitOutcome int

const (
	Found WaitOutcome = iota
	TimedOut
)

// String returns the outcome name.
func (o WaitOutcome) String() string {
	switch o {
	case Found:
		return "found"
	case TimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Options configures a browser launch.
type Options struct {
	Headless   bool
	UserAgent  string
	BinPath    string
	WindowSize string // "width,height"
	Proxy      string
	Stealth    bool
}

// Launcher starts browser sessions for one automation backend.
type Launcher interface {
	// Launch starts a browser and opens a single page.
	Launch(ctx context.Context, opts Options) (Session, error)

	// Name returns the backend identifier.
	Name() string
}

// Session is one live browser page.
type Session interface {
	Navigate(ctx context.Context, url string) error

	// Wait blocks until selector matches or timeout elapses. A timeout is
	// reported as TimedOut with a nil error; errors are hard failures.
	Wait(ctx context.Context, selector string, timeout time.Duration) (Element, WaitOutcome, error)

	// Find returns the first match immediately or ErrNotFound.
	Find(ctx context.Context, selector string) (Element, error)

	// FindAll returns every current match, possibly none.
	FindAll(ctx context.Context, selector string) ([]Element, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)

	Close() error
}

// Element is a handle to a node on the current page.
type Element interface {
	Text(ctx context.Context) (string, error)

	// Attribute returns the attribute value and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)

	Click(ctx context.Context) error
	Input(ctx context.Context, text string) error

	// Submit presses Enter with the element focused.
	Submit(ctx context.Context) error

	// ScrollToBottom scrolls the element's own content to its end.
	ScrollToBottom(ctx context.Context) error

	// WaitStale blocks until the element is detached from the document.
	WaitStale(ctx context.Context, timeout time.Duration) (WaitOutcome, error)
}

// Poll evaluates cond every interval until it reports true, returns an error,
// or timeout elapses.
func Poll(ctx context.Context, timeout, interval time.Duration, cond func(ctx context.Context) (bool, error)) (WaitOutcome, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for {
		ok, err := cond(ctx)
		if err != nil {
			return TimedOut, err
		}
		if ok {
			return Found, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return TimedOut, ctx.Err()
		case <-t.C:
		}
	}
}

// pollInterval is how often backends re-check a pending wait.
const pollInterval = 200 * time.Millisecond
