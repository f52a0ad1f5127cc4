// Package browsertest provides an in-memory browser.Session for tests.
//
// A Session holds a set of Pages keyed by URL. Each Page maps CSS selectors
// to the Nodes they match. Navigation switches the current page; nodes from a
// page that is no longer current report themselves stale.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IshaanNene/MapPhone/internal/browser"
)

// Node is a fake DOM element.
type Node struct {
	Text  string
	Attrs map[string]string

	// Stale makes every read fail with browser.ErrStale.
	Stale bool

	// OnClick runs when the node is clicked.
	OnClick func(s *Session)

	// OnScroll runs when the node is scrolled to its bottom.
	OnScroll func(s *Session)
}

// Page is a fake document.
type Page struct {
	HTML  string
	Nodes map[string][]*Node

	// OnSubmit is the URL that becomes current when any node on this page is
	// submitted.
	OnSubmit string
}

// Session is a scripted browser.Session.
type Session struct {
	mu      sync.Mutex
	pages   map[string]*Page
	current *Page

	visited []string
	inputs  []string
	closes  int

	// BeforeNavigate runs before every navigation; a non-nil error aborts it.
	BeforeNavigate func(ctx context.Context, url string) error
}

// NewSession creates a session over pages.
func NewSession(pages map[string]*Page) *Session {
	return &Session{pages: pages}
}

// SetPage makes url current without recording a visit.
func (s *Session) SetPage(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = s.pages[url]
}

// Visited returns the URLs navigated to, in order.
func (s *Session) Visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.visited...)
}

// Inputs returns the text typed into any element.
func (s *Session) Inputs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

// Closes returns how many times Close was called.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.BeforeNavigate != nil {
		if err := s.BeforeNavigate(ctx, url); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.visited = append(s.visited, url)
	s.current = s.pages[url]
	return nil
}

func (s *Session) matches(selector string) (*Page, []*Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, nil
	}
	return s.current, s.current.Nodes[selector]
}

// Wait never sleeps: a selector either matches now or times out.
func (s *Session) Wait(ctx context.Context, selector string, timeout time.Duration) (browser.Element, browser.WaitOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, browser.TimedOut, err
	}
	page, nodes := s.matches(selector)
	if len(nodes) == 0 {
		return nil, browser.TimedOut, nil
	}
	return &element{s: s, page: page, node: nodes[0]}, browser.Found, nil
}

func (s *Session) Find(ctx context.Context, selector string) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, nodes := s.matches(selector)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrNotFound, selector)
	}
	return &element{s: s, page: page, node: nodes[0]}, nil
}

func (s *Session) FindAll(ctx context.Context, selector string) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, nodes := s.matches(selector)
	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{s: s, page: page, node: n})
	}
	return out, nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", nil
	}
	return s.current.HTML, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

type element struct {
	s    *Session
	page *Page
	node *Node
}

func (e *element) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.node.Stale || !e.live() {
		return browser.ErrStale
	}
	return nil
}

func (e *element) live() bool {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.s.current == e.page
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := e.check(ctx); err != nil {
		return "", err
	}
	return e.node.Text, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.check(ctx); err != nil {
		return "", false, err
	}
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

func (e *element) Click(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if e.node.OnClick != nil {
		e.node.OnClick(e.s)
	}
	return nil
}

func (e *element) Input(ctx context.Context, text string) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	e.s.mu.Lock()
	e.s.inputs = append(e.s.inputs, text)
	e.s.mu.Unlock()
	return nil
}

func (e *element) Submit(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if e.page.OnSubmit != "" {
		e.s.SetPage(e.page.OnSubmit)
	}
	return nil
}

func (e *element) ScrollToBottom(ctx context.Context) error {
	if err := e.check(ctx); err != nil {
		return err
	}
	if e.node.OnScroll != nil {
		e.node.OnScroll(e.s)
	}
	return nil
}

func (e *element) WaitStale(ctx context.Context, timeout time.Duration) (browser.WaitOutcome, error) {
	if err := ctx.Err(); err != nil {
		return browser.TimedOut, err
	}
	if e.live() {
		return browser.TimedOut, nil
	}
	return browser.Found, nil
}

// Launcher is a browser.Launcher that hands out a prepared Session.
type Launcher struct {
	Session *Session
	Err     error

	mu       sync.Mutex
	launches int
}

func (l *Launcher) Name() string { return "fake" }

func (l *Launcher) Launch(ctx context.Context, opts browser.Options) (browser.Session, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Session, nil
}

// Launches returns how many times Launch was called.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}
