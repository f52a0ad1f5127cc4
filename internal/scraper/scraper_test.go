package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/MapPhone/internal/browser"
	"github.com/IshaanNene/MapPhone/internal/browser/browsertest"
	"github.com/IshaanNene/MapPhone/internal/config"
	"github.com/IshaanNene/MapPhone/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const resultsURL = "about:results"

func testConfig() config.ScrapeConfig {
	cfg := config.DefaultConfig().Scrape
	cfg.RetryDelay = 0
	cfg.ScrollDelayMin, cfg.ScrollDelayMax = 0, 0
	cfg.ExtractDelayMin, cfg.ExtractDelayMax = 0, 0
	cfg.NavigationsPerMinute = 0
	return cfg
}

func placeURL(i int) string {
	return fmt.Sprintf("https://www.google.com/maps/place/Cafe+%d/@40.7,-73.9", i)
}

func placePage(i int) *browsertest.Page {
	return &browsertest.Page{
		HTML: fmt.Sprintf(`<html><body><h1>Cafe %d</h1></body></html>`, i),
		Nodes: map[string][]*browsertest.Node{
			"h1": {{Text: fmt.Sprintf("Cafe %d", i)}},
			"a[data-item-id*='authority']": {{Attrs: map[string]string{
				"href": fmt.Sprintf("https://cafe%d.example/?utm_source=maps", i),
			}}},
			"button[data-item-id*='phone']": {{Attrs: map[string]string{
				"aria-label": fmt.Sprintf("Phone: +1 555-010-%04d", i),
			}}},
		},
	}
}

func resultNodes(n int) []*browsertest.Node {
	nodes := make([]*browsertest.Node, 0, n)
	for i := 1; i <= n; i++ {
		nodes = append(nodes, &browsertest.Node{Attrs: map[string]string{"href": placeURL(i)}})
	}
	return nodes
}

// site builds a search page, a single results page with n listings and one
// detail page per listing.
func site(cfg config.ScrapeConfig, n int) map[string]*browsertest.Page {
	pages := map[string]*browsertest.Page{
		cfg.TargetURL: {
			Nodes:    map[string][]*browsertest.Node{cfg.SearchInput: {{}}},
			OnSubmit: resultsURL,
		},
		resultsURL: {
			Nodes: map[string][]*browsertest.Node{
				cfg.FeedSelector:   {{}},
				cfg.ResultSelector: resultNodes(n),
			},
		},
	}
	for i := 1; i <= n; i++ {
		pages[placeURL(i)] = placePage(i)
	}
	return pages
}

type opener struct {
	session browser.Session
	err     error
}

func (o *opener) Open(ctx context.Context) (browser.Session, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.session, nil
}

type memStore struct {
	mu     sync.Mutex
	stored [][]types.BusinessRecord
	err    error
}

func (m *memStore) Store(records []types.BusinessRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, records)
	return nil
}

func (m *memStore) Close() error { return nil }
func (m *memStore) Name() string { return "mem" }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRunCollectsRecords(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(site(cfg, 3))
	store := &memStore{}

	sc := New(cfg, &opener{session: sess}, testLogger, WithStorage(store))
	res, err := sc.Run(context.Background(), "  cafes in brooklyn ")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Phase != PhaseClosed {
		t.Errorf("phase: got %s", res.Phase)
	}
	if res.Err != nil || res.Interrupted {
		t.Errorf("unexpected failure state: err=%v interrupted=%v", res.Err, res.Interrupted)
	}
	if got := sess.Inputs(); len(got) != 1 || got[0] != "cafes in brooklyn" {
		t.Errorf("search input: got %q", got)
	}
	if len(res.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(res.Records))
	}

	want := types.BusinessRecord{Name: "Cafe 1", Website: "https://cafe1.example/", Phone: "+15550100001"}
	if res.Records[0] != want {
		t.Errorf("first record: got %+v, want %+v", res.Records[0], want)
	}
	if res.PhoneCount() != 3 {
		t.Errorf("phone count: got %d", res.PhoneCount())
	}
	if res.Message() != "Scraping complete! Found 3 phone numbers." {
		t.Errorf("message: got %q", res.Message())
	}
	if res.Pagination.Status != PaginationComplete {
		t.Errorf("pagination: got %s", res.Pagination.Status)
	}
	if sess.Closes() != 1 {
		t.Errorf("session closed %d times", sess.Closes())
	}
	if len(store.stored) != 1 || len(store.stored[0]) != 3 {
		t.Errorf("expected one store of 3 records, got %v", store.stored)
	}
}

func TestRunRejectsBlankTerm(t *testing.T) {
	o := &opener{err: errors.New("must not be called")}
	sc := New(testConfig(), o, testLogger)

	if _, err := sc.Run(context.Background(), "   "); !errors.Is(err, types.ErrEmptySearchTerm) {
		t.Fatalf("expected ErrEmptySearchTerm, got %v", err)
	}
}

func TestRunStopsAtRecordBudget(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRecords = 2
	sess := browsertest.NewSession(site(cfg, 5))

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "pizza")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(res.Records))
	}
	if res.LinksHarvested != 5 || res.LinksVisited != 2 {
		t.Errorf("links: harvested %d visited %d", res.LinksHarvested, res.LinksVisited)
	}
}

func TestRunStopsAtTimeBudget(t *testing.T) {
	cfg := testConfig()
	cfg.RunTimeout = 600 * time.Second
	pages := site(cfg, 6)
	sess := browsertest.NewSession(pages)

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	sess.BeforeNavigate = func(ctx context.Context, url string) error {
		if strings.HasPrefix(url, cfg.PlacePrefix) {
			clock.Advance(200 * time.Second)
		}
		return nil
	}

	sc := New(cfg, &opener{session: sess}, testLogger, WithClock(clock.Now))
	res, err := sc.Run(context.Background(), "bakeries")
	if err != nil {
		t.Fatal(err)
	}

	var places []string
	for _, u := range sess.Visited() {
		if strings.HasPrefix(u, cfg.PlacePrefix) {
			places = append(places, u)
		}
	}
	if len(places) != 3 {
		t.Fatalf("expected 3 detail visits within budget, got %d: %v", len(places), places)
	}
	if len(res.Records) != 3 {
		t.Errorf("expected 3 records, got %d", len(res.Records))
	}
}

func TestRunNameOnlyRecord(t *testing.T) {
	cfg := testConfig()
	pages := site(cfg, 1)
	pages[placeURL(1)] = &browsertest.Page{
		HTML:  `<html><body><h1>Quiet Place</h1></body></html>`,
		Nodes: map[string][]*browsertest.Node{"h1": {{Text: "Quiet Place"}}},
	}
	sess := browsertest.NewSession(pages)

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "library")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(res.Records))
	}
	want := types.BusinessRecord{Name: "Quiet Place"}
	if res.Records[0] != want {
		t.Errorf("got %+v", res.Records[0])
	}
	if res.PhoneCount() != 0 {
		t.Errorf("phone count: got %d", res.PhoneCount())
	}
}

func TestRunSnapshotFallback(t *testing.T) {
	cfg := testConfig()
	pages := site(cfg, 1)
	pages[placeURL(1)] = &browsertest.Page{
		HTML: `<html><body><h1>Tel Only</h1>
			<a data-item-id="authority" href="https://telonly.example/home">site</a>
			<a href="tel:+442079460000">call</a></body></html>`,
		Nodes: map[string][]*browsertest.Node{"h1": {{Text: "Tel Only"}}},
	}
	sess := browsertest.NewSession(pages)

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "pubs")
	if err != nil {
		t.Fatal(err)
	}
	want := types.BusinessRecord{Name: "Tel Only", Website: "https://telonly.example/home", Phone: "+442079460000"}
	if len(res.Records) != 1 || res.Records[0] != want {
		t.Errorf("got %+v, want %+v", res.Records, want)
	}
}

func TestRunStructuredDataFallback(t *testing.T) {
	cfg := testConfig()
	pages := site(cfg, 1)
	pages[placeURL(1)] = &browsertest.Page{
		HTML: `<html><head><script type="application/ld+json">
			{"@type":"Bakery","name":"Rye House","url":"https://ryehouse.example/?ref=maps","telephone":"(212) 555-0188"}
			</script></head><body><h1>Rye House</h1></body></html>`,
		Nodes: map[string][]*browsertest.Node{"h1": {{Text: "Rye House"}}},
	}
	sess := browsertest.NewSession(pages)

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "bread")
	if err != nil {
		t.Fatal(err)
	}
	want := types.BusinessRecord{Name: "Rye House", Website: "https://ryehouse.example/", Phone: "2125550188"}
	if len(res.Records) != 1 || res.Records[0] != want {
		t.Errorf("got %+v, want %+v", res.Records, want)
	}
}

func TestRunSessionFailure(t *testing.T) {
	cause := &types.SessionError{Engine: "rod", Err: errors.New("chrome not found")}
	store := &memStore{}

	res, err := New(testConfig(), &opener{err: cause}, testLogger, WithStorage(store)).
		Run(context.Background(), "gyms")
	if err != nil {
		t.Fatalf("session failure should not be returned: %v", err)
	}
	if res.Phase != PhaseAborted {
		t.Errorf("phase: got %s", res.Phase)
	}
	var se *types.SessionError
	if !errors.As(res.Err, &se) {
		t.Errorf("expected SessionError, got %v", res.Err)
	}
	if len(res.Records) != 0 || len(store.stored) != 0 {
		t.Errorf("expected no records and no persistence")
	}
}

func TestRunChallengeAborts(t *testing.T) {
	cfg := testConfig()
	pages := map[string]*browsertest.Page{
		cfg.TargetURL: {HTML: `<div class="g-recaptcha"></div>`},
	}
	sess := browsertest.NewSession(pages)

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "dentists")
	if err != nil {
		t.Fatal(err)
	}
	if res.Phase != PhaseAborted {
		t.Errorf("phase: got %s", res.Phase)
	}
	var ce *types.ChallengeError
	if !errors.As(res.Err, &ce) {
		t.Fatalf("expected ChallengeError, got %v", res.Err)
	}
	if ce.Kind != string(browser.ChallengeReCaptcha) {
		t.Errorf("kind: got %q", ce.Kind)
	}
	if sess.Closes() != 1 {
		t.Errorf("session closed %d times", sess.Closes())
	}
}

func TestRunInterruptKeepsPartial(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(site(cfg, 5))
	store := &memStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.BeforeNavigate = func(_ context.Context, url string) error {
		if url == placeURL(3) {
			cancel()
		}
		return nil
	}

	res, err := New(cfg, &opener{session: sess}, testLogger, WithStorage(store)).Run(ctx, "florists")
	if err != nil {
		t.Fatalf("ReturnPartial should swallow cancellation: %v", err)
	}
	if !res.Interrupted {
		t.Error("expected Interrupted")
	}
	if len(res.Records) != 2 {
		t.Errorf("expected 2 partial records, got %d", len(res.Records))
	}
	if sess.Closes() != 1 {
		t.Errorf("session closed %d times", sess.Closes())
	}
	if len(store.stored) != 1 || len(store.stored[0]) != 2 {
		t.Errorf("partial records should be persisted, got %v", store.stored)
	}
}

func TestRunInterruptPropagates(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(site(cfg, 3))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sess.BeforeNavigate = func(_ context.Context, url string) error {
		if url == placeURL(2) {
			cancel()
		}
		return nil
	}

	sc := New(cfg, &opener{session: sess}, testLogger, WithInterruptMode(Propagate))
	res, err := sc.Run(ctx, "barbers")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res == nil || len(res.Records) != 1 || !res.Interrupted {
		t.Errorf("expected partial result with 1 record, got %+v", res)
	}
}

func TestRunPaginatesBeforeHarvest(t *testing.T) {
	cfg := testConfig()
	pages := site(cfg, 4)

	pages[resultsURL].Nodes[cfg.ResultSelector] = resultNodes(2)
	pages[resultsURL].Nodes[cfg.NextSelector] = []*browsertest.Node{{
		OnClick: func(s *browsertest.Session) { s.SetPage("about:results2") },
	}}
	pages["about:results2"] = &browsertest.Page{
		Nodes: map[string][]*browsertest.Node{
			cfg.FeedSelector:   {{}},
			cfg.ResultSelector: resultNodes(4),
			cfg.NextSelector:   {{Attrs: map[string]string{"aria-disabled": "true"}}},
		},
	}
	sess := browsertest.NewSession(pages)

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "tailors")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pagination.Status != PaginationComplete || res.Pagination.Pages != 1 {
		t.Errorf("pagination: %+v", res.Pagination)
	}
	if len(res.Records) != 4 {
		t.Errorf("expected 4 records, got %d", len(res.Records))
	}
}

func TestRunPaginatorStopsAtDisabledNext(t *testing.T) {
	cfg := testConfig()
	pages := site(cfg, 2)
	clicked := false
	pages[resultsURL].Nodes[cfg.NextSelector] = []*browsertest.Node{{
		Attrs:   map[string]string{"disabled": ""},
		OnClick: func(*browsertest.Session) { clicked = true },
	}}
	sess := browsertest.NewSession(pages)

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(context.Background(), "cobblers")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pagination.Status != PaginationComplete || res.Pagination.Pages != 0 {
		t.Errorf("pagination: %+v", res.Pagination)
	}
	if clicked {
		t.Error("disabled next-page control was clicked")
	}
	if len(res.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(res.Records))
	}
}

func TestRunPageLoadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.PageLoadTimeout = 50 * time.Millisecond
	cfg.MaxAttempts = 2
	sess := browsertest.NewSession(site(cfg, 3))

	stalled := 0
	sess.BeforeNavigate = func(ctx context.Context, url string) error {
		if url != placeURL(2) {
			return nil
		}
		stalled++
		<-ctx.Done()
		return ctx.Err()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := New(cfg, &opener{session: sess}, testLogger).Run(ctx, "laundromats")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Interrupted || res.Err != nil || res.Phase != PhaseClosed {
		t.Fatalf("a stalled page must not end the run: phase=%s err=%v interrupted=%v",
			res.Phase, res.Err, res.Interrupted)
	}
	if stalled != cfg.MaxAttempts {
		t.Errorf("expected %d load attempts on the stalled page, got %d", cfg.MaxAttempts, stalled)
	}
	if len(res.Records) != 2 || res.Records[0].Name != "Cafe 1" || res.Records[1].Name != "Cafe 3" {
		t.Errorf("expected Cafe 1 and Cafe 3, got %+v", res.Records)
	}
	if res.LinksVisited != 3 {
		t.Errorf("links visited: got %d", res.LinksVisited)
	}
}

func TestNavigateTimeout(t *testing.T) {
	sess := browsertest.NewSession(map[string]*browsertest.Page{})
	sess.BeforeNavigate = func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	err := navigate(context.Background(), sess, placeURL(1), 10*time.Millisecond)
	if !errors.Is(err, browser.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = navigate(ctx, sess, placeURL(1), time.Minute)
	if !errors.Is(err, context.Canceled) || errors.Is(err, browser.ErrTimeout) {
		t.Fatalf("cancellation should pass through unchanged, got %v", err)
	}
}

func TestRunLaunchTimeoutIsSessionFailure(t *testing.T) {
	cause := &types.SessionError{Engine: "rod", Err: fmt.Errorf("launch: %w", context.DeadlineExceeded)}

	res, err := New(testConfig(), &opener{err: cause}, testLogger, WithInterruptMode(Propagate)).
		Run(context.Background(), "plumbers")
	if err != nil {
		t.Fatalf("session failure should not be returned: %v", err)
	}
	if res.Phase != PhaseAborted || res.Interrupted {
		t.Errorf("expected aborted, not interrupted: phase=%s interrupted=%v", res.Phase, res.Interrupted)
	}
	var se *types.SessionError
	if !errors.As(res.Err, &se) {
		t.Errorf("expected SessionError, got %v", res.Err)
	}
}

func TestRunStorageFailureKeepsRecords(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(site(cfg, 3))
	store := &memStore{err: errors.New("disk full")}

	res, err := New(cfg, &opener{session: sess}, testLogger, WithStorage(store)).
		Run(context.Background(), "hardware stores")
	if err != nil {
		t.Fatalf("storage failure should not be returned: %v", err)
	}
	if res.Phase != PhaseClosed || res.Err != nil {
		t.Errorf("phase=%s err=%v", res.Phase, res.Err)
	}
	if len(res.Records) != 3 {
		t.Errorf("expected 3 records, got %d", len(res.Records))
	}
}

type sessionPerOpen struct {
	cfg config.ScrapeConfig
}

func (o sessionPerOpen) Open(ctx context.Context) (browser.Session, error) {
	return browsertest.NewSession(site(o.cfg, 1)), nil
}

func TestRunsPaceIndependently(t *testing.T) {
	cfg := testConfig()
	cfg.NavigationsPerMinute = 1
	sc := New(cfg, sessionPerOpen{cfg: cfg}, testLogger)

	for i := range 2 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		res, err := sc.Run(ctx, "locksmiths")
		cancel()
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res.Interrupted || len(res.Records) != 1 {
			t.Errorf("run %d: interrupted=%v records=%d", i, res.Interrupted, len(res.Records))
		}
	}
}

func TestHarvestFiltersAndDedups(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(map[string]*browsertest.Page{
		resultsURL: {Nodes: map[string][]*browsertest.Node{
			cfg.ResultSelector: {
				{Attrs: map[string]string{"href": placeURL(1)}},
				{Stale: true, Attrs: map[string]string{"href": placeURL(9)}},
				{Attrs: map[string]string{"href": "https://www.google.com/maps/search/cafes"}},
				{Attrs: map[string]string{"href": placeURL(2)}},
				{Attrs: map[string]string{"href": placeURL(1)}},
				{},
			},
		}},
	})
	sess.SetPage(resultsURL)

	links, err := NewHarvester(cfg, testLogger, nil).Harvest(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{placeURL(1), placeURL(2)}
	if len(links) != len(want) {
		t.Fatalf("got %v, want %v", links, want)
	}
	for i := range want {
		if links[i] != want[i] {
			t.Errorf("link %d: got %s, want %s", i, links[i], want[i])
		}
	}
}

func TestHarvestNoResults(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(map[string]*browsertest.Page{resultsURL: {}})
	sess.SetPage(resultsURL)

	links, err := NewHarvester(cfg, testLogger, nil).Harvest(context.Background(), sess)
	if err != nil || len(links) != 0 {
		t.Errorf("expected no links and no error, got %v, %v", links, err)
	}
}

func TestPaginatorDeadline(t *testing.T) {
	cfg := testConfig()
	sess := browsertest.NewSession(site(cfg, 1))
	sess.SetPage(resultsURL)

	clock := &fakeClock{now: time.Now()}
	p := NewPaginator(cfg, clock.Now, testLogger, nil)
	res, err := p.Run(context.Background(), sess, clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != PaginationIncomplete {
		t.Errorf("expired deadline should be incomplete, got %s", res.Status)
	}
}

func TestPaginatorExhaustsRetries(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	pages := site(cfg, 1)
	// Clicking does nothing, so the control never goes stale.
	pages[resultsURL].Nodes[cfg.NextSelector] = []*browsertest.Node{{}}
	sess := browsertest.NewSession(pages)
	sess.SetPage(resultsURL)

	res, err := NewPaginator(cfg, time.Now, testLogger, nil).Run(context.Background(), sess, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != PaginationIncomplete {
		t.Errorf("got %s", res.Status)
	}
}

func TestExtractUnloadedPage(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 2
	sess := browsertest.NewSession(map[string]*browsertest.Page{})

	rec, err := NewExtractor(cfg, testLogger, nil).Extract(context.Background(), sess, placeURL(1))
	if err != nil {
		t.Fatal(err)
	}
	if !rec.IsEmpty() {
		t.Errorf("expected empty record, got %+v", rec)
	}
	if n := len(sess.Visited()); n != 2 {
		t.Errorf("expected 2 navigation attempts, got %d", n)
	}
}

func TestPhaseString(t *testing.T) {
	if PhaseSearchSubmitted.String() != "search_submitted" || PhaseAborted.String() != "aborted" {
		t.Error("unexpected phase names")
	}
	if Phase(99).String() != "unknown" {
		t.Error("out of range phase")
	}
}
