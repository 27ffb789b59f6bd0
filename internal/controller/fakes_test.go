package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/dedup"
	"github.com/JakeFAU/directory-crawler/internal/site"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

// fakeSite answers every URL from a fixed table; unknown URLs fail fatally.
type fakeSite struct {
	mu        sync.Mutex
	responses map[string]crawler.FetchOutcome
	fetched   []string
	sessions  []string
	closed    int
}

func newFakeSite() *fakeSite {
	return &fakeSite{responses: make(map[string]crawler.FetchOutcome)}
}

func (f *fakeSite) on(url string, outcome crawler.FetchOutcome) {
	outcome.URL = url
	f.responses[url] = outcome
}

func (f *fakeSite) NewSession(region crawler.Region) (crawler.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, region.ID)
	return &fakeSession{site: f}, nil
}

func (f *fakeSite) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.fetched {
		if u == url {
			n++
		}
	}
	return n
}

func (f *fakeSite) countPrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.fetched {
		if len(u) >= len(prefix) && u[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

type fakeSession struct{ site *fakeSite }

func (s *fakeSession) Fetch(ctx context.Context, url string, _ int) crawler.FetchOutcome {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	s.site.fetched = append(s.site.fetched, url)
	if err := ctx.Err(); err != nil {
		return crawler.FetchOutcome{Kind: crawler.OutcomeFatal, URL: url, Err: err, Reason: "canceled"}
	}
	if outcome, ok := s.site.responses[url]; ok {
		return outcome
	}
	return crawler.FetchOutcome{
		Kind:   crawler.OutcomeFatal,
		URL:    url,
		Reason: "no fixture",
		Err:    fmt.Errorf("%w after 1 attempts: no fixture", crawler.ErrFetchExhausted),
	}
}

func (s *fakeSession) Close() {
	s.site.mu.Lock()
	defer s.site.mu.Unlock()
	s.site.closed++
}

func page(body string) crawler.FetchOutcome {
	return crawler.FetchOutcome{Kind: crawler.OutcomeSuccess, Status: 200, Body: []byte(body)}
}

func forbidden() crawler.FetchOutcome {
	return crawler.FetchOutcome{
		Kind:        crawler.OutcomeBlocked,
		Status:      403,
		BlockReason: crawler.BlockForbidden,
		Reason:      "forbidden",
	}
}

// fakeListing and fakePagination key their answers by page body.
type fakeListing map[string][]crawler.RecordSummary

func (f fakeListing) ParseListing(body []byte) ([]crawler.RecordSummary, error) {
	return f[string(body)], nil
}

type fakePagination map[string]crawler.PaginationInfo

func (f fakePagination) Infer(body []byte, _ int, _ string) (crawler.PaginationInfo, error) {
	return f[string(body)], nil
}

func next(pageIndex int, strategy string) crawler.PaginationInfo {
	return crawler.PaginationInfo{Next: &crawler.PageCursor{PageIndex: pageIndex}, Strategy: strategy}
}

type fakeRecords struct{}

func (fakeRecords) ParseRecord(body []byte, id crawler.RecordID, region crawler.Region) (crawler.Record, error) {
	if string(body) == "missing" {
		return crawler.Record{}, fmt.Errorf("detail %s: %w", id, crawler.ErrParseMissing)
	}
	return crawler.Record{ID: id, Region: region.Name(), City: string(body)}, nil
}

type fakeCheckpoints struct {
	mu      sync.Mutex
	initial crawler.Checkpoint
	saves   []crawler.Checkpoint
	minimal []crawler.Checkpoint
	failOn  int
}

func (f *fakeCheckpoints) Load(context.Context) (crawler.Checkpoint, error) {
	return f.initial.Clone(), nil
}

func (f *fakeCheckpoints) Save(_ context.Context, cp crawler.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.saves)+1 == f.failOn {
		return errors.New("disk full")
	}
	f.saves = append(f.saves, cp.Clone())
	return nil
}

func (f *fakeCheckpoints) SaveMinimal(_ context.Context, cp crawler.Checkpoint, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minimal = append(f.minimal, cp.Clone())
	return nil
}

func (f *fakeCheckpoints) last(t *testing.T) crawler.Checkpoint {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.saves, "expected at least one checkpoint save")
	return f.saves[len(f.saves)-1]
}

type fakeTable struct {
	mu      sync.Mutex
	batches [][]crawler.Record
	err     error
}

func (f *fakeTable) Write(_ context.Context, _ crawler.Region, records []crawler.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]crawler.Record(nil), records...))
	return nil
}

func (f *fakeTable) records() []crawler.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []crawler.Record
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

// fakeSleeper returns immediately; onSleep may cancel the run.
type fakeSleeper struct {
	mu      sync.Mutex
	waits   []time.Duration
	onSleep func(n int)
}

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	n := len(f.waits)
	hook := f.onSleep
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return ctx.Err()
}

type harness struct {
	layout      *site.Layout
	site        *fakeSite
	listing     fakeListing
	pagination  fakePagination
	checkpoints *fakeCheckpoints
	table       *fakeTable
	sleeper     *fakeSleeper
	dedup       *dedup.Set
	cfg         Config
	regions     []crawler.Region
}

func newHarness(t *testing.T, regions ...crawler.Region) *harness {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Site.BaseURL = "https://directory.test/"
	layout, err := site.New(cfg.Site)
	require.NoError(t, err)
	if len(regions) == 0 {
		regions = []crawler.Region{{ID: "Berlin", DisplayName: "berlin"}}
	}
	return &harness{
		layout:      layout,
		site:        newFakeSite(),
		listing:     fakeListing{},
		pagination:  fakePagination{},
		checkpoints: &fakeCheckpoints{initial: crawler.NewCheckpoint(0)},
		table:       &fakeTable{},
		sleeper:     &fakeSleeper{},
		dedup:       dedup.New(afero.NewMemMapFs(), "processed.json", fakeClock{now: baseTime}),
		cfg: Config{
			MaxAttempts:         3,
			CheckpointEvery:     10,
			MaxFallbackAdvances: 100,
			PageSize:            10,
			FlakyPageIndex:      5,
			PageDelay:           crawler.DelayRange{Min: time.Second, Max: time.Second},
			RecordDelay:         crawler.DelayRange{Min: 300 * time.Millisecond, Max: 300 * time.Millisecond},
			Topic:               "regions",
		},
		regions: regions,
	}
}

func (h *harness) controller(t *testing.T, extra func(*Deps)) *Controller {
	t.Helper()
	deps := Deps{
		Regions:     h.regions,
		Layout:      h.layout,
		Sessions:    h.site,
		Listing:     h.listing,
		Records:     fakeRecords{},
		Pagination:  h.pagination,
		Dedup:       h.dedup,
		Checkpoints: h.checkpoints,
		Table:       h.table,
		Clock:       fakeClock{now: baseTime},
		Sleeper:     h.sleeper,
	}
	if extra != nil {
		extra(&deps)
	}
	c, err := New(h.cfg, deps)
	require.NoError(t, err)
	return c
}

// listingPage registers a listing page and its detail pages.
func (h *harness) listingPage(url, body string, info crawler.PaginationInfo, ids ...string) {
	h.site.on(url, page(body))
	summaries := make([]crawler.RecordSummary, 0, len(ids))
	for _, id := range ids {
		summaries = append(summaries, crawler.RecordSummary{ID: crawler.RecordID(id), Name: "company " + id})
		detail := h.layout.DetailURL(crawler.RecordID(id))
		if _, ok := h.site.responses[detail]; !ok {
			h.site.on(detail, page("city-"+id))
		}
	}
	h.listing[body] = summaries
	h.pagination[body] = info
}

func (h *harness) detailPrefix() string {
	return h.layout.DetailURL("")
}
