package controller

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/progress"
	"github.com/JakeFAU/directory-crawler/internal/publisher/memory"
)

func TestRunResumesBerlinAndSkipsProcessedRecords(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	berlin := h.regions[0]

	processed := make(map[crawler.RecordID]time.Time)
	for i := 1; i <= 15; i++ {
		processed[crawler.RecordID(fmt.Sprintf("p%02d", i))] = baseTime.Add(-time.Hour)
	}
	h.checkpoints.initial = crawler.Checkpoint{RegionIndex: 0, PageIndex: 2, ProcessedIDs: processed}

	h.site.on(h.layout.FirstPageURL(berlin), page("first"))
	h.pagination["first"] = crawler.PaginationInfo{Token: "tok", Next: &crawler.PageCursor{PageIndex: 1}, Strategy: "links"}

	ids := []string{"p01", "n1", "p02", "n2", "n3", "p03", "n4", "n5", "p04", "n6"}
	info := next(3, "links")
	info.TotalEntries = 47
	h.listingPage(h.layout.ContinuationURL("tok", 2), "page2", info, ids...)
	pageThree := h.layout.ContinuationURL("tok", 3)
	h.site.on(pageThree, forbidden())

	err := h.controller(t, nil).Run(context.Background())

	var abort *crawler.AbortError
	require.ErrorAs(t, err, &abort)
	require.ErrorIs(t, err, crawler.ErrBlocked)
	assert.Equal(t, 403, abort.Status)
	assert.Equal(t, 3, abort.PageIndex)

	assert.Equal(t, 6, h.site.countPrefix(h.detailPrefix()), "only unseen records are fetched")
	assert.Equal(t, 21, h.dedup.Len())
	assert.Equal(t, 1, h.site.count(pageThree), "blocked page is never retried")

	last := h.checkpoints.last(t)
	assert.Equal(t, 0, last.RegionIndex)
	assert.Equal(t, 3, last.PageIndex)
	assert.Len(t, last.ProcessedIDs, 21)

	written := h.table.records()
	require.Len(t, written, 6)
	assert.Equal(t, crawler.RecordID("n1"), written[0].ID)
	assert.Equal(t, "company n1", written[0].Name, "listing values backfill the record")
	assert.Equal(t, baseTime, written[0].ScrapedAt)
}

func TestRunAbortsOnForbiddenFirstPage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	first := h.layout.FirstPageURL(h.regions[0])
	h.site.on(first, forbidden())

	err := h.controller(t, nil).Run(context.Background())

	var abort *crawler.AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "berlin", abort.Region)
	assert.Equal(t, 0, abort.PageIndex)
	assert.Equal(t, []string{first}, h.site.fetched)
	assert.Equal(t, 0, h.checkpoints.last(t).PageIndex)
	assert.Equal(t, 1, h.site.closed)
}

func TestRunFetchesDetailsAndCheckpointsEveryN(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.CheckpointEvery = 2
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", crawler.PaginationInfo{TotalEntries: 5},
		"a", "b", "c", "d", "e")

	require.NoError(t, h.controller(t, nil).Run(context.Background()))

	require.Len(t, h.table.batches, 3)
	assert.Len(t, h.table.batches[0], 2)
	assert.Len(t, h.table.batches[1], 2)
	assert.Len(t, h.table.batches[2], 1)

	last := h.checkpoints.last(t)
	assert.Equal(t, 1, last.RegionIndex)
	assert.Equal(t, 0, last.PageIndex)
	assert.Equal(t, []string{"Berlin"}, last.CompletedRegions)
	assert.Len(t, last.ProcessedIDs, 5)
	assert.Len(t, h.sleeper.waits, 5, "one delay per processed record")
}

func TestRunWalksPagesAndAdvancesRegions(t *testing.T) {
	t.Parallel()

	berlin := crawler.Region{ID: "Berlin", DisplayName: "berlin"}
	bremen := crawler.Region{ID: "Bremen", DisplayName: "bremen", Token: "static-bremen"}
	h := newHarness(t, berlin, bremen)

	first := next(1, "links")
	first.Token = "tok-berlin"
	h.listingPage(h.layout.FirstPageURL(berlin), "berlin0", first, "b1")
	h.listingPage(h.layout.ContinuationURL("tok-berlin", 1), "berlin1", crawler.PaginationInfo{}, "b2")
	h.listingPage(h.layout.FirstPageURL(bremen), "bremen0", next(1, "links"), "h1")
	h.listingPage(h.layout.ContinuationURL("static-bremen", 1), "bremen1", crawler.PaginationInfo{}, "h2")

	pub := memory.New()
	hub := &captureEmitter{}
	runID := uuid.New()
	c := h.controller(t, func(d *Deps) {
		d.Publisher = pub
		d.Reporter = progress.NewReporter(hub, runID, nil)
	})
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []string{"Berlin", "Bremen"}, h.site.sessions, "one session per region")
	assert.Equal(t, 2, h.site.closed)
	assert.Len(t, h.table.records(), 4)

	status := c.Status()
	assert.Equal(t, "finished", status.State)
	assert.Equal(t, 2, status.RegionIndex)
	assert.Equal(t, 4, status.Processed)
	assert.Equal(t, []string{"Berlin", "Bremen"}, status.CompletedRegions)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	var evt crawler.RegionCompleted
	require.NoError(t, msgs[1].Decode(&evt))
	assert.Equal(t, "Bremen", evt.Region)
	assert.Equal(t, runID.String(), evt.RunID)
	assert.Equal(t, 2, evt.Records)
	assert.Equal(t, 2, evt.Pages)
	assert.Equal(t, "regions", msgs[1].Topic)
	assert.Equal(t, "region_completed", msgs[1].Attributes["event"])

	stages := hub.stages()
	require.NotEmpty(t, stages)
	assert.Equal(t, progress.StageRunStart, stages[0])
	assert.Equal(t, progress.StageRunDone, stages[len(stages)-1])
	assert.Contains(t, stages, progress.StageRegionDone)
	for _, evt := range hub.events {
		require.NoError(t, evt.Validate(), evt.Stage)
	}
}

func TestRunInterruptFlushesAndCheckpoints(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", next(1, "links"), "a", "b", "c")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.sleeper.onSleep = func(int) { cancel() }

	err := h.controller(t, nil).Run(ctx)
	require.ErrorIs(t, err, crawler.ErrInterrupted)

	assert.Equal(t, 1, h.site.countPrefix(h.detailPrefix()))
	require.Len(t, h.table.records(), 1)
	last := h.checkpoints.last(t)
	assert.Equal(t, 0, last.PageIndex)
	assert.Len(t, last.ProcessedIDs, 1)
}

func TestRunRetriesFlakyPageWithAlternateURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.FlakyPageIndex = 1
	info := next(1, "links")
	info.Token = "tok"
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", info, "a")
	h.listingPage(h.layout.AlternateURL(1), "alt1", crawler.PaginationInfo{}, "b")

	require.NoError(t, h.controller(t, nil).Run(context.Background()))

	assert.Equal(t, 1, h.site.count(h.layout.ContinuationURL("tok", 1)))
	assert.Equal(t, 1, h.site.count(h.layout.AlternateURL(1)))
	assert.Len(t, h.table.records(), 2)
	assert.Equal(t, 1, h.checkpoints.last(t).RegionIndex)
}

func TestRunRetriesFlakyPageWithoutPaginationControl(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.FlakyPageIndex = 1
	info := next(1, "links")
	info.Token = "tok"
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", info, "a")
	h.listingPage(h.layout.ContinuationURL("tok", 1), "page1", crawler.PaginationInfo{}, "b1", "b2")
	h.listingPage(h.layout.AlternateURL(1), "alt1", next(2, "links"), "b1", "b2")
	h.listingPage(h.layout.ContinuationURL("tok", 2), "page2", crawler.PaginationInfo{}, "c")

	require.NoError(t, h.controller(t, nil).Run(context.Background()))

	assert.Equal(t, 1, h.site.count(h.layout.AlternateURL(1)))
	assert.Equal(t, 1, h.site.count(h.layout.ContinuationURL("tok", 2)))
	assert.Equal(t, 1, h.site.count(h.layout.DetailURL("b1")), "records from the first copy are not refetched")
	assert.Len(t, h.table.records(), 4)
	assert.Equal(t, 1, h.checkpoints.last(t).RegionIndex)
}

func TestRunTrustsFlakyPageWithPaginationControl(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.FlakyPageIndex = 1
	info := next(1, "links")
	info.Token = "tok"
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", info, "a")
	h.listingPage(h.layout.ContinuationURL("tok", 1), "page1", crawler.PaginationInfo{LinkCount: 2}, "b")

	require.NoError(t, h.controller(t, nil).Run(context.Background()))

	assert.Zero(t, h.site.count(h.layout.AlternateURL(1)), "a rendered control without a later page is the last page")
	assert.Len(t, h.table.records(), 2)
}

func TestRunEndsRegionWhenAlternateURLFails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.FlakyPageIndex = 1
	info := next(1, "links")
	info.Token = "tok"
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", info, "a")
	h.site.on(h.layout.AlternateURL(1), crawler.FetchOutcome{
		Kind: crawler.OutcomeBlocked, Status: 503, BlockReason: crawler.BlockHTTPError,
	})

	require.NoError(t, h.controller(t, nil).Run(context.Background()))
	assert.Equal(t, 1, h.checkpoints.last(t).RegionIndex)
}

func TestRunAbortsOnFatalPageOutsideFlakyIndex(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	info := next(1, "links")
	info.Token = "tok"
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", info, "a")

	err := h.controller(t, nil).Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrFetchExhausted)
	assert.Zero(t, h.site.count(h.layout.AlternateURL(1)))
	assert.Equal(t, 1, h.checkpoints.last(t).PageIndex)
}

func TestRunBoundsArithmeticFallback(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.cfg.MaxFallbackAdvances = 2
	region := h.regions[0]
	token, _ := h.layout.ResolveToken(region, "")
	h.listingPage(h.layout.FirstPageURL(region), "page0", next(1, "arithmetic"), "a")
	for i := 1; i <= 4; i++ {
		body := fmt.Sprintf("page%d", i)
		h.listingPage(h.layout.ContinuationURL(token, i), body, next(i+1, "arithmetic"), fmt.Sprintf("r%d", i))
	}

	require.NoError(t, h.controller(t, nil).Run(context.Background()))

	assert.Equal(t, 1, h.site.count(h.layout.ContinuationURL(token, 2)))
	assert.Zero(t, h.site.count(h.layout.ContinuationURL(token, 3)), "third consecutive fallback ends the region")
	assert.Len(t, h.table.records(), 3)
}

func TestRunEndsRegionOnEmptyFallbackPage(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	region := h.regions[0]
	token, _ := h.layout.ResolveToken(region, "")
	h.listingPage(h.layout.FirstPageURL(region), "page0", crawler.PaginationInfo{TotalEntries: 47}, "a")
	h.listingPage(h.layout.ContinuationURL(token, 1), "page1", next(2, "arithmetic"))

	require.NoError(t, h.controller(t, nil).Run(context.Background()))
	assert.Zero(t, h.site.count(h.layout.ContinuationURL(token, 2)))
	assert.Equal(t, 1, h.checkpoints.last(t).RegionIndex)
}

func TestRunSkipsUnparseableAndFailedDetails(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.site.on(h.layout.DetailURL("broken"), page("missing"))
	h.site.on(h.layout.DetailURL("gone"), crawler.FetchOutcome{
		Kind: crawler.OutcomeFatal, Reason: "timeout", Err: errors.New("timeout"),
	})
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", crawler.PaginationInfo{}, "broken", "gone", "ok")

	require.NoError(t, h.controller(t, nil).Run(context.Background()))
	assert.False(t, h.dedup.Seen("broken"))
	assert.False(t, h.dedup.Seen("gone"))
	assert.True(t, h.dedup.Seen("ok"))
	assert.Len(t, h.table.records(), 1)
}

func TestRunAbortsOnPersistenceFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.table.err = errors.New("read-only filesystem")
	h.listingPage(h.layout.FirstPageURL(h.regions[0]), "page0", next(1, "links"), "a")

	err := h.controller(t, nil).Run(context.Background())
	require.ErrorIs(t, err, crawler.ErrPersistence)
	require.Len(t, h.checkpoints.minimal, 1)
	assert.Empty(t, h.checkpoints.saves)
}

func TestRunWithEveryRegionCompleted(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.checkpoints.initial = crawler.NewCheckpoint(1)

	c := h.controller(t, nil)
	require.NoError(t, c.Run(context.Background()))
	assert.Empty(t, h.site.fetched)
	assert.Equal(t, "finished", c.Status().State)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestStateNames(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "page_fetch", StatePageFetch.String())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateRecordLoop.Terminal())
}

type captureEmitter struct {
	events []progress.Event
}

func (c *captureEmitter) Emit(evt progress.Event) {
	c.events = append(c.events, evt)
}

func (c *captureEmitter) stages() []progress.Stage {
	out := make([]progress.Stage, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Stage)
	}
	return out
}
