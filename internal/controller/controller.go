// Package controller drives the region/page/record crawl state machine.
//
// The walk is strictly sequential: one region, one listing page, one record
// at a time. Every transition re-checks the context, and every exit path
// flushes the in-memory batch and saves a checkpoint before returning.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/metrics"
	"github.com/JakeFAU/directory-crawler/internal/pagination"
	"github.com/JakeFAU/directory-crawler/internal/progress"
	"github.com/JakeFAU/directory-crawler/internal/site"
	"github.com/JakeFAU/directory-crawler/internal/telemetry"
)

// Config controls pacing and the termination bounds of the walk.
type Config struct {
	MaxAttempts         int
	CheckpointEvery     int
	MaxFallbackAdvances int
	PageSize            int
	FlakyPageIndex      int
	PageDelay           crawler.DelayRange
	RecordDelay         crawler.DelayRange
	// Topic receives RegionCompleted notifications when a Publisher is set.
	Topic string
}

// Deps are the collaborators of a Controller. Publisher, Reporter, Rand and
// Logger are optional.
type Deps struct {
	Regions     []crawler.Region
	Layout      *site.Layout
	Sessions    crawler.SessionFactory
	Listing     crawler.ListingParser
	Records     crawler.RecordParser
	Pagination  crawler.PaginationInferrer
	Dedup       crawler.Deduplicator
	Checkpoints crawler.CheckpointStore
	Table       crawler.TableSink
	Publisher   crawler.Publisher
	Reporter    *progress.Reporter
	Clock       crawler.Clock
	Sleeper     crawler.Sleeper
	Rand        *rand.Rand
	Logger      *zap.Logger
}

// Status is a point-in-time view of the crawl for the status endpoint.
type Status struct {
	State            string    `json:"state"`
	Region           string    `json:"region,omitempty"`
	RegionIndex      int       `json:"region_index"`
	RegionCount      int       `json:"region_count"`
	PageIndex        int       `json:"page_index"`
	Processed        int       `json:"processed"`
	SavedAt          time.Time `json:"saved_at"`
	CompletedRegions []string  `json:"completed_regions"`
}

// Controller runs the crawl state machine.
type Controller struct {
	cfg  Config
	deps Deps

	mu     sync.RWMutex
	status Status
}

// New validates deps and applies config defaults.
func New(cfg Config, deps Deps) (*Controller, error) {
	switch {
	case len(deps.Regions) == 0:
		return nil, errors.New("controller: at least one region is required")
	case deps.Layout == nil:
		return nil, errors.New("controller: layout is required")
	case deps.Sessions == nil:
		return nil, errors.New("controller: session factory is required")
	case deps.Listing == nil || deps.Records == nil || deps.Pagination == nil:
		return nil, errors.New("controller: listing, record and pagination parsers are required")
	case deps.Dedup == nil || deps.Checkpoints == nil || deps.Table == nil:
		return nil, errors.New("controller: dedup, checkpoint store and table sink are required")
	case deps.Clock == nil || deps.Sleeper == nil:
		return nil, errors.New("controller: clock and sleeper are required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = 10
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		status: Status{State: "idle", RegionCount: len(deps.Regions)},
	}, nil
}

// Status returns the latest known crawl position.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := c.status
	out.CompletedRegions = slices.Clone(c.status.CompletedRegions)
	return out
}

func (c *Controller) setStatus(r *run, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = state.String()
	c.status.Region = r.region.Name()
	c.status.RegionIndex = r.cp.RegionIndex
	c.status.PageIndex = r.cp.PageIndex
	c.status.Processed = c.deps.Dedup.Len()
	if !r.cp.SavedAt.IsZero() {
		c.status.SavedAt = r.cp.SavedAt
	}
	c.status.CompletedRegions = slices.Clone(r.cp.CompletedRegions)
}

// Run loads the checkpoint and walks the remaining regions. It returns nil on
// completion, an error wrapping crawler.ErrInterrupted when ctx is canceled,
// and a *crawler.AbortError when the remote side blocks the crawl or progress
// cannot be persisted.
func (c *Controller) Run(ctx context.Context) error {
	cp, err := c.deps.Checkpoints.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load checkpoint: %w", crawler.ErrPersistence, err)
	}
	if cp.ProcessedIDs == nil {
		cp.ProcessedIDs = make(map[crawler.RecordID]time.Time)
	}
	if err := c.deps.Dedup.Seed(ctx, cp.ProcessedIDs); err != nil {
		return fmt.Errorf("seed processed ids: %w", err)
	}

	r := &run{c: c, cp: cp, started: c.deps.Clock.Now()}
	if cp.RegionIndex >= len(c.deps.Regions) {
		c.deps.Logger.Info("nothing to crawl",
			zap.Int("region_index", cp.RegionIndex),
			zap.Int("regions", len(c.deps.Regions)),
			zap.Error(crawler.ErrRegionsExhausted))
		c.setStatus(r, StateFinished)
		return nil
	}

	c.deps.Logger.Info("resuming crawl",
		zap.Int("region_index", cp.RegionIndex),
		zap.Int("page_index", cp.PageIndex),
		zap.Int("processed", c.deps.Dedup.Len()))
	r.emit(progress.Event{Stage: progress.StageRunStart, RegionIndex: cp.RegionIndex, PageIndex: cp.PageIndex})
	return r.loop(ctx)
}

// run is the mutable state of one Run call.
type run struct {
	c       *Controller
	cp      crawler.Checkpoint
	started time.Time

	region        crawler.Region
	regionStarted time.Time
	session       crawler.Session
	cursor        crawler.PageCursor
	page          crawler.FetchOutcome
	summaries     []crawler.RecordSummary
	info          crawler.PaginationInfo
	skipped       int

	batch           []crawler.Record
	sinceCheckpoint int
	regionRecords   int
	regionPages     int

	fallbackRun       int
	arrivedByFallback bool
	triedAlternate    bool

	state         State
	abort         *crawler.AbortError
	persistFailed bool
}

var arithmeticStrategy = pagination.ArithmeticStrategy{}.Name()

func (r *run) loop(ctx context.Context) error {
	state := StateRegionStart
	for {
		if !state.Terminal() && ctx.Err() != nil {
			state = StateInterrupted
		}
		r.state = state
		r.c.setStatus(r, state)
		var next State
		switch state {
		case StateRegionStart:
			next = r.regionStart(ctx)
		case StatePageFetch:
			next = r.pageFetch(ctx)
		case StatePageParse:
			next = r.pageParse(ctx)
		case StateRecordLoop:
			next = r.recordLoop(ctx)
		case StatePageAdvance:
			next = r.pageAdvance(ctx)
		case StateRegionDone:
			next = r.regionDone(ctx)
		case StateAborted:
			return r.aborted(ctx)
		case StateInterrupted:
			return r.interrupted(ctx)
		case StateFinished:
			return r.finished()
		default:
			return fmt.Errorf("controller: unknown state %d", state)
		}
		state = next
	}
}

func (r *run) logger() *zap.Logger {
	return r.c.deps.Logger.With(
		zap.String("region", r.region.Name()),
		zap.Int("page_index", r.cursor.PageIndex),
	)
}

func (r *run) emit(evt progress.Event) {
	if evt.Region == "" {
		evt.Region = r.region.Name()
	}
	if evt.RegionCount == 0 {
		evt.RegionCount = len(r.c.deps.Regions)
	}
	if evt.Processed == 0 {
		evt.Processed = r.c.deps.Dedup.Len()
	}
	r.c.deps.Reporter.Emit(evt)
}

func (r *run) regionStart(ctx context.Context) State {
	if r.cp.RegionIndex >= len(r.c.deps.Regions) {
		return StateFinished
	}
	r.region = r.c.deps.Regions[r.cp.RegionIndex]
	r.regionStarted = r.c.deps.Clock.Now()
	r.regionRecords, r.regionPages = 0, 0
	r.fallbackRun, r.arrivedByFallback, r.triedAlternate = 0, false, false
	r.cursor = crawler.PageCursor{Region: r.region, PageIndex: r.cp.PageIndex}

	session, err := r.c.deps.Sessions.NewSession(r.region)
	if err != nil {
		return r.fail(fmt.Errorf("open session: %w", err), crawler.FetchOutcome{})
	}
	r.session = session

	r.emit(progress.Event{
		Stage:       progress.StageRegionStart,
		RegionIndex: r.cp.RegionIndex,
		PageIndex:   r.cursor.PageIndex,
	})

	if r.cursor.PageIndex > 0 {
		return r.primeToken(ctx)
	}
	return StatePageFetch
}

// primeToken visits the region's first page when resuming mid-region. The
// continuation token is bound to the server-side session, so the fresh session
// has to run the search before later pages resolve.
func (r *run) primeToken(ctx context.Context) State {
	url := r.c.deps.Layout.FirstPageURL(r.region)
	outcome := r.session.Fetch(ctx, url, r.c.cfg.MaxAttempts)
	if ctx.Err() != nil {
		return StateInterrupted
	}
	extracted := ""
	switch {
	case outcome.OK():
		info, err := r.c.deps.Pagination.Infer(outcome.Body, 0, url)
		if err != nil {
			r.logger().Warn("first page unparseable, using fallback token", zap.Error(err))
		}
		extracted = info.Token
	case outcome.Kind == crawler.OutcomeBlocked:
		return r.fail(crawler.ErrBlocked, outcome)
	default:
		r.logger().Warn("first page fetch failed, using fallback token",
			zap.String("url", url), zap.String("reason", outcome.Reason))
	}
	r.resolveToken(extracted)
	return StatePageFetch
}

func (r *run) resolveToken(extracted string) {
	if r.cursor.TokenSource == crawler.TokenExtracted {
		return
	}
	token, src := r.c.deps.Layout.ResolveToken(r.region, extracted)
	if src == r.cursor.TokenSource && token == r.cursor.Token {
		return
	}
	r.cursor.Token, r.cursor.TokenSource = token, src
	r.logger().Debug("continuation token resolved", zap.Stringer("source", src))
}

func (r *run) pageFetch(ctx context.Context) State {
	url := r.c.deps.Layout.PageURL(r.cursor)
	ctx, span := telemetry.StartSpan(ctx, "crawl.page", "region", r.region.ID, "url", url)
	defer span.End()

	outcome := r.session.Fetch(ctx, url, r.c.cfg.MaxAttempts)
	if ctx.Err() != nil {
		return StateInterrupted
	}
	if outcome.OK() {
		r.cursor.URL = url
		r.page = outcome
		return StatePageParse
	}
	span.SetStatus(codes.Error, outcome.Kind.String())

	if outcome.Forbidden() {
		return r.fail(crawler.ErrBlocked, outcome)
	}
	if r.onFlakyPage() {
		return r.fetchAlternate(ctx, "unreliable page failed, retrying without continuation token",
			zap.String("first_outcome", outcome.Kind.String()),
			zap.Int("status", outcome.Status))
	}
	if outcome.Kind == crawler.OutcomeBlocked {
		return r.fail(crawler.ErrBlocked, outcome)
	}
	return r.fail(outcome.Err, outcome)
}

func (r *run) onFlakyPage() bool {
	return r.cursor.PageIndex == r.c.cfg.FlakyPageIndex && !r.triedAlternate
}

// fetchAlternate reissues the current page once without its continuation
// token. Records already taken from the first copy are skipped as seen.
func (r *run) fetchAlternate(ctx context.Context, reason string, fields ...zap.Field) State {
	r.triedAlternate = true
	url := r.c.deps.Layout.AlternateURL(r.cursor.PageIndex)
	r.logger().Warn(reason, append(fields, zap.String("alternate_url", url))...)

	outcome := r.session.Fetch(ctx, url, r.c.cfg.MaxAttempts)
	switch {
	case ctx.Err() != nil:
		return StateInterrupted
	case outcome.OK():
		r.cursor.URL = url
		r.page = outcome
		return StatePageParse
	case outcome.Forbidden():
		return r.fail(crawler.ErrBlocked, outcome)
	default:
		r.logger().Warn("alternate url failed, treating region as exhausted",
			zap.String("outcome", outcome.Kind.String()),
			zap.Int("status", outcome.Status))
		return StateRegionDone
	}
}

func (r *run) pageParse(_ context.Context) State {
	body := r.page.Body
	summaries, err := r.c.deps.Listing.ParseListing(body)
	if err != nil {
		r.logger().Warn("listing unparseable", zap.Error(err))
		summaries = nil
	}
	info, err := r.c.deps.Pagination.Infer(body, r.cursor.PageIndex, r.cursor.URL)
	if err != nil {
		r.logger().Warn("pagination unparseable", zap.Error(err))
		info = crawler.PaginationInfo{}
	}
	r.summaries, r.info, r.skipped = summaries, info, 0
	r.resolveToken(info.Token)

	if len(summaries) == 0 && r.arrivedByFallback {
		r.logger().Warn("page reached by arithmetic fallback lists no records, ending region",
			zap.Int("announced_total", info.TotalEntries))
		return StateRegionDone
	}
	return StateRecordLoop
}

func (r *run) recordLoop(ctx context.Context) State {
	for _, summary := range r.summaries {
		if ctx.Err() != nil {
			return StateInterrupted
		}
		if r.c.deps.Dedup.Seen(summary.ID) {
			r.skipped++
			r.emit(progress.Event{
				Stage:     progress.StageRecordSkipped,
				PageIndex: r.cursor.PageIndex,
				RecordID:  string(summary.ID),
				Note:      "already processed",
			})
			continue
		}
		if next, done := r.processRecord(ctx, summary); done {
			return next
		}
		if r.sinceCheckpoint >= r.c.cfg.CheckpointEvery {
			if err := r.checkpoint(ctx); err != nil {
				return r.fail(err, crawler.FetchOutcome{})
			}
		}
		if err := r.wait(ctx, r.c.cfg.RecordDelay, progress.WaitRecord); err != nil {
			return StateInterrupted
		}
	}
	return StatePageAdvance
}

// processRecord fetches and parses one detail page. done is true when the
// machine must leave the record loop for next.
func (r *run) processRecord(ctx context.Context, summary crawler.RecordSummary) (next State, done bool) {
	url := r.c.deps.Layout.DetailURL(summary.ID)
	ctx, span := telemetry.StartSpan(ctx, "crawl.record", "region", r.region.ID, "record_id", string(summary.ID))
	defer span.End()

	log := r.logger().With(zap.String("record_id", string(summary.ID)))
	outcome := r.session.Fetch(ctx, url, r.c.cfg.MaxAttempts)
	switch {
	case ctx.Err() != nil:
		return StateInterrupted, true
	case outcome.Kind == crawler.OutcomeBlocked:
		span.SetStatus(codes.Error, "blocked")
		return r.fail(crawler.ErrBlocked, outcome), true
	case !outcome.OK():
		span.SetStatus(codes.Error, outcome.Kind.String())
		log.Warn("detail fetch failed, record left for next run",
			zap.String("reason", outcome.Reason), zap.Error(outcome.Err))
		return StateRecordLoop, false
	}

	record, err := r.c.deps.Records.ParseRecord(outcome.Body, summary.ID, r.region)
	if err != nil {
		span.SetStatus(codes.Error, "parse")
		log.Warn("detail page skipped", zap.Error(err))
		return StateRecordLoop, false
	}
	now := r.c.deps.Clock.Now()
	record = record.Backfill(summary)
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = now
	}
	r.batch = append(r.batch, record)
	r.c.deps.Dedup.Mark(summary.ID, now)
	r.sinceCheckpoint++
	r.regionRecords++
	r.emit(progress.Event{
		Stage:     progress.StageRecordDone,
		PageIndex: r.cursor.PageIndex,
		RecordID:  string(summary.ID),
		URL:       url,
	})
	return StateRecordLoop, false
}

func (r *run) pageAdvance(ctx context.Context) State {
	info := r.info
	next, strategy := info.Next, info.Strategy
	if next == nil && r.c.cfg.PageSize > 0 && info.TotalEntries > (r.cursor.PageIndex+1)*r.c.cfg.PageSize {
		next = &crawler.PageCursor{PageIndex: r.cursor.PageIndex + 1}
		strategy = arithmeticStrategy
	}
	if next == nil && info.LinkCount == 0 && r.onFlakyPage() {
		return r.fetchAlternate(ctx, "unreliable page has no pagination control, retrying without continuation token",
			zap.Int("records", len(r.summaries)),
			zap.Int("announced_total", info.TotalEntries))
	}

	r.regionPages++
	r.emit(progress.Event{
		Stage:     progress.StagePageDone,
		PageIndex: r.cursor.PageIndex,
		URL:       r.cursor.URL,
		Records:   len(r.summaries),
		Skipped:   r.skipped,
		Total:     info.TotalEntries,
		Strategy:  strategy,
	})

	if next == nil || next.PageIndex <= r.cursor.PageIndex {
		return StateRegionDone
	}
	if strategy == arithmeticStrategy {
		r.fallbackRun++
		if r.c.cfg.MaxFallbackAdvances > 0 && r.fallbackRun > r.c.cfg.MaxFallbackAdvances {
			r.logger().Warn("arithmetic fallback limit reached, ending region",
				zap.Int("consecutive_fallbacks", r.fallbackRun-1),
				zap.Int("announced_total", info.TotalEntries))
			return StateRegionDone
		}
		r.arrivedByFallback = true
	} else {
		r.fallbackRun, r.arrivedByFallback = 0, false
	}

	r.cursor.PageIndex = next.PageIndex
	r.cursor.URL = ""
	r.cp.PageIndex = next.PageIndex
	r.triedAlternate = false
	if err := r.checkpoint(ctx); err != nil {
		return r.fail(err, crawler.FetchOutcome{})
	}
	if err := r.wait(ctx, r.c.cfg.PageDelay, progress.WaitPage); err != nil {
		return StateInterrupted
	}
	return StatePageFetch
}

func (r *run) regionDone(ctx context.Context) State {
	if !slices.Contains(r.cp.CompletedRegions, r.region.ID) {
		r.cp.CompletedRegions = append(r.cp.CompletedRegions, r.region.ID)
	}
	finished := r.region
	r.cp.RegionIndex++
	r.cp.PageIndex = 0
	if err := r.checkpoint(ctx); err != nil {
		return r.fail(err, crawler.FetchOutcome{})
	}

	now := r.c.deps.Clock.Now()
	r.emit(progress.Event{
		Stage:       progress.StageRegionDone,
		Region:      finished.Name(),
		RegionIndex: r.cp.RegionIndex - 1,
		PageIndex:   r.cursor.PageIndex,
		Records:     r.regionRecords,
		Dur:         now.Sub(r.regionStarted),
	})
	r.publishCompleted(ctx, finished, now)
	r.closeSession()
	return StateRegionStart
}

func (r *run) publishCompleted(ctx context.Context, region crawler.Region, at time.Time) {
	if r.c.deps.Publisher == nil {
		return
	}
	evt := crawler.RegionCompleted{
		RunID:       r.c.deps.Reporter.RunID().String(),
		Region:      region.ID,
		DisplayName: region.Name(),
		Records:     r.regionRecords,
		Pages:       r.regionPages,
		CompletedAt: at.UTC(),
	}
	id, err := r.c.deps.Publisher.Publish(ctx, r.c.cfg.Topic, evt)
	if err != nil {
		r.c.deps.Logger.Warn("region completion publish failed", zap.String("region", region.ID), zap.Error(err))
		return
	}
	r.c.deps.Logger.Debug("region completion published", zap.String("region", region.ID), zap.String("message_id", id))
}

// fail records why the run aborts. A nil cause with a failed outcome is
// reported as fetch exhaustion.
func (r *run) fail(cause error, outcome crawler.FetchOutcome) State {
	if cause == nil {
		cause = fmt.Errorf("%w: %s", crawler.ErrFetchExhausted, outcome.Reason)
	}
	r.abort = &crawler.AbortError{
		Region:      r.region.Name(),
		RegionIndex: r.cp.RegionIndex,
		PageIndex:   r.cp.PageIndex,
		Processed:   r.c.deps.Dedup.Len(),
		URL:         outcome.URL,
		Status:      outcome.Status,
		Err:         cause,
	}
	return StateAborted
}

func (r *run) aborted(ctx context.Context) error {
	defer r.closeSession()
	if !r.persistFailed {
		if err := r.checkpoint(context.WithoutCancel(ctx)); err != nil {
			r.c.deps.Logger.Error("checkpoint after abort failed", zap.Error(err))
		}
	}
	r.c.setStatus(r, StateAborted)
	r.emit(progress.Event{
		Stage:       progress.StageRunAborted,
		RegionIndex: r.cp.RegionIndex,
		PageIndex:   r.cp.PageIndex,
		URL:         r.abort.URL,
		Note:        r.abort.Error(),
		Dur:         r.c.deps.Clock.Now().Sub(r.started),
	})
	return r.abort
}

func (r *run) interrupted(ctx context.Context) error {
	defer r.closeSession()
	err := r.checkpoint(context.WithoutCancel(ctx))
	r.c.setStatus(r, StateInterrupted)
	r.emit(progress.Event{
		Stage:       progress.StageRunInterrupted,
		RegionIndex: r.cp.RegionIndex,
		PageIndex:   r.cp.PageIndex,
		Dur:         r.c.deps.Clock.Now().Sub(r.started),
	})
	if err != nil {
		return errors.Join(crawler.ErrInterrupted, err)
	}
	return fmt.Errorf("%w at region %q page %d", crawler.ErrInterrupted, r.region.Name(), r.cp.PageIndex+1)
}

func (r *run) finished() error {
	r.c.setStatus(r, StateFinished)
	r.emit(progress.Event{
		Stage:       progress.StageRunDone,
		RegionIndex: r.cp.RegionIndex,
		Dur:         r.c.deps.Clock.Now().Sub(r.started),
	})
	return nil
}

func (r *run) closeSession() {
	if r.session != nil {
		r.session.Close()
		r.session = nil
	}
}

// checkpoint flushes the batch to the table sink, then saves the position.
// A failed save falls back to the minimal escape hatch and is reported as
// a persistence failure.
func (r *run) checkpoint(ctx context.Context) error {
	if len(r.batch) > 0 {
		if err := r.c.deps.Table.Write(ctx, r.region, r.batch); err != nil {
			r.persistFailed = true
			metrics.ObserveCheckpoint(false)
			cause := fmt.Errorf("%w: flush %d records: %w", crawler.ErrPersistence, len(r.batch), err)
			r.saveMinimal(ctx, cause)
			return cause
		}
		r.batch = r.batch[:0]
	}

	r.cp.ProcessedIDs = r.c.deps.Dedup.Snapshot()
	r.cp.SavedAt = r.c.deps.Clock.Now()
	if err := r.c.deps.Checkpoints.Save(ctx, r.cp); err != nil {
		r.persistFailed = true
		metrics.ObserveCheckpoint(false)
		cause := fmt.Errorf("%w: save checkpoint: %w", crawler.ErrPersistence, err)
		r.saveMinimal(ctx, cause)
		return cause
	}
	metrics.ObserveCheckpoint(true)
	r.sinceCheckpoint = 0

	if err := r.c.deps.Dedup.Persist(ctx); err != nil {
		r.c.deps.Logger.Warn("processed-id cache write failed", zap.Error(err))
	}
	r.c.setStatus(r, r.state)
	r.emit(progress.Event{
		Stage:       progress.StageCheckpoint,
		RegionIndex: r.cp.RegionIndex,
		PageIndex:   r.cp.PageIndex,
	})
	return nil
}

func (r *run) saveMinimal(ctx context.Context, cause error) {
	if err := r.c.deps.Checkpoints.SaveMinimal(ctx, r.cp, cause); err != nil {
		r.c.deps.Logger.Error("minimal checkpoint failed", zap.Error(err), zap.NamedError("cause", cause))
	}
}

func (r *run) wait(ctx context.Context, delays crawler.DelayRange, kind progress.WaitKind) error {
	d := delays.Draw(r.c.deps.Rand)
	if d <= 0 {
		return ctx.Err()
	}
	r.emit(progress.Event{
		Stage:     progress.StageWait,
		PageIndex: r.cursor.PageIndex,
		Wait:      d,
		WaitKind:  kind,
	})
	return r.c.deps.Sleeper.Sleep(ctx, d)
}
