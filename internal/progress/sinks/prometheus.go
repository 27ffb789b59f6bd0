package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/directory-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus: runs by result, the
// current position, and per-region page and record counters.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runRuntime    *prometheus.HistogramVec

	pages          *prometheus.CounterVec
	records        *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	regionsDone    prometheus.Counter
	waitSeconds    *prometheus.CounterVec
	regionIndex    prometheus.Gauge
	pageIndex      prometheus.Gauge
	processed      prometheus.Gauge
	listingEntries *prometheus.GaugeVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directory_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_runs_completed_total",
			Help: "Crawl runs finished, partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "directory_runs_active",
			Help: "Crawl runs currently in progress.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "directory_run_runtime_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
		}, []string{"result"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_pages_total",
			Help: "Listing pages processed per region.",
		}, []string{"region"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_records_total",
			Help: "Records parsed per region.",
		}, []string{"region"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_records_skipped_total",
			Help: "Records skipped per region.",
		}, []string{"region"}),
		regionsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "directory_regions_completed_total",
			Help: "Regions crawled to exhaustion.",
		}),
		waitSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "directory_politeness_wait_seconds_total",
			Help: "Time spent in randomized politeness delays.",
		}, []string{"kind"}),
		regionIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "directory_region_index",
			Help: "Index of the region being crawled.",
		}),
		pageIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "directory_page_index",
			Help: "0-based index of the listing page being crawled.",
		}),
		processed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "directory_processed_ids",
			Help: "Size of the processed record set.",
		}),
		listingEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "directory_listing_entries",
			Help: "Entry count announced by each region's listing.",
		}, []string{"region"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runRuntime,
		s.pages,
		s.records,
		s.skipped,
		s.regionsDone,
		s.waitSeconds,
		s.regionIndex,
		s.pageIndex,
		s.processed,
		s.listingEntries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "completed")
	case progress.StageRunInterrupted:
		s.finishRun(evt, "interrupted")
	case progress.StageRunAborted:
		s.finishRun(evt, "aborted")
	case progress.StageRegionStart:
		s.regionIndex.Set(float64(evt.RegionIndex))
		s.pageIndex.Set(float64(evt.PageIndex))
	case progress.StagePageDone:
		s.pages.WithLabelValues(evt.Region).Inc()
		s.pageIndex.Set(float64(evt.PageIndex))
		if evt.Skipped > 0 {
			s.skipped.WithLabelValues(evt.Region).Add(float64(evt.Skipped))
		}
		if evt.Total > 0 {
			s.listingEntries.WithLabelValues(evt.Region).Set(float64(evt.Total))
		}
	case progress.StageRecordDone:
		s.records.WithLabelValues(evt.Region).Inc()
	case progress.StageWait:
		s.waitSeconds.WithLabelValues(string(evt.WaitKind)).Add(evt.Wait.Seconds())
	case progress.StageRegionDone:
		s.regionsDone.Inc()
	}
	if evt.Processed > 0 {
		s.processed.Set(float64(evt.Processed))
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
