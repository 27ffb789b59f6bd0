package crawler

import (
	"errors"
	"fmt"
)

// Error taxonomy surfaced by the crawl pipeline.
var (
	// ErrBlocked marks an active anti-scraping response. The run aborts.
	ErrBlocked = errors.New("blocked by remote")
	// ErrFetchExhausted marks a fetch whose retries were all transient failures.
	ErrFetchExhausted = errors.New("fetch retries exhausted")
	// ErrInterrupted marks operator-requested cancellation.
	ErrInterrupted = errors.New("crawl interrupted")
	// ErrParseMissing marks an expected page section that is absent.
	ErrParseMissing = errors.New("expected section missing")
	// ErrPersistence marks a failed checkpoint or table write.
	ErrPersistence = errors.New("persistence failure")
	// ErrRegionsExhausted marks a checkpoint positioned past the last region.
	ErrRegionsExhausted = errors.New("all regions completed")
)

// AbortError describes where a crawl stopped so an operator can decide when
// to resume.
type AbortError struct {
	Region      string
	RegionIndex int
	PageIndex   int
	Processed   int
	URL         string
	Status      int
	Err         error
}

func (e *AbortError) Error() string {
	msg := fmt.Sprintf(
		"crawl aborted in region %q (index %d) at page %d with %d records processed",
		e.Region, e.RegionIndex, e.PageIndex+1, e.Processed,
	)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (status %d from %s)", e.Status, e.URL)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AbortError) Unwrap() error {
	return e.Err
}
