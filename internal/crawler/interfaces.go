package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL, retrying internally, and reports one final outcome.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxAttempts int) FetchOutcome
}

// Session is a Fetcher bound to one region crawl. Its connection pool and
// cookies are not shared with other sessions.
type Session interface {
	Fetcher
	Close()
}

// SessionFactory opens a fresh Session per region.
type SessionFactory interface {
	NewSession(region Region) (Session, error)
}

// ListingParser extracts record summaries from a listing page.
type ListingParser interface {
	ParseListing(body []byte) ([]RecordSummary, error)
}

// RecordParser maps a detail page to a Record. It returns an error wrapping
// ErrParseMissing when the expected section is absent.
type RecordParser interface {
	ParseRecord(body []byte, id RecordID, region Region) (Record, error)
}

// PaginationInferrer derives pagination state from a listing page.
type PaginationInferrer interface {
	Infer(body []byte, pageIndex int, currentURL string) (PaginationInfo, error)
}

// Deduplicator gates detail fetches on previously processed ids.
type Deduplicator interface {
	// Seed unions the checkpoint's ids with every other persisted source.
	Seed(ctx context.Context, fromCheckpoint map[RecordID]time.Time) error
	Seen(id RecordID) bool
	Mark(id RecordID, at time.Time)
	Len() int
	Snapshot() map[RecordID]time.Time
	// Persist writes the processed-id cache file.
	Persist(ctx context.Context) error
}

// CheckpointStore durably persists crawl progress.
type CheckpointStore interface {
	Load(ctx context.Context) (Checkpoint, error)
	Save(ctx context.Context, cp Checkpoint) error
	// SaveMinimal is the escape hatch used when Save fails.
	SaveMinimal(ctx context.Context, cp Checkpoint, cause error) error
}

// TableSink receives parsed records in batches.
type TableSink interface {
	Write(ctx context.Context, region Region, records []Record) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// DiagnosticRecorder persists evidence for blocked or failed responses.
type DiagnosticRecorder interface {
	Record(ctx context.Context, diag Diagnostic) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the latter
// case.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
