package progress

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface.
type Emitter interface {
	Emit(evt Event)
}

// Reporter stamps events with a run id and timestamp before emitting them.
type Reporter struct {
	emitter Emitter
	runID   [16]byte
	now     func() time.Time
}

// NewReporter wraps emitter for the run identified by runID. A nil emitter
// discards everything.
func NewReporter(emitter Emitter, runID uuid.UUID, now func() time.Time) *Reporter {
	if now == nil {
		now = time.Now
	}
	return &Reporter{emitter: emitter, runID: UUIDToBytes(runID), now: now}
}

// RunID returns the run identifier, or uuid.Nil for a nil Reporter.
func (r *Reporter) RunID() uuid.UUID {
	if r == nil {
		return uuid.Nil
	}
	return uuid.UUID(r.runID)
}

// Emit stamps and forwards evt.
func (r *Reporter) Emit(evt Event) {
	if r == nil || r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.emitter.Emit(evt)
}
