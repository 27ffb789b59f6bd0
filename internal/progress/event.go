package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart       Stage = "RUN_START"
	StageRegionStart    Stage = "REGION_START"
	StagePageDone       Stage = "PAGE_DONE"
	StageRecordDone     Stage = "RECORD_DONE"
	StageRecordSkipped  Stage = "RECORD_SKIPPED"
	StageWait           Stage = "WAIT"
	StageCheckpoint     Stage = "CHECKPOINT"
	StageRegionDone     Stage = "REGION_DONE"
	StageRunDone        Stage = "RUN_DONE"
	StageRunInterrupted Stage = "RUN_INTERRUPTED"
	StageRunAborted     Stage = "RUN_ABORTED"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	return s == StageRunDone || s == StageRunInterrupted || s == StageRunAborted
}

// WaitKind labels what a WAIT event was waiting for.
type WaitKind string

// Wait kinds.
const (
	WaitPage   WaitKind = "page"
	WaitRecord WaitKind = "record"
)

// Event captures a single step of crawl progress.
type Event struct {
	// RunID identifies the crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Region is the display name of the region being crawled.
	Region      string
	RegionIndex int
	RegionCount int
	// PageIndex is 0-based.
	PageIndex int
	// URL is the page that produced the event, if any.
	URL      string
	RecordID string
	// Records counts summaries on a page, or records written for a region.
	Records int
	// Skipped counts summaries already processed in earlier runs.
	Skipped int
	// Total is the entry count announced by the region's listing, 0 if unknown.
	Total int
	// Processed is the size of the processed-id set after the event.
	Processed int
	// Strategy names the pagination rung that chose the next page.
	Strategy string
	Wait     time.Duration
	WaitKind WaitKind
	// Dur is the runtime of a finished region or run.
	Dur time.Duration
	// Note carries low-volume context such as an error message.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunInterrupted, StageRunAborted, StageCheckpoint:
	case StageRegionStart, StageRegionDone, StagePageDone:
		if e.Region == "" {
			return fmt.Errorf("%s requires region", e.Stage)
		}
	case StageRecordDone, StageRecordSkipped:
		if e.RecordID == "" {
			return fmt.Errorf("%s requires record id", e.Stage)
		}
	case StageWait:
		if e.WaitKind == "" {
			return errors.New("wait requires wait kind")
		}
		if e.Wait < 0 {
			return errors.New("wait must be >= 0")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
