package controller

// State is a node of the crawl state machine.
type State int

// Crawl states. Aborted, Interrupted and Finished are terminal.
const (
	StateRegionStart State = iota
	StatePageFetch
	StatePageParse
	StateRecordLoop
	StatePageAdvance
	StateRegionDone
	StateAborted
	StateInterrupted
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateRegionStart:
		return "region_start"
	case StatePageFetch:
		return "page_fetch"
	case StatePageParse:
		return "page_parse"
	case StateRecordLoop:
		return "record_loop"
	case StatePageAdvance:
		return "page_advance"
	case StateRegionDone:
		return "region_done"
	case StateAborted:
		return "aborted"
	case StateInterrupted:
		return "interrupted"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Terminal reports whether the machine stops in s.
func (s State) Terminal() bool {
	return s == StateAborted || s == StateInterrupted || s == StateFinished
}
