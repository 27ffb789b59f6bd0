package crawler

import (
	"maps"
	"net/http"
	"time"
)

// Region is one crawl partition of the directory (a federal state on the
// default site). ID is inserted verbatim into query strings, so it must already
// be query-escaped.
type Region struct {
	ID          string `mapstructure:"id" json:"id" yaml:"id"`
	DisplayName string `mapstructure:"display_name" json:"display_name" yaml:"display_name"`
	// Token is the known-good continuation token used when none can be
	// extracted from the region's listing pages.
	Token string `mapstructure:"token" json:"token,omitempty" yaml:"token"`
}

// Name returns the display name, falling back to the identifier.
func (r Region) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.ID
}

// RecordID is the directory-wide identifier embedded in detail page URLs.
type RecordID string

// TokenSource ranks where a continuation token came from. Higher values are
// more authoritative.
type TokenSource int

// Token sources in increasing order of authority.
const (
	TokenUnknown TokenSource = iota
	TokenDefault
	TokenStatic
	TokenExtracted
)

func (s TokenSource) String() string {
	switch s {
	case TokenDefault:
		return "default"
	case TokenStatic:
		return "static"
	case TokenExtracted:
		return "extracted"
	default:
		return "unknown"
	}
}

// PageCursor locates one listing page inside a region.
type PageCursor struct {
	Region      Region
	PageIndex   int
	Token       string
	TokenSource TokenSource
	URL         string
}

// RecordSummary is one row of a listing page.
type RecordSummary struct {
	ID       RecordID
	Name     string
	URL      string
	Email    string
	Website  string
	Products string
}

// Record is one fully parsed directory entry.
type Record struct {
	ID            RecordID  `json:"company_id"`
	Region        string    `json:"state"`
	Name          string    `json:"name"`
	Street        string    `json:"street"`
	Zipcode       string    `json:"zipcode"`
	City          string    `json:"city"`
	Phone         string    `json:"phone"`
	Fax           string    `json:"fax"`
	Mobile        string    `json:"mobile"`
	Email         string    `json:"email"`
	Website       string    `json:"website"`
	ContactPerson string    `json:"contact_person"`
	ProductsInfo  string    `json:"products_info"`
	Industry      string    `json:"industry"`
	ScrapedAt     time.Time `json:"scrape_date"`
}

// Backfill copies listing-level values into fields the detail page left empty.
func (r Record) Backfill(summary RecordSummary) Record {
	if r.Name == "" {
		r.Name = summary.Name
	}
	if r.Email == "" {
		r.Email = summary.Email
	}
	if r.Website == "" {
		r.Website = summary.Website
	}
	if r.ProductsInfo == "" {
		r.ProductsInfo = summary.Products
	}
	return r
}

// OutcomeKind tags a FetchOutcome.
type OutcomeKind int

// Fetch outcome kinds.
const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeBlocked
	OutcomeTransient
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// BlockReason distinguishes the flavours of a Blocked outcome.
type BlockReason string

// Diagnostic tags attached to Blocked outcomes.
const (
	BlockForbidden BlockReason = "forbidden"
	BlockHTTPError BlockReason = "http_error"
	BlockChallenge BlockReason = "challenge_content"
)

// FetchOutcome is the result of one fetch attempt, or of a whole retry loop.
type FetchOutcome struct {
	Kind           OutcomeKind
	URL            string
	Status         int
	Body           []byte
	Headers        http.Header
	RequestHeaders http.Header
	BlockReason    BlockReason
	Reason         string
	Attempts       int
	Duration       time.Duration
	Err            error
}

// OK reports whether the outcome carries a usable page.
func (o FetchOutcome) OK() bool {
	return o.Kind == OutcomeSuccess
}

// Forbidden reports whether the remote side explicitly denied the identity.
func (o FetchOutcome) Forbidden() bool {
	return o.Kind == OutcomeBlocked && o.BlockReason == BlockForbidden
}

// PaginationInfo is derived from a listing page and never persisted.
type PaginationInfo struct {
	// TotalEntries is 0 when the page does not announce a total.
	TotalEntries int
	// Next is nil once the region is exhausted.
	Next *PageCursor
	// Strategy names the inference rung that produced Next.
	Strategy string
	// Token is the continuation token found in pagination links, if any.
	Token string
	// LinkCount is the number of links in the pagination control.
	LinkCount int
}

// Checkpoint is the durable crawl position.
type Checkpoint struct {
	RegionIndex      int
	PageIndex        int
	ProcessedIDs     map[RecordID]time.Time
	SavedAt          time.Time
	CompletedRegions []string
}

// NewCheckpoint returns an empty checkpoint positioned at regionIndex.
func NewCheckpoint(regionIndex int) Checkpoint {
	return Checkpoint{
		RegionIndex:  regionIndex,
		ProcessedIDs: make(map[RecordID]time.Time),
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.ProcessedIDs = maps.Clone(c.ProcessedIDs)
	if out.ProcessedIDs == nil {
		out.ProcessedIDs = make(map[RecordID]time.Time)
	}
	out.CompletedRegions = append([]string(nil), c.CompletedRegions...)
	return out
}

// Diagnostic is the evidence persisted for a failed or suspicious response.
type Diagnostic struct {
	URL            string
	Status         int
	Body           []byte
	RequestHeaders http.Header
	Message        string
}

// RegionCompleted is published once a region has been crawled to exhaustion.
type RegionCompleted struct {
	RunID       string    `json:"run_id"`
	Region      string    `json:"region"`
	DisplayName string    `json:"display_name"`
	Records     int       `json:"records"`
	Pages       int       `json:"pages"`
	CompletedAt time.Time `json:"completed_at"`
}

// Attributes returns message attributes for brokers that support them.
func (e RegionCompleted) Attributes() map[string]string {
	return map[string]string{
		"event":  "region_completed",
		"region": e.Region,
		"run_id": e.RunID,
	}
}
