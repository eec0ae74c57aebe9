package pick

import "time"

// Status represents the lifecycle state of a product's image search.
type Status string

// Product status values. Approved and Exhausted are terminal.
const (
	StatusSearching     Status = "searching"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusExhausted     Status = "exhausted"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusExhausted:
		return true
	default:
		return false
	}
}

// External status vocabulary persisted in the product store. Searching and
// Exhausted both map to "retry"; notes distinguish them.
const (
	ExternalPending  = "pending"
	ExternalApproved = "approved"
	ExternalRetry    = "retry"
)

// ExhaustedNotePrefix marks an exhausted product's notes so the external
// "retry" status can be disambiguated on read.
const ExhaustedNotePrefix = "no valid image found after max attempts"

// External maps the internal status to the store vocabulary.
func (s Status) External() string {
	switch s {
	case StatusPendingReview:
		return ExternalPending
	case StatusApproved:
		return ExternalApproved
	default:
		return ExternalRetry
	}
}

// StatusFromExternal reconstructs the internal status from a stored row.
func StatusFromExternal(external, notes string) Status {
	switch external {
	case ExternalPending:
		return StatusPendingReview
	case ExternalApproved:
		return StatusApproved
	default:
		if len(notes) >= len(ExhaustedNotePrefix) && notes[:len(ExhaustedNotePrefix)] == ExhaustedNotePrefix {
			return StatusExhausted
		}
		return StatusSearching
	}
}

// ExclusionSet tracks URLs that must never be offered to a product again:
// candidates rejected by a reviewer and candidates that failed fetch or
// validation. It only grows within a run.
type ExclusionSet map[string]struct{}

// NewExclusionSet builds a set from the given URLs.
func NewExclusionSet(urls ...string) ExclusionSet {
	s := make(ExclusionSet, len(urls))
	for _, u := range urls {
		s.Add(u)
	}
	return s
}

// Add inserts a URL. Empty URLs are ignored.
func (s ExclusionSet) Add(url string) {
	if url == "" {
		return
	}
	s[url] = struct{}{}
}

// Has reports membership.
func (s ExclusionSet) Has(url string) bool {
	_, ok := s[url]
	return ok
}

// Clone returns an independent copy.
func (s ExclusionSet) Clone() ExclusionSet {
	out := make(ExclusionSet, len(s))
	for u := range s {
		out[u] = struct{}{}
	}
	return out
}

// Product is the unit of work: one product name being matched to one image.
// The workflow engine owns a Product for the duration of processing; rows are
// persisted externally through the Store.
type Product struct {
	Name       string       `json:"product_name"`
	Status     Status       `json:"status"`
	ImageURL   string       `json:"image_url,omitempty"`
	Attempts   int          `json:"attempts"`
	Notes      string       `json:"notes,omitempty"`
	Exclusions ExclusionSet `json:"-"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewProduct returns a Product ready for its first search round.
func NewProduct(name string) *Product {
	return &Product{
		Name:       name,
		Status:     StatusSearching,
		Exclusions: make(ExclusionSet),
	}
}

// CheckResult is the outcome of a single quality check over one candidate.
type CheckResult struct {
	Check        string  `json:"check"`
	Passed       bool    `json:"passed"`
	Disqualifies bool    `json:"disqualifies,omitempty"`
	Subscore     float64 `json:"subscore"`
	Detail       string  `json:"detail,omitempty"`
}

// ScoreReport is the deterministic output of scoring one candidate.
// Immutable once produced.
type ScoreReport struct {
	Score           float64       `json:"score"`
	PassesThreshold bool          `json:"passes_threshold"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	Format          string        `json:"format,omitempty"`
	Checks          []CheckResult `json:"checks"`
}

// Area returns the pixel area used as a ranking tie-break.
func (r ScoreReport) Area() int {
	return r.Width * r.Height
}

// SelectionResult is the outcome of one candidate selection pass.
// Found == false is the NoneFound outcome, not an error.
type SelectionResult struct {
	Found     bool        `json:"found"`
	URL       string      `json:"url,omitempty"`
	Report    ScoreReport `json:"report,omitempty"`
	BlobURI   string      `json:"blob_uri,omitempty"`
	Evaluated int         `json:"evaluated"`
	// Failed lists evaluated URLs that failed fetch or validation; the
	// workflow engine adds them to the product's exclusion set.
	Failed []string `json:"failed,omitempty"`
}

// ProductOutcome is one product's result within a batch.
type ProductOutcome struct {
	Product  string `json:"product_name"`
	Status   Status `json:"status"`
	Attempts int    `json:"attempts"`
	ImageURL string `json:"image_url,omitempty"`
	Err      string `json:"error,omitempty"`
}

// BatchResult aggregates a batch run. Every dispatched product appears in
// Outcomes exactly once.
type BatchResult struct {
	BatchID   string           `json:"batch_id"`
	Processed int              `json:"processed"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Outcomes  []ProductOutcome `json:"outcomes"`
}
