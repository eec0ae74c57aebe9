package pick

import (
	"context"
	"time"
)

// SearchProvider returns candidate image URLs for a query. Implementations
// should honor the exclusion hint where the backend supports it, but callers
// must not rely on that: the selector re-filters exclusions itself.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, exclude ExclusionSet, limit int) ([]string, error)
}

// Store persists product rows. Rows are externally transactional per product;
// the engine never assumes multi-row atomicity.
type Store interface {
	UpsertProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, name string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListByExternalStatus(ctx context.Context, external string) ([]Product, error)
}

// FetchResult carries fetched image bytes plus the reported content type.
type FetchResult struct {
	Body        []byte
	ContentType string
}

// Fetcher retrieves image bytes for a candidate URL. A fetch error is a
// failed candidate, never an engine-level fault.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Scorer evaluates fetched bytes against the quality checks. It is pure and
// deterministic for identical input and configuration; internal failures are
// reported as disqualified reports, never as errors.
type Scorer interface {
	Score(url string, body []byte) ScoreReport
}

// Selector turns a product name plus exclusions into at most one winning
// candidate. A nil error with Found == false is the NoneFound outcome.
type Selector interface {
	Select(ctx context.Context, productName string, exclusions ExclusionSet, maxCandidates int) (SelectionResult, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes workflow events (review-ready, terminal) to an event bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (injectable for tests).
type Clock interface {
	Now() time.Time
}
