// Package workflow drives a product through the image approval state machine:
// Searching -> PendingReview -> Approved, with bounded retries ending in
// Exhausted when no acceptable image is found.
package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
)

// Event names published to the event bus.
const (
	EventReviewReady = "review_ready"
	EventApproved    = "approved"
	EventExhausted   = "exhausted"
)

// Config holds the workflow knobs.
type Config struct {
	// MaxAttempts bounds search rounds per product, first round included.
	MaxAttempts int
	// MaxCandidates is passed through to the selector per round.
	MaxCandidates int
	// ClearURLOnExhaust wipes the image URL when a product exhausts after a
	// rejected candidate; the rejected URL is preserved in the notes.
	ClearURLOnExhaust bool
	// EventTopic is the bus topic for workflow events.
	EventTopic string
}

// Event is the payload published on every review-ready or terminal
// transition.
type Event struct {
	Event    string    `json:"event"`
	Product  string    `json:"product_name"`
	Status   string    `json:"status"`
	ImageURL string    `json:"image_url,omitempty"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// Engine executes workflow transitions for one product at a time. It owns no
// locking; the scheduler guarantees per-product mutual exclusion.
type Engine struct {
	cfg       Config
	selector  pick.Selector
	store     pick.Store
	publisher pick.Publisher
	clock     pick.Clock
	logger    *zap.Logger
}

// New constructs an Engine. Publisher may be nil to disable events.
func New(cfg Config, selector pick.Selector, store pick.Store, publisher pick.Publisher, clock pick.Clock, logger *zap.Logger) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.EventTopic == "" {
		cfg.EventTopic = "image-review"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:       cfg,
		selector:  selector,
		store:     store,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
	}
}

// Process runs search rounds for a product in the Searching state until it
// reaches PendingReview or Exhausted. Calling it in any other state is an
// invalid transition: the product is left untouched and ErrInvalidTransition
// is returned.
func (e *Engine) Process(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	if p.Status != pick.StatusSearching {
		return e.outcome(p, pick.ErrInvalidTransition), pick.ErrInvalidTransition
	}
	if p.Exclusions == nil {
		p.Exclusions = make(pick.ExclusionSet)
	}
	return e.searchLoop(ctx, p)
}

// Approve marks a pending product's current image as accepted. Approving an
// already approved product is a no-op success. Any other state is an invalid
// transition and leaves the product untouched.
func (e *Engine) Approve(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	switch p.Status {
	case pick.StatusApproved:
		return e.outcome(p, nil), nil
	case pick.StatusPendingReview:
	default:
		return e.outcome(p, pick.ErrInvalidTransition), pick.ErrInvalidTransition
	}

	p.Status = pick.StatusApproved
	p.Notes = ""
	if err := e.persist(ctx, p); err != nil {
		return e.outcome(p, err), nil
	}
	metrics.ObserveProduct(string(p.Status))
	e.publish(ctx, EventApproved, p)
	e.logger.Info("product approved",
		zap.String("product", p.Name),
		zap.String("image_url", p.ImageURL))
	return e.outcome(p, nil), nil
}

// Retry rejects the pending image and resumes searching. The rejected URL
// joins the exclusion set so it can never win again. When the attempt budget
// is already spent the product goes straight to Exhausted. Only
// PendingReview products may retry.
func (e *Engine) Retry(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	if p.Status != pick.StatusPendingReview {
		return e.outcome(p, pick.ErrInvalidTransition), pick.ErrInvalidTransition
	}
	if p.Exclusions == nil {
		p.Exclusions = make(pick.ExclusionSet)
	}

	rejected := p.ImageURL
	p.Exclusions.Add(rejected)
	p.Status = pick.StatusSearching

	if p.Attempts >= e.cfg.MaxAttempts {
		return e.exhaust(ctx, p, rejected, nil)
	}
	p.ImageURL = ""
	return e.searchLoop(ctx, p)
}

// searchLoop consumes attempts until a candidate is found or the budget runs
// out. A failed provider round still consumes an attempt; the last error is
// carried in the outcome.
func (e *Engine) searchLoop(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	var lastErr error
	for p.Attempts < e.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			return e.outcome(p, err), err
		}
		p.Attempts++

		res, err := e.selector.Select(ctx, p.Name, p.Exclusions, e.cfg.MaxCandidates)
		for _, u := range res.Failed {
			p.Exclusions.Add(u)
		}
		if err != nil {
			if ctx.Err() != nil {
				return e.outcome(p, err), err
			}
			lastErr = err
			e.logger.Warn("search round failed",
				zap.String("product", p.Name),
				zap.Int("attempt", p.Attempts),
				zap.Error(err))
			continue
		}
		if !res.Found {
			e.logger.Info("no candidate passed this round",
				zap.String("product", p.Name),
				zap.Int("attempt", p.Attempts),
				zap.Int("evaluated", res.Evaluated))
			continue
		}

		p.Status = pick.StatusPendingReview
		p.ImageURL = res.URL
		p.Notes = fmt.Sprintf("score %.1f (%dx%d)", res.Report.Score, res.Report.Width, res.Report.Height)
		if err := e.persist(ctx, p); err != nil {
			return e.outcome(p, err), nil
		}
		metrics.ObserveProduct(string(p.Status))
		e.publish(ctx, EventReviewReady, p)
		e.logger.Info("candidate ready for review",
			zap.String("product", p.Name),
			zap.String("image_url", p.ImageURL),
			zap.Float64("score", res.Report.Score),
			zap.Int("attempt", p.Attempts))
		return e.outcome(p, nil), nil
	}

	return e.exhaust(ctx, p, "", lastErr)
}

// exhaust moves the product to its terminal give-up state. A last rejected
// URL, when present, is preserved in the notes for reviewers.
func (e *Engine) exhaust(ctx context.Context, p *pick.Product, lastRejected string, lastErr error) (pick.ProductOutcome, error) {
	p.Status = pick.StatusExhausted
	p.Notes = pick.ExhaustedNotePrefix
	if lastRejected != "" {
		p.Notes = fmt.Sprintf("%s; last rejected: %s", pick.ExhaustedNotePrefix, lastRejected)
	}
	if e.cfg.ClearURLOnExhaust {
		p.ImageURL = ""
	}
	if err := e.persist(ctx, p); err != nil {
		return e.outcome(p, err), nil
	}
	metrics.ObserveProduct(string(p.Status))
	e.publish(ctx, EventExhausted, p)
	e.logger.Info("product exhausted",
		zap.String("product", p.Name),
		zap.Int("attempts", p.Attempts))
	return e.outcome(p, lastErr), nil
}

func (e *Engine) persist(ctx context.Context, p *pick.Product) error {
	now := e.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := e.store.UpsertProduct(ctx, *p); err != nil {
		return fmt.Errorf("persist %q: %w", p.Name, err)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, event string, p *pick.Product) {
	if e.publisher == nil {
		return
	}
	_, err := e.publisher.Publish(ctx, e.cfg.EventTopic, Event{
		Event:    event,
		Product:  p.Name,
		Status:   string(p.Status),
		ImageURL: p.ImageURL,
		Attempts: p.Attempts,
		At:       e.now(),
	})
	if err != nil {
		e.logger.Warn("event publish failed",
			zap.String("product", p.Name),
			zap.String("event", event),
			zap.Error(err))
	}
}

func (e *Engine) now() time.Time {
	if e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock.Now()
}

func (e *Engine) outcome(p *pick.Product, err error) pick.ProductOutcome {
	out := pick.ProductOutcome{
		Product:  p.Name,
		Status:   p.Status,
		Attempts: p.Attempts,
		ImageURL: p.ImageURL,
	}
	if err != nil {
		out.Err = err.Error()
	}
	return out
}
