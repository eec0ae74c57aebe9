// Package scheduler fans a batch of products out over a bounded worker pool
// with per-product mutual exclusion and failure isolation.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
)

// ProcessFunc runs the full workflow for one product name and reports its
// outcome. Failures belong in the outcome; a panic is contained by the
// scheduler.
type ProcessFunc func(ctx context.Context, name string) pick.ProductOutcome

// Config holds the scheduling knobs.
type Config struct {
	// MaxConcurrent bounds how many products are processed at once.
	MaxConcurrent int
}

// Scheduler runs batches. The per-product locks are shared across batches,
// so overlapping batches can never process the same product concurrently.
type Scheduler struct {
	cfg    Config
	sem    *semaphore.Weighted
	locks  *keyLock
	logger *zap.Logger
}

// New constructs a Scheduler.
func New(cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		locks:  newKeyLock(),
		logger: logger,
	}
}

// Run processes every product name and blocks until all workers finish.
// Every name appears in the result exactly once: products that could not be
// dispatched (busy, or the context ended) get an error outcome. One
// product's failure never affects another's.
func (s *Scheduler) Run(ctx context.Context, names []string, process ProcessFunc) pick.BatchResult {
	result := pick.BatchResult{BatchID: newBatchID()}
	outcomes := make([]pick.ProductOutcome, len(names))

	s.logger.Info("batch started",
		zap.String("batch_id", result.BatchID),
		zap.Int("products", len(names)),
		zap.Int("max_concurrent", s.cfg.MaxConcurrent))

	var wg sync.WaitGroup
	for i, name := range names {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = pick.ProductOutcome{Product: name, Err: err.Error()}
			continue
		}
		if !s.locks.tryAcquire(name) {
			s.sem.Release(1)
			outcomes[i] = pick.ProductOutcome{Product: name, Err: pick.ErrProductBusy.Error()}
			continue
		}

		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer s.sem.Release(1)
			defer s.locks.release(name)
			outcomes[i] = s.runOne(ctx, name, process)
		}(i, name)
	}
	wg.Wait()

	for _, out := range outcomes {
		result.Processed++
		if out.Err == "" {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	result.Outcomes = outcomes

	s.logger.Info("batch finished",
		zap.String("batch_id", result.BatchID),
		zap.Int("processed", result.Processed),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed))
	return result
}

// TryLock acquires the product's lock without consuming a worker slot, for
// callers running a single transition outside a batch. The returned release
// must be called exactly once.
func (s *Scheduler) TryLock(name string) (func(), bool) {
	if !s.locks.tryAcquire(name) {
		return nil, false
	}
	return func() { s.locks.release(name) }, true
}

func (s *Scheduler) runOne(ctx context.Context, name string, process ProcessFunc) (out pick.ProductOutcome) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker panicked",
				zap.String("product", name),
				zap.Any("panic", r))
			out = pick.ProductOutcome{Product: name, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	return process(ctx, name)
}

func newBatchID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}
