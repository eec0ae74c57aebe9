package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/pick"
)

type scriptedSelector struct {
	results    []pick.SelectionResult
	errs       []error
	calls      int
	exclusions []pick.ExclusionSet
}

func (s *scriptedSelector) Select(_ context.Context, _ string, exclusions pick.ExclusionSet, _ int) (pick.SelectionResult, error) {
	s.exclusions = append(s.exclusions, exclusions.Clone())
	i := s.calls
	s.calls++
	var res pick.SelectionResult
	if i < len(s.results) {
		res = s.results[i]
	}
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return res, err
}

type fakeStore struct {
	rows      map[string]pick.Product
	upserts   int
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string]pick.Product{}}
}

func (s *fakeStore) UpsertProduct(_ context.Context, p pick.Product) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	s.rows[p.Name] = p
	return nil
}

func (s *fakeStore) GetProduct(_ context.Context, name string) (pick.Product, error) {
	p, ok := s.rows[name]
	if !ok {
		return pick.Product{}, pick.ErrProductNotFound
	}
	return p, nil
}

func (s *fakeStore) ListProducts(_ context.Context) ([]pick.Product, error) {
	out := make([]pick.Product, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) ListByExternalStatus(_ context.Context, external string) ([]pick.Product, error) {
	var out []pick.Product
	for _, p := range s.rows {
		if p.Status.External() == external {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakePublisher struct {
	events []Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, payload.(Event))
	return "msg-1", nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func found(url string, score float64) pick.SelectionResult {
	return pick.SelectionResult{
		Found:     true,
		URL:       url,
		Report:    pick.ScoreReport{Score: score, PassesThreshold: true, Width: 1000, Height: 1000},
		Evaluated: 1,
	}
}

func noneFound(failed ...string) pick.SelectionResult {
	return pick.SelectionResult{Evaluated: len(failed), Failed: failed}
}

func newEngine(sel pick.Selector, store pick.Store, pub pick.Publisher) *Engine {
	cfg := Config{MaxAttempts: 3, ClearURLOnExhaust: true, EventTopic: "image-review"}
	clock := fixedClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	return New(cfg, sel, store, pub, clock, zap.NewNop())
}

func TestProcessFirstRoundSuccess(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{found("https://img.example/a.png", 88)}}
	store := newFakeStore()
	pub := &fakePublisher{}
	eng := newEngine(sel, store, pub)

	p := pick.NewProduct("wireless mouse")
	out, err := eng.Process(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, pick.StatusPendingReview, out.Status)
	require.Equal(t, 1, out.Attempts)
	require.Equal(t, "https://img.example/a.png", out.ImageURL)
	require.Empty(t, out.Err)

	row := store.rows["wireless mouse"]
	require.Equal(t, pick.StatusPendingReview, row.Status)
	require.Equal(t, pick.ExternalPending, row.Status.External())
	require.False(t, row.CreatedAt.IsZero())
	require.Equal(t, row.CreatedAt, row.UpdatedAt)

	require.Len(t, pub.events, 1)
	require.Equal(t, EventReviewReady, pub.events[0].Event)
	require.Equal(t, "wireless mouse", pub.events[0].Product)
}

func TestApproveHappyPath(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{found("https://img.example/a.png", 88)}}
	store := newFakeStore()
	pub := &fakePublisher{}
	eng := newEngine(sel, store, pub)

	p := pick.NewProduct("wireless mouse")
	_, err := eng.Process(context.Background(), p)
	require.NoError(t, err)

	out, err := eng.Approve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, pick.StatusApproved, out.Status)
	require.Equal(t, "https://img.example/a.png", out.ImageURL)

	row := store.rows["wireless mouse"]
	require.Equal(t, pick.ExternalApproved, row.Status.External())
	require.Equal(t, EventApproved, pub.events[len(pub.events)-1].Event)
}

func TestApproveIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newEngine(&scriptedSelector{}, store, nil)

	p := pick.NewProduct("desk lamp")
	p.Status = pick.StatusApproved
	p.ImageURL = "https://img.example/a.png"

	out, err := eng.Approve(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, pick.StatusApproved, out.Status)
	require.Zero(t, store.upserts)
}

func TestRetryExcludesRejectedURLAndFindsNext(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{
		found("https://img.example/a.png", 88),
		found("https://img.example/b.png", 72),
	}}
	store := newFakeStore()
	eng := newEngine(sel, store, nil)

	p := pick.NewProduct("wireless mouse")
	_, err := eng.Process(context.Background(), p)
	require.NoError(t, err)

	out, err := eng.Retry(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, pick.StatusPendingReview, out.Status)
	require.Equal(t, 2, out.Attempts)
	require.Equal(t, "https://img.example/b.png", out.ImageURL)

	// Second search round saw the rejected URL as excluded.
	require.Len(t, sel.exclusions, 2)
	require.True(t, sel.exclusions[1].Has("https://img.example/a.png"))
}

func TestProcessExhaustsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{
		noneFound("https://img.example/bad1.png"),
		noneFound("https://img.example/bad2.png"),
		noneFound(),
	}}
	store := newFakeStore()
	pub := &fakePublisher{}
	eng := newEngine(sel, store, pub)

	p := pick.NewProduct("obscure widget")
	out, err := eng.Process(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, pick.StatusExhausted, out.Status)
	require.Equal(t, 3, out.Attempts)
	require.Empty(t, out.Err)
	require.Equal(t, 3, sel.calls)

	row := store.rows["obscure widget"]
	require.Equal(t, pick.ExternalRetry, row.Status.External())
	require.Equal(t, pick.ExhaustedNotePrefix, row.Notes)
	require.Equal(t, pick.StatusExhausted, pick.StatusFromExternal(row.Status.External(), row.Notes))

	// Failed candidates accumulated across rounds.
	require.True(t, p.Exclusions.Has("https://img.example/bad1.png"))
	require.True(t, p.Exclusions.Has("https://img.example/bad2.png"))
	require.Equal(t, EventExhausted, pub.events[0].Event)
}

func TestRetryAtBudgetGoesStraightToExhausted(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{
		noneFound(),
		noneFound(),
		found("https://img.example/last.png", 65),
	}}
	store := newFakeStore()
	eng := newEngine(sel, store, nil)

	p := pick.NewProduct("obscure widget")
	out, err := eng.Process(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, pick.StatusPendingReview, out.Status)
	require.Equal(t, 3, out.Attempts)

	out, err = eng.Retry(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, pick.StatusExhausted, out.Status)
	require.Equal(t, 3, out.Attempts)
	// No extra search round was spent.
	require.Equal(t, 3, sel.calls)

	row := store.rows["obscure widget"]
	require.Empty(t, row.ImageURL)
	require.Contains(t, row.Notes, pick.ExhaustedNotePrefix)
	require.Contains(t, row.Notes, "https://img.example/last.png")
}

func TestProviderFailureConsumesAttempts(t *testing.T) {
	t.Parallel()

	boom := errors.New("provider unreachable")
	sel := &scriptedSelector{errs: []error{boom, boom, boom}}
	store := newFakeStore()
	eng := newEngine(sel, store, nil)

	p := pick.NewProduct("wireless mouse")
	out, err := eng.Process(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, pick.StatusExhausted, out.Status)
	require.Equal(t, 3, out.Attempts)
	require.Contains(t, out.Err, "provider unreachable")
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	eng := newEngine(&scriptedSelector{}, store, nil)
	ctx := context.Background()

	pending := pick.NewProduct("a")
	pending.Status = pick.StatusPendingReview
	pending.ImageURL = "https://img.example/a.png"
	_, err := eng.Process(ctx, pending)
	require.ErrorIs(t, err, pick.ErrInvalidTransition)
	require.Equal(t, pick.StatusPendingReview, pending.Status)

	searching := pick.NewProduct("b")
	_, err = eng.Approve(ctx, searching)
	require.ErrorIs(t, err, pick.ErrInvalidTransition)
	require.Equal(t, pick.StatusSearching, searching.Status)

	approved := pick.NewProduct("c")
	approved.Status = pick.StatusApproved
	_, err = eng.Retry(ctx, approved)
	require.ErrorIs(t, err, pick.ErrInvalidTransition)
	require.Equal(t, pick.StatusApproved, approved.Status)

	exhausted := pick.NewProduct("d")
	exhausted.Status = pick.StatusExhausted
	_, err = eng.Process(ctx, exhausted)
	require.ErrorIs(t, err, pick.ErrInvalidTransition)
	_, err = eng.Retry(ctx, exhausted)
	require.ErrorIs(t, err, pick.ErrInvalidTransition)

	require.Zero(t, store.upserts)
}

func TestStoreFailureSurfacesInOutcome(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{found("https://img.example/a.png", 80)}}
	store := newFakeStore()
	store.upsertErr = errors.New("connection refused")
	pub := &fakePublisher{}
	eng := newEngine(sel, store, pub)

	p := pick.NewProduct("wireless mouse")
	out, err := eng.Process(context.Background(), p)

	require.NoError(t, err)
	require.Contains(t, out.Err, "connection refused")
	// In-memory state advanced; only persistence failed.
	require.Equal(t, pick.StatusPendingReview, p.Status)
	require.Empty(t, pub.events)
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	sel := &scriptedSelector{results: []pick.SelectionResult{found("https://img.example/a.png", 80)}}
	eng := newEngine(sel, newFakeStore(), &fakePublisher{err: errors.New("bus down")})

	p := pick.NewProduct("wireless mouse")
	out, err := eng.Process(context.Background(), p)

	require.NoError(t, err)
	require.Equal(t, pick.StatusPendingReview, out.Status)
	require.Empty(t, out.Err)
}

func TestProcessCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := newEngine(&scriptedSelector{}, newFakeStore(), nil)
	p := pick.NewProduct("wireless mouse")

	_, err := eng.Process(ctx, p)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, pick.StatusSearching, p.Status)
}
