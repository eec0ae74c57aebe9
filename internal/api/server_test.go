package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/pick"
	"github.com/prodfinder/imagepick/internal/scheduler"
	"github.com/prodfinder/imagepick/internal/store/memory"
)

// stubEngine advances products through the state machine without searching.
type stubEngine struct{}

func (stubEngine) Process(_ context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	if p.Status != pick.StatusSearching {
		return pick.ProductOutcome{Product: p.Name, Status: p.Status, Err: pick.ErrInvalidTransition.Error()}, pick.ErrInvalidTransition
	}
	p.Status = pick.StatusPendingReview
	p.Attempts++
	p.ImageURL = "https://img.example/" + p.Name + ".png"
	return pick.ProductOutcome{Product: p.Name, Status: p.Status, Attempts: p.Attempts, ImageURL: p.ImageURL}, nil
}

func (stubEngine) Approve(_ context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	if p.Status != pick.StatusPendingReview {
		return pick.ProductOutcome{Product: p.Name, Status: p.Status}, pick.ErrInvalidTransition
	}
	p.Status = pick.StatusApproved
	return pick.ProductOutcome{Product: p.Name, Status: p.Status, ImageURL: p.ImageURL}, nil
}

func (stubEngine) Retry(_ context.Context, p *pick.Product) (pick.ProductOutcome, error) {
	if p.Status != pick.StatusPendingReview {
		return pick.ProductOutcome{Product: p.Name, Status: p.Status}, pick.ErrInvalidTransition
	}
	p.Status = pick.StatusExhausted
	p.ImageURL = ""
	return pick.ProductOutcome{Product: p.Name, Status: p.Status, Attempts: p.Attempts}, nil
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	sched := scheduler.New(scheduler.Config{MaxConcurrent: 2}, zap.NewNop())
	return NewServer(stubEngine{}, sched, store, zap.NewNop()), store
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/readyz", nil).Code)
}

func TestRunBatch(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v1/batch", []byte(`{"products":["mouse","lamp"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	var result pick.BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.NotEmpty(t, result.BatchID)
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 2, result.Succeeded)
	require.Zero(t, result.Failed)
}

func TestRunBatchValidation(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	require.Equal(t, http.StatusBadRequest, doRequest(t, s, http.MethodPost, "/v1/batch", []byte(`not json`)).Code)
	require.Equal(t, http.StatusBadRequest, doRequest(t, s, http.MethodPost, "/v1/batch", []byte(`{"products":[]}`)).Code)
}

func TestListProductsWithStatusFilter(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	ctx := context.Background()

	approved := *pick.NewProduct("anvil")
	approved.Status = pick.StatusApproved
	require.NoError(t, store.UpsertProduct(ctx, approved))
	require.NoError(t, store.UpsertProduct(ctx, *pick.NewProduct("mouse")))

	rec := doRequest(t, s, http.MethodGet, "/v1/products/?status=approved", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Products []pick.Product `json:"products"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Products, 1)
	require.Equal(t, "anvil", payload.Products[0].Name)

	rec = doRequest(t, s, http.MethodGet, "/v1/products/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Products, 2)
}

func TestGetProduct(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	require.NoError(t, store.UpsertProduct(context.Background(), *pick.NewProduct("mouse")))

	require.Equal(t, http.StatusOK, doRequest(t, s, http.MethodGet, "/v1/products/mouse/", nil).Code)
	require.Equal(t, http.StatusNotFound, doRequest(t, s, http.MethodGet, "/v1/products/ghost/", nil).Code)
}

func TestApproveAfterBatchUsesSessionState(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v1/batch", []byte(`{"products":["mouse"]}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/v1/products/mouse/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var payload struct {
		Outcome pick.ProductOutcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, pick.StatusApproved, payload.Outcome.Status)
}

func TestApproveUnknownProduct(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/v1/products/ghost/approve", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveInvalidTransition(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	exhausted := *pick.NewProduct("widget")
	exhausted.Status = pick.StatusExhausted
	exhausted.Notes = pick.ExhaustedNotePrefix
	require.NoError(t, store.UpsertProduct(context.Background(), exhausted))

	rec := doRequest(t, s, http.MethodPost, "/v1/products/widget/approve", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid workflow transition")
}

func TestTransitionBusyProduct(t *testing.T) {
	t.Parallel()

	store := memory.New()
	sched := scheduler.New(scheduler.Config{MaxConcurrent: 2}, zap.NewNop())
	s := NewServer(stubEngine{}, sched, store, zap.NewNop())
	require.NoError(t, store.UpsertProduct(context.Background(), *pick.NewProduct("mouse")))

	release, ok := sched.TryLock("mouse")
	require.True(t, ok)
	defer release()

	rec := doRequest(t, s, http.MethodPost, "/v1/products/mouse/approve", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "search in flight")
}

func TestExportApprovedCSV(t *testing.T) {
	t.Parallel()

	s, store := newTestServer(t)
	approved := *pick.NewProduct("mouse")
	approved.Status = pick.StatusApproved
	approved.ImageURL = "https://img.example/mouse.png"
	require.NoError(t, store.UpsertProduct(context.Background(), approved))

	rec := doRequest(t, s, http.MethodGet, "/v1/export/approved.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Equal(t, "product_name,image_url\nmouse,https://img.example/mouse.png\n", rec.Body.String())
}
