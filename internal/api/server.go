// Package api exposes the HTTP interface for the image picker service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodfinder/imagepick/internal/export"
	"github.com/prodfinder/imagepick/internal/metrics"
	"github.com/prodfinder/imagepick/internal/pick"
	"github.com/prodfinder/imagepick/internal/scheduler"
)

// Engine is the workflow surface the server drives.
type Engine interface {
	Process(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error)
	Approve(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error)
	Retry(ctx context.Context, p *pick.Product) (pick.ProductOutcome, error)
}

// Server wires HTTP handlers to the workflow engine, scheduler and store.
// It keeps processed products in a session map so exclusion sets survive
// between a batch run and later approve/retry calls within one process.
type Server struct {
	router chi.Router
	engine Engine
	sched  *scheduler.Scheduler
	store  pick.Store
	logger *zap.Logger

	mu      sync.Mutex
	session map[string]*pick.Product
}

// NewServer constructs a Server with middleware and routes.
func NewServer(engine Engine, sched *scheduler.Scheduler, store pick.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:  engine,
		sched:   sched,
		store:   store,
		logger:  logger,
		session: make(map[string]*pick.Product),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batch", s.runBatch)
		r.Get("/export/approved.csv", s.exportApproved)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.listProducts)
			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.getProduct)
				r.Post("/approve", s.approveProduct)
				r.Post("/retry", s.retryProduct)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListByExternalStatus(r.Context(), pick.ExternalPending); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type batchRequest struct {
	Products []string `json:"products"`
}

func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Products) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one product required")
		return
	}

	result := s.sched.Run(r.Context(), req.Products, s.processOne)
	s.writeJSON(w, http.StatusOK, result)
}

// processOne resolves the product's current state (session first, then
// store, then a fresh row) and runs search rounds on it.
func (s *Server) processOne(ctx context.Context, name string) pick.ProductOutcome {
	p := s.resolveProduct(ctx, name)
	out, err := s.engine.Process(ctx, p)
	if err != nil && out.Err == "" {
		out.Err = err.Error()
	}
	s.rememberProduct(p)
	return out
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	var (
		rows []pick.Product
		err  error
	)
	if external := r.URL.Query().Get("status"); external != "" {
		rows, err = s.store.ListByExternalStatus(r.Context(), external)
	} else {
		rows, err = s.store.ListProducts(r.Context())
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"products": rows})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.store.GetProduct(r.Context(), name)
	if err != nil {
		if errors.Is(err, pick.ErrProductNotFound) {
			s.writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"product": p})
}

func (s *Server) approveProduct(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Approve)
}

func (s *Server) retryProduct(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.engine.Retry)
}

func (s *Server) transition(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, *pick.Product) (pick.ProductOutcome, error),
) {
	name := chi.URLParam(r, "name")

	release, ok := s.sched.TryLock(name)
	if !ok {
		s.writeError(w, http.StatusConflict, pick.ErrProductBusy.Error())
		return
	}
	defer release()

	p, found := s.lookupProduct(r.Context(), name)
	if !found {
		s.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	out, err := op(r.Context(), p)
	if err != nil {
		if errors.Is(err, pick.ErrInvalidTransition) {
			s.writeError(w, http.StatusConflict, fmt.Sprintf("%v from status %q", err, p.Status))
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rememberProduct(p)
	s.writeJSON(w, http.StatusOK, map[string]any{"outcome": out})
}

func (s *Server) exportApproved(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="approved.csv"`)
	if _, err := export.WriteApprovedCSV(r.Context(), s.store, w); err != nil {
		s.logger.Error("csv export failed", zap.Error(err))
	}
}

// resolveProduct returns the session copy, the stored row, or a fresh
// product, in that order of preference.
func (s *Server) resolveProduct(ctx context.Context, name string) *pick.Product {
	if p, ok := s.sessionProduct(name); ok {
		return p
	}
	if stored, err := s.store.GetProduct(ctx, name); err == nil {
		return &stored
	}
	return pick.NewProduct(name)
}

// lookupProduct is like resolveProduct but reports absence instead of
// creating a fresh row.
func (s *Server) lookupProduct(ctx context.Context, name string) (*pick.Product, bool) {
	if p, ok := s.sessionProduct(name); ok {
		return p, true
	}
	stored, err := s.store.GetProduct(ctx, name)
	if err != nil {
		return nil, false
	}
	return &stored, true
}

func (s *Server) sessionProduct(name string) (*pick.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.session[name]
	return p, ok
}

func (s *Server) rememberProduct(p *pick.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session[p.Name] = p
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
