// Package memory provides an in-memory product store for tests and
// single-process runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/prodfinder/imagepick/internal/pick"
)

// Store keeps product rows in a map guarded by a RWMutex.
type Store struct {
	mu   sync.RWMutex
	rows map[string]pick.Product
}

// New creates an empty Store.
func New() *Store {
	return &Store{rows: make(map[string]pick.Product)}
}

// UpsertProduct inserts or replaces the row keyed by product name.
func (s *Store) UpsertProduct(_ context.Context, p pick.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Exclusions = p.Exclusions.Clone()
	s.rows[p.Name] = p
	return nil
}

// GetProduct returns the row or ErrProductNotFound.
func (s *Store) GetProduct(_ context.Context, name string) (pick.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.rows[name]
	if !ok {
		return pick.Product{}, pick.ErrProductNotFound
	}
	p.Exclusions = p.Exclusions.Clone()
	return p, nil
}

// ListProducts returns every row ordered by product name.
func (s *Store) ListProducts(_ context.Context) ([]pick.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]pick.Product, 0, len(s.rows))
	for _, p := range s.rows {
		p.Exclusions = p.Exclusions.Clone()
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListByExternalStatus returns rows whose status maps to the given external
// value ("pending", "approved", "retry"), ordered by product name.
func (s *Store) ListByExternalStatus(_ context.Context, external string) ([]pick.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []pick.Product
	for _, p := range s.rows {
		if p.Status.External() != external {
			continue
		}
		p.Exclusions = p.Exclusions.Clone()
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
