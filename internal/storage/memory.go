// internal/storage/memory.go
// Package storage provides implementations of the Store and StatisticsStore
// interfaces for in-memory, PostgreSQL and Redis backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/oklog/ulid/v2"
)

// Standard errors returned by the storage layer
var (
	ErrNotFound = errors.New("not found") // Returned when a document is not found
	ErrConflict = errors.New("conflict")  // Returned when an id or unique key is taken
)

// Store defines the document operations required by the API.
// It is implemented by both in-memory and PostgreSQL backends.
type Store interface {
	CreateResource(ctx context.Context, r model.Resource) error                     // Insert; ErrConflict on duplicate id or unique key
	GetResource(ctx context.Context, ref model.Ref) (*model.Resource, error)        // Fresh read; ErrNotFound when absent
	ListResources(ctx context.Context, q model.ListQuery) ([]model.Resource, error) // Ordered by creation time
	UpdateResource(ctx context.Context, r model.Resource) error                     // Replace body and unique key; CreatedBy is never rewritten
	DeleteResource(ctx context.Context, ref model.Ref) error                        // Deleting a profile removes its subcollections
	Ping(ctx context.Context) error                                                 // Readiness probe
}

// StatisticsStore persists counter records. RecordStatistics must apply the
// whole read-modify-write for one key atomically.
type StatisticsStore interface {
	RecordStatistics(ctx context.Context, ev model.StatisticsEvent, now time.Time) (*model.Statistics, error)
	GetStatistics(ctx context.Context, key model.StatisticsKey) (*model.Statistics, error)
}

// NewID returns a lexicographically sortable document id.
func NewID() string {
	return ulid.Make().String()
}

// uniqueIndex maps kind → normalized key → owning document
type uniqueIndex map[model.Kind]map[string]model.Ref

// Memory implements Store and StatisticsStore using in-memory maps.
// It's intended for development and testing purposes.
type Memory struct {
	mu        sync.RWMutex                              // Protects concurrent access to maps
	resources map[model.Ref]*model.Resource             // Documents by address
	unique    uniqueIndex                               // Unique keys per kind
	stats     map[model.StatisticsKey]*model.Statistics // Counter records by composite key
}

// NewMemory creates a new in-memory storage implementation.
func NewMemory() *Memory {
	return &Memory{
		resources: make(map[model.Ref]*model.Resource),
		unique:    make(uniqueIndex),
		stats:     make(map[model.StatisticsKey]*model.Statistics),
	}
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) CreateResource(ctx context.Context, r model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := r.Ref()
	if _, exists := m.resources[ref]; exists {
		return ErrConflict
	}
	if r.UniqueKey != "" {
		if _, taken := m.unique[r.Kind][r.UniqueKey]; taken {
			return ErrConflict
		}
		if m.unique[r.Kind] == nil {
			m.unique[r.Kind] = make(map[string]model.Ref)
		}
		m.unique[r.Kind][r.UniqueKey] = ref
	}

	stored := r.Clone()
	m.resources[ref] = &stored
	return nil
}

func (m *Memory) GetResource(ctx context.Context, ref model.Ref) (*model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, exists := m.resources[ref]
	if !exists {
		return nil, ErrNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (m *Memory) ListResources(ctx context.Context, q model.ListQuery) ([]model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Resource, 0)
	for ref, r := range m.resources {
		if ref.Kind != q.Kind || ref.ParentID != q.ParentID {
			continue
		}
		if q.Matches(*r) {
			out = append(out, r.Clone())
		}
	}
	// Sort by creation time, then id for stable ordering
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *Memory) UpdateResource(ctx context.Context, r model.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ref := r.Ref()
	current, exists := m.resources[ref]
	if !exists {
		return ErrNotFound
	}

	if r.UniqueKey != current.UniqueKey {
		if r.UniqueKey != "" {
			if owner, taken := m.unique[r.Kind][r.UniqueKey]; taken && owner != ref {
				return ErrConflict
			}
			if m.unique[r.Kind] == nil {
				m.unique[r.Kind] = make(map[string]model.Ref)
			}
			m.unique[r.Kind][r.UniqueKey] = ref
		}
		if current.UniqueKey != "" {
			delete(m.unique[r.Kind], current.UniqueKey)
		}
	}

	updated := r.Clone()
	updated.CreatedBy = current.CreatedBy
	updated.CreatedAt = current.CreatedAt
	m.resources[ref] = &updated
	return nil
}

func (m *Memory) DeleteResource(ctx context.Context, ref model.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, exists := m.resources[ref]
	if !exists {
		return ErrNotFound
	}
	m.deleteLocked(r)

	if ref.Kind == model.KindProfile {
		for childRef, child := range m.resources {
			if childRef.Kind.Nested() && childRef.ParentID == ref.ID {
				m.deleteLocked(child)
			}
		}
	}
	return nil
}

// deleteLocked removes a document and its unique key; caller holds mu
func (m *Memory) deleteLocked(r *model.Resource) {
	if r.UniqueKey != "" {
		delete(m.unique[r.Kind], r.UniqueKey)
	}
	delete(m.resources, r.Ref())
}

// RecordStatistics applies one event under the write lock, which makes the
// lookup, merge and write a single step per process.
func (m *Memory) RecordStatistics(ctx context.Context, ev model.StatisticsEvent, now time.Time) (*model.Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.stats[ev.Key]
	if !exists {
		created := model.NewStatistics(NewID(), ev, now)
		m.stats[ev.Key] = &created
		out := created.Clone()
		return &out, nil
	}

	current.Apply(ev, now)
	out := current.Clone()
	return &out, nil
}

func (m *Memory) GetStatistics(ctx context.Context, key model.StatisticsKey) (*model.Statistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.stats[key]
	if !exists {
		return nil, ErrNotFound
	}
	out := s.Clone()
	return &out, nil
}
