package store

import (
	"context"
	"sync"
	"time"

	"github.com/yanizio/routemgr/internal/apperr"
	"github.com/yanizio/routemgr/internal/route"
)

// Memory is an in-process Store used by reconciler and API tests in place
// of a live MySQL instance — the teacher's "engine-override hook" pattern,
// applied at the interface level instead of a process-wide rebind.
type Memory struct {
	mu      sync.Mutex
	routes  map[string]route.Record
	deleted []route.Deleted
	nextID  int64
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{routes: make(map[string]route.Record)}
}

func (m *Memory) ListActive(ctx context.Context) ([]route.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]route.Record, 0, len(m.routes))
	for _, r := range m.routes {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, rec route.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.routes[rec.To]; ok {
		return apperr.Conflict("a route to %s already exists", rec.To)
	}
	m.routes[rec.To] = rec
	return nil
}

func (m *Memory) Get(ctx context.Context, to string) (route.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.routes[to]
	if !ok {
		return route.Record{}, apperr.NotFound("route to %s not found", to)
	}
	return rec, nil
}

func (m *Memory) Update(ctx context.Context, to string, patch route.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.routes[to]
	if !ok {
		return apperr.NotFound("route to %s not found", to)
	}
	if patch.ClearVia {
		rec.Via = nil
	}
	if patch.Via != nil {
		v := *patch.Via
		rec.Via = &v
	}
	if patch.ClearDev {
		rec.Dev = nil
	}
	if patch.Dev != nil {
		d := *patch.Dev
		rec.Dev = &d
	}
	if patch.CreateAt != nil {
		rec.CreateAt = *patch.CreateAt
	}
	if patch.DeleteAt != nil {
		d := *patch.DeleteAt
		rec.DeleteAt = &d
	}
	m.routes[to] = rec
	return nil
}

func (m *Memory) SetLifecycle(ctx context.Context, to string, active bool, status route.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.routes[to]
	if !ok {
		return apperr.NotFound("route to %s not found", to)
	}
	rec.Active = active
	rec.Status = status
	m.routes[to] = rec
	return nil
}

func (m *Memory) Delete(ctx context.Context, to string, removalStatus route.Status, removedAt time.Time) (route.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.routes[to]
	if !ok {
		return route.Record{}, apperr.NotFound("route to %s not found", to)
	}
	delete(m.routes, to)
	m.nextID++
	m.deleted = append(m.deleted, route.Deleted{
		ID:        m.nextID,
		To:        rec.To,
		Via:       rec.Via,
		Dev:       rec.Dev,
		CreateAt:  rec.CreateAt,
		DeleteAt:  rec.DeleteAt,
		Status:    removalStatus,
		RemovedAt: removedAt,
	})
	return rec, nil
}

func (m *Memory) ListDeleted(ctx context.Context) ([]route.Deleted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]route.Deleted, len(m.deleted))
	copy(out, m.deleted)
	return out, nil
}

var _ Store = (*Memory)(nil)
