// Package store implements the Route Store (spec §4.1): the durable
// `to → RouteRecord` mapping plus the append-only DeletedRecord log.
package store

import (
	"context"
	"time"

	"github.com/yanizio/routemgr/internal/route"
)

// Store is the interface both the API layer and the reconciler depend on.
// It is the "engine-override hook" of the teacher's design carried forward
// as an explicit dependency: production wires *MySQLStore, tests wire an
// in-memory fake, and nothing else in the codebase reaches for a global.
type Store interface {
	ListActive(ctx context.Context) ([]route.Record, error)
	Insert(ctx context.Context, rec route.Record) error
	Get(ctx context.Context, to string) (route.Record, error)
	Update(ctx context.Context, to string, patch route.Patch) error
	// SetLifecycle atomically sets active and status together, so invariant
	// P2 (active ⇒ status == "active") is never transiently visible to a
	// concurrent reader, per SPEC_FULL.md's open-question resolution.
	SetLifecycle(ctx context.Context, to string, active bool, status route.Status) error
	Delete(ctx context.Context, to string, removalStatus route.Status, removedAt time.Time) (route.Record, error)
	ListDeleted(ctx context.Context) ([]route.Deleted, error)
}
