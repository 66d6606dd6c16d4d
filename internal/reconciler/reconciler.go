// Package reconciler implements the Lifecycle Reconciler (spec §4.4): the
// single long-running task that sweeps the store every
// ROUTE_CHECK_INTERVAL seconds and drives the kernel table toward the set
// of records whose window is open and whose status is not paused.
package reconciler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/routemgr/internal/clock"
	"github.com/yanizio/routemgr/internal/kernel"
	"github.com/yanizio/routemgr/internal/metrics"
	"github.com/yanizio/routemgr/internal/route"
	"github.com/yanizio/routemgr/internal/store"
)

// Reconciler owns one background sweep loop. Construct with New and run
// with Run(ctx); Run returns when ctx is cancelled, honoring the
// between-sweeps shutdown contract of spec §4.4.
type Reconciler struct {
	store    store.Store
	actuator kernel.Actuator
	clock    clock.Clock
	interval time.Duration
	log      *zap.Logger
}

// New builds a Reconciler. interval is ROUTE_CHECK_INTERVAL.
func New(st store.Store, act kernel.Actuator, clk clock.Clock, interval time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{store: st, actuator: act, clock: clk, interval: interval, log: log}
}

// Run sleeps interval between sweeps and checks ctx between sweeps only —
// a sweep in progress always runs to completion, per spec §4.4's
// cancellation contract.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.Sweep(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
		}
	}
}

// Sweep performs one pass over every record in the store, applying the T1
// (expire) / T2 (activate) / T3 (no-op) transition table from spec §4.4.
// Records are processed independently; an error on one never aborts the
// sweep, and store/kernel races against concurrent API mutations are
// logged and ignored — the next sweep reconverges.
func (r *Reconciler) Sweep(ctx context.Context) {
	start := r.clock.Now()
	records, err := r.store.ListActive(ctx)
	if err != nil {
		r.log.Error("sweep: listing routes failed", zap.Error(err))
		return
	}

	now := r.clock.Now()
	for _, rec := range records {
		r.applyTransition(ctx, rec, now)
	}

	metrics.ReconcilerSweepDuration.Observe(r.clock.Now().Sub(start).Seconds())
	metrics.RecordRouteCounts(records)
}

func (r *Reconciler) applyTransition(ctx context.Context, rec route.Record, now time.Time) {
	switch {
	case rec.DeleteAt != nil && !rec.DeleteAt.After(now) && rec.Status != route.StatusExpired:
		r.expire(ctx, rec, now)

	case !rec.CreateAt.After(now) &&
		(rec.DeleteAt == nil || rec.DeleteAt.After(now)) &&
		!rec.Active && rec.Status != route.StatusPaused:
		r.activate(ctx, rec)

	default:
		// T3: no-op.
	}
}

// expire implements T1: remove from the kernel (unless paused, tolerating
// not-present), append to history, and clear active.
func (r *Reconciler) expire(ctx context.Context, rec route.Record, now time.Time) {
	if rec.Status != route.StatusPaused {
		if err := r.actuator.Remove(ctx, rec.To); err != nil && !errors.Is(err, kernel.ErrNotPresent) {
			r.log.Error("sweep: kernel remove failed during expiry", zap.String("to", rec.To), zap.Error(err))
			metrics.ReconcilerActuatorErrors.Inc()
		}
	}

	if _, err := r.store.Delete(ctx, rec.To, route.StatusExpired, now); err != nil {
		r.log.Info("sweep: expire store update skipped", zap.String("to", rec.To), zap.Error(err))
		return
	}
	r.log.Info("route expired", zap.String("to", rec.To))
}

// activate implements T2: install into the kernel (tolerating
// already-exists), then flip active/status atomically.
func (r *Reconciler) activate(ctx context.Context, rec route.Record) {
	if err := r.actuator.Install(ctx, rec); err != nil && !errors.Is(err, kernel.ErrAlreadyExists) {
		r.log.Error("sweep: kernel install failed during activation", zap.String("to", rec.To), zap.Error(err))
		metrics.ReconcilerActuatorErrors.Inc()
		return
	}

	if err := r.store.SetLifecycle(ctx, rec.To, true, route.StatusActive); err != nil {
		r.log.Info("sweep: activate store update skipped", zap.String("to", rec.To), zap.Error(err))
		return
	}
	r.log.Info("route activated", zap.String("to", rec.To))
}
