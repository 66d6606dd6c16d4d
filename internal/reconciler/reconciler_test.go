package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/yanizio/routemgr/internal/kernel"
	"github.com/yanizio/routemgr/internal/route"
	"github.com/yanizio/routemgr/internal/store"
)

// fakeActuator records Install/Remove calls without touching a real
// kernel table.
type fakeActuator struct {
	mu        sync.Mutex
	installed map[string]bool
	installErr error
	removeErr  error
}

func newFakeActuator() *fakeActuator {
	return &fakeActuator{installed: make(map[string]bool)}
}

func (f *fakeActuator) Install(ctx context.Context, rec route.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.installErr != nil {
		return f.installErr
	}
	if f.installed[rec.To] {
		return kernel.ErrAlreadyExists
	}
	f.installed[rec.To] = true
	return nil
}

func (f *fakeActuator) Remove(ctx context.Context, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	if !f.installed[to] {
		return kernel.ErrNotPresent
	}
	delete(f.installed, to)
	return nil
}

func (f *fakeActuator) Dump(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeActuator) has(to string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[to]
}

func TestSweepActivatesDueRoute(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	act := newFakeActuator()
	clk := clockwork.NewFakeClock()

	dev := "eth0"
	rec := route.Record{
		To:       "10.0.0.0/24",
		Dev:      &dev,
		CreateAt: clk.Now().Add(-time.Second),
		Status:   route.StatusPending,
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := New(st, act, clk, time.Second, zap.NewNop())
	r.Sweep(ctx)

	got, err := st.Get(ctx, rec.To)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != route.StatusActive || !got.Active {
		t.Fatalf("expected active route, got %+v", got)
	}
	if !act.has(rec.To) {
		t.Fatalf("expected route installed in kernel")
	}
}

func TestSweepExpiresDueRoute(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	act := newFakeActuator()
	clk := clockwork.NewFakeClock()

	dev := "eth0"
	deleteAt := clk.Now().Add(-time.Second)
	rec := route.Record{
		To:       "10.0.0.0/24",
		Dev:      &dev,
		CreateAt: clk.Now().Add(-time.Hour),
		DeleteAt: &deleteAt,
		Active:   true,
		Status:   route.StatusActive,
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	act.installed[rec.To] = true

	r := New(st, act, clk, time.Second, zap.NewNop())
	r.Sweep(ctx)

	if _, err := st.Get(ctx, rec.To); err == nil {
		t.Fatalf("expected route removed from store")
	}
	deletedList, err := st.ListDeleted(ctx)
	if err != nil || len(deletedList) != 1 || deletedList[0].Status != route.StatusExpired {
		t.Fatalf("expected one expired deleted record, got %+v err=%v", deletedList, err)
	}
	if act.has(rec.To) {
		t.Fatalf("expected route removed from kernel")
	}
}

func TestSweepLeavesPausedRouteUninstalled(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	act := newFakeActuator()
	clk := clockwork.NewFakeClock()

	dev := "eth0"
	rec := route.Record{
		To:       "10.0.0.0/24",
		Dev:      &dev,
		CreateAt: clk.Now().Add(-time.Hour),
		Active:   false,
		Status:   route.StatusPaused,
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := New(st, act, clk, time.Second, zap.NewNop())
	r.Sweep(ctx)

	got, err := st.Get(ctx, rec.To)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != route.StatusPaused || got.Active {
		t.Fatalf("expected route to remain paused, got %+v", got)
	}
	if act.has(rec.To) {
		t.Fatalf("expected paused route to stay out of the kernel")
	}
}

func TestSweepToleratesDeleteRaceAfterListSnapshot(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	act := newFakeActuator()
	clk := clockwork.NewFakeClock()

	dev := "eth0"
	rec := route.Record{
		To:       "10.0.0.0/24",
		Dev:      &dev,
		CreateAt: clk.Now().Add(-time.Second),
		Status:   route.StatusPending,
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	// Simulate a concurrent DELETE landing between the sweep's list and
	// its write-back by removing the record right before Sweep acts.
	records, err := st.ListActive(ctx)
	if err != nil || len(records) != 1 {
		t.Fatalf("listactive: %v %v", records, err)
	}
	if _, err := st.Delete(ctx, rec.To, route.StatusDeleted, clk.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	r := New(st, act, clk, time.Second, zap.NewNop())
	r.applyTransition(ctx, records[0], clk.Now())

	if _, err := st.Get(ctx, rec.To); err == nil {
		t.Fatalf("expected route to remain absent")
	}
}

func TestSweepContinuesPastActuatorError(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	act := newFakeActuator()
	act.installErr = errors.New("boom")
	clk := clockwork.NewFakeClock()

	dev := "eth0"
	rec := route.Record{
		To:       "10.0.0.0/24",
		Dev:      &dev,
		CreateAt: clk.Now().Add(-time.Second),
		Status:   route.StatusPending,
	}
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	r := New(st, act, clk, time.Second, zap.NewNop())
	r.Sweep(ctx)

	got, err := st.Get(ctx, rec.To)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != route.StatusPending || got.Active {
		t.Fatalf("expected route to remain pending after actuator error, got %+v", got)
	}
}
