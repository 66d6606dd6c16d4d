package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/yanizio/routemgr/internal/kernel"
	"github.com/yanizio/routemgr/internal/route"
	"github.com/yanizio/routemgr/internal/store"
)

const testToken = "test-token"

type fakeActuator struct {
	mu        sync.Mutex
	installed map[string]bool
	installErr error
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
	if !f.installed[to] {
		return kernel.ErrNotPresent
	}
	delete(f.installed, to)
	return nil
}

func (f *fakeActuator) Dump(ctx context.Context) ([]string, error) { return []string{"10.0.0.0/8 dev eth0"}, nil }

func newTestServer() (*Server, http.Handler) {
	st := store.NewMemory()
	act := newFakeActuator()
	clk := clockwork.NewFakeClock()
	s := NewServer(st, act, clk, zap.NewNop(), func() ([]net.Interface, error) {
		return []net.Interface{{Name: "eth0"}}, nil
	})
	return s, s.NewRouter(testToken)
}

func doRequest(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestPutCreatesPendingRoute(t *testing.T) {
	_, h := newTestServer()
	future := time.Now().Add(time.Hour)
	rr := doRequest(h, http.MethodPut, "/routes/", routeBody{To: "10.1.0.0/24", Dev: "eth0", CreateAt: &future})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPutActivatesImmediateRoute(t *testing.T) {
	_, h := newTestServer()
	rr := doRequest(h, http.MethodPut, "/routes/", routeBody{To: "10.2.0.0/24", Dev: "eth0"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var rec route.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != route.StatusActive || !rec.Active {
		t.Fatalf("expected active route, got %+v", rec)
	}
}

func TestPutDuplicateConflicts(t *testing.T) {
	_, h := newTestServer()
	future := time.Now().Add(time.Hour)
	body := routeBody{To: "10.3.0.0/24", Dev: "eth0", CreateAt: &future}
	if rr := doRequest(h, http.MethodPut, "/routes/", body); rr.Code != http.StatusCreated {
		t.Fatalf("first put: %d %s", rr.Code, rr.Body.String())
	}
	rr := doRequest(h, http.MethodPut, "/routes/", body)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPatchClearsSiblingField(t *testing.T) {
	_, h := newTestServer()
	future := time.Now().Add(time.Hour)
	via := "192.168.1.1"
	doRequest(h, http.MethodPut, "/routes/", routeBody{To: "10.4.0.0/24", Via: via, CreateAt: &future})

	dev := "eth0"
	rr := doRequest(h, http.MethodPatch, "/routes/", routeUpdateBody{To: "10.4.0.0/24", Dev: &dev})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var rec route.Record
	if err := json.Unmarshal(rr.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Via != nil || rec.Dev == nil || *rec.Dev != "eth0" {
		t.Fatalf("expected via cleared and dev=eth0, got %+v", rec)
	}
	if rec.Status != route.StatusPending {
		t.Fatalf("expected patch to reset status to pending, got %s", rec.Status)
	}
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	_, h := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/routes", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestDeleteMissingRouteNotFound(t *testing.T) {
	_, h := newTestServer()
	rr := doRequest(h, http.MethodDelete, "/routes/", toBody{To: "10.9.9.0/24"})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestPauseThenActivate(t *testing.T) {
	_, h := newTestServer()
	doRequest(h, http.MethodPut, "/routes/", routeBody{To: "10.5.0.0/24", Dev: "eth0"})

	rr := doRequest(h, http.MethodPatch, "/routes/pause", toBody{To: "10.5.0.0/24"})
	if rr.Code != http.StatusOK {
		t.Fatalf("pause: %d %s", rr.Code, rr.Body.String())
	}

	rr = doRequest(h, http.MethodPatch, "/routes/activate", toBody{To: "10.5.0.0/24"})
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: %d %s", rr.Code, rr.Body.String())
	}
}

func TestGetDeletedListsHistory(t *testing.T) {
	_, h := newTestServer()
	doRequest(h, http.MethodPut, "/routes/", routeBody{To: "10.6.0.0/24", Dev: "eth0"})
	doRequest(h, http.MethodDelete, "/routes/", toBody{To: "10.6.0.0/24"})

	rr := doRequest(h, http.MethodGet, "/routes/deleted", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp deletedRoutesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.DeletedRoutes) != 1 {
		t.Fatalf("expected one deleted record, got %d", len(resp.DeletedRoutes))
	}
}
