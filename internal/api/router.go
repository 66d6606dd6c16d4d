package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/yanizio/routemgr/internal/clock"
	"github.com/yanizio/routemgr/internal/kernel"
	appmw "github.com/yanizio/routemgr/internal/middleware"
	"github.com/yanizio/routemgr/internal/route"
	"github.com/yanizio/routemgr/internal/store"
)

// Server holds the dependencies every handler needs. It is the single
// injection point spec §9's "engine-override hook" describes: production
// wires *store.MySQLStore and *kernel.IPRoute, tests wire fakes.
type Server struct {
	store      store.Store
	actuator   kernel.Actuator
	clock      clock.Clock
	log        *zap.Logger
	interfaces route.InterfaceLister
}

// NewServer builds a Server. interfaces may be nil, in which case
// route.New falls back to net.Interfaces.
func NewServer(st store.Store, act kernel.Actuator, clk clock.Clock, log *zap.Logger, interfaces route.InterfaceLister) *Server {
	return &Server{store: st, actuator: act, clock: clk, log: log, interfaces: interfaces}
}

// NewRouter builds the full chi router: access logging, panic recovery,
// security headers, bearer auth (except /healthz and /metrics), then the
// route handlers of spec §6.1.
func (s *Server) NewRouter(apiToken string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(s.accessLog)
	r.Use(appmw.Security)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(apiToken))
		r.Get("/routes", s.handleGetRoutes)
		r.Put("/routes/", s.handlePut)
		r.Patch("/routes/", s.handlePatch)
		r.Delete("/routes/", s.handleDelete)
		r.Patch("/routes/pause", s.handlePause)
		r.Patch("/routes/activate", s.handleActivate)
		r.Get("/routes/deleted", s.handleGetDeleted)
	})

	return r
}

// accessLog logs one line per request at INFO, mirroring the teacher's
// file-backed logger but through zap's structured fields. For PUT, PATCH,
// and DELETE — the methods original_source/app/routers/routes.py logs as
// "REQUEST RECEIVED" lines carrying the target route — it also surfaces
// the body's "to" field, since the route a mutation targets matters as
// much as the verb applied to it.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		to := peekBodyTo(r)
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", s.clock.Now().Sub(start)),
		}
		if to != "" {
			fields = append(fields, zap.String("to", to))
		}
		s.log.Info("request", fields...)
	})
}

// peekBodyTo reads the "to" field out of a mutation request's JSON body
// without consuming it for the downstream handler: it restores r.Body to
// a fresh reader over the same bytes before returning. Non-mutating
// methods and bodies without a "to" field yield "".
func peekBodyTo(r *http.Request) string {
	switch r.Method {
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return ""
	}
	if r.Body == nil {
		return ""
	}

	raw, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}

	var body toBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.To
}

// handleHealthz is an unauthenticated liveness probe that also confirms
// the store is reachable, per SPEC_FULL.md §12.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListActive(r.Context()); err != nil {
		s.log.Error("healthz: store unreachable", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unreachable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
