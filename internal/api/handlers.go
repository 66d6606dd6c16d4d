package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yanizio/routemgr/internal/apperr"
	"github.com/yanizio/routemgr/internal/kernel"
	"github.com/yanizio/routemgr/internal/route"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError is the single place that maps a core error to an HTTP
// response, per apperr's package doc.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperr.As(err); ok {
		writeJSON(w, appErr.HTTPStatus(), errorResponse{Error: appErr.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("malformed request body: %v", err)
	}
	return nil
}

// handlePut implements spec §4.5.1.
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var body routeBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	now := s.clock.Now()
	rec, err := route.New(route.NewInput{
		To:       body.To,
		Via:      body.Via,
		Dev:      body.Dev,
		CreateAt: body.CreateAt,
		DeleteAt: body.DeleteAt,
	}, now, s.interfaces)
	if err != nil {
		writeError(w, err)
		return
	}

	phase := route.Classify(rec.CreateAt, rec.DeleteAt, now)
	ctx := r.Context()

	switch phase {
	case route.PhasePending:
		rec.Status = route.StatusPending
		rec.Active = false
		if err := s.store.Insert(ctx, rec); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)

	case route.PhaseActive:
		if err := s.actuator.Install(ctx, rec); err != nil {
			if errors.Is(err, kernel.ErrAlreadyExists) {
				s.log.Info("put: route already installed, not duplicating store record", zap.String("to", rec.To))
				writeJSON(w, http.StatusOK, messageResponse{Message: "route already present in kernel"})
				return
			}
			writeError(w, apperr.Actuator("installing route", err))
			return
		}
		rec.Status = route.StatusActive
		rec.Active = true
		if err := s.store.Insert(ctx, rec); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)

	case route.PhaseExpired:
		rec.Status = route.StatusExpired
		rec.Active = false
		if err := s.store.Insert(ctx, rec); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
	}
}

// handlePatch implements spec §4.5.2.
func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var body routeUpdateBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.To == "" {
		writeError(w, apperr.Validation("to is required"))
		return
	}

	patch := route.Patch{CreateAt: body.CreateAt, DeleteAt: body.DeleteAt}
	// Enumerated via-before-dev, per spec §4.5.2: when both are set, the
	// later field (dev) wins and fully overrides via's effect.
	if body.Via != nil {
		patch.Via, patch.ClearDev = body.Via, true
		patch.Dev, patch.ClearVia = nil, false
	}
	if body.Dev != nil {
		patch.Dev, patch.ClearVia = body.Dev, true
		patch.Via, patch.ClearDev = nil, false
	}

	ctx := r.Context()
	if err := s.store.Update(ctx, body.To, patch); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SetLifecycle(ctx, body.To, false, route.StatusPending); err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.store.Get(ctx, body.To)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDelete implements spec §4.5.3.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body toBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	prior, err := s.store.Delete(ctx, body.To, route.StatusDeleted, s.clock.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	if prior.Active {
		if err := s.actuator.Remove(ctx, prior.To); err != nil && !errors.Is(err, kernel.ErrNotPresent) {
			writeError(w, apperr.Actuator("removing route", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "route deleted"})
}

// handlePause implements spec §4.5.4.
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var body toBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	rec, err := s.store.Get(ctx, body.To)
	if err != nil {
		writeError(w, err)
		return
	}

	now := s.clock.Now()
	if rec.Status != route.StatusActive || !rec.Active || !route.InWindow(rec.CreateAt, rec.DeleteAt, now) {
		writeError(w, apperr.Conflict("route to %s is not active within its window", body.To))
		return
	}

	if err := s.actuator.Remove(ctx, rec.To); err != nil && !errors.Is(err, kernel.ErrNotPresent) {
		writeError(w, apperr.Actuator("removing route", err))
		return
	}
	if err := s.store.SetLifecycle(ctx, rec.To, false, route.StatusPaused); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "route paused"})
}

// handleActivate implements spec §4.5.5.
func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var body toBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	rec, err := s.store.Get(ctx, body.To)
	if err != nil {
		writeError(w, err)
		return
	}

	now := s.clock.Now()
	if rec.Status != route.StatusPaused || rec.Active || !route.InWindow(rec.CreateAt, rec.DeleteAt, now) {
		writeError(w, apperr.Conflict("route to %s is not paused within its window", body.To))
		return
	}

	if err := s.actuator.Install(ctx, rec); err != nil && !errors.Is(err, kernel.ErrAlreadyExists) {
		writeError(w, apperr.Actuator("installing route", err))
		return
	}
	if err := s.store.SetLifecycle(ctx, rec.To, true, route.StatusActive); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "route activated"})
}

// handleGetRoutes implements spec §4.5.6.
func (s *Server) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	records, err := s.store.ListActive(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	lines, err := s.actuator.Dump(ctx)
	if err != nil {
		writeError(w, apperr.Actuator("listing kernel routes", err))
		return
	}
	writeJSON(w, http.StatusOK, routesResponse{DatabaseRoutes: records, SystemRoutes: lines})
}

// handleGetDeleted implements spec §4.5.7.
func (s *Server) handleGetDeleted(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListDeleted(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedRoutesResponse{DeletedRoutes: records})
}
