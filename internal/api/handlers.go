// Package api provides HTTP handlers for GeoShift endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BTreeMap/GeoShift/internal/models"
)

// transitionHandler ingests a raw geofence transition (POST /transition).
func (s *Server) transitionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.transitionHandler: processing transition request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.transitionHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var raw models.RawTransition
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		slog.Warn("Server.transitionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if raw.ObservedAt.IsZero() {
		raw.ObservedAt = time.Now()
	}

	if err := s.engine.OnGeofenceTransition(r.Context(), raw); err != nil {
		slog.Warn("Server.transitionHandler: transition rejected", "error", err, "fence", raw.FenceID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	slog.Info("Server.transitionHandler: transition accepted", "fence", raw.FenceID, "kind", raw.Kind)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Transition accepted", nil))
}

// heartbeatHandler runs one heartbeat pass (POST /heartbeat).
func (s *Server) heartbeatHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.heartbeatHandler: processing heartbeat request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.heartbeatHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.engine.OnHeartbeatTick(r.Context())
	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Status()))
}

// actionRequest is the body of POST /action.
type actionRequest struct {
	Action models.UserAction `json:"action"`
}

// actionHandler delivers a user's prompt response (POST /action).
func (s *Server) actionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.actionHandler: processing action request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.actionHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.actionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.engine.OnUserAction(r.Context(), req.Action); err != nil {
		slog.Warn("Server.actionHandler: action rejected", "error", err, "action", req.Action)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	slog.Info("Server.actionHandler: action applied", "action", req.Action)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Action applied", nil))
}

// positionHandler ingests a position fix pushed by the location stack
// (POST /position).
func (s *Server) positionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.positionHandler: processing position request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.positionHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var pos models.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		slog.Warn("Server.positionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := pos.Validate(); err != nil {
		slog.Warn("Server.positionHandler: invalid position", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	s.opts.Positions.Report(pos)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Position recorded", nil))
}

// fencesHandler lists the fence set (GET /fences) or replaces it wholesale
// (POST /fences).
func (s *Server) fencesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.fencesHandler: processing fences request", "method", r.Method, "path", r.URL.Path)
	switch r.Method {
	case http.MethodGet:
		fences, err := s.st.ListFences(s.opts.UserID)
		if err != nil {
			slog.Error("Server.fencesHandler: failed to list fences", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list fences"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(fences))

	case http.MethodPost:
		var fences []models.Fence
		if err := json.NewDecoder(r.Body).Decode(&fences); err != nil {
			slog.Warn("Server.fencesHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if err := s.engine.ReconfigureFences(r.Context(), fences); err != nil {
			slog.Warn("Server.fencesHandler: reconfigure rejected", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		slog.Info("Server.fencesHandler: fences reconfigured", "count", len(fences))
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Fences reconfigured", len(fences)))

	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.fencesHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// readyHandler marks platform boot complete (POST /ready).
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.readyHandler: processing ready request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.readyHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	s.engine.MarkReady(r.Context())
	slog.Info("Server.readyHandler: engine marked ready")
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Monitoring active", nil))
}

// statusHandler returns the engine status snapshot (GET /status).
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statusHandler: processing status request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.statusHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(s.engine.Status()))
}

// sessionsHandler lists recent sessions, newest first (GET /sessions?limit=N).
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sessionsHandler: processing sessions request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.sessionsHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := DefaultSessionListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			slog.Warn("Server.sessionsHandler: invalid limit", "limit", raw)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid limit parameter"))
			return
		}
		limit = parsed
	}

	sessions, err := s.st.ListSessions(s.opts.UserID, limit)
	if err != nil {
		slog.Error("Server.sessionsHandler: failed to list sessions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list sessions"))
		return
	}
	slog.Debug("Server.sessionsHandler: sessions fetched", "count", len(sessions))
	writeJSONResponse(w, http.StatusOK, models.Success(sessions))
}
