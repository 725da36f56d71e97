package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cropsight/cropsight-api/internal/api/shared"
	"github.com/cropsight/cropsight-api/internal/domain"
	"github.com/cropsight/cropsight-api/internal/monitor"
)

// CreateSessionRequest represents the request body for creating a
// monitoring session.
type CreateSessionRequest struct {
	StationID       string         `json:"station_id" validate:"required,min=1"`
	UserID          string         `json:"user_id" validate:"required,min=1"`
	IntervalMinutes int            `json:"interval_minutes" validate:"required,gt=0"`
	Metadata        map[string]any `json:"metadata"`
}

// UpdateSessionRequest represents the request body for a partial session
// update. Absent fields are left untouched.
type UpdateSessionRequest struct {
	IntervalMinutes *int           `json:"interval_minutes" validate:"omitempty,gt=0"`
	Active          *bool          `json:"active"`
	Metadata        map[string]any `json:"metadata"`
}

// RecordCaptureRequest represents the request body for recording a capture
// against a session.
type RecordCaptureRequest struct {
	ImageID  string         `json:"image_id" validate:"required,min=1"`
	ImageURL string         `json:"image_url" validate:"required,min=1"`
	Metadata map[string]any `json:"metadata"`
}

// UpdateCaptureRequest represents the request body for updating a capture's
// processing status.
type UpdateCaptureRequest struct {
	Status    string         `json:"status" validate:"required,min=1"`
	ResultIDs []string       `json:"result_ids"`
	Metadata  map[string]any `json:"metadata"`
}

// MonitoringHandler handles monitoring session HTTP requests.
type MonitoringHandler struct {
	sessions *monitor.SessionManager
}

// NewMonitoringHandler creates a new MonitoringHandler.
func NewMonitoringHandler(sessions *monitor.SessionManager) *MonitoringHandler {
	return &MonitoringHandler{sessions: sessions}
}

// CreateSession handles POST /api/monitoring/sessions requests.
func (h *MonitoringHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	session, err := h.sessions.CreateSession(r.Context(),
		req.StationID, req.UserID, req.IntervalMinutes, req.Metadata)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to create session", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, session)
}

// GetSession handles GET /api/monitoring/sessions/{stationID}/{sessionID}.
func (h *MonitoringHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessions.GetSession(r.Context(), stationID, sessionID)
	if err != nil {
		h.respondSessionError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, session)
}

// GetActiveSession handles GET /api/monitoring/sessions/active/{stationID}.
func (h *MonitoringHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")

	session, err := h.sessions.ActiveSession(r.Context(), stationID)
	if err != nil {
		if errors.Is(err, monitor.ErrNoActiveSession) {
			shared.RespondWithError(w, r, http.StatusNotFound, "No active session for station")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to read active session", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, session)
}

// UpdateSession handles PUT /api/monitoring/sessions/{stationID}/{sessionID}.
func (h *MonitoringHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	sessionID := chi.URLParam(r, "sessionID")

	var req UpdateSessionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	session, err := h.sessions.UpdateSession(r.Context(), stationID, sessionID, monitor.SessionUpdate{
		IntervalMinutes: req.IntervalMinutes,
		Active:          req.Active,
		Metadata:        req.Metadata,
	})
	if err != nil {
		h.respondSessionError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, session)
}

// StopSession handles POST /api/monitoring/sessions/{stationID}/{sessionID}/stop.
func (h *MonitoringHandler) StopSession(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.sessions.StopSession(r.Context(), stationID, sessionID); err != nil {
		h.respondSessionError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"active":     false,
	})
}

// RecordCapture handles POST /api/monitoring/captures/{stationID}/{sessionID}.
func (h *MonitoringHandler) RecordCapture(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	sessionID := chi.URLParam(r, "sessionID")

	var req RecordCaptureRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	capture, err := h.sessions.RecordCapture(r.Context(),
		stationID, sessionID, req.ImageID, req.ImageURL, req.Metadata)
	if err != nil {
		h.respondSessionError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, capture)
}

// UpdateCapture handles PUT /api/monitoring/captures/{sessionID}/{captureID}.
func (h *MonitoringHandler) UpdateCapture(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	captureID := chi.URLParam(r, "captureID")

	var req UpdateCaptureRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	status := domain.CaptureStatus(req.Status)
	if !domain.IsValidCaptureStatus(status) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid capture status: "+req.Status)
		return
	}

	capture, err := h.sessions.UpdateCaptureStatus(r.Context(),
		sessionID, captureID, status, req.ResultIDs, req.Metadata)
	if err != nil {
		if errors.Is(err, monitor.ErrCaptureNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Capture not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to update capture", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, capture)
}

// ListCaptures handles GET /api/monitoring/captures/{sessionID}.
func (h *MonitoringHandler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	captures, err := h.sessions.SessionCaptures(r.Context(), sessionID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to list captures", err)
		return
	}
	if captures == nil {
		captures = []*domain.CaptureResult{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, captures)
}

// ListActiveStations handles GET /api/monitoring/stations/active.
func (h *MonitoringHandler) ListActiveStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.sessions.StationsWithActiveSessions(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to list active stations", err)
		return
	}
	if stations == nil {
		stations = []monitor.StationSummary{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stations)
}

func (h *MonitoringHandler) respondSessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, monitor.ErrSessionNotFound) {
		shared.RespondWithError(w, r, http.StatusNotFound, "Session not found")
		return
	}
	shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
		"Monitoring operation failed", err)
}
