package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cropsight/cropsight-api/internal/domain"
	"github.com/cropsight/cropsight-api/internal/store"
)

// Common sentinel errors for the session manager.
var (
	// ErrSessionNotFound indicates that the monitoring session does not exist.
	ErrSessionNotFound = errors.New("monitoring session not found")

	// ErrCaptureNotFound indicates that the capture does not exist within
	// the session.
	ErrCaptureNotFound = errors.New("capture not found")

	// ErrNoActiveSession indicates that the station has no active session.
	ErrNoActiveSession = errors.New("no active session for station")
)

// SessionManagerError wraps errors from the session manager with context.
type SessionManagerError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for SessionManagerError.
func (e *SessionManagerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session manager %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("session manager %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *SessionManagerError) Unwrap() error {
	return e.Err
}

func newSessionManagerError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	return &SessionManagerError{Operation: operation, Message: message, Err: err}
}

// SessionUpdate carries a partial update for a monitoring session. Nil
// fields are left untouched.
type SessionUpdate struct {
	IntervalMinutes *int
	Active          *bool
	Metadata        map[string]any
}

// StationSummary describes one station that currently has an active
// monitoring session.
type StationSummary struct {
	StationID       string    `json:"station_id"`
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	IntervalMinutes int       `json:"interval_minutes"`
	StartTime       time.Time `json:"start_time"`
}

// SessionManager owns monitoring session lifecycle and capture recording.
type SessionManager struct {
	kv     store.KV
	logger *slog.Logger
}

// NewSessionManager creates a SessionManager. If logger is nil, the default
// logger is used.
func NewSessionManager(kv store.KV, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionManager{
		kv:     kv,
		logger: logger.With("component", "session_manager"),
	}
}

// CreateSession creates a new active session for the station. If the
// station already has an active session, it is deactivated and persisted
// before the new session is written, preserving the single-active-session
// invariant.
func (m *SessionManager) CreateSession(
	ctx context.Context,
	stationID, userID string,
	intervalMinutes int,
	metadata map[string]any,
) (*domain.MonitoringSession, error) {
	existing, err := m.ActiveSession(ctx, stationID)
	if err != nil && !errors.Is(err, ErrNoActiveSession) {
		return nil, err
	}

	if existing != nil {
		existing.Deactivate()
		if err := m.saveSession(ctx, existing); err != nil {
			return nil, newSessionManagerError("create_session", "failed to deactivate previous session", err)
		}
		m.logger.Info("previous session deactivated",
			"station_id", stationID,
			"session_id", existing.SessionID)
	}

	session, err := domain.NewMonitoringSession(stationID, userID, intervalMinutes, metadata)
	if err != nil {
		return nil, newSessionManagerError("create_session", "invalid session", err)
	}

	if err := m.saveSession(ctx, session); err != nil {
		return nil, newSessionManagerError("create_session", "failed to persist session", err)
	}

	m.logger.Info("monitoring session created",
		"station_id", stationID,
		"session_id", session.SessionID,
		"interval_minutes", intervalMinutes)

	return session, nil
}

// GetSession returns the session by station and session ID, or
// ErrSessionNotFound.
func (m *SessionManager) GetSession(ctx context.Context, stationID, sessionID string) (*domain.MonitoringSession, error) {
	item, err := m.kv.Get(ctx, store.StationPK(stationID), store.SessionSK(sessionID))
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrSessionNotFound
		}
		return nil, newSessionManagerError("get_session", "failed to read session", err)
	}

	var session domain.MonitoringSession
	if err := item.Decode(&session); err != nil {
		return nil, newSessionManagerError("get_session", "failed to decode session", err)
	}
	return &session, nil
}

// ActiveSession returns the station's active session, or ErrNoActiveSession.
func (m *SessionManager) ActiveSession(ctx context.Context, stationID string) (*domain.MonitoringSession, error) {
	items, err := m.kv.Query(ctx, store.StationPK(stationID))
	if err != nil {
		return nil, newSessionManagerError("active_session", "failed to query station sessions", err)
	}

	for _, item := range items {
		if item.EntityType != store.EntitySession {
			continue
		}

		var session domain.MonitoringSession
		if err := item.Decode(&session); err != nil {
			return nil, newSessionManagerError("active_session", "failed to decode session", err)
		}
		if session.Active {
			return &session, nil
		}
	}

	return nil, ErrNoActiveSession
}

// UpdateSession applies a partial update to a session. Toggling active from
// true to false stamps the end time. Returns ErrSessionNotFound if the
// session does not exist.
func (m *SessionManager) UpdateSession(
	ctx context.Context,
	stationID, sessionID string,
	update SessionUpdate,
) (*domain.MonitoringSession, error) {
	session, err := m.GetSession(ctx, stationID, sessionID)
	if err != nil {
		return nil, err
	}

	if update.IntervalMinutes != nil {
		session.IntervalMinutes = *update.IntervalMinutes
	}

	if update.Active != nil {
		if session.Active && !*update.Active {
			now := time.Now().UTC()
			session.EndTime = &now
		}
		session.Active = *update.Active
	}

	if len(update.Metadata) > 0 {
		if session.Metadata == nil {
			session.Metadata = make(map[string]any, len(update.Metadata))
		}
		for k, v := range update.Metadata {
			session.Metadata[k] = v
		}
	}

	if err := m.saveSession(ctx, session); err != nil {
		return nil, newSessionManagerError("update_session", "failed to persist session", err)
	}

	m.logger.Info("monitoring session updated",
		"station_id", stationID,
		"session_id", sessionID)

	return session, nil
}

// StopSession deactivates a session. Returns ErrSessionNotFound if the
// session does not exist.
func (m *SessionManager) StopSession(ctx context.Context, stationID, sessionID string) error {
	session, err := m.GetSession(ctx, stationID, sessionID)
	if err != nil {
		return err
	}

	session.Deactivate()
	if err := m.saveSession(ctx, session); err != nil {
		return newSessionManagerError("stop_session", "failed to persist session", err)
	}

	m.logger.Info("monitoring session stopped",
		"station_id", stationID,
		"session_id", sessionID)

	return nil
}

// RecordCapture records one capture against a session: the capture is
// persisted under the session's partition and its ID is appended to the
// session's capture list (deduplicated). Returns ErrSessionNotFound if the
// session does not exist.
func (m *SessionManager) RecordCapture(
	ctx context.Context,
	stationID, sessionID, imageID, imageURL string,
	metadata map[string]any,
) (*domain.CaptureResult, error) {
	session, err := m.GetSession(ctx, stationID, sessionID)
	if err != nil {
		return nil, err
	}

	capture, err := domain.NewCaptureResult(imageID, imageURL, metadata)
	if err != nil {
		return nil, newSessionManagerError("record_capture", "invalid capture", err)
	}

	if err := m.saveCapture(ctx, sessionID, capture); err != nil {
		return nil, newSessionManagerError("record_capture", "failed to persist capture", err)
	}

	if session.AddCapture(capture.CaptureID) {
		if err := m.saveSession(ctx, session); err != nil {
			return nil, newSessionManagerError("record_capture", "failed to persist session capture list", err)
		}
	}

	m.logger.Info("capture recorded",
		"session_id", sessionID,
		"capture_id", capture.CaptureID,
		"image_id", imageID)

	return capture, nil
}

// UpdateCaptureStatus updates one capture's status, unions the given result
// IDs into its set and shallow-merges metadata. Returns ErrCaptureNotFound
// if no capture with the ID exists in the session.
func (m *SessionManager) UpdateCaptureStatus(
	ctx context.Context,
	sessionID, captureID string,
	status domain.CaptureStatus,
	resultIDs []string,
	metadata map[string]any,
) (*domain.CaptureResult, error) {
	if status == "" {
		return nil, newSessionManagerError("update_capture", "invalid capture", domain.ErrEmptyCaptureStatus)
	}

	capture, err := m.getCapture(ctx, sessionID, captureID)
	if err != nil {
		return nil, err
	}

	capture.Status = status
	capture.MergeResultIDs(resultIDs)
	capture.MergeMetadata(metadata)

	if err := m.saveCapture(ctx, sessionID, capture); err != nil {
		return nil, newSessionManagerError("update_capture", "failed to persist capture", err)
	}

	m.logger.Info("capture updated",
		"session_id", sessionID,
		"capture_id", captureID,
		"status", status)

	return capture, nil
}

// SessionCaptures returns all captures recorded for a session, ordered by
// capture ID.
func (m *SessionManager) SessionCaptures(ctx context.Context, sessionID string) ([]*domain.CaptureResult, error) {
	items, err := m.kv.Query(ctx, store.SessionPK(sessionID))
	if err != nil {
		return nil, newSessionManagerError("session_captures", "failed to query captures", err)
	}

	var captures []*domain.CaptureResult
	for _, item := range items {
		if item.EntityType != store.EntityCapture {
			continue
		}

		var capture domain.CaptureResult
		if err := item.Decode(&capture); err != nil {
			return nil, newSessionManagerError("session_captures", "failed to decode capture", err)
		}
		captures = append(captures, &capture)
	}

	return captures, nil
}

// StationsWithActiveSessions lists every station that currently has an
// active monitoring session.
func (m *SessionManager) StationsWithActiveSessions(ctx context.Context) ([]StationSummary, error) {
	items, err := m.kv.Scan(ctx, store.StationPKPrefix)
	if err != nil {
		return nil, newSessionManagerError("stations_with_active_sessions", "failed to scan stations", err)
	}

	var stations []StationSummary
	for _, item := range items {
		if item.EntityType != store.EntitySession {
			continue
		}

		var session domain.MonitoringSession
		if err := item.Decode(&session); err != nil {
			return nil, newSessionManagerError("stations_with_active_sessions", "failed to decode session", err)
		}
		if !session.Active {
			continue
		}

		stations = append(stations, StationSummary{
			StationID:       session.StationID,
			SessionID:       session.SessionID,
			UserID:          session.UserID,
			IntervalMinutes: session.IntervalMinutes,
			StartTime:       session.StartTime,
		})
	}

	return stations, nil
}

func (m *SessionManager) getCapture(ctx context.Context, sessionID, captureID string) (*domain.CaptureResult, error) {
	item, err := m.kv.Get(ctx, store.SessionPK(sessionID), store.CaptureSK(captureID))
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, ErrCaptureNotFound
		}
		return nil, newSessionManagerError("get_capture", "failed to read capture", err)
	}

	var capture domain.CaptureResult
	if err := item.Decode(&capture); err != nil {
		return nil, newSessionManagerError("get_capture", "failed to decode capture", err)
	}
	return &capture, nil
}

func (m *SessionManager) saveSession(ctx context.Context, session *domain.MonitoringSession) error {
	item, err := store.NewItem(
		store.StationPK(session.StationID), store.SessionSK(session.SessionID),
		store.EntitySession, session, 0)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, item)
}

func (m *SessionManager) saveCapture(ctx context.Context, sessionID string, capture *domain.CaptureResult) error {
	item, err := store.NewItem(
		store.SessionPK(sessionID), store.CaptureSK(capture.CaptureID),
		store.EntityCapture, capture, 0)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, item)
}
