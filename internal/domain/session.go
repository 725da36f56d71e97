package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common validation errors for MonitoringSession
var (
	ErrEmptySessionStationID = errors.New("session station ID cannot be empty")
	ErrEmptySessionUserID    = errors.New("session user ID cannot be empty")
	ErrInvalidInterval       = errors.New("capture interval must be at least one minute")
)

// MonitoringSession is a station-scoped, time-bounded window during which
// periodic captures are expected. At most one session per station may be
// active at a time; creating a new session deactivates the previous one.
type MonitoringSession struct {
	SessionID       string         `json:"session_id"`
	StationID       string         `json:"station_id"`
	UserID          string         `json:"user_id"`
	IntervalMinutes int            `json:"interval_minutes"`
	Active          bool           `json:"active"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         *time.Time     `json:"end_time,omitempty"`
	Captures        []string       `json:"captures"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewMonitoringSession creates an active session for a station with a
// generated session ID. Returns an error if validation fails.
func NewMonitoringSession(stationID, userID string, intervalMinutes int, metadata map[string]any) (*MonitoringSession, error) {
	s := &MonitoringSession{
		SessionID:       "sess-" + uuid.NewString(),
		StationID:       stationID,
		UserID:          userID,
		IntervalMinutes: intervalMinutes,
		Active:          true,
		StartTime:       time.Now().UTC(),
		Captures:        []string{},
		Metadata:        metadata,
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks if the MonitoringSession has valid data.
func (s *MonitoringSession) Validate() error {
	if s.StationID == "" {
		return ErrEmptySessionStationID
	}

	if s.UserID == "" {
		return ErrEmptySessionUserID
	}

	if s.IntervalMinutes < 1 {
		return ErrInvalidInterval
	}

	return nil
}

// Deactivate ends the session: clears the active flag and stamps the end
// time. Calling it on an already inactive session only refreshes EndTime
// if one was never set.
func (s *MonitoringSession) Deactivate() {
	s.Active = false
	if s.EndTime == nil {
		now := time.Now().UTC()
		s.EndTime = &now
	}
}

// AddCapture appends a capture ID to the session's capture list. Re-adding
// an existing ID is a no-op; returns true only when the list changed.
func (s *MonitoringSession) AddCapture(captureID string) bool {
	for _, id := range s.Captures {
		if id == captureID {
			return false
		}
	}

	s.Captures = append(s.Captures, captureID)
	return true
}
