package monitor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsight/cropsight-api/internal/domain"
	"github.com/cropsight/cropsight-api/internal/store"
)

func newManager(t *testing.T) *SessionManager {
	t.Helper()
	return NewSessionManager(store.NewMemStore(), nil)
}

func TestSessionManager_SingleActiveSessionPerStation(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	first, err := m.CreateSession(ctx, "station-1", "u1", 5, nil)
	require.NoError(t, err)
	assert.True(t, first.Active)

	second, err := m.CreateSession(ctx, "station-1", "u2", 10, nil)
	require.NoError(t, err)
	assert.True(t, second.Active)

	// Creating the second session must deactivate the first and stamp its
	// end time.
	reloaded, err := m.GetSession(ctx, "station-1", first.SessionID)
	require.NoError(t, err)
	assert.False(t, reloaded.Active)
	assert.NotNil(t, reloaded.EndTime)

	active, err := m.ActiveSession(ctx, "station-1")
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, active.SessionID)
}

func TestSessionManager_ActiveSessionWhenNoneExists(t *testing.T) {
	t.Parallel()

	m := newManager(t)

	_, err := m.ActiveSession(context.Background(), "station-empty")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestSessionManager_GetSessionNotFound(t *testing.T) {
	t.Parallel()

	m := newManager(t)

	_, err := m.GetSession(context.Background(), "station-1", "sess-missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_UpdateSession(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "station-1", "u1", 5, map[string]any{"crop": "banana"})
	require.NoError(t, err)

	interval := 15
	inactive := false
	updated, err := m.UpdateSession(ctx, "station-1", session.SessionID, SessionUpdate{
		IntervalMinutes: &interval,
		Active:          &inactive,
		Metadata:        map[string]any{"note": "paused"},
	})
	require.NoError(t, err)

	assert.Equal(t, 15, updated.IntervalMinutes)
	assert.False(t, updated.Active)
	assert.NotNil(t, updated.EndTime, "deactivation must stamp the end time")
	assert.Equal(t, "banana", updated.Metadata["crop"], "partial update leaves other metadata alone")
	assert.Equal(t, "paused", updated.Metadata["note"])

	// Only provided fields are overwritten.
	again, err := m.UpdateSession(ctx, "station-1", session.SessionID, SessionUpdate{})
	require.NoError(t, err)
	assert.Equal(t, 15, again.IntervalMinutes)

	_, err = m.UpdateSession(ctx, "station-1", "sess-missing", SessionUpdate{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_StopSession(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "station-1", "u1", 5, nil)
	require.NoError(t, err)

	require.NoError(t, m.StopSession(ctx, "station-1", session.SessionID))

	reloaded, err := m.GetSession(ctx, "station-1", session.SessionID)
	require.NoError(t, err)
	assert.False(t, reloaded.Active)

	assert.ErrorIs(t, m.StopSession(ctx, "station-1", "sess-missing"), ErrSessionNotFound)
}

func TestSessionManager_RecordCapture(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "station-1", "u1", 5, nil)
	require.NoError(t, err)

	capture, err := m.RecordCapture(ctx, "station-1", session.SessionID,
		"img-1", "https://blob/img-1.jpg", map[string]any{"source": "websocket"})
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStatusCaptured, capture.Status)
	assert.NotEmpty(t, capture.CaptureID)

	second, err := m.RecordCapture(ctx, "station-1", session.SessionID, "img-2", "https://blob/img-2.jpg", nil)
	require.NoError(t, err)
	assert.NotEqual(t, capture.CaptureID, second.CaptureID, "capture IDs are unique")

	reloaded, err := m.GetSession(ctx, "station-1", session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, []string{capture.CaptureID, second.CaptureID}, reloaded.Captures)

	_, err = m.RecordCapture(ctx, "station-1", "sess-missing", "img-3", "https://blob/img-3.jpg", nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionManager_UpdateCaptureStatus(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "station-1", "u1", 5, nil)
	require.NoError(t, err)

	capture, err := m.RecordCapture(ctx, "station-1", session.SessionID,
		"img-1", "https://blob/img-1.jpg", map[string]any{"attempt": float64(1)})
	require.NoError(t, err)

	updated, err := m.UpdateCaptureStatus(ctx, session.SessionID, capture.CaptureID,
		domain.CaptureStatusProcessed, []string{"r1", "r2"}, map[string]any{"worker": "w1"})
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStatusProcessed, updated.Status)
	assert.Equal(t, []string{"r1", "r2"}, updated.ResultIDs)
	assert.Equal(t, "w1", updated.Metadata["worker"])
	assert.Equal(t, float64(1), updated.Metadata["attempt"])

	// Result IDs merge as a set union, not a replace.
	again, err := m.UpdateCaptureStatus(ctx, session.SessionID, capture.CaptureID,
		domain.CaptureStatusProcessed, []string{"r2", "r3"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, again.ResultIDs)

	_, err = m.UpdateCaptureStatus(ctx, session.SessionID, "cap-missing",
		domain.CaptureStatusFailed, nil, nil)
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}

func TestSessionManager_SessionCaptures(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	session, err := m.CreateSession(ctx, "station-1", "u1", 5, nil)
	require.NoError(t, err)

	_, err = m.RecordCapture(ctx, "station-1", session.SessionID, "img-1", "https://blob/1.jpg", nil)
	require.NoError(t, err)
	_, err = m.RecordCapture(ctx, "station-1", session.SessionID, "img-2", "https://blob/2.jpg", nil)
	require.NoError(t, err)

	captures, err := m.SessionCaptures(ctx, session.SessionID)
	require.NoError(t, err)
	assert.Len(t, captures, 2)

	empty, err := m.SessionCaptures(ctx, "sess-no-captures")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSessionManager_StationsWithActiveSessions(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := context.Background()

	_, err := m.CreateSession(ctx, "station-north", "u1", 5, nil)
	require.NoError(t, err)

	south, err := m.CreateSession(ctx, "station-south", "u2", 10, nil)
	require.NoError(t, err)
	require.NoError(t, m.StopSession(ctx, "station-south", south.SessionID))

	stations, err := m.StationsWithActiveSessions(ctx)
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, "station-north", stations[0].StationID)
}
