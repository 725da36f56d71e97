package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsight/cropsight-api/internal/domain"
	"github.com/cropsight/cropsight-api/internal/monitor"
)

func TestMonitoringHandler_SessionLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/monitoring/sessions", map[string]any{
		"station_id":       "station-1",
		"user_id":          "u1",
		"interval_minutes": 5,
		"metadata":         map[string]any{"crop": "banana"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	session := decodeBody[domain.MonitoringSession](t, rec)
	assert.True(t, session.Active)
	assert.NotEmpty(t, session.SessionID)

	// Readable by ID and as the station's active session.
	getRec := srv.do(t, http.MethodGet,
		"/api/monitoring/sessions/station-1/"+session.SessionID, nil)
	require.Equal(t, http.StatusOK, getRec.Code)

	activeRec := srv.do(t, http.MethodGet, "/api/monitoring/sessions/active/station-1", nil)
	require.Equal(t, http.StatusOK, activeRec.Code)
	active := decodeBody[domain.MonitoringSession](t, activeRec)
	assert.Equal(t, session.SessionID, active.SessionID)

	// Partial update: only the interval changes.
	updateRec := srv.do(t, http.MethodPut,
		"/api/monitoring/sessions/station-1/"+session.SessionID,
		map[string]any{"interval_minutes": 15})
	require.Equal(t, http.StatusOK, updateRec.Code)
	updated := decodeBody[domain.MonitoringSession](t, updateRec)
	assert.Equal(t, 15, updated.IntervalMinutes)
	assert.True(t, updated.Active)
	assert.Equal(t, "banana", updated.Metadata["crop"])

	stopRec := srv.do(t, http.MethodPost,
		"/api/monitoring/sessions/station-1/"+session.SessionID+"/stop", nil)
	require.Equal(t, http.StatusOK, stopRec.Code)

	assert.Equal(t, http.StatusNotFound,
		srv.do(t, http.MethodGet, "/api/monitoring/sessions/active/station-1", nil).Code)
}

func TestMonitoringHandler_CreateSessionReplacesActive(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	first := decodeBody[domain.MonitoringSession](t, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions", map[string]any{
			"station_id": "station-1", "user_id": "u1", "interval_minutes": 5,
		}))

	second := decodeBody[domain.MonitoringSession](t, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions", map[string]any{
			"station_id": "station-1", "user_id": "u2", "interval_minutes": 10,
		}))

	reloaded := decodeBody[domain.MonitoringSession](t, srv.do(t, http.MethodGet,
		"/api/monitoring/sessions/station-1/"+first.SessionID, nil))
	assert.False(t, reloaded.Active)

	active := decodeBody[domain.MonitoringSession](t, srv.do(t, http.MethodGet,
		"/api/monitoring/sessions/active/station-1", nil))
	assert.Equal(t, second.SessionID, active.SessionID)
}

func TestMonitoringHandler_SessionValidationAndNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions", map[string]any{"station_id": "station-1"}).Code)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions", map[string]any{
			"station_id": "station-1", "user_id": "u1", "interval_minutes": 0,
		}).Code)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet,
		"/api/monitoring/sessions/station-1/sess-missing", nil).Code)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPut,
		"/api/monitoring/sessions/station-1/sess-missing",
		map[string]any{"active": false}).Code)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions/station-1/sess-missing/stop", nil).Code)
}

func TestMonitoringHandler_CaptureLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	session := decodeBody[domain.MonitoringSession](t, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions", map[string]any{
			"station_id": "station-1", "user_id": "u1", "interval_minutes": 5,
		}))

	captureRec := srv.do(t, http.MethodPost,
		"/api/monitoring/sessions/station-1/"+session.SessionID+"/captures",
		map[string]any{
			"image_id":  "img-1",
			"image_url": "https://blob/img-1.jpg",
		})
	require.Equal(t, http.StatusCreated, captureRec.Code)

	capture := decodeBody[domain.CaptureResult](t, captureRec)
	assert.Equal(t, domain.CaptureStatusCaptured, capture.Status)

	updateRec := srv.do(t, http.MethodPut,
		"/api/monitoring/captures/"+session.SessionID+"/"+capture.CaptureID,
		map[string]any{
			"status":     "processed",
			"result_ids": []string{"r1", "r2"},
		})
	require.Equal(t, http.StatusOK, updateRec.Code)

	updated := decodeBody[domain.CaptureResult](t, updateRec)
	assert.Equal(t, domain.CaptureStatusProcessed, updated.Status)
	assert.Equal(t, []string{"r1", "r2"}, updated.ResultIDs)

	listRec := srv.do(t, http.MethodGet, "/api/monitoring/captures/"+session.SessionID, nil)
	require.Equal(t, http.StatusOK, listRec.Code)
	captures := decodeBody[[]domain.CaptureResult](t, listRec)
	require.Len(t, captures, 1)
	assert.Equal(t, capture.CaptureID, captures[0].CaptureID)
}

func TestMonitoringHandler_CaptureErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	session := decodeBody[domain.MonitoringSession](t, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions", map[string]any{
			"station_id": "station-1", "user_id": "u1", "interval_minutes": 5,
		}))

	// Recording against an unknown session.
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions/station-1/sess-missing/captures",
		map[string]any{"image_id": "img-1", "image_url": "https://blob/1.jpg"}).Code)

	// Missing required fields.
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions/station-1/"+session.SessionID+"/captures",
		map[string]any{"image_url": "https://blob/1.jpg"}).Code)

	// Updating an unknown capture.
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPut,
		"/api/monitoring/captures/"+session.SessionID+"/cap-missing",
		map[string]any{"status": "failed"}).Code)

	// Unknown status value.
	capture := decodeBody[domain.CaptureResult](t, srv.do(t, http.MethodPost,
		"/api/monitoring/sessions/station-1/"+session.SessionID+"/captures",
		map[string]any{"image_id": "img-1", "image_url": "https://blob/1.jpg"}))
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPut,
		"/api/monitoring/captures/"+session.SessionID+"/"+capture.CaptureID,
		map[string]any{"status": "half-done"}).Code)
}

func TestMonitoringHandler_ListActiveStations(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	emptyRec := srv.do(t, http.MethodGet, "/api/monitoring/stations/active", nil)
	require.Equal(t, http.StatusOK, emptyRec.Code)
	assert.Empty(t, decodeBody[[]monitor.StationSummary](t, emptyRec))

	srv.do(t, http.MethodPost, "/api/monitoring/sessions", map[string]any{
		"station_id": "station-north", "user_id": "u1", "interval_minutes": 5,
	})

	rec := srv.do(t, http.MethodGet, "/api/monitoring/stations/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stations := decodeBody[[]monitor.StationSummary](t, rec)
	require.Len(t, stations, 1)
	assert.Equal(t, "station-north", stations[0].StationID)
}
