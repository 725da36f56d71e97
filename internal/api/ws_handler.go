package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/cropsight/cropsight-api/internal/monitor"
	"github.com/cropsight/cropsight-api/internal/ws"
)

// wsMessage is the envelope for every inbound duplex message. Fields beyond
// Type are populated per message type.
type wsMessage struct {
	Type            string         `json:"type"`
	StationID       string         `json:"station_id"`
	UserID          string         `json:"user_id"`
	IntervalMinutes int            `json:"interval_minutes"`
	ImageID         string         `json:"image_id"`
	ImageURL        string         `json:"image_url"`
	RequestID       string         `json:"request_id"`
	Metadata        map[string]any `json:"metadata"`
}

// WSHandler upgrades HTTP requests to duplex connections and dispatches
// inbound messages to the registry and session manager.
type WSHandler struct {
	registry *ws.Registry
	sessions *monitor.SessionManager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler creates a new WSHandler. If logger is nil, the default logger
// is used.
func NewWSHandler(registry *ws.Registry, sessions *monitor.SessionManager, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &WSHandler{
		registry: registry,
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Stations connect from field networks with no stable origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "ws_handler"),
	}
}

// Serve handles GET /ws requests. It upgrades the connection, registers it
// and runs the read loop until the client disconnects or the read fails.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error response.
		h.logger.Error("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	connectionID := h.registry.Connect(conn)
	defer h.registry.Disconnect(connectionID)

	log := h.logger.With("connection_id", connectionID)

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("connection read failed", "error", err)
			} else {
				log.Debug("connection closed by client")
			}
			return
		}

		h.dispatch(r.Context(), connectionID, msg, log)
	}
}

// dispatch routes one inbound message. Every message gets a reply: an
// acknowledgment on success, an error message otherwise. A bad message never
// tears down the connection.
func (h *WSHandler) dispatch(ctx context.Context, connectionID string, msg wsMessage, log *slog.Logger) {
	switch msg.Type {
	case ws.TypeConfig:
		h.handleConfig(connectionID, msg)

	case ws.TypeCaptureResponse:
		h.handleCaptureResponse(ctx, connectionID, msg, log)

	case ws.TypeStartMonitoring:
		status := "started"
		if !h.registry.StartMonitoring(connectionID) {
			status = "not_configured"
		}
		h.registry.Send(connectionID, ws.MonitoringStatus{
			Type:         ws.TypeMonitoringStatus,
			Status:       status,
			ConnectionID: connectionID,
		})

	case ws.TypeStopMonitoring:
		h.registry.StopMonitoring(connectionID)
		h.registry.Send(connectionID, ws.MonitoringStatus{
			Type:         ws.TypeMonitoringStatus,
			Status:       "stopped",
			ConnectionID: connectionID,
		})

	default:
		log.Warn("unknown message type", "type", msg.Type)
		h.registry.Send(connectionID, ws.ErrorMessage{
			Type:    ws.TypeError,
			Message: "unknown message type: " + msg.Type,
		})
	}
}

func (h *WSHandler) handleConfig(connectionID string, msg wsMessage) {
	interval := msg.IntervalMinutes
	if interval <= 0 {
		h.registry.Send(connectionID, ws.ErrorMessage{
			Type:    ws.TypeError,
			Message: "interval_minutes must be positive",
		})
		return
	}

	active := msg.StationID != "" && msg.UserID != ""
	ok := h.registry.Configure(connectionID, interval, msg.StationID, msg.UserID, active)

	h.registry.Send(connectionID, ws.ConfigResponse{
		Type:         ws.TypeConfigResponse,
		Success:      ok,
		ConnectionID: connectionID,
	})
}

// handleCaptureResponse records a client-reported capture against the
// station's active monitoring session.
func (h *WSHandler) handleCaptureResponse(ctx context.Context, connectionID string, msg wsMessage, log *slog.Logger) {
	reply := ws.CaptureRecorded{
		Type:      ws.TypeCaptureRecorded,
		RequestID: msg.RequestID,
	}

	stationID := msg.StationID
	if stationID == "" {
		if config, ok := h.registry.ConfigOf(connectionID); ok {
			stationID = config.StationID
		}
	}

	if stationID == "" || msg.ImageID == "" {
		reply.Error = "capture_response requires station_id and image_id"
		h.registry.Send(connectionID, reply)
		return
	}

	session, err := h.sessions.ActiveSession(ctx, stationID)
	if err != nil {
		if errors.Is(err, monitor.ErrNoActiveSession) {
			reply.Error = "no active session for station"
		} else {
			log.Error("failed to resolve active session", "station_id", stationID, "error", err)
			reply.Error = "failed to resolve active session"
		}
		h.registry.Send(connectionID, reply)
		return
	}

	metadata := msg.Metadata
	if msg.RequestID != "" {
		if metadata == nil {
			metadata = make(map[string]any, 1)
		}
		metadata["request_id"] = msg.RequestID
	}

	capture, err := h.sessions.RecordCapture(ctx, stationID, session.SessionID, msg.ImageID, msg.ImageURL, metadata)
	if err != nil {
		log.Error("failed to record capture",
			"station_id", stationID,
			"session_id", session.SessionID,
			"error", err)
		reply.Error = "failed to record capture"
		h.registry.Send(connectionID, reply)
		return
	}

	reply.Success = true
	reply.CaptureID = capture.CaptureID
	h.registry.Send(connectionID, reply)
}
