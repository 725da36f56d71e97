package ws

import "time"

// Message types exchanged over a duplex connection. Clients send config,
// capture_response, start_monitoring and stop_monitoring; the server emits
// capture_request prompts, acknowledgments and errors.
const (
	TypeConfig           = "config"
	TypeConfigResponse   = "config_response"
	TypeCaptureRequest   = "capture_request"
	TypeCaptureResponse  = "capture_response"
	TypeCaptureRecorded  = "capture_recorded"
	TypeStartMonitoring  = "start_monitoring"
	TypeStopMonitoring   = "stop_monitoring"
	TypeMonitoringStatus = "monitoring_status"
	TypeError            = "error"
)

// CaptureRequest is the prompt emitted on each scheduler tick.
type CaptureRequest struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	StationID string    `json:"station_id"`
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id"`
}

// ConfigResponse acknowledges a config message.
type ConfigResponse struct {
	Type         string `json:"type"`
	Success      bool   `json:"success"`
	ConnectionID string `json:"connection_id"`
}

// CaptureRecorded acknowledges a capture_response message.
type CaptureRecorded struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	RequestID string `json:"request_id"`
	CaptureID string `json:"capture_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MonitoringStatus acknowledges start_monitoring and stop_monitoring.
type MonitoringStatus struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	ConnectionID string `json:"connection_id"`
}

// ErrorMessage reports a malformed or unknown inbound message.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
