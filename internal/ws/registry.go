package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport is the write side of one duplex connection. *websocket.Conn
// from gorilla/websocket satisfies it; tests use fakes.
type Transport interface {
	// WriteJSON sends one message, encoded as JSON.
	WriteJSON(v any) error

	// Close closes the underlying connection.
	Close() error
}

// Config is the per-connection monitoring configuration. It is ephemeral:
// created on connect, replaced by configure, destroyed on disconnect.
type Config struct {
	ConnectionID    string     `json:"connection_id"`
	IntervalMinutes int        `json:"interval_minutes"`
	Active          bool       `json:"active"`
	StationID       string     `json:"station_id,omitempty"`
	UserID          string     `json:"user_id,omitempty"`
	LastCaptureAt   *time.Time `json:"last_capture_at,omitempty"`
	ConnectedAt     time.Time  `json:"connected_at"`
}

// loopHandle tracks one running scheduler loop. done is closed when the
// loop goroutine exits.
type loopHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// connection pairs a transport with its write lock. gorilla connections
// support at most one concurrent writer, and two goroutines write to the
// same connection in steady state: the scheduler loop emitting prompts and
// the read-loop handler emitting acknowledgments. Every write must hold
// writeMu.
type connection struct {
	transport Transport
	writeMu   sync.Mutex
}

// Registry owns the live duplex connections, their configurations and their
// scheduler loops. All three maps are guarded by a single mutex; scheduler
// loops take the lock only for short snapshot/update sections, never across
// a sleep or a send.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*connection
	configs map[string]*Config
	loops   map[string]*loopHandle

	defaultInterval int
	logger          *slog.Logger

	// interval converts a configured interval to a sleep duration. Tests
	// substitute a compressed clock here.
	interval func(minutes int) time.Duration
}

// NewRegistry creates an empty Registry. defaultIntervalMinutes is applied
// to fresh connections before they are configured. If logger is nil, the
// default logger is used.
func NewRegistry(defaultIntervalMinutes int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	return &Registry{
		conns:           make(map[string]*connection),
		configs:         make(map[string]*Config),
		loops:           make(map[string]*loopHandle),
		defaultInterval: defaultIntervalMinutes,
		logger:          logger.With("component", "ws_registry"),
		interval: func(minutes int) time.Duration {
			return time.Duration(minutes) * time.Minute
		},
	}
}

// Connect registers a transport and returns its minted connection ID. The
// connection starts with a default, inactive configuration.
func (r *Registry) Connect(transport Transport) string {
	connectionID := uuid.NewString()

	r.mu.Lock()
	r.conns[connectionID] = &connection{transport: transport}
	r.configs[connectionID] = &Config{
		ConnectionID:    connectionID,
		IntervalMinutes: r.defaultInterval,
		Active:          false,
		ConnectedAt:     time.Now().UTC(),
	}
	r.mu.Unlock()

	r.logger.Info("connection established", "connection_id", connectionID)
	return connectionID
}

// Disconnect cancels any running scheduler loop for the connection and
// removes the transport and config entries. It is idempotent: disconnecting
// twice or passing an unknown ID is a no-op.
func (r *Registry) Disconnect(connectionID string) {
	r.mu.Lock()
	_, known := r.conns[connectionID]
	if known {
		r.cancelLoopLocked(connectionID)
		delete(r.conns, connectionID)
		delete(r.configs, connectionID)
	}
	r.mu.Unlock()

	if known {
		r.logger.Info("connection closed", "connection_id", connectionID)
	}
}

// Configure replaces the connection's configuration wholesale, cancelling
// the previous scheduler loop first, and starts a new loop only when active
// is true. Returns false if the connection is unknown.
//
// The cancel-before-replace ordering guarantees at most one running loop
// per connection, even under rapid reconfiguration.
func (r *Registry) Configure(connectionID string, intervalMinutes int, stationID, userID string, active bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.configs[connectionID]
	if !ok {
		return false
	}

	r.cancelLoopLocked(connectionID)

	r.configs[connectionID] = &Config{
		ConnectionID:    connectionID,
		IntervalMinutes: intervalMinutes,
		Active:          active,
		StationID:       stationID,
		UserID:          userID,
		ConnectedAt:     existing.ConnectedAt,
	}

	if active {
		r.startLoopLocked(connectionID)
		r.logger.Info("monitoring configured",
			"connection_id", connectionID,
			"station_id", stationID,
			"interval_minutes", intervalMinutes)
	}

	return true
}

// StartMonitoring activates the connection's scheduler loop. Returns false
// if the connection is unknown or its config lacks a station or user to
// schedule against.
func (r *Registry) StartMonitoring(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, ok := r.configs[connectionID]
	if !ok {
		return false
	}

	if config.StationID == "" || config.UserID == "" {
		r.logger.Warn("cannot start monitoring without station and user",
			"connection_id", connectionID)
		return false
	}

	config.Active = true
	r.cancelLoopLocked(connectionID)
	r.startLoopLocked(connectionID)

	r.logger.Info("monitoring started", "connection_id", connectionID)
	return true
}

// StopMonitoring cancels the connection's scheduler loop and clears the
// active flag. Returns false if the connection is unknown.
func (r *Registry) StopMonitoring(connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, ok := r.configs[connectionID]
	if !ok {
		return false
	}

	r.cancelLoopLocked(connectionID)
	config.Active = false

	r.logger.Info("monitoring stopped", "connection_id", connectionID)
	return true
}

// ConfigOf returns a snapshot of the connection's configuration, or false
// if the connection is unknown.
func (r *Registry) ConfigOf(connectionID string) (Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	config, ok := r.configs[connectionID]
	if !ok {
		return Config{}, false
	}
	return *config, true
}

// Send writes one message to a connection, best-effort. Writes are
// serialized per connection. On transport failure it returns false and
// leaves the connection registered; the caller decides whether to
// disconnect.
func (r *Registry) Send(connectionID string, message any) bool {
	r.mu.Lock()
	conn, ok := r.conns[connectionID]
	r.mu.Unlock()

	if !ok {
		return false
	}

	conn.writeMu.Lock()
	err := conn.transport.WriteJSON(message)
	conn.writeMu.Unlock()

	if err != nil {
		r.logger.Error("failed to send message",
			"connection_id", connectionID,
			"error", err)
		return false
	}
	return true
}

// Broadcast writes one message to every connection, best-effort. Unlike
// Send, any connection whose write fails is disconnected as a side effect.
func (r *Registry) Broadcast(message any) {
	r.mu.Lock()
	targets := make(map[string]*connection, len(r.conns))
	for id, conn := range r.conns {
		targets[id] = conn
	}
	r.mu.Unlock()

	var failed []string
	for id, conn := range targets {
		conn.writeMu.Lock()
		err := conn.transport.WriteJSON(message)
		conn.writeMu.Unlock()

		if err != nil {
			r.logger.Error("broadcast send failed",
				"connection_id", id,
				"error", err)
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		r.Disconnect(id)
	}
}

// Shutdown cancels every scheduler loop and closes every transport, then
// waits for the loops to exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	var done []chan struct{}
	for id, handle := range r.loops {
		handle.cancel()
		done = append(done, handle.done)
		delete(r.loops, id)
	}
	for id, conn := range r.conns {
		_ = conn.transport.Close()
		delete(r.conns, id)
		delete(r.configs, id)
	}
	r.mu.Unlock()

	for _, ch := range done {
		<-ch
	}
}

// cancelLoopLocked cancels the connection's scheduler loop, if any. The
// loop observes cancellation at its sleep boundary and exits; cancelling a
// loop that already finished is a no-op. Caller must hold r.mu.
func (r *Registry) cancelLoopLocked(connectionID string) {
	if handle, ok := r.loops[connectionID]; ok {
		handle.cancel()
		delete(r.loops, connectionID)
	}
}

// startLoopLocked launches a fresh scheduler loop for the connection.
// Caller must hold r.mu and have cancelled any previous loop.
func (r *Registry) startLoopLocked(connectionID string) {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &loopHandle{cancel: cancel, done: make(chan struct{})}
	r.loops[connectionID] = handle

	go r.monitorLoop(ctx, connectionID, handle.done)
}

// monitorLoop emits capture-request prompts for one connection until the
// connection disappears, its active flag flips false, or the loop is
// cancelled. Stops and reconfigurations take effect at the next wake-up;
// cancellation interrupts a pending sleep immediately.
func (r *Registry) monitorLoop(ctx context.Context, connectionID string, done chan struct{}) {
	defer close(done)
	defer func() {
		if rec := recover(); rec != nil {
			// Force the connection inactive so a failing loop cannot
			// silently restart as a zombie.
			r.logger.Error("monitor loop panicked",
				"connection_id", connectionID,
				"panic", rec)
			r.mu.Lock()
			if config, ok := r.configs[connectionID]; ok {
				config.Active = false
			}
			r.mu.Unlock()
		}
	}()

	log := r.logger.With("connection_id", connectionID)

	for {
		r.mu.Lock()
		_, connected := r.conns[connectionID]
		config, configured := r.configs[connectionID]
		var snapshot Config
		if configured {
			snapshot = *config
		}
		r.mu.Unlock()

		if !connected || !configured || !snapshot.Active {
			log.Debug("monitor loop exiting")
			return
		}

		request := CaptureRequest{
			Type:      TypeCaptureRequest,
			Timestamp: time.Now().UTC(),
			StationID: snapshot.StationID,
			UserID:    snapshot.UserID,
			RequestID: "auto-" + uuid.NewString()[:8],
		}

		if r.Send(connectionID, request) {
			r.mu.Lock()
			if config, ok := r.configs[connectionID]; ok {
				sent := request.Timestamp
				config.LastCaptureAt = &sent
			}
			r.mu.Unlock()
			log.Info("capture request sent", "request_id", request.RequestID)
		}

		timer := time.NewTimer(r.interval(snapshot.IntervalMinutes))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debug("monitor loop cancelled")
			return
		case <-timer.C:
		}
	}
}
