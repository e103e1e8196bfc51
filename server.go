package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/config"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/control"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/observe"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/sensor"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/server"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	levelsInterval = 100 * time.Millisecond  // 10 fps for level meters
	statusInterval = 3000 * time.Millisecond // Status updates every 3s
	eventTimeFmt   = "2006-01-02T15:04:05.000Z07:00"
)

// Server is an HTTP server that exposes trigger status, live levels and the
// manual trigger.
type Server struct {
	config   *config.Config
	loop     *control.Loop
	hub      *control.Hub
	sensor   *sensor.Supervisor
	commands *server.CommandHandler
	version  *VersionChecker
	metrics  *observe.Metrics
}

// NewServer returns a new Server. events may be nil when the event log could
// not be opened; metrics may be nil to disable request instrumentation.
func NewServer(cfg *config.Config, loop *control.Loop, hub *control.Hub, sup *sensor.Supervisor,
	events server.EventReader, version *VersionChecker, metrics *observe.Metrics,
) *Server {
	return &Server{
		config:   cfg,
		loop:     loop,
		hub:      hub,
		sensor:   sup,
		commands: server.NewCommandHandler(cfg, loop, events),
		version:  version,
		metrics:  metrics,
	}
}

// handleWebSocket handles bidirectional WebSocket communication for real-time updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := server.UpgradeConnection(w, r)
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}

	// Only the writer goroutine writes to the connection.
	send := make(chan any, 16)
	done := make(chan struct{})
	statusUpdate := make(chan struct{}, 1)

	go s.runWebSocketWriter(conn, send)
	go s.runWebSocketReader(conn, send, done, statusUpdate)

	s.runWebSocketEventLoop(send, done, statusUpdate)
}

// runWebSocketWriter writes messages from the send channel to the connection.
func (s *Server) runWebSocketWriter(conn server.WebSocketConn, send <-chan any) {
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("WebSocket close error", "error", err)
		}
	}()
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// runWebSocketReader reads commands from the connection and dispatches them.
func (s *Server) runWebSocketReader(conn server.WebSocketConn, send chan<- any, done, statusUpdate chan<- struct{}) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in WebSocket reader", "panic", r)
		}
		close(done)
	}()

	for {
		var cmd server.WSCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		s.commands.Handle(cmd, send, func() {
			select {
			case statusUpdate <- struct{}{}:
			default:
			}
		})
	}
}

// runWebSocketEventLoop pushes levels, status and accepted triggers until the
// reader signals done. It owns the send channel and closes it on return.
func (s *Server) runWebSocketEventLoop(send chan any, done, statusUpdate <-chan struct{}) {
	levelsTicker := time.NewTicker(levelsInterval)
	statusTicker := time.NewTicker(statusInterval)
	defer levelsTicker.Stop()
	defer statusTicker.Stop()

	triggers, unsubscribe := s.hub.Subscribe(control.DefaultSubscriberBuffer)
	defer unsubscribe()
	defer close(send)

	// trySend attempts to send a message, returning false if done is closed
	trySend := func(msg any) bool {
		select {
		case send <- msg:
			return true
		case <-done:
			return false
		}
	}

	if !trySend(s.buildWSStatus()) {
		return
	}

	for {
		var msg any
		select {
		case <-done:
			return
		case ev, ok := <-triggers:
			if !ok {
				return
			}
			msg = triggerEvent(ev)
		case <-statusUpdate:
			msg = s.buildWSStatus()
		case <-levelsTicker.C:
			msg = types.WSLevelsResponse{Type: "levels", Levels: s.levels()}
		case <-statusTicker.C:
			msg = s.buildWSStatus()
		}
		if !trySend(msg) {
			return
		}
	}
}

// triggerEvent converts an accepted trigger into its client message.
func triggerEvent(ev control.Event) types.WSTriggerEvent {
	return types.WSTriggerEvent{
		Type:    "trigger",
		Source:  string(ev.Decision.Source),
		Reading: ev.Decision.Reading,
		Time:    ev.Decision.Time.Format(eventTimeFmt),
	}
}

// levels returns the level meter state from the latest loop tick.
func (s *Server) levels() types.Levels {
	st := s.loop.Status()
	return types.Levels{
		Reading:   st.Reading,
		Peak:      st.Peak,
		Threshold: st.Threshold,
		Stale:     st.Stale,
		Triggers:  st.Triggers,
	}
}

// buildWSStatus returns the current WebSocket status response.
func (s *Server) buildWSStatus() types.WSStatusResponse {
	cfg := s.config.Snapshot()

	return types.WSStatusResponse{
		Type:     "status",
		Sensor:   s.sensor.Status(),
		Trigger:  cfg.TriggerSettings(),
		Levels:   s.levels(),
		Archive:  cfg.HasArchive(),
		Alerts:   cfg.HasAlerts(),
		Version:  s.version.Info(),
		Platform: runtime.GOOS,
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/api/trigger", s.apiKeyAuth(s.handleTrigger))
	api.HandleFunc("/api/status", s.handleStatus)
	api.HandleFunc("/healthz", s.handleHealth)
	api.Handle("/metrics", promhttp.Handler())

	var instrumented http.Handler = api
	if s.metrics != nil {
		instrumented = observe.Middleware(s.metrics)(api)
	}

	mux := http.NewServeMux()
	// The websocket route bypasses the metrics middleware; its duration is
	// the connection lifetime.
	mux.HandleFunc("/ws", s.apiKeyAuth(s.handleWebSocket))
	mux.Handle("/", instrumented)

	return securityHeaders(mux)
}

// securityHeaders returns middleware that wraps handlers with security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// apiKeyAuth returns middleware that checks X-API-Key when an API key is
// configured. Browsers cannot set headers on a WebSocket upgrade, so the
// api_key query parameter is accepted as well. Without a configured key the
// route is open.
func (s *Server) apiKeyAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := s.config.Snapshot().APIKey
		if apiKey == "" {
			next(w, r)
			return
		}

		providedKey := r.Header.Get("X-API-Key")
		if providedKey == "" {
			providedKey = r.URL.Query().Get("api_key")
		}
		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}

// handleTrigger handles POST /api/trigger. The request is queued for the
// next loop tick, where the shared cooldown decides whether it fires.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.loop.RequestManual()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "trigger_requested"})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.buildWSStatus())
}

// handleHealth handles GET /healthz. The service is healthy while its sensor
// supervisor is running, even if the sensor itself is reconnecting.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.sensor.Status()
	if st.State == types.SensorStopped {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "sensor_stopped"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "sensor": string(st.State)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Snapshot().WebPort)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting web server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}
