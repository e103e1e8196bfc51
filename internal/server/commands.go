package server

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/config"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/events"
)

// DefaultEventsLimit is the page size for events/recent without a limit.
const DefaultEventsLimit = 50

// WSCommand is a command received from a WebSocket client.
type WSCommand struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Controller is the part of the control loop the command handler drives.
type Controller interface {
	RequestManual()
	UpdateSettings(threshold float64, cooldown time.Duration)
}

// EventReader reads pages of the trigger event log.
type EventReader interface {
	ReadLast(n, offset int, filter events.TypeFilter) ([]events.Event, bool, error)
}

// CommandHandler processes WebSocket commands.
type CommandHandler struct {
	cfg    *config.Config
	loop   Controller
	events EventReader
}

// NewCommandHandler creates a new command handler. log may be nil when the
// event log is unavailable.
func NewCommandHandler(cfg *config.Config, loop Controller, log EventReader) *CommandHandler {
	return &CommandHandler{
		cfg:    cfg,
		loop:   loop,
		events: log,
	}
}

// Handle processes a WebSocket command and performs the requested action.
// Commands use slash-style format: namespace/action (e.g., "trigger/update", "events/recent")
func (h *CommandHandler) Handle(cmd WSCommand, send chan<- any, triggerStatusUpdate func()) {
	namespace, rest, _ := strings.Cut(cmd.Type, "/")
	action, subaction, _ := strings.Cut(rest, "/")

	switch namespace {
	case "trigger":
		h.handleTrigger(action, cmd, send)
	case "events":
		h.handleEvents(action, cmd, send)
	case "notifications":
		h.handleNotifications(action, subaction, cmd, send)
	case "archive":
		h.handleArchive(action, cmd, send)
	case "status":
		h.handleStatus(action)
	default:
		slog.Warn("unknown WebSocket command", "type", cmd.Type)
	}

	triggerStatusUpdate()
}

// --- Namespace handlers ---

// handleTrigger routes trigger and trigger/* commands
func (h *CommandHandler) handleTrigger(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "":
		h.loop.RequestManual()
		SendSuccess(send, cmd, nil)
	case "update":
		h.handleTriggerUpdate(cmd, send)
	case "get":
		h.handleTriggerGet(send)
	default:
		slog.Warn("unknown trigger action", "action", action)
	}
}

// handleEvents routes events/* commands
func (h *CommandHandler) handleEvents(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "recent":
		h.handleEventsRecent(cmd, send)
	default:
		slog.Warn("unknown events action", "action", action)
	}
}

// handleNotifications routes notifications/test/* commands
func (h *CommandHandler) handleNotifications(action, subaction string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		switch subaction {
		case "webhook", "log", "email":
			h.handleTest(send, subaction)
		default:
			slog.Warn("unknown notification test", "subaction", subaction)
		}
	default:
		slog.Warn("unknown notifications action", "action", action)
	}
}

// handleArchive routes archive/* commands
func (h *CommandHandler) handleArchive(action string, cmd WSCommand, send chan<- any) {
	switch action {
	case "test":
		h.handleArchiveTest(cmd, send)
	default:
		slog.Warn("unknown archive action", "action", action)
	}
}

// handleStatus routes status/* commands
func (h *CommandHandler) handleStatus(action string) {
	switch action {
	case "get":
		// Status is sent automatically, but explicit get triggers immediate update
		slog.Debug("status/get received, status update will be triggered")
	default:
		slog.Warn("unknown status action", "action", action)
	}
}
