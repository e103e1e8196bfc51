package server

import (
	"errors"
	"log/slog"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/events"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

// --- Trigger handlers ---

// handleTriggerUpdate persists new trigger settings and hands them to the
// control loop, which applies them on its next tick.
func (h *CommandHandler) handleTriggerUpdate(cmd WSCommand, send chan<- any) {
	HandleCommand(h, cmd, send, func(req *TriggerUpdateRequest) error {
		if err := h.cfg.UpdateTrigger(req.ThresholdPct, req.CooldownMs); err != nil {
			return err
		}

		h.loop.UpdateSettings(req.ThresholdPct, time.Duration(req.CooldownMs)*time.Millisecond)
		slog.Info("trigger/update: settings changed",
			"threshold_pct", req.ThresholdPct, "cooldown_ms", req.CooldownMs)
		return nil
	})
}

// handleTriggerGet sends the active trigger settings.
func (h *CommandHandler) handleTriggerGet(send chan<- any) {
	cfg := h.cfg.Snapshot()
	SendData(send, types.WSSettingsResponse{
		Type:     "settings",
		Settings: cfg.TriggerSettings(),
	})
}

// --- Event log handlers ---

// handleEventsRecent sends a page of the event log, newest first.
func (h *CommandHandler) handleEventsRecent(cmd WSCommand, send chan<- any) {
	var req EventsRecentRequest
	if !DecodeAndValidate(cmd, send, &req) {
		return
	}

	if h.events == nil {
		SendError(send, cmd, errors.New("event log not available"))
		return
	}

	limit := req.Limit
	if limit == 0 {
		limit = DefaultEventsLimit
	}

	evs, hasMore, err := h.events.ReadLast(limit, req.Offset, events.TypeFilter(req.Filter))
	if err != nil {
		SendError(send, cmd, err)
		return
	}
	if evs == nil {
		evs = []events.Event{}
	}

	SendData(send, types.WSEventsResponse{
		Type:    "events",
		Events:  evs,
		HasMore: hasMore,
	})
}
