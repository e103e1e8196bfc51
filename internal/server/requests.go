package server

// Request types for WebSocket commands with validation tags.
// These types define the expected input for each command and use
// go-playground/validator struct tags for automatic validation.

// --- Trigger settings ---

// TriggerUpdateRequest is the request body for trigger/update.
type TriggerUpdateRequest struct {
	ThresholdPct float64 `json:"threshold_pct" validate:"gt=0,lte=100"`
	CooldownMs   int64   `json:"cooldown_ms" validate:"gte=1,lte=60000"`
}

// --- Event log ---

// EventsRecentRequest is the request body for events/recent.
type EventsRecentRequest struct {
	Limit  int    `json:"limit" validate:"omitempty,gte=1,lte=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Filter string `json:"filter" validate:"omitempty,oneof=trigger sensor"`
}
