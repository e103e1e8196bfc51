package types

// WSSettingsResponse is sent in response to trigger/get.
type WSSettingsResponse struct {
	Type     string          `json:"type"` // "settings"
	Settings TriggerSettings `json:"settings"`
}

// WSEventsResponse is sent in response to events/recent.
type WSEventsResponse struct {
	Type    string `json:"type"`     // "events"
	Events  any    `json:"events"`   // Newest first
	HasMore bool   `json:"has_more"` // Older events exist past this page
}
