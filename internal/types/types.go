// Package types provides shared type definitions used across the service.
package types

import (
	"time"
)

// SensorState represents the connection state of the audio sensor.
type SensorState string

const (
	// SensorStopped indicates the sensor supervisor is not running.
	SensorStopped SensorState = "stopped"
	// SensorConnecting indicates a connection attempt is in progress.
	SensorConnecting SensorState = "connecting"
	// SensorConnected indicates chunks are being received.
	SensorConnected SensorState = "connected"
	// SensorWaiting indicates the supervisor is waiting before reconnecting.
	SensorWaiting SensorState = "waiting"
)

const (
	// InitialRetryDelay is the starting delay between sensor reconnect attempts.
	InitialRetryDelay = 3000 * time.Millisecond
	// MaxRetryDelay is the maximum delay between sensor reconnect attempts.
	MaxRetryDelay = 60000 * time.Millisecond
	// SuccessThreshold is how long a connection must last before the backoff resets.
	SuccessThreshold = 30000 * time.Millisecond
	// ShutdownTimeout is the duration to wait for graceful shutdown.
	ShutdownTimeout = 3000 * time.Millisecond
)

// SensorStatus contains runtime status of the audio sensor connection.
type SensorStatus struct {
	State      SensorState `json:"state"`                 // Current connection state
	Source     string      `json:"source"`                // Configured source kind
	Uptime     string      `json:"uptime,omitempty"`      // Time connected, if connected
	RetryCount int         `json:"retry_count,omitempty"` // Reconnect attempts since last stable connection
	Chunks     uint64      `json:"chunks"`                // Chunks received since start
	LastError  string      `json:"last_error,omitempty"`  // Last connection error
}

// TriggerSettings is the live trigger configuration reported to clients.
type TriggerSettings struct {
	ThresholdPct float64 `json:"threshold_pct"` // Loudness threshold in percent of full scale
	CooldownMs   int64   `json:"cooldown_ms"`   // Minimum time between triggers
	TickRateHz   int     `json:"tick_rate_hz"`  // Control loop evaluation rate
	StalePolicy  string  `json:"stale_policy"`  // release or hold
	StaleAfterMs int64   `json:"stale_after_ms"`
}

// Levels is the current loudness state for level meters.
type Levels struct {
	// Reading is the latest loudness reading in percent of full scale.
	Reading float64 `json:"reading"`
	// Peak is the held peak reading.
	Peak float64 `json:"peak"`
	// Threshold is the active trigger threshold.
	Threshold float64 `json:"threshold"`
	// Stale reports whether the reading was released by the stale policy.
	Stale bool `json:"stale,omitzero"`
	// Triggers is the number of accepted triggers since start.
	Triggers uint64 `json:"triggers"`
}

// WSStatusResponse is sent to clients with sensor and trigger status.
type WSStatusResponse struct {
	Type     string          `json:"type"`     // Message type identifier
	Sensor   SensorStatus    `json:"sensor"`   // Sensor connection status
	Trigger  TriggerSettings `json:"trigger"`  // Active trigger settings
	Levels   Levels          `json:"levels"`   // Current levels
	Archive  bool            `json:"archive"`  // Event log archiving configured
	Alerts   bool            `json:"alerts"`   // Any stale alert channel configured
	Version  VersionInfo     `json:"version"`  // Version information
	Platform string          `json:"platform"` // Operating system platform
}

// WSLevelsResponse is sent to clients with level updates.
type WSLevelsResponse struct {
	Type   string `json:"type"`   // Message type identifier
	Levels Levels `json:"levels"` // Current levels
}

// WSTriggerEvent is pushed to clients when a trigger is accepted.
type WSTriggerEvent struct {
	Type    string  `json:"type"`    // "trigger"
	Source  string  `json:"source"`  // voice or manual
	Reading float64 `json:"reading"` // Reading that caused a voice trigger
	Time    string  `json:"time"`    // RFC3339 timestamp with milliseconds
}

// WSTestResult is sent to clients after a test operation completes.
type WSTestResult struct {
	Type     string `json:"type"`            // Message type identifier
	TestType string `json:"test_type"`       // Type of test performed
	Success  bool   `json:"success"`         // Test succeeded
	Error    string `json:"error,omitempty"` // Error message if failed
}

// SensorLogEntry represents a single entry in the sensor alert log.
type SensorLogEntry struct {
	Timestamp  string `json:"timestamp"`             // RFC3339 timestamp
	Event      string `json:"event"`                 // sensor_stale, sensor_recovered or test
	DurationMs int64  `json:"duration_ms,omitempty"` // Stale duration in milliseconds
	Source     string `json:"source,omitempty"`      // Sensor source kind
}

// GraphConfig contains Microsoft Graph API settings for email notifications.
type GraphConfig struct {
	TenantID     string `json:"tenant_id,omitempty"`     // Azure AD tenant ID
	ClientID     string `json:"client_id,omitempty"`     // App registration client ID
	ClientSecret string `json:"client_secret,omitempty"` // App registration client secret
	FromAddress  string `json:"from_address,omitempty"`  // Shared mailbox address (sender)
	Recipients   string `json:"recipients,omitempty"`    // Comma-separated recipients
}

// S3Config contains settings for archiving event logs to S3-compatible storage.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty"`          // Custom endpoint (empty = AWS)
	Bucket          string `json:"bucket,omitempty"`            // Bucket name
	AccessKeyID     string `json:"access_key_id,omitempty"`     // Access key
	SecretAccessKey string `json:"secret_access_key,omitempty"` // Secret key
	Prefix          string `json:"prefix,omitempty"`            // Key prefix for archived files
}

// IsConfigured reports whether the bucket and credentials are set.
func (c *S3Config) IsConfigured() bool {
	return c.Bucket != "" && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
