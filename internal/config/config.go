// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort       = 8080
	DefaultName          = "Voice Trigger"
	DefaultSource        = SourceWebSocket
	DefaultSensorURL     = "ws://127.0.0.1:8765/audio"
	DefaultHeaderBytes   = 1
	DefaultChunkBytes    = 320 // 10ms of 16 kHz mono S16LE
	DefaultThresholdPct  = trigger.DefaultThreshold
	DefaultCooldownMs    = 500
	DefaultTickRateHz    = 60
	DefaultStalePolicy   = string(trigger.StaleRelease)
	DefaultStaleAfterMs  = 1000
	DefaultRecoveryMs    = 500
	DefaultEventsDirName = "events"
)

// Sensor source kinds.
const (
	SourceWebSocket = "websocket"
	SourceCapture   = "capture"
	SourceStdin     = "stdin"
)

// ErrInvalid is returned when the configuration fails validation.
var ErrInvalid = errors.New("invalid configuration")

// validate is the shared validator instance for configuration structs.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Name   string `json:"name" validate:"max=60"`          // Display name used in alerts
	Port   int    `json:"port" validate:"gte=1,lte=65535"` // HTTP server port
	APIKey string `json:"api_key" validate:"max=256"`      // Required by POST /api/trigger when set
}

// SensorConfig holds the audio transport settings.
type SensorConfig struct {
	Source      string `json:"source" validate:"oneof=websocket capture stdin"` // Transport kind
	URL         string `json:"url" validate:"omitempty,url,max=2048"`           // Sensor WebSocket URL
	Device      string `json:"device" validate:"max=256"`                       // Capture device identifier
	FFmpegPath  string `json:"ffmpeg_path" validate:"max=4096"`                 // FFmpeg binary (empty = PATH)
	HeaderBytes *int   `json:"header_bytes" validate:"omitempty,gte=0,lte=64"`  // Leading bytes stripped from each chunk
	ChunkBytes  int    `json:"chunk_bytes" validate:"gte=2,lte=65536"`          // Frame size for capture and stdin
}

// TriggerConfig holds the loudness trigger settings.
type TriggerConfig struct {
	ThresholdPct float64 `json:"threshold_pct" validate:"gt=0,lte=100"`            // Loudness threshold (percent of full scale)
	CooldownMs   int64   `json:"cooldown_ms" validate:"gte=1,lte=60000"`           // Minimum time between triggers
	TickRateHz   int     `json:"tick_rate_hz" validate:"gte=1,lte=1000"`           // Control loop rate
	StalePolicy  string  `json:"stale_policy" validate:"oneof=release hold"`       // Treatment of a reading that stopped updating
	StaleAfterMs int64   `json:"stale_after_ms" validate:"gte=50,lte=600000"`      // Age after which a reading is stale
	RecoveryMs   *int64  `json:"recovery_ms" validate:"omitempty,gte=0,lte=60000"` // Fresh data needed to clear the stale alert (0 clears on the first fresh chunk)
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"` // Webhook URL for sensor alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path" validate:"max=4096"` // Log file path for sensor alerts
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig     `json:"webhook"`
	Log     LogConfig         `json:"log"`
	Email   types.GraphConfig `json:"email"`
}

// EventsConfig holds trigger event log settings.
type EventsConfig struct {
	Dir string `json:"dir" validate:"max=4096"` // Directory for daily trigger logs (empty = next to config)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Sensor        SensorConfig        `json:"sensor"`
	Trigger       TriggerConfig       `json:"trigger"`
	Notifications NotificationsConfig `json:"notifications"`
	Events        EventsConfig        `json:"events"`
	Archive       types.S3Config      `json:"archive"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	c := &Config{filePath: filePath}
	c.applyDefaults()
	return c
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validateLocked()
}

// validateLocked checks all configuration fields. Caller must hold c.mu.
func (c *Config) validateLocked() error {
	verr := types.NewValidationError()

	sections := []struct {
		prefix string
		value  any
	}{
		{"system", &c.System},
		{"sensor", &c.Sensor},
		{"trigger", &c.Trigger},
		{"notifications.webhook", &c.Notifications.Webhook},
		{"notifications.log", &c.Notifications.Log},
		{"events", &c.Events},
	}
	for _, section := range sections {
		err := validate.Struct(section.value)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		for _, fe := range fieldErrs {
			verr.Add(section.prefix+"."+fe.Field(), "failed '"+fe.Tag()+"' check", fe.Value())
		}
	}

	if verr.HasErrors() {
		return errors.Join(ErrInvalid, verr)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.System.Name == "" {
		c.System.Name = DefaultName
	}
	if c.Sensor.Source == "" {
		c.Sensor.Source = DefaultSource
	}
	if c.Sensor.URL == "" {
		c.Sensor.URL = DefaultSensorURL
	}
	if c.Sensor.ChunkBytes == 0 {
		c.Sensor.ChunkBytes = DefaultChunkBytes
	}
	if c.Trigger.ThresholdPct == 0 {
		c.Trigger.ThresholdPct = DefaultThresholdPct
	}
	if c.Trigger.CooldownMs == 0 {
		c.Trigger.CooldownMs = DefaultCooldownMs
	}
	if c.Trigger.TickRateHz == 0 {
		c.Trigger.TickRateHz = DefaultTickRateHz
	}
	if c.Trigger.StalePolicy == "" {
		c.Trigger.StalePolicy = DefaultStalePolicy
	}
	if c.Trigger.StaleAfterMs == 0 {
		c.Trigger.StaleAfterMs = DefaultStaleAfterMs
	}
	if c.Trigger.RecoveryMs == nil {
		recovery := int64(DefaultRecoveryMs)
		c.Trigger.RecoveryMs = &recovery
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// UpdateTrigger validates and persists new threshold and cooldown values.
func (c *Config) UpdateTrigger(thresholdPct float64, cooldownMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.Trigger
	c.Trigger.ThresholdPct = thresholdPct
	c.Trigger.CooldownMs = cooldownMs
	if err := c.validateLocked(); err != nil {
		c.Trigger = prev
		return err
	}
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	Name    string
	WebPort int
	APIKey  string

	// Sensor
	SensorSource string
	SensorURL    string
	Device       string
	FFmpegPath   string
	HeaderBytes  int
	ChunkBytes   int

	// Trigger
	Threshold   float64
	Cooldown    time.Duration
	TickRate    int
	StalePolicy trigger.StalePolicy
	StaleAfter  time.Duration
	Recovery    time.Duration

	// Notifications
	WebhookURL string
	LogPath    string
	Graph      types.GraphConfig

	// Storage
	EventsDir string
	Archive   types.S3Config
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	policy, err := trigger.ParseStalePolicy(c.Trigger.StalePolicy)
	if err != nil {
		policy = trigger.StaleRelease
	}

	return Snapshot{
		Name:    c.System.Name,
		WebPort: c.System.Port,
		APIKey:  c.System.APIKey,

		SensorSource: c.Sensor.Source,
		SensorURL:    c.Sensor.URL,
		Device:       c.Sensor.Device,
		FFmpegPath:   c.Sensor.FFmpegPath,
		HeaderBytes:  c.headerBytesLocked(),
		ChunkBytes:   c.Sensor.ChunkBytes,

		Threshold:   c.Trigger.ThresholdPct,
		Cooldown:    time.Duration(c.Trigger.CooldownMs) * time.Millisecond,
		TickRate:    c.Trigger.TickRateHz,
		StalePolicy: policy,
		StaleAfter:  time.Duration(c.Trigger.StaleAfterMs) * time.Millisecond,
		Recovery:    time.Duration(*c.Trigger.RecoveryMs) * time.Millisecond,

		WebhookURL: c.Notifications.Webhook.URL,
		LogPath:    c.Notifications.Log.Path,
		Graph:      c.Notifications.Email,

		EventsDir: c.eventsDirLocked(),
		Archive:   c.Archive,
	}
}

// headerBytesLocked returns the configured header length, defaulting per source.
func (c *Config) headerBytesLocked() int {
	if c.Sensor.HeaderBytes != nil {
		return *c.Sensor.HeaderBytes
	}
	if c.Sensor.Source == SourceWebSocket {
		return DefaultHeaderBytes
	}
	return 0
}

// eventsDirLocked returns the event log directory, defaulting next to the config file.
func (c *Config) eventsDirLocked() string {
	if c.Events.Dir != "" {
		return c.Events.Dir
	}
	return filepath.Join(filepath.Dir(c.filePath), DefaultEventsDirName)
}

// TriggerConfig converts the snapshot into trigger settings.
func (s *Snapshot) TriggerConfig() trigger.Config {
	return trigger.Config{
		Threshold:  s.Threshold,
		Cooldown:   s.Cooldown,
		Policy:     s.StalePolicy,
		StaleAfter: s.StaleAfter,
	}
}

// TickInterval returns the control loop period.
func (s *Snapshot) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// TriggerSettings returns the trigger settings as reported to clients.
func (s *Snapshot) TriggerSettings() types.TriggerSettings {
	return types.TriggerSettings{
		ThresholdPct: s.Threshold,
		CooldownMs:   s.Cooldown.Milliseconds(),
		TickRateHz:   s.TickRate,
		StalePolicy:  string(s.StalePolicy),
		StaleAfterMs: s.StaleAfter.Milliseconds(),
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasLogPath reports whether an alert log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	g := s.Graph
	return util.AllSet(g.TenantID, g.ClientID, g.ClientSecret, g.FromAddress, g.Recipients)
}

// HasAlerts reports whether any alert channel is configured.
func (s *Snapshot) HasAlerts() bool {
	return s.HasWebhook() || s.HasLogPath() || s.HasGraph()
}

// HasArchive reports whether event log archiving is configured.
func (s *Snapshot) HasArchive() bool {
	return s.Archive.IsConfigured()
}
