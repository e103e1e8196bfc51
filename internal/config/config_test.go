package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}

	snap := cfg.Snapshot()
	if snap.Threshold != DefaultThresholdPct {
		t.Errorf("Threshold = %v, want %v", snap.Threshold, DefaultThresholdPct)
	}
	if snap.Cooldown != 500*time.Millisecond {
		t.Errorf("Cooldown = %v, want 500ms", snap.Cooldown)
	}
	if snap.StalePolicy != trigger.StaleRelease {
		t.Errorf("StalePolicy = %q, want %q", snap.StalePolicy, trigger.StaleRelease)
	}
	if snap.HeaderBytes != 1 {
		t.Errorf("HeaderBytes = %d, want 1 for websocket source", snap.HeaderBytes)
	}
	if snap.TickInterval() != time.Second/60 {
		t.Errorf("TickInterval() = %v", snap.TickInterval())
	}
	if want := filepath.Join(filepath.Dir(path), DefaultEventsDirName); snap.EventsDir != want {
		t.Errorf("EventsDir = %q, want %q", snap.EventsDir, want)
	}
}

func TestLoadValues(t *testing.T) {
	path := writeConfig(t, `{
		"system": {"port": 9000},
		"sensor": {"source": "stdin", "chunk_bytes": 640},
		"trigger": {"threshold_pct": 25.5, "cooldown_ms": 1200, "stale_policy": "hold"},
		"archive": {"bucket": "b", "access_key_id": "k", "secret_access_key": "s"}
	}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	snap := cfg.Snapshot()
	if snap.WebPort != 9000 {
		t.Errorf("WebPort = %d, want 9000", snap.WebPort)
	}
	if snap.HeaderBytes != 0 {
		t.Errorf("HeaderBytes = %d, want 0 for stdin source", snap.HeaderBytes)
	}
	if snap.ChunkBytes != 640 {
		t.Errorf("ChunkBytes = %d, want 640", snap.ChunkBytes)
	}

	tc := snap.TriggerConfig()
	if tc.Threshold != 25.5 || tc.Cooldown != 1200*time.Millisecond || tc.Policy != trigger.StaleHold {
		t.Errorf("TriggerConfig() = %+v", tc)
	}
	if !snap.HasArchive() {
		t.Error("HasArchive() = false, want true")
	}
	if snap.HasAlerts() {
		t.Error("HasAlerts() = true, want false")
	}
}

func TestLoadExplicitZeroRecovery(t *testing.T) {
	path := writeConfig(t, `{"trigger": {"recovery_ms": 0}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Snapshot().Recovery; got != 0 {
		t.Errorf("Recovery = %v, want explicit 0", got)
	}
}

func TestLoadDefaultRecovery(t *testing.T) {
	path := writeConfig(t, `{"trigger": {"threshold_pct": 20}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Snapshot().Recovery; got != DefaultRecoveryMs*time.Millisecond {
		t.Errorf("Recovery = %v, want default", got)
	}
}

func TestLoadExplicitHeaderBytes(t *testing.T) {
	path := writeConfig(t, `{"sensor": {"url": "ws://sensor.local/audio", "header_bytes": 0}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Snapshot().HeaderBytes; got != 0 {
		t.Errorf("HeaderBytes = %d, want explicit 0", got)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"threshold above full scale", `{"sensor": {"source": "stdin"}, "trigger": {"threshold_pct": 150}}`, "trigger.threshold_pct"},
		{"unknown stale policy", `{"sensor": {"source": "stdin"}, "trigger": {"stale_policy": "freeze"}}`, "trigger.stale_policy"},
		{"unknown source", `{"sensor": {"source": "bluetooth"}}`, "sensor.source"},
		{"malformed url", `{"sensor": {"url": "not a url"}}`, "sensor.url"},
		{"bad port", `{"system": {"port": 70000}, "sensor": {"source": "stdin"}}`, "system.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New(writeConfig(t, tt.body))
			err := cfg.Load()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Load() error = %v, want ErrInvalid", err)
			}
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Load() error %T does not carry a ValidationError", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %+v do not mention %q", verr.Errors, tt.field)
			}
		})
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	cfg := New(writeConfig(t, `{"system":`))
	if err := cfg.Load(); err == nil {
		t.Fatal("Load() error = nil, want parse error")
	}
}

func TestUpdateTriggerPersists(t *testing.T) {
	path := writeConfig(t, `{"sensor": {"source": "stdin"}}`)
	cfg := New(path)
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := cfg.UpdateTrigger(42, 750); err != nil {
		t.Fatalf("UpdateTrigger() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var saved struct {
		Trigger TriggerConfig `json:"trigger"`
	}
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("unmarshal saved config: %v", err)
	}
	if saved.Trigger.ThresholdPct != 42 || saved.Trigger.CooldownMs != 750 {
		t.Errorf("saved trigger = %+v", saved.Trigger)
	}
}

func TestUpdateTriggerRejectsInvalid(t *testing.T) {
	cfg := New(writeConfig(t, `{"sensor": {"source": "stdin"}}`))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if err := cfg.UpdateTrigger(101, 500); !errors.Is(err, ErrInvalid) {
		t.Fatalf("UpdateTrigger() error = %v, want ErrInvalid", err)
	}
	if got := cfg.Snapshot().Threshold; got != DefaultThresholdPct {
		t.Errorf("Threshold after rejected update = %v, want %v", got, DefaultThresholdPct)
	}
}

func TestSnapshotHasGraph(t *testing.T) {
	snap := Snapshot{Graph: types.GraphConfig{
		TenantID:     "t",
		ClientID:     "c",
		ClientSecret: "s",
		FromAddress:  "from@example.com",
		Recipients:   "to@example.com",
	}}
	if !snap.HasGraph() || !snap.HasAlerts() {
		t.Error("HasGraph()/HasAlerts() = false, want true")
	}
	snap.Graph.ClientSecret = ""
	if snap.HasGraph() {
		t.Error("HasGraph() = true with missing secret")
	}
}
