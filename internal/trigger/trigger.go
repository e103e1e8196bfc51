package trigger

import (
	"fmt"
	"time"
)

// Default trigger settings.
const (
	DefaultThreshold  = 10.0
	DefaultCooldown   = 500 * time.Millisecond
	DefaultStaleAfter = 1000 * time.Millisecond
)

// StalePolicy selects how a reading that stopped updating is treated.
type StalePolicy string

const (
	// StaleRelease treats a stale reading as silence.
	StaleRelease StalePolicy = "release"
	// StaleHold keeps using the last reading indefinitely.
	StaleHold StalePolicy = "hold"
)

// ParseStalePolicy parses a policy name. An empty name selects StaleRelease.
func ParseStalePolicy(s string) (StalePolicy, error) {
	switch StalePolicy(s) {
	case "", StaleRelease:
		return StaleRelease, nil
	case StaleHold:
		return StaleHold, nil
	default:
		return "", fmt.Errorf("unknown stale policy %q", s)
	}
}

// Source identifies which path produced a decision.
type Source string

const (
	// SourceVoice is a loudness-driven attempt.
	SourceVoice Source = "voice"
	// SourceManual is a user-issued attempt.
	SourceManual Source = "manual"
)

// Reader is the read side of the shared amplitude cell.
type Reader interface {
	Read() float64
	Updated() time.Time
}

// Config holds the trigger settings.
type Config struct {
	Threshold  float64
	Cooldown   time.Duration
	Policy     StalePolicy
	StaleAfter time.Duration
}

// Decision is the outcome of one trigger attempt.
type Decision struct {
	Time    time.Time
	Source  Source
	Reading float64 // reading the decision was based on; 0 for manual attempts
	Stale   bool    // the channel reading was stale and released
	Fired   bool
}

// Trigger combines the amplitude channel, the staleness policy and a Debouncer.
// Like the Debouncer it is owned by the control loop.
type Trigger struct {
	src        Reader
	debounce   *Debouncer
	policy     StalePolicy
	staleAfter time.Duration
}

// New creates a Trigger reading from src.
func New(src Reader, cfg Config) *Trigger {
	policy := cfg.Policy
	if policy == "" {
		policy = StaleRelease
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Trigger{
		src:        src,
		debounce:   NewDebouncer(cfg.Threshold, cfg.Cooldown),
		policy:     policy,
		staleAfter: staleAfter,
	}
}

// MaybeTrigger reads the current loudness and makes a voice attempt.
func (t *Trigger) MaybeTrigger(now time.Time) Decision {
	reading, stale := t.Current(now)
	return Decision{
		Time:    now,
		Source:  SourceVoice,
		Reading: reading,
		Stale:   stale,
		Fired:   t.debounce.Evaluate(now, reading),
	}
}

// Manual makes a manual attempt.
func (t *Trigger) Manual(now time.Time) Decision {
	return Decision{
		Time:   now,
		Source: SourceManual,
		Fired:  t.debounce.Manual(now),
	}
}

// Current returns the reading the voice path would use at now and whether
// the stale policy replaced it.
func (t *Trigger) Current(now time.Time) (reading float64, stale bool) {
	reading = t.src.Read()
	if t.policy != StaleRelease {
		return reading, false
	}
	updated := t.src.Updated()
	if updated.IsZero() || now.Sub(updated) <= t.staleAfter {
		return reading, false
	}
	return 0, true
}

// Threshold returns the current loudness threshold.
func (t *Trigger) Threshold() float64 {
	return t.debounce.Threshold()
}

// Cooldown returns the current cooldown.
func (t *Trigger) Cooldown() time.Duration {
	return t.debounce.Cooldown()
}

// Policy returns the staleness policy.
func (t *Trigger) Policy() StalePolicy {
	return t.policy
}

// Reconfigure changes threshold and cooldown without resetting the cooldown window.
func (t *Trigger) Reconfigure(threshold float64, cooldown time.Duration) {
	t.debounce.SetThreshold(threshold)
	t.debounce.SetCooldown(cooldown)
}

// LastPublish returns when the channel was last published, or the zero time.
func (t *Trigger) LastPublish() time.Time {
	return t.src.Updated()
}
