package trigger

import (
	"sync"
	"time"
)

// StaleConfig holds the thresholds for sensor staleness detection.
type StaleConfig struct {
	After    time.Duration // no publish for this long marks the sensor stale
	Recovery time.Duration // fresh publishes for this long clear the stale state
}

// StaleEvent is the result of a staleness update.
type StaleEvent struct {
	Stale         bool          // currently in confirmed stale state
	Duration      time.Duration // time since the last publish (0 if fresh)
	JustEntered   bool          // true on the update where staleness is first confirmed
	JustRecovered bool          // true on the update where recovery completes
	TotalDuration time.Duration // how long the sensor was stale (only set when JustRecovered)
}

// StaleDetector tracks whether the sensor stopped delivering audio.
// It is safe for concurrent use.
type StaleDetector struct {
	mu            sync.Mutex
	staleSince    time.Time // last publish before the stale period
	recoveryStart time.Time
	inStale       bool
	staleDuration time.Duration
}

// NewStaleDetector creates a new stale detector.
func NewStaleDetector() *StaleDetector {
	return &StaleDetector{}
}

// Update evaluates the time of the latest publish against now.
// A sensor that never published is not considered stale.
func (d *StaleDetector) Update(updated, now time.Time, cfg StaleConfig) StaleEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	var event StaleEvent
	if updated.IsZero() {
		return event
	}

	age := now.Sub(updated)
	if age > cfg.After {
		d.recoveryStart = time.Time{}
		if !d.inStale {
			d.inStale = true
			d.staleSince = updated
			event.JustEntered = true
		}
		d.staleDuration = now.Sub(d.staleSince)
		event.Stale = true
		event.Duration = d.staleDuration
		return event
	}

	if !d.inStale {
		return event
	}

	// Fresh data after a stale period: stay stale until recovery completes.
	if d.recoveryStart.IsZero() {
		d.recoveryStart = now
	}
	if now.Sub(d.recoveryStart) >= cfg.Recovery {
		event.JustRecovered = true
		event.TotalDuration = d.staleDuration
		d.inStale = false
		d.staleDuration = 0
		d.staleSince = time.Time{}
		d.recoveryStart = time.Time{}
		return event
	}

	event.Stale = true
	return event
}

// Reset clears the staleness state.
func (d *StaleDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.staleSince = time.Time{}
	d.recoveryStart = time.Time{}
	d.inStale = false
	d.staleDuration = 0
}
