// Package trigger turns loudness readings and manual requests into
// rate-limited trigger decisions.
package trigger

import "time"

// Debouncer decides whether a trigger attempt is accepted. Voice and manual
// attempts share one cooldown window: at most one attempt is accepted per
// cooldown, whichever path made it.
//
// A Debouncer is owned by a single goroutine and is not safe for concurrent use.
type Debouncer struct {
	threshold    float64
	cooldown     time.Duration
	lastAccepted time.Time
	accepted     bool // false until the first acceptance, standing in for a last time of -inf
}

// NewDebouncer returns a Debouncer that fires on readings above threshold at
// most once per cooldown. The first attempt is always accepted.
func NewDebouncer(threshold float64, cooldown time.Duration) *Debouncer {
	return &Debouncer{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Evaluate handles a voice attempt: it fires when reading is strictly above
// the threshold and the cooldown has elapsed.
func (d *Debouncer) Evaluate(now time.Time, reading float64) bool {
	if reading <= d.threshold {
		return false
	}
	return d.accept(now)
}

// Manual handles a manual attempt, which skips the threshold check.
func (d *Debouncer) Manual(now time.Time) bool {
	return d.accept(now)
}

// accept applies the shared cooldown rule and records an acceptance.
func (d *Debouncer) accept(now time.Time) bool {
	if d.accepted && now.Sub(d.lastAccepted) <= d.cooldown {
		return false
	}
	d.lastAccepted = now
	d.accepted = true
	return true
}

// Threshold returns the loudness threshold.
func (d *Debouncer) Threshold() float64 {
	return d.threshold
}

// Cooldown returns the minimum time between acceptances.
func (d *Debouncer) Cooldown() time.Duration {
	return d.cooldown
}

// SetThreshold changes the loudness threshold.
func (d *Debouncer) SetThreshold(threshold float64) {
	d.threshold = threshold
}

// SetCooldown changes the cooldown. The last acceptance time is kept.
func (d *Debouncer) SetCooldown(cooldown time.Duration) {
	d.cooldown = cooldown
}

// LastAccepted returns the time of the last acceptance and whether there was one.
func (d *Debouncer) LastAccepted() (time.Time, bool) {
	return d.lastAccepted, d.accepted
}
