package audio

import (
	"sync"
	"time"
)

// DefaultPeakHoldDuration is how long a peak reading is held before it follows the current value.
const DefaultPeakHoldDuration = 1500 * time.Millisecond

// PeakHolder tracks the held peak loudness for the level meter.
// It is safe for concurrent use.
type PeakHolder struct {
	mu           sync.Mutex
	held         float64
	heldAt       time.Time
	holdDuration time.Duration
}

// NewPeakHolder creates a new peak holder with the default hold duration.
func NewPeakHolder() *PeakHolder {
	return &PeakHolder{holdDuration: DefaultPeakHoldDuration}
}

// Update records a new reading and returns the held peak.
func (p *PeakHolder) Update(reading float64, now time.Time) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reading >= p.held || now.Sub(p.heldAt) > p.holdDuration {
		p.held = reading
		p.heldAt = now
	}
	return p.held
}

// SetHoldDuration updates the peak hold duration.
func (p *PeakHolder) SetHoldDuration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdDuration = d
}

// Reset clears the held peak.
func (p *PeakHolder) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.held = 0
	p.heldAt = time.Time{}
}
