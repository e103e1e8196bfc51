package audio

import (
	"math"
	"sync/atomic"
	"time"
)

// Amplitude holds the most recently published loudness reading.
// It is safe for concurrent use by one writer and any number of readers;
// neither side ever blocks.
type Amplitude struct {
	bits atomic.Uint64

	// Publish times are stored as offsets from base so Updated keeps the
	// monotonic clock reading and staleness survives wall clock steps.
	base    time.Time
	updated atomic.Int64 // offset from base, neverPublished before the first publish
}

const neverPublished = math.MinInt64

// NewAmplitude returns an Amplitude that reads 0 until the first publish.
func NewAmplitude() *Amplitude {
	a := &Amplitude{base: time.Now()}
	a.updated.Store(neverPublished)
	return a
}

// Publish replaces the stored reading. Earlier unread readings are lost.
func (a *Amplitude) Publish(reading float64) {
	a.PublishAt(reading, time.Now())
}

// PublishAt replaces the stored reading and records now as its arrival time.
func (a *Amplitude) PublishAt(reading float64, now time.Time) {
	offset := int64(now.Sub(a.base))
	if offset == neverPublished {
		offset++
	}
	a.bits.Store(math.Float64bits(reading))
	a.updated.Store(offset)
}

// Read returns the latest published reading, or 0 if none was published.
func (a *Amplitude) Read() float64 {
	return math.Float64frombits(a.bits.Load())
}

// Updated returns when the latest reading was published, or the zero time.
func (a *Amplitude) Updated() time.Time {
	offset := a.updated.Load()
	if offset == neverPublished {
		return time.Time{}
	}
	return a.base.Add(time.Duration(offset))
}
