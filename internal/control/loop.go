// Package control runs the fixed-rate loop that owns the trigger.
package control

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/audio"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
)

// DefaultTickInterval is the loop period at 60 evaluations per second.
const DefaultTickInterval = time.Second / 60

// Options configures a Loop.
type Options struct {
	// TickInterval is the evaluation period. Zero selects DefaultTickInterval.
	TickInterval time.Duration

	// Stale configures the stale detector used for alerting.
	Stale trigger.StaleConfig

	// PeakHold is how long the level meter holds a peak. Zero selects the
	// audio package default.
	PeakHold time.Duration

	// OnDecision is called from the loop for every manual attempt, every
	// accepted voice attempt and every voice attempt above threshold that the
	// cooldown suppressed.
	OnDecision func(trigger.Decision)

	// OnStale is called from the loop when the sensor enters or leaves the
	// stale state.
	OnStale func(trigger.StaleEvent)
}

// Status is a snapshot of the loop state after a tick.
type Status struct {
	Time         time.Time
	Reading      float64
	Peak         float64
	Stale        bool // reading released by the stale policy
	SensorStale  bool // confirmed stale for alerting, includes recovery window
	Threshold    float64
	Cooldown     time.Duration
	LastDecision trigger.Decision // zero until the first accepted trigger
	Triggers     uint64
}

// settings is a pending threshold and cooldown change.
type settings struct {
	threshold float64
	cooldown  time.Duration
}

// Loop evaluates the trigger at a fixed rate. The Trigger it wraps is only
// ever touched from the Run goroutine.
type Loop struct {
	trig     *trigger.Trigger
	hub      *Hub
	opts     Options
	peak     *audio.PeakHolder
	detector *trigger.StaleDetector

	manual   chan struct{}
	settings chan settings
	status   atomic.Pointer[Status]
	triggers uint64
	last     trigger.Decision
}

// New creates a Loop around trig that publishes accepted triggers to hub.
func New(trig *trigger.Trigger, hub *Hub, opts Options) *Loop {
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.Stale.After <= 0 {
		opts.Stale.After = trigger.DefaultStaleAfter
	}

	peak := audio.NewPeakHolder()
	if opts.PeakHold > 0 {
		peak.SetHoldDuration(opts.PeakHold)
	}

	l := &Loop{
		trig:     trig,
		hub:      hub,
		opts:     opts,
		peak:     peak,
		detector: trigger.NewStaleDetector(),
		manual:   make(chan struct{}, 1),
		settings: make(chan settings, 1),
	}
	l.status.Store(&Status{
		Threshold: trig.Threshold(),
		Cooldown:  trig.Cooldown(),
	})
	return l
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.opts.TickInterval)
	defer ticker.Stop()

	slog.Info("trigger loop started",
		"interval", l.opts.TickInterval,
		"threshold", l.trig.Threshold(),
		"cooldown", l.trig.Cooldown(),
		"stale_policy", l.trig.Policy())

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			l.Step(now)
		}
	}
}

// Step runs one tick at now: pending settings, pending manual request, then
// the voice path. Run calls it on every tick; tests drive it directly.
func (l *Loop) Step(now time.Time) {
	select {
	case s := <-l.settings:
		l.trig.Reconfigure(s.threshold, s.cooldown)
		slog.Info("trigger settings applied", "threshold", s.threshold, "cooldown", s.cooldown)
	default:
	}

	select {
	case <-l.manual:
		l.handle(l.trig.Manual(now), true)
	default:
	}

	d := l.trig.MaybeTrigger(now)
	l.handle(d, d.Fired || d.Reading > l.trig.Threshold())

	ev := l.detector.Update(l.trig.LastPublish(), now, l.opts.Stale)
	if (ev.JustEntered || ev.JustRecovered) && l.opts.OnStale != nil {
		l.opts.OnStale(ev)
	}

	l.status.Store(&Status{
		Time:         now,
		Reading:      d.Reading,
		Peak:         l.peak.Update(d.Reading, now),
		Stale:        d.Stale,
		SensorStale:  ev.Stale,
		Threshold:    l.trig.Threshold(),
		Cooldown:     l.trig.Cooldown(),
		LastDecision: l.last,
		Triggers:     l.triggers,
	})
}

// handle reports a decision and publishes it when accepted.
func (l *Loop) handle(d trigger.Decision, report bool) {
	if report && l.opts.OnDecision != nil {
		l.opts.OnDecision(d)
	}
	if !d.Fired {
		return
	}

	l.triggers++
	l.last = d
	slog.Debug("trigger fired", "source", d.Source, "reading", d.Reading)
	l.hub.Publish(Event{Decision: d, Count: l.triggers})
}

// RequestManual queues a manual trigger for the next tick. Requests made
// while one is already pending are coalesced.
func (l *Loop) RequestManual() {
	select {
	case l.manual <- struct{}{}:
	default:
	}
}

// UpdateSettings queues a threshold and cooldown change for the next tick.
// A newer change replaces one that has not been applied yet.
func (l *Loop) UpdateSettings(threshold float64, cooldown time.Duration) {
	s := settings{threshold: threshold, cooldown: cooldown}
	for {
		select {
		case l.settings <- s:
			return
		default:
		}
		select {
		case <-l.settings:
		default:
		}
	}
}

// Status returns the snapshot stored by the latest tick.
func (l *Loop) Status() Status {
	return *l.status.Load()
}
