package trigger

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// at returns epoch plus seconds.
func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func TestDebouncer_VoiceSequence(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)

	steps := []struct {
		t       float64
		reading float64
		want    bool
	}{
		{0, 15, true},
		{0.2, 15, false},
		{0.6, 15, true},
	}
	for _, s := range steps {
		if got := d.Evaluate(at(s.t), s.reading); got != s.want {
			t.Errorf("Evaluate(t=%v, %v) = %v, want %v", s.t, s.reading, got, s.want)
		}
	}
}

func TestDebouncer_BelowThresholdNeverFires(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	for _, s := range []float64{0, 0.1, 0.6, 5, 60, 3600} {
		if d.Evaluate(at(s), 5.0) {
			t.Fatalf("Evaluate(t=%v, 5.0) fired", s)
		}
	}
}

func TestDebouncer_ThresholdIsStrict(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	if d.Evaluate(at(0), 10.0) {
		t.Error("reading equal to threshold fired")
	}
	if !d.Evaluate(at(0), 10.0001) {
		t.Error("reading just above threshold did not fire")
	}
}

func TestDebouncer_CooldownIsStrict(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	d.Evaluate(at(0), 20)
	if d.Evaluate(at(0.5), 20) {
		t.Error("fired at exactly the cooldown boundary")
	}
	if !d.Evaluate(at(0.5001), 20) {
		t.Error("did not fire just after the cooldown")
	}
}

func TestDebouncer_SuppressedAttemptKeepsState(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	d.Evaluate(at(0), 20)
	// Suppressed attempts must not push the window forward.
	for _, s := range []float64{0.1, 0.2, 0.3, 0.4, 0.45} {
		d.Evaluate(at(s), 20)
	}
	if !d.Evaluate(at(0.55), 20) {
		t.Error("suppressed attempts extended the cooldown")
	}
}

func TestDebouncer_FirstAttemptAlwaysAccepted(t *testing.T) {
	// The zero time and times far in the past must not look like a recent acceptance.
	for _, now := range []time.Time{{}, time.Unix(0, 0), epoch} {
		d := NewDebouncer(10.0, time.Hour)
		if !d.Manual(now) {
			t.Errorf("first Manual(%v) rejected", now)
		}
	}
}

func TestDebouncer_ManualBlocksVoice(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	if !d.Manual(at(0)) {
		t.Fatal("manual at t=0 rejected")
	}
	if d.Evaluate(at(0.3), 50) {
		t.Error("voice at t=0.3 fired inside the manual cooldown")
	}
	if !d.Evaluate(at(0.6), 50) {
		t.Error("voice at t=0.6 did not fire")
	}
}

func TestDebouncer_VoiceBlocksManual(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	d.Evaluate(at(0), 50)
	if d.Manual(at(0.4)) {
		t.Error("manual at t=0.4 accepted inside the voice cooldown")
	}
	if !d.Manual(at(0.51)) {
		t.Error("manual at t=0.51 rejected")
	}
}

func TestDebouncer_Reconfigure(t *testing.T) {
	d := NewDebouncer(10.0, 500*time.Millisecond)
	d.SetThreshold(30)
	d.SetCooldown(2 * time.Second)

	if d.Evaluate(at(0), 20) {
		t.Error("fired below the new threshold")
	}
	if !d.Evaluate(at(0), 40) {
		t.Fatal("did not fire above the new threshold")
	}
	if d.Evaluate(at(1), 40) {
		t.Error("fired inside the new cooldown")
	}
	last, ok := d.LastAccepted()
	if !ok || !last.Equal(at(0)) {
		t.Errorf("LastAccepted() = %v, %v", last, ok)
	}
}
