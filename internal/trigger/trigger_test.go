package trigger

import (
	"testing"
	"time"
)

// fakeReader is a Reader with fixed values.
type fakeReader struct {
	value   float64
	updated time.Time
}

func (f *fakeReader) Read() float64      { return f.value }
func (f *fakeReader) Updated() time.Time { return f.updated }

func TestTrigger_MaybeTriggerReadsChannel(t *testing.T) {
	src := &fakeReader{value: 15, updated: at(0)}
	tr := New(src, Config{Threshold: 10, Cooldown: 500 * time.Millisecond, Policy: StaleHold})

	d := tr.MaybeTrigger(at(0))
	if !d.Fired || d.Source != SourceVoice || d.Reading != 15 {
		t.Fatalf("MaybeTrigger = %+v", d)
	}

	src.value = 5
	if d := tr.MaybeTrigger(at(1)); d.Fired {
		t.Errorf("fired on quiet reading: %+v", d)
	}
}

func TestTrigger_ManualSharesCooldown(t *testing.T) {
	src := &fakeReader{value: 80, updated: at(0.3)}
	tr := New(src, Config{Threshold: 10, Cooldown: 500 * time.Millisecond})

	if d := tr.Manual(at(0)); !d.Fired || d.Source != SourceManual {
		t.Fatalf("Manual = %+v", d)
	}
	if d := tr.MaybeTrigger(at(0.3)); d.Fired {
		t.Errorf("voice fired within manual cooldown: %+v", d)
	}
}

func TestTrigger_StalePolicies(t *testing.T) {
	tests := []struct {
		name      string
		policy    StalePolicy
		updated   time.Time
		now       time.Time
		wantStale bool
		wantRead  float64
		wantFired bool
	}{
		{"release fresh", StaleRelease, at(0), at(0.5), false, 50, true},
		{"release stale", StaleRelease, at(0), at(5), true, 0, false},
		{"release never published", StaleRelease, time.Time{}, at(5), false, 50, true},
		{"hold stale", StaleHold, at(0), at(5), false, 50, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeReader{value: 50, updated: tt.updated}
			tr := New(src, Config{Threshold: 10, Cooldown: time.Second, Policy: tt.policy, StaleAfter: time.Second})
			d := tr.MaybeTrigger(tt.now)
			if d.Stale != tt.wantStale || d.Reading != tt.wantRead || d.Fired != tt.wantFired {
				t.Errorf("MaybeTrigger = %+v, want stale=%v reading=%v fired=%v",
					d, tt.wantStale, tt.wantRead, tt.wantFired)
			}
		})
	}
}

func TestTrigger_HoldRetriggersFrozenReading(t *testing.T) {
	src := &fakeReader{value: 50, updated: at(0)}
	tr := New(src, Config{Threshold: 10, Cooldown: 500 * time.Millisecond, Policy: StaleHold})

	fired := 0
	for ms := 0; ms <= 2000; ms += 100 {
		if tr.MaybeTrigger(epoch.Add(time.Duration(ms) * time.Millisecond)).Fired {
			fired++
		}
	}
	// t=0, 0.6, 1.2, 1.8
	if fired != 4 {
		t.Errorf("fired %d times, want 4", fired)
	}
}

func TestTrigger_Defaults(t *testing.T) {
	tr := New(&fakeReader{}, Config{Threshold: DefaultThreshold, Cooldown: DefaultCooldown})
	if tr.Policy() != StaleRelease {
		t.Errorf("Policy() = %q, want %q", tr.Policy(), StaleRelease)
	}
	tr.Reconfigure(20, time.Second)
	if tr.Threshold() != 20 || tr.Cooldown() != time.Second {
		t.Errorf("Reconfigure not applied: %v %v", tr.Threshold(), tr.Cooldown())
	}
}

func TestParseStalePolicy(t *testing.T) {
	for in, want := range map[string]StalePolicy{"": StaleRelease, "release": StaleRelease, "hold": StaleHold} {
		got, err := ParseStalePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParseStalePolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStalePolicy("forever"); err == nil {
		t.Error("ParseStalePolicy(forever) succeeded")
	}
}
