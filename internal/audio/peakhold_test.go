package audio

import (
	"testing"
	"time"
)

func TestPeakHolder_HoldsThenFollows(t *testing.T) {
	p := NewPeakHolder()
	start := time.Now()

	if got := p.Update(40, start); got != 40 {
		t.Fatalf("Update(40) = %v, want 40", got)
	}
	if got := p.Update(10, start.Add(time.Second)); got != 40 {
		t.Errorf("within hold: got %v, want 40", got)
	}
	if got := p.Update(10, start.Add(DefaultPeakHoldDuration+time.Millisecond)); got != 10 {
		t.Errorf("after hold: got %v, want 10", got)
	}
}

func TestPeakHolder_Reset(t *testing.T) {
	p := NewPeakHolder()
	p.SetHoldDuration(time.Hour)
	now := time.Now()
	p.Update(80, now)
	p.Reset()
	if got := p.Update(5, now); got != 5 {
		t.Errorf("after Reset: got %v, want 5", got)
	}
}
