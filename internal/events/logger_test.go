package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
)

func newTestLogger(t *testing.T, onRotate func(string)) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "events"), onRotate)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func day(d, hour int) time.Time {
	return time.Date(2026, 3, d, hour, 0, 0, 0, time.Local)
}

func TestLogTriggerWritesDailyFile(t *testing.T) {
	l := newTestLogger(t, nil)

	d := trigger.Decision{Time: day(2, 10), Source: trigger.SourceVoice, Reading: 42, Fired: true}
	if err := l.LogTrigger(d, 10, 1); err != nil {
		t.Fatalf("LogTrigger() error = %v", err)
	}

	path := filepath.Join(l.Dir(), "triggers-2026-03-02.jsonl")
	if l.PathFor(day(2, 23)) != path {
		t.Errorf("PathFor() = %q, want %q", l.PathFor(day(2, 23)), path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("daily file missing: %v", err)
	}

	got, hasMore, err := l.ReadLast(10, 0, FilterAll)
	if err != nil {
		t.Fatalf("ReadLast() error = %v", err)
	}
	if hasMore || len(got) != 1 {
		t.Fatalf("ReadLast() = %d events (hasMore %v), want 1", len(got), hasMore)
	}
	if got[0].Type != TriggerFired {
		t.Errorf("Type = %q, want %q", got[0].Type, TriggerFired)
	}
	details, ok := got[0].Details.(map[string]any)
	if !ok || details["source"] != "voice" || details["reading"] != 42.0 {
		t.Errorf("Details = %#v", got[0].Details)
	}
}

func TestRotationCallsHook(t *testing.T) {
	rotated := make(chan string, 1)
	l := newTestLogger(t, func(path string) { rotated <- path })

	first := trigger.Decision{Time: day(2, 23), Source: trigger.SourceManual, Fired: true}
	second := trigger.Decision{Time: day(3, 0), Source: trigger.SourceManual, Fired: true}
	if err := l.LogTrigger(first, 10, 1); err != nil {
		t.Fatal(err)
	}
	if err := l.LogTrigger(second, 10, 2); err != nil {
		t.Fatal(err)
	}

	select {
	case path := <-rotated:
		if path != l.PathFor(day(2, 0)) {
			t.Errorf("rotated %q, want %q", path, l.PathFor(day(2, 0)))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rotate hook not called")
	}
}

func TestRotateIfStaleWithoutNewEvents(t *testing.T) {
	rotated := make(chan string, 1)
	l := newTestLogger(t, func(path string) { rotated <- path })

	if ok, err := l.RotateIfStale(day(2, 12)); ok || err != nil {
		t.Fatalf("RotateIfStale() with no open file = %v, %v", ok, err)
	}

	d := trigger.Decision{Time: day(2, 22), Source: trigger.SourceVoice, Reading: 30, Fired: true}
	if err := l.LogTrigger(d, 10, 1); err != nil {
		t.Fatal(err)
	}
	if ok, err := l.RotateIfStale(day(2, 23)); ok || err != nil {
		t.Fatalf("RotateIfStale() same day = %v, %v", ok, err)
	}
	if ok, err := l.RotateIfStale(day(3, 0)); !ok || err != nil {
		t.Fatalf("RotateIfStale() next day = %v, %v", ok, err)
	}

	select {
	case path := <-rotated:
		if path != l.PathFor(day(2, 0)) {
			t.Errorf("rotated %q, want %q", path, l.PathFor(day(2, 0)))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rotate hook not called")
	}

	// The next event opens the new day's file without rotating again.
	next := trigger.Decision{Time: day(3, 1), Source: trigger.SourceManual, Fired: true}
	if err := l.LogTrigger(next, 10, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(l.PathFor(day(3, 0))); err != nil {
		t.Errorf("new day file missing: %v", err)
	}
	select {
	case path := <-rotated:
		t.Errorf("unexpected second rotation of %q", path)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReadLastAcrossFilesNewestFirst(t *testing.T) {
	l := newTestLogger(t, nil)

	for i, ts := range []time.Time{day(1, 8), day(1, 9), day(2, 8)} {
		d := trigger.Decision{Time: ts, Source: trigger.SourceVoice, Reading: float64(i), Fired: true}
		if err := l.LogTrigger(d, 10, uint64(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	stale := &Event{Timestamp: day(2, 9), Type: SensorStale, Details: &SensorDetails{Source: "websocket", DurationMs: 1500}}
	if err := l.Log(stale); err != nil {
		t.Fatal(err)
	}

	got, hasMore, err := l.ReadLast(2, 0, FilterTrigger)
	if err != nil {
		t.Fatalf("ReadLast() error = %v", err)
	}
	if len(got) != 2 || !hasMore {
		t.Fatalf("ReadLast() = %d events (hasMore %v), want 2 with more", len(got), hasMore)
	}
	if !got[0].Timestamp.Equal(day(2, 8)) || !got[1].Timestamp.Equal(day(1, 9)) {
		t.Errorf("order = %v, %v", got[0].Timestamp, got[1].Timestamp)
	}

	got, hasMore, err = l.ReadLast(5, 2, FilterTrigger)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || hasMore || !got[0].Timestamp.Equal(day(1, 8)) {
		t.Errorf("offset page = %+v (hasMore %v)", got, hasMore)
	}

	sensor, _, err := l.ReadLast(5, 0, FilterSensor)
	if err != nil {
		t.Fatal(err)
	}
	if len(sensor) != 1 || sensor[0].Type != SensorStale {
		t.Errorf("sensor events = %+v", sensor)
	}
}

func TestLogSensor(t *testing.T) {
	l := newTestLogger(t, nil)

	if err := l.LogSensor(SensorRecovered, "capture", 2*time.Second); err != nil {
		t.Fatalf("LogSensor() error = %v", err)
	}
	got, _, err := l.ReadLast(1, 0, FilterSensor)
	if err != nil || len(got) != 1 {
		t.Fatalf("ReadLast() = %v, %v", got, err)
	}
	details, ok := got[0].Details.(map[string]any)
	if !ok || details["duration_ms"] != 2000.0 {
		t.Errorf("Details = %#v", got[0].Details)
	}
}

func TestReadLastEmpty(t *testing.T) {
	l := newTestLogger(t, nil)

	got, hasMore, err := l.ReadLast(10, 0, FilterAll)
	if err != nil || hasMore || len(got) != 0 {
		t.Errorf("ReadLast() = %v, %v, %v", got, hasMore, err)
	}
	if got, _, _ := l.ReadLast(0, 0, FilterAll); len(got) != 0 {
		t.Errorf("ReadLast(0) = %v", got)
	}
}
