// Package events records trigger decisions and sensor events in daily JSON
// lines files.
package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
)

// EventType represents the type of event.
type EventType string

// Trigger event types.
const (
	TriggerFired      EventType = "trigger_fired"
	TriggerSuppressed EventType = "trigger_suppressed"
)

// Sensor event types.
const (
	SensorStale     EventType = "sensor_stale"
	SensorRecovered EventType = "sensor_recovered"
)

// filePrefix and dayLayout make up daily file names: triggers-2026-01-02.jsonl.
const (
	filePrefix = "triggers-"
	fileSuffix = ".jsonl"
	dayLayout  = "2006-01-02"
)

// rotateCheckInterval is how often Run looks for a day change.
const rotateCheckInterval = time.Minute

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// TriggerDetails contains trigger-specific event details.
type TriggerDetails struct {
	Source    string  `json:"source"`
	Reading   float64 `json:"reading"`
	Threshold float64 `json:"threshold"`
	Stale     bool    `json:"stale,omitempty"`
	Count     uint64  `json:"count,omitempty"`
}

// SensorDetails contains sensor-specific event details.
type SensorDetails struct {
	Source     string `json:"source,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// Logger writes events to one JSON lines file per local day. When the day
// changes the previous file is closed and handed to the rotate hook.
type Logger struct {
	mu       sync.Mutex
	dir      string
	day      string
	file     *os.File
	encoder  *json.Encoder
	onRotate func(path string)
}

// NewLogger creates an event logger writing into dir. onRotate, when not
// nil, is called on its own goroutine with the path of every closed file.
func NewLogger(dir string, onRotate func(path string)) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &Logger{dir: dir, onRotate: onRotate}, nil
}

// PathFor returns the file that holds events from the local day of t.
func (l *Logger) PathFor(t time.Time) string {
	return filepath.Join(l.dir, filePrefix+t.Local().Format(dayLayout)+fileSuffix)
}

// Dir returns the log directory.
func (l *Logger) Dir() string {
	return l.dir
}

// Log writes an event to the file for its day.
func (l *Logger) Log(event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.Lock()
	rotated, err := l.openLocked(event.Timestamp)
	if err == nil {
		err = l.encoder.Encode(event)
	}
	l.mu.Unlock()

	if rotated != "" && l.onRotate != nil {
		go l.onRotate(rotated)
	}
	return err
}

// openLocked makes sure the file for t's day is open and returns the path of
// the file it closed, if any. Caller must hold l.mu.
func (l *Logger) openLocked(t time.Time) (string, error) {
	day := t.Local().Format(dayLayout)
	if l.file != nil && day == l.day {
		return "", nil
	}

	var rotated string
	if l.file != nil {
		rotated = l.file.Name()
		if err := l.file.Close(); err != nil {
			return "", fmt.Errorf("close log file: %w", err)
		}
		l.file = nil
	}

	file, err := os.OpenFile(l.PathFor(t), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return rotated, fmt.Errorf("open log file: %w", err)
	}
	l.file = file
	l.day = day
	l.encoder = json.NewEncoder(file)
	return rotated, nil
}

// RotateIfStale closes the open file when it belongs to a day before now's
// and hands it to the rotate hook. It reports whether a file was rotated.
func (l *Logger) RotateIfStale(now time.Time) (bool, error) {
	l.mu.Lock()
	if l.file == nil || l.day == now.Local().Format(dayLayout) {
		l.mu.Unlock()
		return false, nil
	}
	rotated := l.file.Name()
	err := l.file.Close()
	l.file = nil
	l.encoder = nil
	l.mu.Unlock()

	if err != nil {
		return false, fmt.Errorf("close log file: %w", err)
	}
	if l.onRotate != nil {
		go l.onRotate(rotated)
	}
	return true, nil
}

// Run rotates the open file at day boundaries until ctx is done, so a day
// without events still gets archived.
func (l *Logger) Run(ctx context.Context) error {
	ticker := time.NewTicker(rotateCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if _, err := l.RotateIfStale(now); err != nil {
				slog.Warn("event log rotation failed", "error", err)
			}
		}
	}
}

// LogTrigger logs a trigger decision.
func (l *Logger) LogTrigger(d trigger.Decision, threshold float64, count uint64) error {
	eventType := TriggerSuppressed
	if d.Fired {
		eventType = TriggerFired
	}
	return l.Log(&Event{
		Timestamp: d.Time,
		Type:      eventType,
		Details: &TriggerDetails{
			Source:    string(d.Source),
			Reading:   d.Reading,
			Threshold: threshold,
			Stale:     d.Stale,
			Count:     count,
		},
	})
}

// LogSensor logs a sensor staleness transition.
func (l *Logger) LogSensor(eventType EventType, source string, duration time.Duration) error {
	return l.Log(&Event{
		Timestamp: time.Now(),
		Type:      eventType,
		Details: &SensorDetails{
			Source:     source,
			DurationMs: duration.Milliseconds(),
		},
	})
}

// Close closes the current log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll     TypeFilter = ""
	FilterTrigger TypeFilter = "trigger"
	FilterSensor  TypeFilter = "sensor"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// ReadLast returns up to n events starting at offset, newest first, across
// the daily files in the log directory. hasMore reports whether older
// matching events exist.
func (l *Logger) ReadLast(n, offset int, filter TypeFilter) (events []Event, hasMore bool, err error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}

	files, err := filepath.Glob(filepath.Join(l.dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return nil, false, err
	}
	// Day-stamped names sort chronologically.
	slices.Sort(files)
	slices.Reverse(files)

	l.mu.Lock()
	defer l.mu.Unlock()

	events = make([]Event, 0, n)
	skipped := 0
	for _, path := range files {
		lines, err := readLines(path)
		if err != nil {
			return nil, false, err
		}
		for i := len(lines) - 1; i >= 0; i-- {
			var event Event
			if err := json.Unmarshal([]byte(lines[i]), &event); err != nil {
				continue // Skip malformed lines
			}
			if !filter.matches(event.Type) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			if len(events) == n {
				return events, true, nil
			}
			events = append(events, event)
		}
	}
	return events, false, nil
}

// readLines returns all lines of path. A missing file has no lines.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Read-only operation, close error not critical

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// matches reports whether t passes the filter.
func (f TypeFilter) matches(t EventType) bool {
	switch f {
	case FilterTrigger:
		return IsTriggerEvent(t)
	case FilterSensor:
		return IsSensorEvent(t)
	default:
		return true
	}
}

// IsTriggerEvent returns true if the event type is a trigger event.
func IsTriggerEvent(t EventType) bool {
	return t == TriggerFired || t == TriggerSuppressed
}

// IsSensorEvent returns true if the event type is a sensor event.
func IsSensorEvent(t EventType) bool {
	return t == SensorStale || t == SensorRecovered
}
