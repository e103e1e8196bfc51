package notify

import (
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// LogStale records that the sensor went stale.
func LogStale(logPath, source string) error {
	return appendLogEntry(logPath, &types.SensorLogEntry{
		Timestamp: timestampUTC(),
		Event:     EventSensorStale,
		Source:    source,
	})
}

// LogRecovered records that the sensor recovered after staleFor.
func LogRecovered(logPath, source string, staleFor time.Duration) error {
	return appendLogEntry(logPath, &types.SensorLogEntry{
		Timestamp:  timestampUTC(),
		Event:      EventSensorRecovered,
		DurationMs: staleFor.Milliseconds(),
		Source:     source,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return errors.New("log file path not configured")
	}

	return appendLogEntry(logPath, &types.SensorLogEntry{
		Timestamp: timestampUTC(),
		Event:     EventTest,
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *types.SensorLogEntry) error {
	if !util.AllSet(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}
