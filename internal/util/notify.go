package util

import (
	"log/slog"
	"time"
)

// LogNotifyResult runs a notification function and logs its outcome and duration.
func LogNotifyResult(fn func() error, notifyType string) {
	start := time.Now()
	if err := fn(); err != nil {
		slog.Error("notification failed", "type", notifyType, "error", err)
		return
	}
	slog.Info("notification sent", "type", notifyType, "took", time.Since(start).Round(time.Millisecond))
}
