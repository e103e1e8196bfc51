package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/archive"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/notify"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
)

// runTest sends a test notification through one alert channel.
func (h *CommandHandler) runTest(ctx context.Context, testType string) error {
	cfg := h.cfg.Snapshot()

	switch testType {
	case "webhook":
		return notify.SendTestWebhook(ctx, cfg.WebhookURL, cfg.Name)
	case "log":
		return notify.WriteTestLog(cfg.LogPath)
	case "email":
		return notify.SendTestEmail(ctx, &cfg.Graph, cfg.Name)
	default:
		return fmt.Errorf("unknown test type: %s", testType)
	}
}

// handleTest executes a notification test and sends the result to the client.
func (h *CommandHandler) handleTest(send chan<- any, testType string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in test handler", "test", testType, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
		defer cancel()

		result := types.WSTestResult{
			Type:     "test_result",
			TestType: testType,
			Success:  true,
		}

		if err := h.runTest(ctx, testType); err != nil {
			slog.Error("test failed", "test", testType, "error", err)
			result.Success = false
			result.Error = err.Error()
		} else {
			slog.Info("test succeeded", "test", testType)
		}

		trySend(send, "test_result", result)
	}()
}

// handleArchiveTest checks the configured bucket with a put and delete.
func (h *CommandHandler) handleArchiveTest(cmd WSCommand, send chan<- any) {
	cfg := h.cfg.Snapshot()
	HandleActionAsync(cmd, send, func(ctx context.Context) (any, error) {
		if err := archive.TestConnection(ctx, cfg.Archive); err != nil {
			return nil, err
		}
		return map[string]string{"bucket": cfg.Archive.Bucket}, nil
	})
}
