package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// webhookTimeout bounds a single webhook delivery.
const webhookTimeout = 10 * time.Second

// WebhookPayload represents the data sent to webhook endpoints.
type WebhookPayload struct {
	Event           string `json:"event"`
	Station         string `json:"station,omitempty"`
	Source          string `json:"source,omitempty"`
	StaleDurationMs int64  `json:"stale_duration_ms,omitempty"`
	Message         string `json:"message,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// SendStaleWebhook notifies the webhook that the sensor stopped delivering audio.
func SendStaleWebhook(ctx context.Context, webhookURL, station, source string) error {
	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:     EventSensorStale,
		Station:   station,
		Source:    source,
		Message:   "Sensor stopped delivering audio; voice triggers are suspended",
		Timestamp: timestampUTC(),
	})
}

// SendRecoveryWebhook notifies the webhook that the sensor is delivering audio again.
func SendRecoveryWebhook(ctx context.Context, webhookURL, station, source string, staleFor time.Duration) error {
	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:           EventSensorRecovered,
		Station:         station,
		Source:          source,
		StaleDurationMs: staleFor.Milliseconds(),
		Timestamp:       timestampUTC(),
	})
}

// SendTestWebhook sends a test webhook notification.
func SendTestWebhook(ctx context.Context, webhookURL, station string) error {
	if webhookURL == "" {
		return errors.New("webhook URL not configured")
	}

	return sendWebhook(ctx, webhookURL, &WebhookPayload{
		Event:     EventTest,
		Station:   station,
		Message:   "This is a test notification from " + AppName,
		Timestamp: timestampUTC(),
	})
}

// sendWebhook delivers a notification to the configured webhook endpoint.
func sendWebhook(ctx context.Context, webhookURL string, payload *WebhookPayload) error {
	if !util.AllSet(webhookURL) {
		return nil // Silently skip if not configured
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return util.WrapError("marshal payload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return util.WrapError("create webhook request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return util.WrapError("send webhook request", err)
	}
	defer util.SafeCloseFunc(resp.Body, "webhook response body")()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
