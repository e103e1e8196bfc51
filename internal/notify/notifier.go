package notify

import (
	"context"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/config"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/trigger"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// sendTimeout bounds a single alert delivery including retries.
const sendTimeout = 2 * time.Minute

// SensorNotifier sends alerts when the sensor goes stale and recovers.
type SensorNotifier struct {
	cfg *config.Config

	// mu protects the notification state fields below
	mu sync.Mutex

	// Track which notifications have been sent for the current stale period
	webhookSent bool
	emailSent   bool
	logSent     bool

	// Cached Graph client for email notifications
	graphClient *GraphClient

	// wg tracks in-flight deliveries.
	wg sync.WaitGroup
}

// NewSensorNotifier returns a SensorNotifier configured with the given config.
func NewSensorNotifier(cfg *config.Config) *SensorNotifier {
	return &SensorNotifier{cfg: cfg}
}

// getOrCreateGraphClient returns the cached Graph client, creating it if needed.
func (n *SensorNotifier) getOrCreateGraphClient(cfg *GraphConfig) (*GraphClient, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.graphClient != nil {
		return n.graphClient, nil
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return nil, err
	}
	n.graphClient = client
	return client, nil
}

// HandleEvent processes a staleness transition and sends notifications.
func (n *SensorNotifier) HandleEvent(event trigger.StaleEvent) {
	if event.JustEntered {
		n.handleStale()
	}
	if event.JustRecovered {
		n.handleRecovered(event.TotalDuration)
	}
}

// handleStale sends alerts when the sensor is first confirmed stale.
func (n *SensorNotifier) handleStale() {
	cfg := n.cfg.Snapshot()

	n.trySend(&n.webhookSent, cfg.HasWebhook(), "Stale webhook", func(ctx context.Context) error {
		return SendStaleWebhook(ctx, cfg.WebhookURL, cfg.Name, cfg.SensorSource)
	})
	n.trySend(&n.emailSent, cfg.HasGraph(), "Stale email", func(ctx context.Context) error {
		subject, body := staleEmail(cfg.Name, cfg.SensorSource)
		return n.sendEmail(ctx, &cfg.Graph, subject, body)
	})
	n.trySend(&n.logSent, cfg.HasLogPath(), "Stale log", func(context.Context) error {
		return LogStale(cfg.LogPath, cfg.SensorSource)
	})
}

// trySend sends a notification if the condition is met and not already sent.
func (n *SensorNotifier) trySend(sent *bool, condition bool, name string, sender func(context.Context) error) {
	n.mu.Lock()
	shouldSend := !*sent && condition
	if shouldSend {
		*sent = true
	}
	n.mu.Unlock()
	if shouldSend {
		n.deliver(name, sender)
	}
}

// deliver runs sender on its own goroutine and logs the result.
func (n *SensorNotifier) deliver(name string, sender func(context.Context) error) {
	n.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		util.LogNotifyResult(func() error { return sender(ctx) }, name)
	})
}

// handleRecovered sends recovery notices for every channel that sent an alert.
func (n *SensorNotifier) handleRecovered(staleFor time.Duration) {
	cfg := n.cfg.Snapshot()

	n.mu.Lock()
	sendWebhook := n.webhookSent
	sendEmail := n.emailSent
	sendLog := n.logSent
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()

	if sendWebhook {
		n.deliver("Recovery webhook", func(ctx context.Context) error {
			return SendRecoveryWebhook(ctx, cfg.WebhookURL, cfg.Name, cfg.SensorSource, staleFor)
		})
	}
	if sendEmail {
		n.deliver("Recovery email", func(ctx context.Context) error {
			subject, body := recoveryEmail(cfg.Name, cfg.SensorSource, staleFor)
			return n.sendEmail(ctx, &cfg.Graph, subject, body)
		})
	}
	if sendLog {
		n.deliver("Recovery log", func(context.Context) error {
			return LogRecovered(cfg.LogPath, cfg.SensorSource, staleFor)
		})
	}
}

// sendEmail sends a message using the cached Graph client.
func (n *SensorNotifier) sendEmail(ctx context.Context, cfg *GraphConfig, subject, body string) error {
	if !IsConfigured(cfg) {
		return nil
	}

	client, err := n.getOrCreateGraphClient(cfg)
	if err != nil {
		return util.WrapError("create Graph client", err)
	}

	if err := client.SendMail(ctx, ParseRecipients(cfg.Recipients), subject, body); err != nil {
		return util.WrapError("send email via Graph", err)
	}
	return nil
}

// Reset clears the notification state.
func (n *SensorNotifier) Reset() {
	n.mu.Lock()
	n.webhookSent = false
	n.emailSent = false
	n.logSent = false
	n.mu.Unlock()
}

// Wait blocks until all in-flight deliveries finish.
func (n *SensorNotifier) Wait() {
	n.wg.Wait()
}
