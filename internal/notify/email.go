package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/oszuidwest/zwfm-voicetrigger/internal/types"
	"github.com/oszuidwest/zwfm-voicetrigger/internal/util"
)

// GraphConfig is the configuration for email notifications.
type GraphConfig = types.GraphConfig

// staleEmail returns the subject and body of a stale sensor alert.
func staleEmail(station, source string) (subject, body string) {
	subject = "[ALERT] Sensor Stale - " + station
	body = fmt.Sprintf(
		"The loudness sensor stopped delivering audio.\n\n"+
			"Source: %s\n"+
			"Time:   %s\n\n"+
			"Voice triggers are suspended until audio returns. Manual triggers keep working.",
		source, util.HumanTime(time.Now()),
	)
	return subject, body
}

// recoveryEmail returns the subject and body of a sensor recovery notice.
func recoveryEmail(station, source string, staleFor time.Duration) (subject, body string) {
	subject = "[OK] Sensor Recovered - " + station
	body = fmt.Sprintf(
		"The loudness sensor is delivering audio again.\n\n"+
			"Source:    %s\n"+
			"Stale for: %s\n"+
			"Time:      %s",
		source, util.FormatDuration(staleFor), util.HumanTime(time.Now()),
	)
	return subject, body
}

// SendTestEmail sends a test email to verify email configuration.
func SendTestEmail(ctx context.Context, cfg *GraphConfig, station string) error {
	if err := ValidateConfig(cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	client, err := NewGraphClient(cfg)
	if err != nil {
		return fmt.Errorf("create Graph client: %w", err)
	}

	if err := client.ValidateAuth(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	subject := "[TEST] " + station
	body := fmt.Sprintf(
		"Test email from %s.\n\n"+
			"Time: %s\n\n"+
			"Microsoft Graph configuration is working correctly.",
		AppName, util.HumanTime(time.Now()),
	)

	if err := client.SendMail(ctx, ParseRecipients(cfg.Recipients), subject, body); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}
