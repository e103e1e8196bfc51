// Package notify delivers sensor alerts by webhook, log file and email.
package notify

import "time"

// AppName is the application name used in notifications.
const AppName = "ZuidWest FM Voice Trigger"

// Notification event names shared by all channels.
const (
	EventSensorStale     = "sensor_stale"
	EventSensorRecovered = "sensor_recovered"
	EventTest            = "test"
)

// timestampUTC returns the current UTC time in RFC3339 format.
func timestampUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}
