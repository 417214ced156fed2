package notifications

import (
	"os"
	"strings"
)

// NotificationConfig holds the outbound notification configuration.
type NotificationConfig struct {
	ShoutrrrURLs []string
}

// LoadNotificationConfig loads notification configuration from
// environment variables. No URLs configured means outbound
// notifications are disabled; that is not an error.
func LoadNotificationConfig() (*NotificationConfig, error) {
	return &NotificationConfig{
		ShoutrrrURLs: parseShoutrrrURLs(os.Getenv("SHOUTRRR_URLS")),
	}, nil
}

// parseShoutrrrURLs parses a comma-separated list of Shoutrrr URLs.
func parseShoutrrrURLs(urls string) []string {
	var result []string
	for _, url := range strings.Split(urls, ",") {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
