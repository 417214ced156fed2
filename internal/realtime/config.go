package realtime

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config holds the realtime protection configuration. No watch paths
// means realtime protection is disabled.
type Config struct {
	WatchPaths      []string
	EventsPerSecond rate.Limit
	Burst           int
	MaxConcurrent   int64
	MaxFileSize     int64
}

const (
	defaultEventsPerSecond = 20
	defaultBurst           = 40
	defaultMaxConcurrent   = 4
)

// LoadConfig loads realtime protection configuration from environment
// variables.
func LoadConfig(maxFileSize int64) (*Config, error) {
	var paths []string
	for _, p := range strings.Split(os.Getenv("WATCH_PATHS"), ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}

	eps, err := strconv.Atoi(os.Getenv("WATCH_EVENTS_PER_SEC"))
	if err != nil || eps <= 0 {
		eps = defaultEventsPerSecond
		if len(paths) > 0 {
			logrus.Infof("Invalid or missing WATCH_EVENTS_PER_SEC. Defaulting to %d.", eps)
		}
	}

	workers, err := strconv.Atoi(os.Getenv("WATCH_MAX_CONCURRENT"))
	if err != nil || workers <= 0 {
		workers = defaultMaxConcurrent
	}

	return &Config{
		WatchPaths:      paths,
		EventsPerSecond: rate.Limit(eps),
		Burst:           defaultBurst,
		MaxConcurrent:   int64(workers),
		MaxFileSize:     maxFileSize,
	}, nil
}

// Enabled reports whether any path is configured for watching.
func (c *Config) Enabled() bool {
	return len(c.WatchPaths) > 0
}
