package quarantine

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds the quarantine-related configuration.
type Config struct {
	Dir string
}

// LoadConfig loads quarantine configuration from environment
// variables. The default directory lives under the user data dir.
func LoadConfig() (*Config, error) {
	dir := os.Getenv("QUARANTINE_DIR")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("QUARANTINE_DIR not set and home directory unavailable: %w", err)
		}
		dir = filepath.Join(home, ".local", "share", "guardix", "quarantine")
	}
	return &Config{Dir: dir}, nil
}
