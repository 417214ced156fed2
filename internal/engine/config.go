package engine

import (
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
)

// Config holds the scan-related defaults applied to configs built by
// NewScanConfig.
type Config struct {
	MaxFileSize        int64 // bytes
	ExcludedExtensions []string
	ExcludedPaths      []string
	SignatureFile      string
}

const defaultMaxFileSizeMB = 100

// LoadConfig loads scan defaults from environment variables.
func LoadConfig() (*Config, error) {
	maxSizeStr := os.Getenv("SCAN_MAX_FILE_SIZE_MB")
	maxSizeMB, err := strconv.Atoi(maxSizeStr)
	if err != nil || maxSizeMB <= 0 {
		maxSizeMB = defaultMaxFileSizeMB
		logrus.Infof("Invalid or missing SCAN_MAX_FILE_SIZE_MB. Defaulting to %d MB.", maxSizeMB)
	}

	return &Config{
		MaxFileSize:        int64(maxSizeMB) * 1024 * 1024,
		ExcludedExtensions: splitList(os.Getenv("SCAN_EXCLUDED_EXTENSIONS")),
		ExcludedPaths:      splitList(os.Getenv("SCAN_EXCLUDED_PATHS")),
		SignatureFile:      os.Getenv("SIGNATURE_FILE"),
	}, nil
}

// NewScanConfig builds a ScanConfig for the given roots with the
// configured defaults applied.
func (c *Config) NewScanConfig(scanType models.ScanType, roots []string) models.ScanConfig {
	return models.ScanConfig{
		TargetPaths:        roots,
		ScanType:           scanType,
		MaxFileSize:        c.MaxFileSize,
		ExcludedExtensions: c.ExcludedExtensions,
		ExcludedPaths:      c.ExcludedPaths,
	}
}

func splitList(input string) []string {
	var result []string
	for _, entry := range strings.Split(input, ",") {
		trimmed := strings.TrimSpace(entry)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
