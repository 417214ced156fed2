package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds the storage-related configuration.
type Config struct {
	Type      string
	Path      string
	RedisAddr string
	RedisPass string
	RedisDB   int
}

// LoadConfig loads storage configuration from environment variables.
// The default is a bbolt file under the user data directory.
func LoadConfig() (*Config, error) {
	dbType := os.Getenv("DATABASE_TYPE")
	if dbType == "" {
		dbType = "bolt"
	}

	config := &Config{Type: dbType}

	switch dbType {
	case "bolt":
		config.Path = os.Getenv("DATABASE_PATH")
		if config.Path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("DATABASE_PATH not set and home directory unavailable: %w", err)
			}
			config.Path = filepath.Join(home, ".local", "share", "guardix", "guardix.db")
		}
	case "redis":
		config.RedisAddr = os.Getenv("REDIS_ADDR")
		if config.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for RedisDB")
		}
		config.RedisPass = os.Getenv("REDIS_PASSWORD")
		if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
			db, err := strconv.Atoi(dbStr)
			if err != nil {
				return nil, fmt.Errorf("invalid REDIS_DB value: %v", err)
			}
			config.RedisDB = db
		}
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", dbType)
	}

	return config, nil
}

// New opens the store selected by the configuration.
func New(cfg *Config) (Store, error) {
	switch cfg.Type {
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return NewBoltDB(cfg.Path)
	case "redis":
		return NewRedisDB(cfg)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_TYPE: %s", cfg.Type)
	}
}
