package storage

import (
	"context"
	"errors"

	"github.com/guardix/guardix/internal/models"
)

// Store defines the persistence required by the engine: durable
// quarantine records (one per isolated file, keyed by id) and the
// last replaced signature set.
type Store interface {
	// Initialize sets up buckets or schema as needed.
	Initialize(ctx context.Context) error

	Close(ctx context.Context) error

	// PutItem stores a quarantine record.
	PutItem(ctx context.Context, item models.QuarantineItem) error

	// GetItem retrieves one record; ErrItemNotFound if absent.
	GetItem(ctx context.Context, id string) (models.QuarantineItem, error)

	// DeleteItem removes one record; ErrItemNotFound if absent.
	DeleteItem(ctx context.Context, id string) error

	// ListItems returns all quarantine records.
	ListItems(ctx context.Context) ([]models.QuarantineItem, error)

	// PutSignatures persists the active signature set.
	PutSignatures(ctx context.Context, sigs []models.ThreatSignature) error

	// GetSignatures returns the persisted set, or nil if none was
	// ever stored.
	GetSignatures(ctx context.Context) ([]models.ThreatSignature, error)
}

var ErrItemNotFound = errors.New("quarantine record not found")
