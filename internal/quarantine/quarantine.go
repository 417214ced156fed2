package quarantine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
	"github.com/guardix/guardix/internal/storage"
)

var (
	// ErrNotFound is returned by Isolate when the source file no
	// longer exists.
	ErrNotFound = errors.New("source file not found")

	// ErrNotFoundInQuarantine is returned by Restore and Delete for
	// an unknown item id.
	ErrNotFoundInQuarantine = errors.New("quarantine item not found")

	// ErrDestinationOccupied is returned by Restore when the original
	// location is occupied; the occupant is never overwritten.
	ErrDestinationOccupied = errors.New("restore destination is occupied")

	// ErrInternalInconsistency means the filesystem move and the
	// record bookkeeping disagree. It must never be swallowed.
	ErrInternalInconsistency = errors.New("quarantine state inconsistent")
)

// Store owns the quarantine: a flat directory of isolated files keyed
// by item id, plus one durable record per item. No other component
// may touch a file while it is quarantined.
type Store struct {
	mu      sync.Mutex
	dir     string
	records storage.Store
	logger  *logrus.Logger
}

// NewStore creates the quarantine directory (0700) if needed and
// binds the store to its record persistence.
func NewStore(dir string, records storage.Store, logger *logrus.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
	}
	return &Store{dir: dir, records: records, logger: logger}, nil
}

// Dir returns the quarantine directory path.
func (s *Store) Dir() string {
	return s.dir
}

// Isolate hashes the file, derives its id, moves it into quarantine
// and appends the record. The move and the record append are one
// logical transaction: if the record append fails after the move
// succeeded, ErrInternalInconsistency is returned and the quarantined
// copy stays on disk under its id for reconciliation. A derived-id
// collision is also ErrInternalInconsistency, never an overwrite.
func (s *Store) Isolate(ctx context.Context, path, threatName string) (models.QuarantineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero models.QuarantineItem

	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	hash, err := Digest(path)
	if err != nil {
		return zero, err
	}

	id := fmt.Sprintf("%s_%d", hash[:16], time.Now().Unix())

	if _, err := s.records.GetItem(ctx, id); err == nil {
		return zero, fmt.Errorf("id %s already recorded: %w", id, ErrInternalInconsistency)
	} else if !errors.Is(err, storage.ErrItemNotFound) {
		return zero, fmt.Errorf("failed to check quarantine record: %w", err)
	}

	quarantinePath := filepath.Join(s.dir, id)

	// An orphaned file can sit at this path without a record if an
	// earlier record append failed; never rename over it.
	if _, err := os.Lstat(quarantinePath); err == nil {
		return zero, fmt.Errorf("quarantine slot %s already occupied: %w", id, ErrInternalInconsistency)
	} else if !os.IsNotExist(err) {
		return zero, fmt.Errorf("failed to stat quarantine slot %s: %w", id, err)
	}

	if err := os.Rename(path, quarantinePath); err != nil {
		return zero, fmt.Errorf("failed to move %s into quarantine: %w", path, err)
	}

	item := models.QuarantineItem{
		ID:             id,
		OriginalPath:   path,
		QuarantinePath: quarantinePath,
		ThreatName:     threatName,
		Timestamp:      time.Now(),
		FileHash:       hash,
	}

	if err := s.records.PutItem(ctx, item); err != nil {
		return zero, fmt.Errorf("file moved to %s but record append failed (%v): %w",
			quarantinePath, err, ErrInternalInconsistency)
	}

	s.logger.WithFields(logrus.Fields{
		"id":     id,
		"path":   path,
		"threat": threatName,
	}).Info("File quarantined")

	return item, nil
}

// Restore moves the file back to its original path and removes the
// record. Parent directories of the original path are recreated if
// they vanished; an occupied destination is an error.
func (s *Store) Restore(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.getItem(ctx, id)
	if err != nil {
		return "", err
	}

	// Only a confirmed absence means the destination is free; a stat
	// failure other than not-exist must not be mistaken for one.
	if _, err := os.Lstat(item.OriginalPath); err == nil {
		return "", fmt.Errorf("%s: %w", item.OriginalPath, ErrDestinationOccupied)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat restore destination %s: %w", item.OriginalPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(item.OriginalPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to recreate destination directory: %w", err)
	}
	if err := os.Rename(item.QuarantinePath, item.OriginalPath); err != nil {
		return "", fmt.Errorf("failed to restore %s: %w", id, err)
	}

	if err := s.records.DeleteItem(ctx, id); err != nil {
		return "", fmt.Errorf("file restored to %s but record removal failed (%v): %w",
			item.OriginalPath, err, ErrInternalInconsistency)
	}

	s.logger.WithFields(logrus.Fields{"id": id, "path": item.OriginalPath}).Info("File restored from quarantine")
	return item.OriginalPath, nil
}

// Delete permanently removes the quarantined file and its record.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.getItem(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(item.QuarantinePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete quarantined file %s: %w", id, err)
	}

	if err := s.records.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("file deleted but record removal failed (%v): %w", err, ErrInternalInconsistency)
	}

	s.logger.WithField("id", id).Info("Quarantine item deleted")
	return nil
}

// List returns the current record set.
func (s *Store) List(ctx context.Context) ([]models.QuarantineItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records.ListItems(ctx)
}

func (s *Store) getItem(ctx context.Context, id string) (models.QuarantineItem, error) {
	item, err := s.records.GetItem(ctx, id)
	if errors.Is(err, storage.ErrItemNotFound) {
		return item, ErrNotFoundInQuarantine
	}
	if err != nil {
		return item, fmt.Errorf("failed to load quarantine record: %w", err)
	}
	return item, nil
}
