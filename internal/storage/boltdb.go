package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/guardix/guardix/internal/models"
)

const (
	itemsBucket      = "QuarantineItems"
	signaturesBucket = "Signatures"
	signaturesKey    = "active"
)

// BoltDB implements Store using bbolt, one local file, no server.
type BoltDB struct {
	db   *bbolt.DB
	path string
}

// NewBoltDB opens (or creates) the database file and initializes the
// buckets.
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	b := &BoltDB{db: db, path: path}
	if err := b.Initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// Initialize sets up the necessary buckets.
func (b *BoltDB) Initialize(ctx context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(itemsBucket)); err != nil {
			return fmt.Errorf("create %s bucket: %w", itemsBucket, err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(signaturesBucket)); err != nil {
			return fmt.Errorf("create %s bucket: %w", signaturesBucket, err)
		}
		return nil
	})
}

// Close closes the underlying database file.
func (b *BoltDB) Close(ctx context.Context) error {
	return b.db.Close()
}

// PutItem stores a quarantine record keyed by its id.
func (b *BoltDB) PutItem(ctx context.Context, item models.QuarantineItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal QuarantineItem: %w", err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).Put([]byte(item.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store quarantine record: %w", err)
	}
	return nil
}

// GetItem retrieves a quarantine record by id.
func (b *BoltDB) GetItem(ctx context.Context, id string) (models.QuarantineItem, error) {
	var item models.QuarantineItem

	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket([]byte(itemsBucket)).Get([]byte(id))
		if val == nil {
			return ErrItemNotFound
		}
		return json.Unmarshal(val, &item)
	})
	return item, err
}

// DeleteItem removes a quarantine record by id.
func (b *BoltDB) DeleteItem(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		if bucket.Get([]byte(id)) == nil {
			return ErrItemNotFound
		}
		return bucket.Delete([]byte(id))
	})
}

// ListItems returns all quarantine records.
func (b *BoltDB) ListItems(ctx context.Context) ([]models.QuarantineItem, error) {
	var items []models.QuarantineItem

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(k, v []byte) error {
			var item models.QuarantineItem
			if err := json.Unmarshal(v, &item); err != nil {
				logrus.WithError(err).Warnf("Failed to unmarshal quarantine record %s", string(k))
				return nil // skip invalid records
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// PutSignatures persists the active signature set as one value.
func (b *BoltDB) PutSignatures(ctx context.Context, sigs []models.ThreatSignature) error {
	data, err := json.Marshal(sigs)
	if err != nil {
		return fmt.Errorf("failed to marshal signatures: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(signaturesBucket)).Put([]byte(signaturesKey), data)
	})
}

// GetSignatures returns the persisted signature set, nil if absent.
func (b *BoltDB) GetSignatures(ctx context.Context) ([]models.ThreatSignature, error) {
	var sigs []models.ThreatSignature

	err := b.db.View(func(tx *bbolt.Tx) error {
		val := tx.Bucket([]byte(signaturesBucket)).Get([]byte(signaturesKey))
		if val == nil {
			return nil
		}
		return json.Unmarshal(val, &sigs)
	})
	if err != nil {
		return nil, err
	}
	return sigs, nil
}
