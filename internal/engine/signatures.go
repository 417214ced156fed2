package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
)

// SignatureStore holds the active threat signature set. The set is
// replaced as a whole and never mutated in place, so a snapshot taken
// by a running scan stays consistent across a concurrent replace.
type SignatureStore struct {
	mu   sync.RWMutex
	sigs []models.ThreatSignature
}

// NewSignatureStore returns an empty store. An empty set is not an
// error; scans against it simply complete with zero detections.
func NewSignatureStore() *SignatureStore {
	return &SignatureStore{}
}

// Replace atomically swaps the active signature set.
func (s *SignatureStore) Replace(sigs []models.ThreatSignature) {
	copied := make([]models.ThreatSignature, len(sigs))
	copy(copied, sigs)

	s.mu.Lock()
	s.sigs = copied
	s.mu.Unlock()

	logrus.WithField("signature_count", len(copied)).Info("Signature database replaced")
}

// Snapshot returns the current set. The returned slice is never
// mutated by the store, so callers may iterate it for the duration of
// a scan without further locking.
func (s *SignatureStore) Snapshot() []models.ThreatSignature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sigs
}

// Len reports the size of the active set.
func (s *SignatureStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sigs)
}

// BuiltinSignatures is the signature set shipped with the engine.
func BuiltinSignatures() []models.ThreatSignature {
	return []models.ThreatSignature{
		{
			Name:     "EICAR-Test-File",
			Pattern:  []byte("X5O!P%@AP[4\\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*"),
			Category: models.CategoryVirus,
			Severity: models.SeverityInfo,
		},
	}
}

// LoadSignatureFile reads a JSON array of signatures from disk.
// Patterns are base64-encoded in the file, matching the wire form of
// models.ThreatSignature.
func LoadSignatureFile(path string) ([]models.ThreatSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature file: %w", err)
	}

	var sigs []models.ThreatSignature
	if err := json.Unmarshal(data, &sigs); err != nil {
		return nil, fmt.Errorf("failed to parse signature file %s: %w", path, err)
	}
	return sigs, nil
}
