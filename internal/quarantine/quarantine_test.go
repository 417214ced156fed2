package quarantine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	records, err := storage.NewBoltDB(filepath.Join(t.TempDir(), "records.db"))
	if err != nil {
		t.Fatalf("failed to open record store: %v", err)
	}
	t.Cleanup(func() { records.Close(context.Background()) })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := NewStore(filepath.Join(t.TempDir(), "quarantine"), records, logger)
	if err != nil {
		t.Fatalf("failed to create quarantine store: %v", err)
	}
	return s
}

func writeTestFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIsolateRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	path := writeTestFile(t, []byte("malicious payload"))
	originalHash, err := Digest(path)
	if err != nil {
		t.Fatal(err)
	}

	item, err := s.Isolate(ctx, path, "Test-Threat")
	if err != nil {
		t.Fatalf("isolate failed: %v", err)
	}

	if item.FileHash != originalHash {
		t.Errorf("recorded hash mismatch")
	}
	if _, err := os.Lstat(path); !os.IsNotExist(err) {
		t.Error("source file should no longer exist after isolate")
	}
	if _, err := os.Lstat(item.QuarantinePath); err != nil {
		t.Errorf("quarantined file missing: %v", err)
	}

	restored, err := s.Restore(ctx, item.ID)
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored != path {
		t.Errorf("restored to %s, expected %s", restored, path)
	}

	restoredHash, err := Digest(path)
	if err != nil {
		t.Fatal(err)
	}
	if restoredHash != originalHash {
		t.Error("restored content differs from original")
	}
	if _, err := os.Lstat(item.QuarantinePath); !os.IsNotExist(err) {
		t.Error("quarantine path should be empty after restore")
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("record should be removed after restore, got %d", len(items))
	}
}

func TestIsolateMissingSource(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Isolate(context.Background(), filepath.Join(t.TempDir(), "gone"), "x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRestoreUnknownIDLeavesSetUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	path := writeTestFile(t, []byte("content"))
	if _, err := s.Isolate(ctx, path, "x"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Restore(ctx, "nope"); !errors.Is(err, ErrNotFoundInQuarantine) {
		t.Errorf("expected ErrNotFoundInQuarantine, got %v", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFoundInQuarantine) {
		t.Errorf("expected ErrNotFoundInQuarantine, got %v", err)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("quarantine set changed: %d items", len(items))
	}
}

func TestRestoreDestinationOccupied(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	path := writeTestFile(t, []byte("content"))
	item, err := s.Isolate(ctx, path, "x")
	if err != nil {
		t.Fatal(err)
	}

	// Occupy the original location.
	if err := os.WriteFile(path, []byte("squatter"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Restore(ctx, item.ID); !errors.Is(err, ErrDestinationOccupied) {
		t.Fatalf("expected ErrDestinationOccupied, got %v", err)
	}

	// The occupant and the quarantined copy are both intact.
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "squatter" {
		t.Error("occupant was disturbed")
	}
	if _, err := os.Lstat(item.QuarantinePath); err != nil {
		t.Error("quarantined file was disturbed")
	}
}

func TestIsolateRefusesOccupiedSlot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	path := writeTestFile(t, []byte("payload"))
	hash, err := Digest(path)
	if err != nil {
		t.Fatal(err)
	}

	// Plant orphaned files at every slot the isolation could derive in
	// the next few seconds, simulating a move whose record append
	// failed earlier.
	now := time.Now().Unix()
	for i := int64(0); i < 3; i++ {
		orphan := filepath.Join(s.Dir(), fmt.Sprintf("%s_%d", hash[:16], now+i))
		if err := os.WriteFile(orphan, []byte("orphan"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Isolate(ctx, path, "x"); !errors.Is(err, ErrInternalInconsistency) {
		t.Fatalf("expected ErrInternalInconsistency, got %v", err)
	}

	// The source and the orphan are both untouched.
	if _, err := os.Lstat(path); err != nil {
		t.Errorf("source file was disturbed: %v", err)
	}
	orphan := filepath.Join(s.Dir(), fmt.Sprintf("%s_%d", hash[:16], now))
	data, err := os.ReadFile(orphan)
	if err != nil || string(data) != "orphan" {
		t.Error("orphaned quarantine file was overwritten")
	}
}

func TestRestoreSurfacesDestinationStatFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	base := t.TempDir()
	sub := filepath.Join(base, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(sub, "sample.bin")
	if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
		t.Fatal(err)
	}

	item, err := s.Isolate(ctx, path, "x")
	if err != nil {
		t.Fatal(err)
	}

	// Replace the parent directory with a regular file: the destination
	// stat now fails with something other than not-exist.
	if err := os.Remove(sub); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sub, []byte("in the way"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = s.Restore(ctx, item.ID)
	if err == nil {
		t.Fatal("restore should fail when the destination cannot be stat'd")
	}
	if errors.Is(err, ErrDestinationOccupied) || errors.Is(err, ErrNotFoundInQuarantine) {
		t.Errorf("stat failure misclassified: %v", err)
	}

	// The quarantined copy and its record are intact.
	if _, err := os.Lstat(item.QuarantinePath); err != nil {
		t.Errorf("quarantined file was disturbed: %v", err)
	}
	items, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Errorf("record should remain, got %d items", len(items))
	}
}

func TestDeleteRemovesFileAndRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	path := writeTestFile(t, []byte("content"))
	item, err := s.Isolate(ctx, path, "x")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, item.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := os.Lstat(item.QuarantinePath); !os.IsNotExist(err) {
		t.Error("quarantined file should be gone")
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Errorf("record should be gone, got %d items", len(items))
	}
}

func TestDistinctContentYieldsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := writeTestFile(t, []byte("content one"))
	second := writeTestFile(t, []byte("content two"))

	// Back-to-back isolations land within the same timestamp
	// granularity; hash-derived uniqueness must still hold.
	itemA, err := s.Isolate(ctx, first, "x")
	if err != nil {
		t.Fatal(err)
	}
	itemB, err := s.Isolate(ctx, second, "x")
	if err != nil {
		t.Fatal(err)
	}

	if itemA.ID == itemB.ID {
		t.Errorf("distinct content produced identical ids: %s", itemA.ID)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "records.db")
	qDir := filepath.Join(t.TempDir(), "quarantine")
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	records, err := storage.NewBoltDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewStore(qDir, records, logger)
	if err != nil {
		t.Fatal(err)
	}

	path := writeTestFile(t, []byte("durable"))
	item, err := s.Isolate(ctx, path, "Test-Threat")
	if err != nil {
		t.Fatal(err)
	}
	records.Close(ctx)

	reopened, err := storage.NewBoltDB(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close(ctx)

	s2, err := NewStore(qDir, reopened, logger)
	if err != nil {
		t.Fatal(err)
	}
	items, err := s2.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("record did not survive reopen: %+v", items)
	}
}
