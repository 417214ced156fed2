package realtime

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/guardix/guardix/internal/engine"
	"github.com/guardix/guardix/internal/notifications"
)

func newTestWatcher(t *testing.T, dir string) (*Watcher, *notifications.Log) {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	signatures := engine.NewSignatureStore()
	signatures.Replace(engine.BuiltinSignatures())

	log := notifications.NewLog()
	cfg := &Config{
		WatchPaths:      []string{dir},
		EventsPerSecond: rate.Limit(100),
		Burst:           100,
		MaxConcurrent:   4,
	}
	return NewWatcher(cfg, signatures, log, nil, logger), log
}

func waitForNotification(t *testing.T, log *notifications.Log) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(log.List()) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no notification within deadline")
}

func TestWatcherDetectsCreatedThreat(t *testing.T) {
	dir := t.TempDir()
	w, log := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watcher time to register the path.
	time.Sleep(100 * time.Millisecond)

	pattern := engine.BuiltinSignatures()[0].Pattern
	if err := os.WriteFile(filepath.Join(dir, "dropped.bin"), pattern, 0o644); err != nil {
		t.Fatal(err)
	}

	waitForNotification(t, log)

	entries := log.List()
	if entries[0].Title != "Realtime threat detected" {
		t.Errorf("unexpected notification: %+v", entries[0])
	}
}

func TestWatcherIgnoresCleanFiles(t *testing.T) {
	dir := t.TempDir()
	w, log := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "clean.txt"), []byte("nothing to see"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Enough time for the event to be processed.
	time.Sleep(300 * time.Millisecond)

	if entries := log.List(); len(entries) != 0 {
		t.Errorf("clean file triggered notifications: %+v", entries)
	}
}

func TestInspectRespectsSizeCap(t *testing.T) {
	dir := t.TempDir()
	w, log := newTestWatcher(t, dir)
	w.maxSize = 8

	pattern := engine.BuiltinSignatures()[0].Pattern
	path := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(path, pattern, 0o644); err != nil {
		t.Fatal(err)
	}

	w.inspect(path)
	if entries := log.List(); len(entries) != 0 {
		t.Errorf("oversized file should be skipped: %+v", entries)
	}

	w.maxSize = 0
	w.inspect(path)
	if entries := log.List(); len(entries) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(entries))
	}
}
