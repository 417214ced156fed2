package realtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/guardix/guardix/internal/engine"
	"github.com/guardix/guardix/internal/models"
	"github.com/guardix/guardix/internal/notifications"
)

// Watcher provides best-effort realtime protection: files created or
// written under the watched paths are matched against the active
// signature snapshot. Inspection is rate limited and runs on bounded
// worker slots so an event storm cannot saturate the host; dropped
// events are an accepted trade-off of this layer, the on-demand scan
// remains authoritative.
type Watcher struct {
	signatures *engine.SignatureStore
	log        *notifications.Log
	notifier   *notifications.Notifier
	limiter    *rate.Limiter
	sem        *semaphore.Weighted
	paths      []string
	maxSize    int64
	logger     *logrus.Logger
}

// NewWatcher builds a watcher over the given paths.
func NewWatcher(cfg *Config, signatures *engine.SignatureStore, log *notifications.Log, notifier *notifications.Notifier, logger *logrus.Logger) *Watcher {
	return &Watcher{
		signatures: signatures,
		log:        log,
		notifier:   notifier,
		limiter:    rate.NewLimiter(cfg.EventsPerSecond, cfg.Burst),
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		paths:      cfg.WatchPaths,
		maxSize:    cfg.MaxFileSize,
		logger:     logger,
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	defer fw.Close()

	for _, path := range w.paths {
		if err := fw.Add(path); err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("Failed to watch path")
			continue
		}
		w.logger.WithField("path", path).Info("Realtime protection watching path")
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Realtime protection stopped")
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !w.limiter.Allow() {
				continue
			}
			if !w.sem.TryAcquire(1) {
				continue
			}
			go func(path string) {
				defer w.sem.Release(1)
				w.inspect(path)
			}(event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Filesystem watcher error")
		}
	}
}

// inspect matches one file against the signature snapshot. First
// match wins, mirroring the scan pipeline's per-file policy.
func (w *Watcher) inspect(path string) {
	info, err := os.Lstat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if w.maxSize > 0 && info.Size() > w.maxSize {
		return
	}

	content, err := readCapped(path, w.maxSize)
	if err != nil {
		w.logger.WithError(err).WithField("path", path).Debug("Realtime inspection skipped unreadable file")
		return
	}

	for _, sig := range w.signatures.Snapshot() {
		if len(sig.Pattern) == 0 {
			continue
		}
		off := bytes.Index(content, sig.Pattern)
		if off < 0 {
			continue
		}

		title := "Realtime threat detected"
		msg := fmt.Sprintf("%s found in %s (offset %d)", sig.Name, path, off)
		w.logger.WithFields(logrus.Fields{
			"path":      path,
			"signature": sig.Name,
			"offset":    off,
		}).Warn("Realtime threat detected")

		if w.log != nil {
			w.log.Append(title, msg, models.LevelWarning)
		}
		w.notifier.Send(title, msg)
		return
	}
}

func readCapped(path string, maxSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if maxSize > 0 {
		r = io.LimitReader(f, maxSize)
	}
	return io.ReadAll(r)
}
