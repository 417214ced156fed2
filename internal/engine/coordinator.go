package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
	"github.com/guardix/guardix/internal/notifications"
)

// ErrScanAlreadyRunning is returned by Start while a scan is in
// flight. Exactly one scan may run process-wide at any time.
var ErrScanAlreadyRunning = errors.New("a scan is already in progress")

// Coordinator owns the scan lifecycle: the single-scan-at-a-time
// state machine, the shared counters, and the bridge from the scan
// worker to its consumer. Construct one per process and pass it to
// every component that starts or observes scans.
type Coordinator struct {
	signatures *SignatureStore
	scanner    *Scanner
	logger     *logrus.Logger

	// Optional sinks for user-facing scan lifecycle entries.
	notifications *notifications.Log
	notifier      *notifications.Notifier

	mu      sync.Mutex // guards the running check-and-set
	running atomic.Bool
	state   scanState
}

// NewCoordinator wires a coordinator to its signature store and
// notification sinks. Both sinks may be nil.
func NewCoordinator(signatures *SignatureStore, logger *logrus.Logger, log *notifications.Log, notifier *notifications.Notifier) *Coordinator {
	return &Coordinator{
		signatures:    signatures,
		scanner:       NewScanner(logger),
		logger:        logger,
		notifications: log,
		notifier:      notifier,
	}
}

// Start launches a scan and returns its ordered event stream. The
// stream carries exactly one terminal event and is closed after that
// event has been delivered; only then does the coordinator return to
// idle. Fails with ErrScanAlreadyRunning while a scan is in flight,
// without touching the in-flight scan's counters.
func (c *Coordinator) Start(cfg models.ScanConfig) (<-chan ScanEvent, error) {
	c.mu.Lock()
	if c.running.Load() {
		c.mu.Unlock()
		return nil, ErrScanAlreadyRunning
	}
	c.running.Store(true)
	c.state.cancelled.Store(false)
	c.state.filesScanned.Store(0)
	c.state.threatsFound.Store(0)
	c.mu.Unlock()

	snapshot := c.signatures.Snapshot()

	in := make(chan ScanEvent)
	out := make(chan ScanEvent)
	go forwardEvents(in, out, c.finish)

	go func() {
		c.logger.WithFields(logrus.Fields{
			"scan_type": cfg.ScanType,
			"roots":     cfg.TargetPaths,
		}).Info("Scan started")

		c.scanner.Run(cfg, snapshot, &c.state, func(ev ScanEvent) {
			c.observe(ev)
			in <- ev
		})
		close(in)
	}()

	return out, nil
}

// Cancel requests cooperative cancellation of the running scan. It is
// idempotent: repeated calls, or a call while idle, have no effect.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		c.state.cancelled.Store(true)
		c.logger.Info("Scan cancellation requested")
	}
}

// IsScanning reports whether a scan is in flight. Safe from any
// goroutine; never blocks on the scan.
func (c *Coordinator) IsScanning() bool {
	return c.running.Load()
}

// Progress returns the files-scanned and threats-found counters of
// the current scan, or of the last scan once it has finished.
func (c *Coordinator) Progress() (filesScanned, threatsFound uint64) {
	return c.state.filesScanned.Load(), c.state.threatsFound.Load()
}

func (c *Coordinator) finish() {
	c.running.Store(false)
	c.logger.Debug("Scan worker drained; coordinator idle")
}

// observe mirrors scan events into the notification log and the
// outbound notifier. Failures here must never disturb the scan.
func (c *Coordinator) observe(ev ScanEvent) {
	if c.notifications == nil {
		return
	}

	switch ev.Type {
	case EventThreatFound:
		title := "Threat detected"
		msg := fmt.Sprintf("%s found in %s (offset %d)",
			ev.Threat.Signature.Name, ev.Threat.FilePath, ev.Threat.Offset)
		c.notifications.Append(title, msg, levelFor(ev.Threat.Signature.Severity))
		if c.notifier != nil {
			c.notifier.Send(title, msg)
		}
	case EventCompleted:
		c.notifications.Append("Scan complete",
			fmt.Sprintf("%d files scanned, %d threats found", ev.FilesScanned, ev.ThreatsFound),
			models.LevelSuccess)
	case EventCancelled:
		c.notifications.Append("Scan cancelled", "The scan was cancelled before completion", models.LevelInfo)
	case EventError:
		c.notifications.Append("Scan error", ev.Message, models.LevelError)
	}
}

func levelFor(sev models.Severity) models.NotificationLevel {
	switch sev {
	case models.SeverityCritical:
		return models.LevelError
	case models.SeverityWarning:
		return models.LevelWarning
	default:
		return models.LevelInfo
	}
}
