package engine

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guardix/guardix/internal/models"
)

// scanState is the shared mutable state of one scan: the cooperative
// cancellation flag and the counters observers read while the scan is
// in flight. It is reset by the coordinator on every start.
type scanState struct {
	cancelled    atomic.Bool
	filesScanned atomic.Uint64
	threatsFound atomic.Uint64
}

// Scanner walks the configured roots, matches file contents against a
// signature snapshot and emits a typed event stream. It runs as a
// single dedicated worker per scan; it does not parallelize file
// scanning itself.
type Scanner struct {
	logger *logrus.Logger
}

// NewScanner returns a Scanner logging through the given logger.
func NewScanner(logger *logrus.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Run executes one scan to its terminal event. The emit callback
// receives every event in order; exactly one terminal event (completed
// or cancelled) is emitted, and nothing after it.
func (s *Scanner) Run(cfg models.ScanConfig, sigs []models.ThreatSignature, st *scanState, emit func(ScanEvent)) {
	emit(ScanEvent{Type: EventStarted})

	files := s.enumerate(cfg, st)
	total := len(files)

	s.logger.WithFields(logrus.Fields{
		"scan_type":  cfg.ScanType,
		"file_count": total,
		"signatures": len(sigs),
	}).Info("Scan enumeration complete")

	for i, path := range files {
		if st.cancelled.Load() {
			emit(ScanEvent{Type: EventCancelled})
			return
		}

		s.scanFile(path, sigs, cfg.MaxFileSize, st, emit)
		st.filesScanned.Add(1)
		emit(ScanEvent{Type: EventProgress, Current: i + 1, Total: total})
	}

	if st.cancelled.Load() {
		emit(ScanEvent{Type: EventCancelled})
		return
	}
	emit(ScanEvent{
		Type:         EventCompleted,
		FilesScanned: st.filesScanned.Load(),
		ThreatsFound: st.threatsFound.Load(),
	})
}

// enumerate collects the candidate files under the configured roots.
// Symbolic links are never followed; only regular files passing the
// size, extension and path filters are included. Traversal aborts
// mid-directory as soon as cancellation is observed.
func (s *Scanner) enumerate(cfg models.ScanConfig, st *scanState) []string {
	var files []string

	for _, root := range cfg.TargetPaths {
		if st.cancelled.Load() {
			break
		}

		info, err := os.Lstat(root)
		if err != nil {
			s.logger.WithError(err).WithField("path", root).Warn("Skipping unreadable scan root")
			continue
		}

		if info.Mode().IsRegular() {
			if includeFile(cfg, root, info.Size()) {
				files = append(files, root)
			}
			continue
		}
		if !info.IsDir() {
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if st.cancelled.Load() {
				return fs.SkipAll
			}
			if err != nil {
				// Enumeration integrity over per-entry resilience:
				// unreadable entries are skipped, not fatal.
				return nil
			}
			if d.IsDir() {
				if excludedPath(cfg, path) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			if includeFile(cfg, path, fi.Size()) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			s.logger.WithError(err).WithField("path", root).Warn("Directory walk aborted")
		}
	}

	return files
}

// scanFile reads one file and searches for each signature pattern in
// snapshot order. The first match wins: one ThreatFound per file at
// most, remaining signatures are not checked. Files that cannot be
// opened or read are treated as clean.
func (s *Scanner) scanFile(path string, sigs []models.ThreatSignature, maxSize int64, st *scanState, emit func(ScanEvent)) {
	content, err := readFileCapped(path, maxSize)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Debug("Skipping unreadable file")
		return
	}

	for _, sig := range sigs {
		if len(sig.Pattern) == 0 {
			continue
		}
		off := bytes.Index(content, sig.Pattern)
		if off < 0 {
			continue
		}

		st.threatsFound.Add(1)
		emit(ScanEvent{
			Type: EventThreatFound,
			Threat: &models.DetectedThreat{
				Signature: sig,
				FilePath:  path,
				Offset:    int64(off),
				Timestamp: time.Now(),
			},
		})
		return
	}
}

// readFileCapped reads at most maxSize bytes (unbounded when
// maxSize <= 0), keeping the read within the size filter even if the
// file grew after enumeration.
func readFileCapped(path string, maxSize int64) ([]byte, error) {
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

// includeFile applies the size, extension and path filters.
func includeFile(cfg models.ScanConfig, path string, size int64) bool {
	if cfg.MaxFileSize > 0 && size > cfg.MaxFileSize {
		return false
	}
	if excludedPath(cfg, path) {
		return false
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, excluded := range cfg.ExcludedExtensions {
		if ext == strings.ToLower(strings.TrimPrefix(excluded, ".")) {
			return false
		}
	}
	return true
}

// excludedPath reports whether path lies under one of the excluded
// path prefixes.
func excludedPath(cfg models.ScanConfig, path string) bool {
	for _, excluded := range cfg.ExcludedPaths {
		if excluded == "" {
			continue
		}
		if path == excluded || strings.HasPrefix(path, strings.TrimSuffix(excluded, string(os.PathSeparator))+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
