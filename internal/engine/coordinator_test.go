package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/guardix/guardix/internal/models"
	"github.com/guardix/guardix/internal/notifications"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *notifications.Log) {
	t.Helper()
	store := NewSignatureStore()
	store.Replace(BuiltinSignatures())
	log := notifications.NewLog()
	return NewCoordinator(store, testLogger(), log, nil), log
}

func drain(ch <-chan ScanEvent) []ScanEvent {
	var events []ScanEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestCoordinatorSecondStartRejected(t *testing.T) {
	c, _ := newTestCoordinator(t)

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("clean"))

	// The stream is not drained yet, so the first scan stays in
	// flight until its terminal event has been delivered.
	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}

	if _, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}}); !errors.Is(err, ErrScanAlreadyRunning) {
		t.Fatalf("expected ErrScanAlreadyRunning, got %v", err)
	}
	if files, _ := c.Progress(); files > 1 {
		t.Errorf("rejected start must not touch in-flight counters, got %d", files)
	}

	drain(events)
	if c.IsScanning() {
		t.Error("coordinator should be idle after the stream closed")
	}
}

func TestCoordinatorRestartAfterCompletion(t *testing.T) {
	c, _ := newTestCoordinator(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("clean"))

	for i := 0; i < 2; i++ {
		events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
		if err != nil {
			t.Fatalf("start %d failed: %v", i, err)
		}
		all := drain(events)
		if all[len(all)-1].Type != EventCompleted {
			t.Fatalf("scan %d did not complete: %s", i, all[len(all)-1].Type)
		}
	}

	if files, threats := c.Progress(); files != 1 || threats != 0 {
		t.Errorf("counters should reflect the last scan: %d / %d", files, threats)
	}
}

func TestCoordinatorCountersReadableAfterCompletion(t *testing.T) {
	c, _ := newTestCoordinator(t)
	dir := t.TempDir()
	pattern := BuiltinSignatures()[0].Pattern
	writeFile(t, dir, "eicar.txt", pattern)
	writeFile(t, dir, "clean.txt", []byte("clean"))

	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	drain(events)

	files, threats := c.Progress()
	if files != 2 || threats != 1 {
		t.Errorf("expected 2 files / 1 threat, got %d / %d", files, threats)
	}
	if c.IsScanning() {
		t.Error("coordinator should be idle")
	}
}

func TestCoordinatorCancelInFlight(t *testing.T) {
	c, log := newTestCoordinator(t)

	dir := t.TempDir()
	for i := 0; i < 200; i++ {
		writeFile(t, dir, fmt.Sprintf("file-%03d.txt", i), []byte("clean content"))
	}

	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	c.Cancel()

	all := drain(events)
	last := all[len(all)-1]
	if last.Type != EventCancelled {
		t.Fatalf("terminal event should be cancelled, got %s", last.Type)
	}
	for _, ev := range all[:len(all)-1] {
		if ev.Type == EventCancelled || ev.Type == EventCompleted {
			t.Fatalf("terminal event %s delivered before the end of the stream", ev.Type)
		}
	}
	if c.IsScanning() {
		t.Error("coordinator should be idle after the stream closed")
	}

	entries := log.List()
	if len(entries) == 0 || entries[len(entries)-1].Title != "Scan cancelled" {
		t.Errorf("cancellation should be logged, got %+v", entries)
	}
}

func TestCoordinatorCancelWhenIdleIsNoop(t *testing.T) {
	c, _ := newTestCoordinator(t)
	c.Cancel()
	c.Cancel()

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("clean"))

	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	all := drain(events)
	if all[len(all)-1].Type != EventCompleted {
		t.Errorf("idle cancel must not poison the next scan, terminal: %s", all[len(all)-1].Type)
	}
}

func TestCoordinatorEventOrdering(t *testing.T) {
	c, _ := newTestCoordinator(t)
	dir := t.TempDir()
	writeFile(t, dir, "eicar.txt", BuiltinSignatures()[0].Pattern)

	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	all := drain(events)

	var types []EventType
	for _, ev := range all {
		types = append(types, ev.Type)
	}
	want := []EventType{EventStarted, EventThreatFound, EventProgress, EventCompleted}
	if len(types) != len(want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, types)
		}
	}
}

func TestCoordinatorAppendsNotifications(t *testing.T) {
	c, log := newTestCoordinator(t)
	dir := t.TempDir()
	writeFile(t, dir, "eicar.txt", BuiltinSignatures()[0].Pattern)

	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	drain(events)

	entries := log.List()
	if len(entries) != 2 {
		t.Fatalf("expected threat + completion notifications, got %d", len(entries))
	}
	if entries[0].Title != "Threat detected" {
		t.Errorf("unexpected first notification: %s", entries[0].Title)
	}
	if entries[1].Title != "Scan complete" || entries[1].Level != models.LevelSuccess {
		t.Errorf("unexpected second notification: %+v", entries[1])
	}
}

func TestCoordinatorSnapshotIsolationAcrossReplace(t *testing.T) {
	store := NewSignatureStore()
	store.Replace([]models.ThreatSignature{{Name: "Old", Pattern: []byte("OLDPATTERN")}})
	c := NewCoordinator(store, testLogger(), notifications.NewLog(), nil)

	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("has OLDPATTERN inside"))

	events, err := c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}

	// Replace while the scan is (potentially) in flight; the scan
	// keeps its snapshot either way.
	store.Replace([]models.ThreatSignature{{Name: "New", Pattern: []byte("NEWPATTERN")}})

	all := drain(events)
	threats := eventsOfType(all, EventThreatFound)
	if len(threats) != 1 || threats[0].Threat.Signature.Name != "Old" {
		t.Errorf("scan should use its snapshot, got %+v", threats)
	}

	// The next scan sees the replaced set.
	events, err = c.Start(models.ScanConfig{TargetPaths: []string{dir}})
	if err != nil {
		t.Fatal(err)
	}
	if threats := eventsOfType(drain(events), EventThreatFound); len(threats) != 0 {
		t.Errorf("new snapshot should not match old pattern: %+v", threats)
	}
}

func TestCoordinatorProgressNeverBlocks(t *testing.T) {
	c, _ := newTestCoordinator(t)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			c.IsScanning()
			c.Progress()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("read operations blocked")
	}
}
