package engine

import "github.com/guardix/guardix/internal/models"

// EventType identifies one kind of scan event.
type EventType string

const (
	EventStarted     EventType = "started"
	EventProgress    EventType = "progress"
	EventThreatFound EventType = "threat_found"
	EventCompleted   EventType = "completed"
	EventError       EventType = "error"
	EventCancelled   EventType = "cancelled"
)

// ScanEvent is one entry of a scan's ordered event stream. Completed
// and Cancelled are terminal: no event follows them and the stream is
// closed after the terminal event has been delivered.
type ScanEvent struct {
	Type EventType `json:"type"`

	// Progress
	Current int `json:"current,omitempty"`
	Total   int `json:"total,omitempty"`

	// ThreatFound
	Threat *models.DetectedThreat `json:"threat,omitempty"`

	// Completed
	FilesScanned uint64 `json:"files_scanned,omitempty"`
	ThreatsFound uint64 `json:"threats_found,omitempty"`

	// Error
	Message string `json:"message,omitempty"`
}

// forwardEvents bridges the scan worker to its consumer through an
// elastic buffer: the worker never blocks on a slow consumer, events
// are neither dropped nor reordered, and done runs after the last
// event has been handed over, before the out channel is closed.
func forwardEvents(in <-chan ScanEvent, out chan<- ScanEvent, done func()) {
	var queue []ScanEvent

	for in != nil || len(queue) > 0 {
		var sendCh chan<- ScanEvent
		var head ScanEvent
		if len(queue) > 0 {
			sendCh = out
			head = queue[0]
		}

		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, ev)
		case sendCh <- head:
			queue = queue[1:]
		}
	}

	if done != nil {
		done()
	}
	close(out)
}
