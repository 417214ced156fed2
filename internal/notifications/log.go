package notifications

import (
	"sync"
	"time"

	"github.com/guardix/guardix/internal/models"
)

// Log is the append-only, monotonically-ordered list of user-facing
// events. Any component may append; the presentation layer reads.
// There is no size bound; callers needing bounded memory must apply
// retention themselves.
type Log struct {
	mu      sync.Mutex
	nextID  uint64
	entries []models.Notification
}

// NewLog returns an empty notification log.
func NewLog() *Log {
	return &Log{}
}

// Append assigns the next id and appends the entry. Ids are strictly
// increasing and never reused, even across Clear.
func (l *Log) Append(title, message string, level models.NotificationLevel) models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	n := models.Notification{
		ID:        l.nextID,
		Title:     title,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	}
	l.entries = append(l.entries, n)
	return n
}

// List returns an immutable snapshot of the log.
func (l *Log) List() []models.Notification {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Notification, len(l.entries))
	copy(out, l.entries)
	return out
}

// Clear empties the log. The id counter is not reset.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
