package soundftp

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// LogEntry is one line of the operation log.
type LogEntry struct {
	Message string
	Time    time.Time
}

// String formats the entry as "15:04:05.000 message".
func (e LogEntry) String() string {
	return e.Time.Format("15:04:05.000") + " " + e.Message
}

// OperationLog is the append-only trail of every operation a Session
// attempted. It is safe for concurrent use and never evicts entries.
type OperationLog struct {
	mu      sync.Mutex
	entries []LogEntry
	now     func() time.Time
}

// NewOperationLog returns an empty log.
func NewOperationLog() *OperationLog {
	return &OperationLog{now: time.Now}
}

// Record appends message with the current time.
func (l *OperationLog) Record(message string) LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := LogEntry{Message: message, Time: l.now()}
	l.entries = append(l.entries, e)
	return e
}

// Entries returns a copy of the log in insertion order.
func (l *OperationLog) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *OperationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// WriteTo writes one entry per line to w.
func (l *OperationLog) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, e := range l.Entries() {
		n, err := fmt.Fprintln(w, e.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
