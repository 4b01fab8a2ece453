// Package audit keeps a bounded in-memory trail of notable events, with an
// optional append-only JSONL file sink for offline review.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/novadex/wallet-layer/pkg/logger"
)

// Entry is one recorded event.
type Entry struct {
	Time     time.Time              `json:"time"`
	Event    string                 `json:"event"`
	Severity string                 `json:"severity"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// Log is a fixed-size ring of entries. Writes never block on the file sink's
// success; a failing sink is logged once per write and the ring keeps going.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool

	file *os.File
	log  *logger.Logger
	now  func() time.Time
}

// New builds a ring of the given capacity. filePath, when non-empty, is
// opened for appending JSONL records.
func New(capacity int, filePath string, log *logger.Logger) (*Log, error) {
	if capacity <= 0 {
		capacity = 1000
	}
	if log == nil {
		log = logger.NewDefault("audit")
	}
	l := &Log{
		entries: make([]Entry, capacity),
		log:     log,
		now:     time.Now,
	}
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, err
		}
		l.file = f
	}
	return l, nil
}

// Close releases the file sink.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Record appends an entry to the ring and the file sink.
func (l *Log) Record(event, severity string, details map[string]interface{}) {
	e := Entry{Time: l.now().UTC(), Event: event, Severity: severity, Details: details}

	l.mu.Lock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
	file := l.file
	l.mu.Unlock()

	if file != nil {
		line, err := json.Marshal(e)
		if err == nil {
			line = append(line, '\n')
			_, err = file.Write(line)
		}
		if err != nil {
			l.log.WithError(err).Warn("audit sink write failed")
		}
	}
}

// Tail returns up to n entries, newest first.
func (l *Log) Tail(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.full {
		size = len(l.entries)
	}
	if n <= 0 || n > size {
		n = size
	}

	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
