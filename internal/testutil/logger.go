package testutil

import (
	"sync"
)

// Entry is a single recorded log call.
type Entry struct {
	Level string
	Msg   string
	Args  []any
}

// Field returns the value logged under key, or nil.
func (e Entry) Field(key string) any {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1]
		}
	}
	return nil
}

// RecordingLogger captures log calls for assertions. Safe for concurrent use.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecordingLogger creates an empty recorder.
func NewRecordingLogger() *RecordingLogger { return &RecordingLogger{} }

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Msg: msg, Args: append([]any(nil), args...)})
}

// Debug records a debug entry.
func (l *RecordingLogger) Debug(msg string, args ...any) { l.record("DEBUG", msg, args) }

// Info records an info entry.
func (l *RecordingLogger) Info(msg string, args ...any) { l.record("INFO", msg, args) }

// Warn records a warning entry.
func (l *RecordingLogger) Warn(msg string, args ...any) { l.record("WARN", msg, args) }

// Error records an error entry.
func (l *RecordingLogger) Error(msg string, args ...any) { l.record("ERROR", msg, args) }

// Entries returns a snapshot of every recorded entry.
func (l *RecordingLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Find returns the entries with the given message.
func (l *RecordingLogger) Find(msg string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many entries carry msg.
func (l *RecordingLogger) Count(msg string) int { return len(l.Find(msg)) }
