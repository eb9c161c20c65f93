package testutil

import (
	"sync"

	"dms/internal/dms"
)

var _ dms.Logger = (*RecordingLogger)(nil)

// LogEntry is one line written through a RecordingLogger.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// Field returns the value logged under key, or nil.
func (e LogEntry) Field(key string) any {
	for i := 0; i+1 < len(e.Args); i += 2 {
		if k, ok := e.Args[i].(string); ok && k == key {
			return e.Args[i+1]
		}
	}
	return nil
}

// RecordingLogger keeps every warning and error. Debug and info lines are
// dropped. Safe for concurrent use.
type RecordingLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *RecordingLogger) Debug(string, ...any) {}
func (l *RecordingLogger) Info(string, ...any)  {}

func (l *RecordingLogger) Warn(msg string, args ...any) {
	l.record("warn", msg, args)
}

func (l *RecordingLogger) Error(msg string, args ...any) {
	l.record("error", msg, args)
}

func (l *RecordingLogger) record(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: append([]any(nil), args...)})
}

// Entries returns the recorded lines in order.
func (l *RecordingLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Find returns the first entry with the given message.
func (l *RecordingLogger) Find(msg string) (LogEntry, bool) {
	for _, e := range l.Entries() {
		if e.Msg == msg {
			return e, true
		}
	}
	return LogEntry{}, false
}
