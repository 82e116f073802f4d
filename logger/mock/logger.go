package mocklogger

import (
	"sync"

	"github.com/hugolhafner/go-camus/logger"
)

var _ logger.Logger = (*MockLogger)(nil)

type LogEntry struct {
	Level   logger.LogLevel
	Message string
	KV      []any
}

type journal struct {
	mu      sync.Mutex
	entries []LogEntry
}

// MockLogger records every entry; loggers derived via With share one journal
type MockLogger struct {
	journal *journal
	fields  []any
}

func New() *MockLogger {
	return &MockLogger{journal: &journal{}}
}

func (m *MockLogger) Log(level logger.LogLevel, msg string, kv ...any) {
	merged := make([]any, 0, len(m.fields)+len(kv))
	merged = append(merged, m.fields...)
	merged = append(merged, kv...)

	m.journal.mu.Lock()
	defer m.journal.mu.Unlock()
	m.journal.entries = append(
		m.journal.entries, LogEntry{
			Level:   level,
			Message: msg,
			KV:      merged,
		},
	)
}

// Entries returns a snapshot of everything logged so far
func (m *MockLogger) Entries() []LogEntry {
	m.journal.mu.Lock()
	defer m.journal.mu.Unlock()

	out := make([]LogEntry, len(m.journal.entries))
	copy(out, m.journal.entries)
	return out
}

func (m *MockLogger) Level() logger.LogLevel {
	return logger.DebugLevel
}

func (m *MockLogger) With(kv ...any) logger.Logger {
	fields := make([]any, 0, len(m.fields)+len(kv))
	fields = append(fields, m.fields...)
	fields = append(fields, kv...)
	return &MockLogger{journal: m.journal, fields: fields}
}

func (m *MockLogger) Debug(msg string, kv ...any) {
	m.Log(logger.DebugLevel, msg, kv...)
}

func (m *MockLogger) Info(msg string, kv ...any) {
	m.Log(logger.InfoLevel, msg, kv...)
}

func (m *MockLogger) Warn(msg string, kv ...any) {
	m.Log(logger.WarnLevel, msg, kv...)
}

func (m *MockLogger) Error(msg string, kv ...any) {
	m.Log(logger.ErrorLevel, msg, kv...)
}
