// Package eventlog writes a structured JSONL stream of state-core events:
// session lifecycle, compactions, confirmation outcomes, operation tracking.
// It is the observability surface for the core; pure storage failures are
// recorded here and kept invisible to end users.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType classifies an event in the event stream.
type EventType string

const (
	EventSessionCreated  EventType = "session_created"
	EventSessionForked   EventType = "session_forked"
	EventSessionCleared  EventType = "session_cleared"
	EventSessionDeleted  EventType = "session_deleted"
	EventMessageAppended EventType = "message_appended"
	EventIndexRebuilt    EventType = "index_rebuilt"
	EventCompaction      EventType = "compaction"
	EventConfirmCreated  EventType = "confirmation_created"
	EventConfirmResolved EventType = "confirmation_resolved"
	EventConfirmExpired  EventType = "confirmation_expired"
	EventOpStarted       EventType = "operation_started"
	EventOpCancelled     EventType = "operation_cancelled"
	EventOpCompleted     EventType = "operation_completed"
	EventStorageError    EventType = "storage_error"
)

// Event is a single structured event in the event stream.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"ts"`
	Data      any       `json:"data,omitempty"`
}

// Logger writes structured JSONL events to a file. A nil *Logger is valid and
// discards everything, so components can take one without null checks.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// New creates an event logger writing to {dataDir}/events.jsonl.
func New(dataDir string) (*Logger, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", path, err)
	}
	return &Logger{
		file: f,
		enc:  json.NewEncoder(f),
		path: path,
	}, nil
}

// Log writes an event to the JSONL file.
func (l *Logger) Log(evtType EventType, data any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.enc.Encode(Event{
		Type:      evtType,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// Path returns the event log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close flushes and closes the event log file.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}
