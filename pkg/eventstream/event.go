// Package eventstream defines the session events emitted by the proxy and the
// Publisher interface that transports them.
package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeSessionClosed is emitted after a stream session closes.
	EventTypeSessionClosed = "ollamaproxy.session.closed"

	// SourceName identifies the proxy as the event producer.
	SourceName = "ollamaproxy"
)

// SessionClosedEvent is a transport-neutral event payload for a closed
// stream session.
type SessionClosedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Session       SessionMeta `json:"session"`
	Request       RequestMeta `json:"request"`
}

// EventSource identifies the producer of the event.
type EventSource struct {
	Service  string `json:"service"`
	Version  string `json:"version"`
	Upstream string `json:"upstream,omitempty"`
}

// SessionMeta describes how the session went.
type SessionMeta struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	Outcome   string `json:"outcome"`
	Records   int    `json:"records"`
	Malformed int    `json:"malformed"`
	Error     string `json:"error,omitempty"`
}

// RequestMeta captures request lifecycle metadata for the event.
type RequestMeta struct {
	Path        string    `json:"path,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
}

// NewSessionClosedEvent stamps a new event with a fresh id and the current
// time. Callers fill in Source, Session and Request.
func NewSessionClosedEvent() *SessionClosedEvent {
	return &SessionClosedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeSessionClosed,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
	}
}
