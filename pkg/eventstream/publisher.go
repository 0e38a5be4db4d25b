package eventstream

import (
	"context"
	"errors"
)

// ErrNilSessionEvent is returned by publishers handed a nil event.
var ErrNilSessionEvent = errors.New("nil session event")

// Publisher delivers closed-session events to an event stream backend.
// Implementations must be safe for use by several workers at once.
type Publisher interface {
	PublishSession(ctx context.Context, event *SessionClosedEvent) error
	Close() error
}
