package testutil

import (
	"context"
	"sync"

	"github.com/mxi/presale/internal/domain/shared"
)

// RecordingHandler is a shared.EventHandler that keeps every event it sees.
type RecordingHandler struct {
	mu         sync.Mutex
	eventTypes []string
	handled    []shared.DomainEvent
	err        error
}

// NewRecordingHandler subscribes to eventTypes.
func NewRecordingHandler(eventTypes ...string) *RecordingHandler {
	return &RecordingHandler{eventTypes: eventTypes}
}

// EventTypes returns the subscribed event types.
func (h *RecordingHandler) EventTypes() []string {
	return h.eventTypes
}

// Handle records event and returns the configured error.
func (h *RecordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

// Handled returns a copy of the recorded events.
func (h *RecordingHandler) Handled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]shared.DomainEvent, len(h.handled))
	copy(out, h.handled)
	return out
}

// Count returns how many events of eventType were recorded.
func (h *RecordingHandler) Count(eventType string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.handled {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// FailWith makes subsequent calls to Handle return err.
func (h *RecordingHandler) FailWith(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}
