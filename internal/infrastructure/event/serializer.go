package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
)

// EventSerializer encodes domain events as JSON and decodes them back into
// their registered concrete types.
type EventSerializer struct {
	mu        sync.RWMutex
	factories map[string]func() shared.DomainEvent
}

func NewEventSerializer() *EventSerializer {
	return &EventSerializer{factories: make(map[string]func() shared.DomainEvent)}
}

// NewLedgerEventSerializer returns a serializer that knows every ledger event
func NewLedgerEventSerializer() *EventSerializer {
	s := NewEventSerializer()
	s.Register(ledger.EventTypeAccountRegistered, func() shared.DomainEvent { return &ledger.AccountRegisteredEvent{} })
	s.Register(ledger.EventTypeAccountBalanceChanged, func() shared.DomainEvent { return &ledger.AccountBalanceChangedEvent{} })
	s.Register(ledger.EventTypePaymentStatusChanged, func() shared.DomainEvent { return &ledger.PaymentStatusChangedEvent{} })
	s.Register(ledger.EventTypePaymentCredited, func() shared.DomainEvent { return &ledger.PaymentCreditedEvent{} })
	s.Register(ledger.EventTypeVerificationStatusChanged, func() shared.DomainEvent { return &ledger.VerificationStatusChangedEvent{} })
	s.Register(ledger.EventTypeVestingReleased, func() shared.DomainEvent { return &ledger.VestingReleasedEvent{} })
	return s
}

// Register binds eventType to a constructor for its concrete type
func (s *EventSerializer) Register(eventType string, factory func() shared.DomainEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[eventType] = factory
}

func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	return json.Marshal(event)
}

func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	s.mu.RLock()
	factory, ok := s.factories[eventType]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	event := factory()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
	}
	return event, nil
}

func (s *EventSerializer) IsRegistered(eventType string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factories[eventType]
	return ok
}

// RegisteredTypes returns the registered event types in sorted order
func (s *EventSerializer) RegisteredTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, 0, len(s.factories))
	for t := range s.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
