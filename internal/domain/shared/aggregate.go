package shared

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	IncrementVersion()
	AddDomainEvent(event DomainEvent)
	GetDomainEvents() []DomainEvent
	ClearDomainEvents()
}

// BaseAggregateRoot provides the version counter and pending event list
// shared by every ledger aggregate.
type BaseAggregateRoot struct {
	BaseEntity
	Version          int
	persistedVersion int
	domainEvents     []DomainEvent
}

// GetVersion returns the aggregate version for optimistic locking
func (a *BaseAggregateRoot) GetVersion() int {
	return a.Version
}

// IncrementVersion bumps the version and the update timestamp
func (a *BaseAggregateRoot) IncrementVersion() {
	a.Version++
	a.Touch()
}

// RestoreVersion sets the version read from storage
func (a *BaseAggregateRoot) RestoreVersion(v int) {
	a.Version = v
	a.persistedVersion = v
}

// PersistedVersion is the version last read from or written to storage.
// Repositories compare against it when saving.
func (a *BaseAggregateRoot) PersistedVersion() int {
	return a.persistedVersion
}

// MarkPersisted records that the current version has been stored
func (a *BaseAggregateRoot) MarkPersisted() {
	a.persistedVersion = a.Version
}

// AddDomainEvent adds a domain event to be published
func (a *BaseAggregateRoot) AddDomainEvent(event DomainEvent) {
	a.domainEvents = append(a.domainEvents, event)
}

// GetDomainEvents returns all pending domain events
func (a *BaseAggregateRoot) GetDomainEvents() []DomainEvent {
	return a.domainEvents
}

// ClearDomainEvents clears the pending domain events
func (a *BaseAggregateRoot) ClearDomainEvents() {
	a.domainEvents = nil
}

// NewBaseAggregateRoot creates a new base aggregate root at version 1
func NewBaseAggregateRoot() BaseAggregateRoot {
	return BaseAggregateRoot{
		BaseEntity:   NewBaseEntity(),
		Version:      1,
		domainEvents: make([]DomainEvent, 0),
	}
}
