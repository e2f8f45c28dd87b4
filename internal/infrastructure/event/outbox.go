package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRecord is the outbox_events row
type OutboxRecord struct {
	ID            uuid.UUID           `gorm:"type:uuid;primaryKey"`
	EventID       uuid.UUID           `gorm:"type:uuid;not null;uniqueIndex"`
	EventType     string              `gorm:"type:varchar(64);not null"`
	AggregateID   uuid.UUID           `gorm:"type:uuid;not null"`
	AggregateType string              `gorm:"type:varchar(64);not null"`
	Payload       []byte              `gorm:"type:jsonb;not null"`
	Status        shared.OutboxStatus `gorm:"type:varchar(20);not null;index:idx_outbox_status_created,priority:1"`
	RetryCount    int                 `gorm:"not null;default:0"`
	MaxRetries    int                 `gorm:"not null;default:5"`
	LastError     string              `gorm:"type:text"`
	NextRetryAt   *time.Time          `gorm:"index"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (OutboxRecord) TableName() string { return "outbox_events" }

func (m *OutboxRecord) toDomain() *shared.OutboxEntry {
	return &shared.OutboxEntry{
		ID:            m.ID,
		EventID:       m.EventID,
		EventType:     m.EventType,
		AggregateID:   m.AggregateID,
		AggregateType: m.AggregateType,
		Payload:       m.Payload,
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		MaxRetries:    m.MaxRetries,
		LastError:     m.LastError,
		NextRetryAt:   m.NextRetryAt,
		ProcessedAt:   m.ProcessedAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func outboxRecordFrom(e *shared.OutboxEntry) *OutboxRecord {
	return &OutboxRecord{
		ID:            e.ID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Payload:       e.Payload,
		Status:        e.Status,
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func toDomainEntries(records []OutboxRecord) []*shared.OutboxEntry {
	out := make([]*shared.OutboxEntry, len(records))
	for i := range records {
		out[i] = records[i].toDomain()
	}
	return out
}

// GormOutboxRepository implements shared.OutboxRepository
type GormOutboxRepository struct {
	db *gorm.DB
}

func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

func (r *GormOutboxRepository) Save(ctx context.Context, entries ...*shared.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	records := make([]*OutboxRecord, len(entries))
	for i, e := range entries {
		records[i] = outboxRecordFrom(e)
	}
	return r.db.WithContext(ctx).Create(records).Error
}

func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]*shared.OutboxEntry, error) {
	var records []OutboxRecord
	err := r.db.WithContext(ctx).
		Where("status = ?", shared.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	return toDomainEntries(records), err
}

func (r *GormOutboxRepository) FindRetryable(ctx context.Context, before time.Time, limit int) ([]*shared.OutboxEntry, error) {
	var records []OutboxRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at <= ?", shared.OutboxStatusFailed, before).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&records).Error
	return toDomainEntries(records), err
}

// MarkProcessing claims the pending or failed entries among ids. Rows locked
// by a concurrent processor are skipped.
func (r *GormOutboxRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*shared.OutboxEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []OutboxRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("id IN ? AND status IN ?", ids, []shared.OutboxStatus{shared.OutboxStatusPending, shared.OutboxStatusFailed}).
			Find(&records).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		claimed := make([]uuid.UUID, len(records))
		now := time.Now().UTC()
		for i := range records {
			claimed[i] = records[i].ID
			records[i].Status = shared.OutboxStatusProcessing
			records[i].UpdatedAt = now
		}
		return tx.Model(&OutboxRecord{}).
			Where("id IN ?", claimed).
			Updates(map[string]any{"status": shared.OutboxStatusProcessing, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainEntries(records), nil
}

func (r *GormOutboxRepository) Update(ctx context.Context, entry *shared.OutboxEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(outboxRecordFrom(entry)).Error
}

func (r *GormOutboxRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", shared.OutboxStatusSent, before).
		Delete(&OutboxRecord{})
	return result.RowsAffected, result.Error
}

func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[shared.OutboxStatus]int64, error) {
	var rows []struct {
		Status shared.OutboxStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&OutboxRecord{}).
		Select("status, count(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[shared.OutboxStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ResetDead puts a dead-lettered entry back in the pending queue
func (r *GormOutboxRepository) ResetDead(ctx context.Context, id uuid.UUID) error {
	var record OutboxRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shared.ErrNotFound
		}
		return err
	}
	entry := record.toDomain()
	if err := entry.ResetForRetry(); err != nil {
		return shared.NewDomainError(shared.CodeInvalidState, err.Error())
	}
	return r.Update(ctx, entry)
}

var _ shared.OutboxRepository = (*GormOutboxRepository)(nil)

// OutboxRecorder writes domain events to the outbox inside the caller's
// transaction.
type OutboxRecorder struct {
	tx         *gorm.DB
	serializer *EventSerializer
}

// NewOutboxRecorder binds a recorder to tx
func NewOutboxRecorder(tx *gorm.DB, serializer *EventSerializer) *OutboxRecorder {
	return &OutboxRecorder{tx: tx, serializer: serializer}
}

func (r *OutboxRecorder) Record(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	entries := make([]*shared.OutboxEntry, 0, len(events))
	for _, ev := range events {
		payload, err := r.serializer.Serialize(ev)
		if err != nil {
			return err
		}
		entries = append(entries, shared.NewOutboxEntry(ev, payload))
	}
	return NewGormOutboxRepository(r.tx).Save(ctx, entries...)
}
