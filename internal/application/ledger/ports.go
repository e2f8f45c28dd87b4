package ledger

import (
	"context"
	"time"

	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Metrics records ledger business counters
type Metrics interface {
	RecordCredit(ctx context.Context, outcome, source string, amount decimal.Decimal)
	RecordCreditFailure(ctx context.Context, source string)
	RecordSignal(ctx context.Context, outcome string)
	RecordCommission(ctx context.Context, level int, amount decimal.Decimal)
	RecordYieldClaim(ctx context.Context, claimed bool, amount decimal.Decimal)
	RecordVestingRelease(ctx context.Context, amount decimal.Decimal)
}

type nopMetrics struct{}

func (nopMetrics) RecordCredit(context.Context, string, string, decimal.Decimal) {}
func (nopMetrics) RecordCreditFailure(context.Context, string)                   {}
func (nopMetrics) RecordSignal(context.Context, string)                          {}
func (nopMetrics) RecordCommission(context.Context, int, decimal.Decimal)        {}
func (nopMetrics) RecordYieldClaim(context.Context, bool, decimal.Decimal)       {}
func (nopMetrics) RecordVestingRelease(context.Context, decimal.Decimal)         {}

// ProofUploader issues presigned URLs for verification proof images
type ProofUploader interface {
	PresignUpload(ctx context.Context, key, contentType string) (url string, expiresAt time.Time, err error)
	PresignDownload(ctx context.Context, key string) (url string, expiresAt time.Time, err error)
}

// ChangeNotifier delivers advisory change notices to realtime subscribers.
// Delivery is at-most-once; nothing may treat a notice as the system of record.
type ChangeNotifier interface {
	Notify(ctx context.Context, notice ChangeNotice) error
}

// ChangeNotice is the payload delivered by a ChangeNotifier
type ChangeNotice struct {
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	NewState   string    `json:"new_state"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NoticeFromEvent converts a domain event into a ChangeNotice when it carries one
func NoticeFromEvent(event shared.DomainEvent) (ChangeNotice, bool) {
	cn, ok := event.(shared.ChangeNotice)
	if !ok {
		return ChangeNotice{}, false
	}
	return ChangeNotice{
		EntityType: cn.EntityType(),
		EntityID:   cn.EntityID(),
		NewState:   cn.NewState(),
		EventType:  event.EventType(),
		OccurredAt: event.OccurredAt(),
	}, true
}
