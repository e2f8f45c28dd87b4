package persistence

import (
	"context"
	"time"

	"github.com/mxi/presale/internal/infrastructure/persistence/models"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"gorm.io/gorm"
)

// LedgerSnapshots reads backlog counts for the periodic ledger gauges
type LedgerSnapshots struct {
	db *gorm.DB
}

// NewLedgerSnapshots creates a LedgerSnapshots
func NewLedgerSnapshots(db *gorm.DB) *LedgerSnapshots {
	return &LedgerSnapshots{db: db}
}

// CountPaymentsByStatus returns the number of payment references per status
func (s *LedgerSnapshots) CountPaymentsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&models.PaymentReferenceModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// CountOpenVerifications returns verification requests awaiting a decision
func (s *LedgerSnapshots) CountOpenVerifications(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.VerificationRequestModel{}).
		Where("status IN ?", openVerificationStatuses).
		Count(&count).Error
	return count, err
}

// CountDueVestingSchedules returns schedules with a tick due at now
func (s *LedgerSnapshots) CountDueVestingSchedules(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.VestingScheduleModel{}).
		Where("next_release_at <= ? AND locked_at_start > 0 AND released_amount < locked_at_start", now).
		Count(&count).Error
	return count, err
}

var _ telemetry.LedgerSnapshotProvider = (*LedgerSnapshots)(nil)
