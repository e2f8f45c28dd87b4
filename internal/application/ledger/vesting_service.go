package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var errReleaseRecorded = errors.New("vesting: tick already recorded")

// VestingService funds schedules and runs release ticks
type VestingService struct {
	deps Deps
}

// NewVestingService creates a VestingService
func NewVestingService(deps Deps) *VestingService {
	return &VestingService{deps: deps.withDefaults()}
}

// Fund locks an amount into the account's vesting schedule, creating the
// schedule on first funding.
func (s *VestingService) Fund(ctx context.Context, admin ledger.AdminCapability, accountID uuid.UUID, amount decimal.Decimal) (*VestingDTO, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}

	var dto VestingDTO
	err := retryOnConflict(ctx, s.deps.Logger, "fund_vesting", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			account, err := repos.Accounts().FindByIDForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			schedule, created, err := s.loadOrCreate(ctx, repos, accountID)
			if err != nil {
				return err
			}
			if err := schedule.Fund(amount); err != nil {
				return err
			}
			if err := account.LockForVesting(amount); err != nil {
				return err
			}
			if created {
				err = repos.Vesting().Create(ctx, schedule)
			} else {
				err = repos.Vesting().Save(ctx, schedule)
			}
			if err != nil {
				return err
			}
			if err := repos.Accounts().Save(ctx, account); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, account, schedule); err != nil {
				return err
			}
			dto = ToVestingDTO(schedule, nil)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Vesting funded",
		zap.String("account_id", accountID.String()),
		zap.String("amount", amount.String()),
		zap.String("admin_id", admin.AdminID().String()))
	return &dto, nil
}

func (s *VestingService) loadOrCreate(ctx context.Context, repos TransactionalRepositories, accountID uuid.UUID) (*ledger.VestingSchedule, bool, error) {
	schedule, err := repos.Vesting().FindByAccountForUpdate(ctx, accountID)
	if err == nil {
		return schedule, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}
	schedule, err = ledger.NewVestingSchedule(accountID, s.deps.Config.Vesting, s.deps.Now())
	if err != nil {
		return nil, false, err
	}
	return schedule, true, nil
}

// Tick runs one release for the account if it is due. It returns nil when
// nothing was released. A tick index already recorded is never released twice.
func (s *VestingService) Tick(ctx context.Context, accountID uuid.UUID) (*ledger.VestingRelease, error) {
	var release *ledger.VestingRelease
	err := retryOnConflict(ctx, s.deps.Logger, "vesting_tick", s.deps.Config.MaxCreditAttempts, func() error {
		release = nil
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			schedule, err := repos.Vesting().FindByAccountForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			r, err := schedule.Tick(s.deps.Now())
			if err != nil || r == nil {
				return err
			}
			if err := repos.Vesting().RecordRelease(ctx, *r); err != nil {
				if errors.Is(err, shared.ErrAlreadyExists) {
					return errReleaseRecorded
				}
				return err
			}
			if err := repos.Vesting().Save(ctx, schedule); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, schedule); err != nil {
				return err
			}
			release = r
			return nil
		})
	})
	if errors.Is(err, errReleaseRecorded) {
		s.deps.Logger.Warn("Vesting tick already recorded",
			zap.String("account_id", accountID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if release != nil {
		s.deps.Metrics.RecordVestingRelease(ctx, release.Amount)
	}
	return release, nil
}

// SweepResult summarizes one RunDueReleases pass
type SweepResult struct {
	Checked  int
	Released int
	Failed   int
	Amount   decimal.Decimal
}

// RunDueReleases ticks every schedule due at the current time, up to limit.
// Individual failures are logged and do not stop the sweep.
func (s *VestingService) RunDueReleases(ctx context.Context, limit int) (SweepResult, error) {
	result := SweepResult{Amount: decimal.Zero}

	var due []ledger.VestingSchedule
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		due, err = repos.Vesting().ListDue(ctx, s.deps.Now(), limit)
		return err
	})
	if err != nil {
		return result, err
	}

	for _, schedule := range due {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++
		release, err := s.Tick(ctx, schedule.AccountID)
		if err != nil {
			result.Failed++
			s.deps.Logger.Error("Vesting tick failed",
				zap.String("account_id", schedule.AccountID.String()),
				zap.Error(err))
			continue
		}
		if release != nil {
			result.Released++
			result.Amount = result.Amount.Add(release.Amount)
		}
	}
	return result, nil
}

// Get returns the account's schedule and its release history
func (s *VestingService) Get(ctx context.Context, accountID uuid.UUID) (*VestingDTO, error) {
	var dto VestingDTO
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		schedule, err := repos.Vesting().FindByAccount(ctx, accountID)
		if err != nil {
			return err
		}
		releases, err := repos.Vesting().ListReleases(ctx, accountID)
		if err != nil {
			return err
		}
		dto = ToVestingDTO(schedule, releases)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &dto, nil
}
