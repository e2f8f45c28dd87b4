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

var errAlreadyDistributed = errors.New("commission: contribution already distributed")

// GameEntryCommand reports a paid in-app game entry for commission
type GameEntryCommand struct {
	EntryID   uuid.UUID
	AccountID uuid.UUID
	Amount    decimal.Decimal
}

// CommissionService runs the referral commission waterfall
type CommissionService struct {
	deps Deps
}

// NewCommissionService creates a CommissionService
func NewCommissionService(deps Deps) *CommissionService {
	return &CommissionService{deps: deps.withDefaults()}
}

// Distribute credits up to three referrer levels for a contribution. It is
// idempotent per contribution ID: a second run for the same contribution
// returns no events and credits nothing.
func (s *CommissionService) Distribute(ctx context.Context, c ledger.Contribution) ([]CommissionEventDTO, error) {
	var created []*ledger.CommissionEvent
	err := retryOnConflict(ctx, s.deps.Logger, "distribute_commission", s.deps.Config.MaxCreditAttempts, func() error {
		created = nil
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			done, err := repos.Commissions().ExistsForContribution(ctx, c.ID)
			if err != nil {
				return err
			}
			if done {
				return errAlreadyDistributed
			}

			upline, err := repos.Referrals().Upline(ctx, c.AccountID)
			if err != nil {
				return err
			}
			events, err := s.deps.Config.Commission.PlanWaterfall(c, upline, s.deps.Now())
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return nil
			}

			if err := repos.Commissions().CreateBatch(ctx, events); err != nil {
				if errors.Is(err, shared.ErrAlreadyExists) {
					return errAlreadyDistributed
				}
				return err
			}

			aggregates := make([]shared.AggregateRoot, 0, len(events))
			for _, e := range events {
				referrer, err := repos.Accounts().FindByIDForUpdate(ctx, e.AccountID)
				if err != nil {
					return err
				}
				if err := referrer.CreditCommission(e.Amount); err != nil {
					return err
				}
				if err := repos.Accounts().Save(ctx, referrer); err != nil {
					return err
				}
				aggregates = append(aggregates, referrer)
			}
			if err := recordAll(ctx, repos, aggregates...); err != nil {
				return err
			}
			created = events
			return nil
		})
	})
	if errors.Is(err, errAlreadyDistributed) {
		s.deps.Logger.Debug("Commission already distributed",
			zap.String("contribution_id", c.ID.String()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dtos := make([]CommissionEventDTO, len(created))
	for i, e := range created {
		s.deps.Metrics.RecordCommission(ctx, e.Level, e.Amount)
		dtos[i] = ToCommissionEventDTO(e)
	}
	if len(created) > 0 {
		s.deps.Logger.Info("Commission distributed",
			zap.String("contribution_id", c.ID.String()),
			zap.String("scheme", string(c.Scheme)),
			zap.Int("levels", len(created)))
	}
	return dtos, nil
}

// DistributeGameCommission pays the games scheme for a game entry. Only
// trusted backends holding an admin capability may report entries.
func (s *CommissionService) DistributeGameCommission(ctx context.Context, admin ledger.AdminCapability, cmd GameEntryCommand) ([]CommissionEventDTO, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	return s.Distribute(ctx, ledger.Contribution{
		ID:        cmd.EntryID,
		AccountID: cmd.AccountID,
		Amount:    cmd.Amount,
		Scheme:    ledger.SchemeGames,
	})
}

// ListCommissions returns an account's commission events, newest first
func (s *CommissionService) ListCommissions(ctx context.Context, accountID uuid.UUID, filter shared.Filter) (*shared.Paginated[CommissionEventDTO], error) {
	var page *shared.Paginated[ledger.CommissionEvent]
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		page, err = repos.Commissions().ListByAccount(ctx, accountID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]CommissionEventDTO, len(page.Items))
	for i := range page.Items {
		items[i] = ToCommissionEventDTO(&page.Items[i])
	}
	result := shared.NewPaginated(items, page.Total, page.Page, page.PageSize)
	return &result, nil
}
