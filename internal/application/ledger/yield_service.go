package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// YieldService exposes yield accrual reads and claims
type YieldService struct {
	deps Deps
}

// NewYieldService creates a YieldService
func NewYieldService(deps Deps) *YieldService {
	return &YieldService{deps: deps.withDefaults()}
}

// GetUnclaimedYield evaluates the account's live yield at the current time
func (s *YieldService) GetUnclaimedYield(ctx context.Context, accountID uuid.UUID) (*YieldDTO, error) {
	var account *ledger.Account
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		account, err = repos.Accounts().FindByID(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	now := s.deps.Now()
	return &YieldDTO{
		AccountID:         account.ID,
		Unclaimed:         account.UnclaimedYield(now, s.deps.Config.Yield),
		Accumulated:       account.AccumulatedYield,
		RatePerMinute:     account.YieldRatePerMinute,
		LastCheckpoint:    account.LastYieldCheckpoint,
		UnmetRequirements: requirementNames(s.deps.Config.Requirements.UnmetForYieldClaim(account, now)),
		AsOf:              now,
	}, nil
}

// Claim snapshots the unclaimed yield into the accumulated balance. The row
// lock serializes concurrent claims for one account; unmet requirements are
// reported as ErrRequirementsNotMet with nothing written.
func (s *YieldService) Claim(ctx context.Context, accountID uuid.UUID) (*ClaimResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "yield", "claim")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrAccountID, accountID.String())

	var result ClaimResult
	err := retryOnConflict(ctx, s.deps.Logger, "claim_yield", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			account, err := repos.Accounts().FindByIDForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			now := s.deps.Now()
			claimed, err := account.ClaimYield(now, s.deps.Config.Yield, s.deps.Config.Requirements)
			if err != nil {
				return err
			}
			if err := repos.Accounts().Save(ctx, account); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, account); err != nil {
				return err
			}
			result = ClaimResult{
				AccountID:        account.ID,
				Claimed:          claimed,
				AccumulatedYield: account.AccumulatedYield,
				ClaimedAt:        now,
			}
			return nil
		})
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.deps.Metrics.RecordYieldClaim(ctx, false, result.Claimed)
		return nil, err
	}

	s.deps.Metrics.RecordYieldClaim(ctx, true, result.Claimed)
	s.deps.Logger.Info("Yield claimed",
		zap.String("account_id", accountID.String()),
		zap.String("claimed", result.Claimed.String()))
	return &result, nil
}
