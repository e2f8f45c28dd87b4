package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// WithdrawalService answers eligibility queries and books withdrawals of
// commission and released vesting balances. Moving funds on-chain happens
// outside the ledger.
type WithdrawalService struct {
	deps Deps
}

// NewWithdrawalService creates a WithdrawalService
func NewWithdrawalService(deps Deps) *WithdrawalService {
	return &WithdrawalService{deps: deps.withDefaults()}
}

// IsWithdrawalEligible evaluates KYC, active referrals and, for purchased and
// vesting balances, the global launch flag.
func (s *WithdrawalService) IsWithdrawalEligible(ctx context.Context, accountID uuid.UUID, kind ledger.BalanceKind) (*EligibilityDTO, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainErrorf(shared.CodeInvalidInput, "unknown balance kind %q", kind)
	}
	var unmet []ledger.Requirement
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		account, err := repos.Accounts().FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		launched, err := repos.Settings().IsLaunched(ctx)
		if err != nil {
			return err
		}
		unmet = s.deps.Config.Requirements.UnmetForWithdrawal(account, kind, launched)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &EligibilityDTO{
		AccountID:         accountID,
		BalanceKind:       string(kind),
		Eligible:          len(unmet) == 0,
		UnmetRequirements: requirementNames(unmet),
	}, nil
}

// WithdrawCommissions marks every available commission event withdrawn and
// moves the sum out of the available commission balance.
func (s *WithdrawalService) WithdrawCommissions(ctx context.Context, accountID uuid.UUID) (*WithdrawalResult, error) {
	var result WithdrawalResult
	err := retryOnConflict(ctx, s.deps.Logger, "withdraw_commissions", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			account, err := s.lockEligible(ctx, repos, accountID, ledger.BalanceCommission)
			if err != nil {
				return err
			}
			events, err := repos.Commissions().ListAvailableForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return shared.ErrInsufficientBalance
			}

			now := s.deps.Now()
			total := decimal.Zero
			ids := make([]uuid.UUID, len(events))
			for i, e := range events {
				if err := e.MarkWithdrawn(now); err != nil {
					return err
				}
				total = total.Add(e.Amount)
				ids[i] = e.ID
			}
			if err := account.WithdrawCommission(total); err != nil {
				return err
			}
			if err := repos.Commissions().MarkWithdrawn(ctx, ids, now); err != nil {
				return err
			}
			if err := repos.Accounts().Save(ctx, account); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, account); err != nil {
				return err
			}
			result = WithdrawalResult{
				AccountID:   accountID,
				BalanceKind: string(ledger.BalanceCommission),
				Amount:      total,
				Entries:     len(events),
				At:          now,
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Commissions withdrawn",
		zap.String("account_id", accountID.String()),
		zap.String("amount", result.Amount.String()),
		zap.Int("entries", result.Entries))
	return &result, nil
}

// WithdrawVested withdraws released vesting funds
func (s *WithdrawalService) WithdrawVested(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal) (*WithdrawalResult, error) {
	var result WithdrawalResult
	err := retryOnConflict(ctx, s.deps.Logger, "withdraw_vested", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			account, err := s.lockEligible(ctx, repos, accountID, ledger.BalanceVesting)
			if err != nil {
				return err
			}
			schedule, err := repos.Vesting().FindByAccountForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			if err := schedule.Withdraw(amount); err != nil {
				return err
			}
			if err := account.WithdrawVested(amount); err != nil {
				return err
			}
			if err := repos.Vesting().Save(ctx, schedule); err != nil {
				return err
			}
			if err := repos.Accounts().Save(ctx, account); err != nil {
				return err
			}
			if err := recordAll(ctx, repos, account); err != nil {
				return err
			}
			result = WithdrawalResult{
				AccountID:   accountID,
				BalanceKind: string(ledger.BalanceVesting),
				Amount:      amount,
				At:          s.deps.Now(),
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("Vested funds withdrawn",
		zap.String("account_id", accountID.String()),
		zap.String("amount", amount.String()))
	return &result, nil
}

func (s *WithdrawalService) lockEligible(ctx context.Context, repos TransactionalRepositories, accountID uuid.UUID, kind ledger.BalanceKind) (*ledger.Account, error) {
	account, err := repos.Accounts().FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	launched, err := repos.Settings().IsLaunched(ctx)
	if err != nil {
		return nil, err
	}
	if unmet := s.deps.Config.Requirements.UnmetForWithdrawal(account, kind, launched); len(unmet) > 0 {
		return nil, ledger.RequirementsError(unmet)
	}
	return account, nil
}
