package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mxi/presale/internal/domain/ledger"
	"github.com/mxi/presale/internal/domain/shared"
	"go.uber.org/zap"
)

// RegisterCommand creates a ledger account for an identity provider user
type RegisterCommand struct {
	AccountID  uuid.UUID
	ReferrerID *uuid.UUID
}

// AccountService manages accounts, referral edges and global flags
type AccountService struct {
	deps Deps
}

// NewAccountService creates an AccountService
func NewAccountService(deps Deps) *AccountService {
	return &AccountService{deps: deps.withDefaults()}
}

// Register creates the account and its referral edges up to three levels.
// Registering an existing account returns ErrAlreadyExists.
func (s *AccountService) Register(ctx context.Context, cmd RegisterCommand) (*AccountDTO, error) {
	now := s.deps.Now()
	account, err := ledger.NewAccount(cmd.AccountID, cmd.ReferrerID, now)
	if err != nil {
		return nil, err
	}

	err = s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		exists, err := repos.Accounts().ExistsByID(ctx, cmd.AccountID)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError(shared.CodeAlreadyExists, "account already registered")
		}

		var edges []ledger.ReferralEdge
		if cmd.ReferrerID != nil {
			if _, err := repos.Accounts().FindByID(ctx, *cmd.ReferrerID); err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return shared.NewDomainError(shared.CodeInvalidInput, "referrer account does not exist")
				}
				return err
			}
			upline, err := repos.Referrals().Upline(ctx, *cmd.ReferrerID)
			if err != nil {
				return err
			}
			edges, err = ledger.BuildReferralEdges(cmd.AccountID, *cmd.ReferrerID, upline)
			if err != nil {
				return err
			}
		}

		if err := repos.Accounts().Create(ctx, account); err != nil {
			return err
		}
		if len(edges) > 0 {
			if err := repos.Referrals().CreateEdges(ctx, edges); err != nil {
				return err
			}
		}
		return recordAll(ctx, repos, account)
	})
	if err != nil {
		return nil, err
	}

	s.deps.Logger.Info("Account registered",
		zap.String("account_id", cmd.AccountID.String()),
		zap.Bool("referred", cmd.ReferrerID != nil))
	dto := ToAccountDTO(account, s.deps.Config.Yield, now)
	return &dto, nil
}

// GetAccount returns the account's balances evaluated now
func (s *AccountService) GetAccount(ctx context.Context, accountID uuid.UUID) (*AccountDTO, error) {
	var account *ledger.Account
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		account, err = repos.Accounts().FindByID(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	dto := ToAccountDTO(account, s.deps.Config.Yield, s.deps.Now())
	return &dto, nil
}

// ListReferrals summarizes the account's downline
func (s *AccountService) ListReferrals(ctx context.Context, accountID uuid.UUID) (*ReferralSummaryDTO, error) {
	summary := &ReferralSummaryDTO{AccountID: accountID, Levels: map[int]int{}, Direct: []uuid.UUID{}}
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		account, err := repos.Accounts().FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		summary.ActiveReferralCount = account.ActiveReferralCount

		edges, err := repos.Referrals().Downline(ctx, accountID, 0)
		if err != nil {
			return err
		}
		for _, e := range edges {
			summary.Levels[e.Level]++
			if e.Level == 1 {
				summary.Direct = append(summary.Direct, e.ReferredID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// SetKYCApproved records the result of the external KYC review
func (s *AccountService) SetKYCApproved(ctx context.Context, admin ledger.AdminCapability, accountID uuid.UUID, approved bool) (*AccountDTO, error) {
	if err := ledger.RequireAdmin(admin); err != nil {
		return nil, err
	}
	var account *ledger.Account
	err := retryOnConflict(ctx, s.deps.Logger, "set_kyc", s.deps.Config.MaxCreditAttempts, func() error {
		return s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
			var err error
			account, err = repos.Accounts().FindByIDForUpdate(ctx, accountID)
			if err != nil {
				return err
			}
			account.SetKYCApproved(approved)
			return repos.Accounts().Save(ctx, account)
		})
	})
	if err != nil {
		return nil, err
	}
	s.deps.Logger.Info("KYC status updated",
		zap.String("account_id", accountID.String()),
		zap.Bool("approved", approved),
		zap.String("admin_id", admin.AdminID().String()))
	dto := ToAccountDTO(account, s.deps.Config.Yield, s.deps.Now())
	return &dto, nil
}

// SetLaunchFlag flips the global launch flag that gates purchased and vesting withdrawals
func (s *AccountService) SetLaunchFlag(ctx context.Context, admin ledger.AdminCapability, launched bool) error {
	if err := ledger.RequireAdmin(admin); err != nil {
		return err
	}
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		return repos.Settings().SetLaunched(ctx, launched, admin.AdminID())
	})
	if err != nil {
		return err
	}
	s.deps.Logger.Info("Launch flag updated",
		zap.Bool("launched", launched),
		zap.String("admin_id", admin.AdminID().String()))
	return nil
}

// IsLaunched reads the global launch flag
func (s *AccountService) IsLaunched(ctx context.Context) (bool, error) {
	var launched bool
	err := s.deps.Scope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		launched, err = repos.Settings().IsLaunched(ctx)
		return err
	})
	return launched, err
}
