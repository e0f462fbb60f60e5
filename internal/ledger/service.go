package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	MaxRetries = 3
	RetryDelay = 10 * time.Millisecond
)

// Limits are the configurable floors for user-initiated requests, in paise.
type Limits struct {
	MinDeposit  int64
	MinWithdraw int64
}

// Service is the transaction engine: the only writer of wallet balances.
// Every balance mutation commits in the same DB transaction as the ledger
// entry that explains it.
type Service struct {
	db     *gorm.DB
	repo   Repository
	limits Limits
	logger zerolog.Logger
}

func NewService(db *gorm.DB, repo Repository, limits Limits, logger zerolog.Logger) *Service {
	return &Service{db: db, repo: repo, limits: limits, logger: logger}
}

// RecordDeposit creates a pending deposit. The balance is untouched until an
// admin approves it.
func (s *Service) RecordDeposit(ctx context.Context, userID string, amount int64, screenshotURL string) (*Transaction, error) {
	if amount < s.limits.MinDeposit {
		return nil, ErrInvalidAmount
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, ErrUserBlocked
	}

	t := NewDepositTransaction(userID, amount, screenshotURL)
	if err := s.repo.CreateTransaction(ctx, s.db, t); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("transaction_id", t.TransactionID).
		Int64("amount", amount).
		Msg("deposit request recorded")
	return t, nil
}

// RecordWithdrawRequest debits the balance immediately and creates a pending
// withdraw entry in one atomic unit. The reservation keeps the user from
// spending the same funds twice while the request waits for review; a
// rejection refunds through SettleApproval.
func (s *Service) RecordWithdrawRequest(ctx context.Context, userID string, amount int64, upiID string) (*Transaction, error) {
	if amount < s.limits.MinWithdraw {
		return nil, ErrInvalidAmount
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, ErrUserBlocked
	}
	if user.WalletBalance < amount {
		return nil, ErrInsufficientFunds
	}

	t := NewWithdrawTransaction(userID, amount, upiID)
	for i := 0; i < MaxRetries; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.repo.Debit(ctx, tx, userID, amount); err != nil {
				return err
			}
			return s.repo.CreateTransaction(ctx, tx, t)
		})
		if errors.Is(err, ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("transaction_id", t.TransactionID).
		Int64("amount", amount).
		Msg("withdraw request recorded, funds reserved")
	return t, nil
}

// SettleApproval moves one pending transaction to a terminal status and
// applies the matching balance effect. The asymmetry is deliberate: deposits
// credit on approval (funds were never credited before), withdrawals refund
// on rejection (funds were already debited at request time).
func (s *Service) SettleApproval(ctx context.Context, transactionID, outcome string) (*Transaction, error) {
	var status string
	switch outcome {
	case OutcomeApprove:
		status = TxStatusApproved
	case OutcomeReject:
		status = TxStatusRejected
	default:
		return nil, fmt.Errorf("invalid settlement outcome %q", outcome)
	}

	t, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != TxStatusPending {
		return nil, ErrAlreadySettled
	}

	now := time.Now()
	for i := 0; i < MaxRetries; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// The pending-status guard serializes competing settlements.
			if err := s.repo.MarkSettled(ctx, tx, transactionID, status, now); err != nil {
				return err
			}

			switch t.Type {
			case TxTypeDeposit:
				if outcome == OutcomeApprove {
					return s.repo.Credit(ctx, tx, t.UserID, t.Amount)
				}
				return nil
			case TxTypeWithdraw:
				if outcome == OutcomeReject {
					return s.repo.Credit(ctx, tx, t.UserID, t.Amount)
				}
				return nil
			case TxTypeJoinFee, TxTypeWinning:
				// Created already approved, never pending.
				return ErrAlreadySettled
			default:
				return fmt.Errorf("unknown transaction type %q", t.Type)
			}
		})
		if errors.Is(err, ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	t.Status = status
	t.SettledAt = &now
	s.logger.Info().
		Str("transaction_id", transactionID).
		Str("type", t.Type).
		Str("outcome", outcome).
		Msg("transaction settled")
	return t, nil
}

// JoinFeeWithin records an already-approved join fee and debits the balance
// inside the caller's DB transaction. The match join coordinator uses this so
// the fee commits together with the join record and the slot claim.
func (s *Service) JoinFeeWithin(ctx context.Context, tx *gorm.DB, userID, matchID string, amount int64, note string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.repo.Debit(ctx, tx, userID, amount); err != nil {
		return nil, err
	}
	t := NewJoinFeeTransaction(userID, matchID, amount, note)
	if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordJoinFee is the standalone form of JoinFeeWithin.
func (s *Service) RecordJoinFee(ctx context.Context, userID, matchID string, amount int64, note string) (*Transaction, error) {
	var t *Transaction
	var err error
	for i := 0; i < MaxRetries; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			t, err = s.JoinFeeWithin(ctx, tx, userID, matchID, amount, note)
			return err
		})
		if errors.Is(err, ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// WinningWithin credits a prize inside the caller's DB transaction.
func (s *Service) WinningWithin(ctx context.Context, tx *gorm.DB, userID, matchID string, amount int64, note string) (*Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.repo.Credit(ctx, tx, userID, amount); err != nil {
		return nil, err
	}
	t := NewWinningTransaction(userID, matchID, amount, note)
	if err := s.repo.CreateTransaction(ctx, tx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// RecordWinning credits a match prize atomically with its ledger entry.
func (s *Service) RecordWinning(ctx context.Context, userID, matchID string, amount int64) (*Transaction, error) {
	var t *Transaction
	var err error
	for i := 0; i < MaxRetries; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			t, err = s.WinningWithin(ctx, tx, userID, matchID, amount, "Match winnings")
			return err
		})
		if errors.Is(err, ErrOptimisticLock) {
			time.Sleep(RetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("match_id", matchID).
		Int64("amount", amount).
		Msg("winning credited")
	return t, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	return s.repo.GetUser(ctx, userID)
}

func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) SetUserBlocked(ctx context.Context, userID string, blocked bool) error {
	return s.repo.SetUserBlocked(ctx, userID, blocked)
}

func (s *Service) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	return s.repo.GetTransaction(ctx, transactionID)
}

func (s *Service) ListTransactions(ctx context.Context, filter TxFilter) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, filter)
}
