package admin

import (
	"context"

	"github.com/rs/zerolog"

	"nova_arena/internal/auth"
	"nova_arena/internal/ledger"
)

// Service is the reconciliation layer: it applies admin approve/reject
// decisions to the ledger and owns player account moderation. Every command
// re-checks the caller's role; route middleware is convenience, not the
// enforcement point.
type Service struct {
	engine *ledger.Service
	logger zerolog.Logger
}

func NewService(engine *ledger.Service, logger zerolog.Logger) *Service {
	return &Service{engine: engine, logger: logger}
}

// ListPending returns the review queue, optionally narrowed to one
// transaction type.
func (s *Service) ListPending(ctx context.Context, ident auth.Identity, txType string) ([]ledger.Transaction, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}
	return s.engine.ListTransactions(ctx, ledger.TxFilter{
		Type:   txType,
		Status: ledger.TxStatusPending,
	})
}

func (s *Service) ListTransactions(ctx context.Context, ident auth.Identity, filter ledger.TxFilter) ([]ledger.Transaction, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}
	return s.engine.ListTransactions(ctx, filter)
}

// Settle applies one approve/reject decision. Settling twice fails with
// ErrAlreadySettled; the balance moves exactly once.
func (s *Service) Settle(ctx context.Context, ident auth.Identity, transactionID, outcome string) (*ledger.Transaction, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}

	t, err := s.engine.SettleApproval(ctx, transactionID, outcome)
	if err != nil {
		return nil, err
	}

	if t.Type == ledger.TxTypeDeposit && outcome == ledger.OutcomeReject {
		// Flagged for out-of-band fraud review; the ledger itself takes no
		// further action on a rejected deposit.
		s.logger.Warn().
			Str("transaction_id", t.TransactionID).
			Str("user_id", t.UserID).
			Int64("amount", t.Amount).
			Msg("deposit rejected")
	}
	return t, nil
}

func (s *Service) ListUsers(ctx context.Context, ident auth.Identity) ([]ledger.User, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}
	return s.engine.ListUsers(ctx)
}

// SetBlocked toggles a player's access. A blocked player keeps their balance
// and history but cannot deposit, withdraw, or join matches.
func (s *Service) SetBlocked(ctx context.Context, ident auth.Identity, userID string, blocked bool) error {
	if !ident.IsAdmin() {
		return ledger.ErrUnauthorized
	}
	if err := s.engine.SetUserBlocked(ctx, userID, blocked); err != nil {
		return err
	}
	s.logger.Info().Str("user_id", userID).Bool("blocked", blocked).Msg("user block state changed")
	return nil
}
