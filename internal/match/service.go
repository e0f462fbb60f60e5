package match

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"nova_arena/internal/auth"
	"nova_arena/internal/ledger"
)

// PlayerResult is one row of an admin-declared scoreboard.
type PlayerResult struct {
	UserID   string `json:"user_id"`
	Rank     int    `json:"rank"`
	Kills    int    `json:"kills"`
	Winnings int64  `json:"winnings"` // paise
}

// Service is the match join coordinator plus the admin-driven match
// lifecycle. Balance mutation is always delegated to the ledger engine.
type Service struct {
	db     *gorm.DB
	repo   Repository
	engine *ledger.Service
	logger zerolog.Logger
}

func NewService(db *gorm.DB, repo Repository, engine *ledger.Service, logger zerolog.Logger) *Service {
	return &Service{db: db, repo: repo, engine: engine, logger: logger}
}

// JoinMatch enters a user into a match exactly once. Every check runs against
// rows read inside the same DB transaction as the mutation, and the slot
// claim is version-guarded, so a stale capacity or balance read can only lose
// the race, never oversell it.
func (s *Service) JoinMatch(ctx context.Context, userID, matchID string) (*JoinRecord, error) {
	user, err := s.engine.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked {
		return nil, ledger.ErrUserBlocked
	}

	var rec *JoinRecord
	for i := 0; i < ledger.MaxRetries; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			joined, err := s.repo.HasJoined(ctx, tx, matchID, userID)
			if err != nil {
				return err
			}
			if joined {
				return ErrAlreadyJoined
			}

			m, err := s.repo.GetMatch(ctx, tx, matchID)
			if err != nil {
				return err
			}
			if m.Status != StatusUpcoming {
				return ErrMatchNotJoinable
			}
			if m.JoinedCount >= m.TotalSlots {
				return ErrMatchFull
			}

			if m.EntryFee > 0 {
				if _, err := s.engine.JoinFeeWithin(ctx, tx, userID, matchID, m.EntryFee, "Joined match: "+m.Title); err != nil {
					return err
				}
			}

			rec = &JoinRecord{MatchID: matchID, UserID: userID, JoinedAt: time.Now()}
			if err := s.repo.CreateJoinRecord(ctx, tx, rec); err != nil {
				return err
			}
			return s.repo.ClaimSlot(ctx, tx, m)
		})
		if errors.Is(err, ledger.ErrOptimisticLock) {
			time.Sleep(ledger.RetryDelay)
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
		Msg("user joined match")
	return rec, nil
}

func (s *Service) GetMatch(ctx context.Context, matchID string) (*Match, error) {
	return s.repo.GetMatch(ctx, nil, matchID)
}

func (s *Service) ListMatches(ctx context.Context, status string) ([]Match, error) {
	return s.repo.ListMatches(ctx, status)
}

func (s *Service) ListJoinsForUser(ctx context.Context, userID string) ([]JoinRecord, error) {
	return s.repo.ListJoinsForUser(ctx, userID)
}

func (s *Service) HasJoined(ctx context.Context, matchID, userID string) (bool, error) {
	return s.repo.HasJoined(ctx, nil, matchID, userID)
}

func (s *Service) ListResults(ctx context.Context, matchID string) ([]Result, error) {
	return s.repo.ListResults(ctx, matchID)
}

// Create registers a new upcoming match. Admin only.
func (s *Service) Create(ctx context.Context, ident auth.Identity, title, matchType string, entryFee, prizePool int64, totalSlots int, startTime time.Time) (*Match, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}
	if title == "" || totalSlots <= 0 || entryFee < 0 || prizePool < 0 {
		return nil, ErrInvalidMatch
	}
	switch matchType {
	case TypeSolo, TypeDuo, TypeSquad:
	default:
		return nil, ErrInvalidMatch
	}

	m := NewMatch(title, matchType, entryFee, prizePool, totalSlots, startTime)
	if err := s.repo.CreateMatch(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info().Str("match_id", m.MatchID).Str("title", title).Msg("match created")
	return m, nil
}

// PublishRoom sets the room credentials and flips the match live. Credentials
// may be corrected while the match is still live, but never after it ends.
func (s *Service) PublishRoom(ctx context.Context, ident auth.Identity, matchID, roomID, roomPass string) (*Match, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}
	if roomID == "" || roomPass == "" {
		return nil, ErrInvalidMatch
	}

	m, err := s.repo.GetMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != StatusUpcoming && m.Status != StatusLive {
		return nil, ErrMatchNotJoinable
	}

	if err := s.repo.UpdateRoom(ctx, m, roomID, roomPass); err != nil {
		return nil, err
	}

	m.RoomID = roomID
	m.RoomPass = roomPass
	m.Status = StatusLive
	s.logger.Info().Str("match_id", matchID).Msg("room published, match live")
	return m, nil
}

// UpdateStatus applies an admin-driven lifecycle transition. Completed and
// cancelled are terminal.
func (s *Service) UpdateStatus(ctx context.Context, ident auth.Identity, matchID, status string) (*Match, error) {
	if !ident.IsAdmin() {
		return nil, ledger.ErrUnauthorized
	}

	m, err := s.repo.GetMatch(ctx, nil, matchID)
	if err != nil {
		return nil, err
	}

	allowed := false
	switch m.Status {
	case StatusUpcoming:
		allowed = status == StatusLive || status == StatusCancelled
	case StatusLive:
		allowed = status == StatusCompleted
	}
	if !allowed {
		return nil, ErrMatchNotJoinable
	}

	if err := s.repo.UpdateStatus(ctx, m, status); err != nil {
		return nil, err
	}

	m.Status = status
	s.logger.Info().Str("match_id", matchID).Str("status", status).Msg("match status updated")
	return m, nil
}

// DeclareResults stores the scoreboard and credits every winner's prize in a
// single atomic unit, then marks the match completed.
func (s *Service) DeclareResults(ctx context.Context, ident auth.Identity, matchID string, results []PlayerResult) error {
	if !ident.IsAdmin() {
		return ledger.ErrUnauthorized
	}

	m, err := s.repo.GetMatch(ctx, nil, matchID)
	if err != nil {
		return err
	}
	if m.Status != StatusLive && m.Status != StatusCompleted {
		return ErrMatchNotJoinable
	}

	for i := 0; i < ledger.MaxRetries; i++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			rows := make([]Result, 0, len(results))
			for _, pr := range results {
				rows = append(rows, Result{
					MatchID:  matchID,
					UserID:   pr.UserID,
					Rank:     pr.Rank,
					Kills:    pr.Kills,
					Winnings: pr.Winnings,
				})
				if pr.Winnings > 0 {
					if _, err := s.engine.WinningWithin(ctx, tx, pr.UserID, matchID, pr.Winnings, "Winnings: "+m.Title); err != nil {
						return err
					}
				}
			}
			return s.repo.SaveResults(ctx, tx, rows)
		})
		if errors.Is(err, ledger.ErrOptimisticLock) {
			time.Sleep(ledger.RetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return err
	}

	if m.Status == StatusLive {
		if err := s.repo.UpdateStatus(ctx, m, StatusCompleted); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("match_id", matchID).
		Int("players", len(results)).
		Msg("results declared")
	return nil
}
