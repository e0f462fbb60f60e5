package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"nova_arena/internal/ledger"
)

var (
	ErrMatchFull        = errors.New("match is full")
	ErrMatchNotJoinable = errors.New("match is not joinable")
	ErrAlreadyJoined    = errors.New("already joined this match")
	ErrInvalidMatch     = errors.New("invalid match definition")
)

type Repository interface {
	CreateMatch(ctx context.Context, m *Match) error
	GetMatch(ctx context.Context, tx *gorm.DB, matchID string) (*Match, error)
	ListMatches(ctx context.Context, status string) ([]Match, error)
	UpdateRoom(ctx context.Context, m *Match, roomID, roomPass string) error
	UpdateStatus(ctx context.Context, m *Match, status string) error
	ClaimSlot(ctx context.Context, tx *gorm.DB, m *Match) error
	HasJoined(ctx context.Context, tx *gorm.DB, matchID, userID string) (bool, error)
	CreateJoinRecord(ctx context.Context, tx *gorm.DB, rec *JoinRecord) error
	ListJoinsForUser(ctx context.Context, userID string) ([]JoinRecord, error)
	ListJoinsForMatch(ctx context.Context, matchID string) ([]JoinRecord, error)
	SaveResults(ctx context.Context, tx *gorm.DB, results []Result) error
	ListResults(ctx context.Context, matchID string) ([]Result, error)
}

type RepositoryImpl struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewRepositoryImpl(db *gorm.DB, logger zerolog.Logger) Repository {
	return &RepositoryImpl{db: db, logger: logger}
}

func (r *RepositoryImpl) CreateMatch(ctx context.Context, m *Match) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// GetMatch reads through tx when the caller is inside a DB transaction so the
// checks see the same snapshot the mutation will run against.
func (r *RepositoryImpl) GetMatch(ctx context.Context, tx *gorm.DB, matchID string) (*Match, error) {
	if tx == nil {
		tx = r.db
	}
	var m Match
	err := tx.WithContext(ctx).Where("match_id = ?", matchID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return &m, nil
}

func (r *RepositoryImpl) ListMatches(ctx context.Context, status string) ([]Match, error) {
	q := r.db.WithContext(ctx).Model(&Match{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var matches []Match
	if err := q.Order("start_time").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}

func (r *RepositoryImpl) UpdateRoom(ctx context.Context, m *Match, roomID, roomPass string) error {
	result := r.db.WithContext(ctx).Model(&Match{}).
		Where("match_id = ? AND version = ?", m.MatchID, m.Version).
		Updates(map[string]interface{}{
			"room_id":    roomID,
			"room_pass":  roomPass,
			"status":     StatusLive,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update room: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.ErrOptimisticLock
	}
	return nil
}

func (r *RepositoryImpl) UpdateStatus(ctx context.Context, m *Match, status string) error {
	result := r.db.WithContext(ctx).Model(&Match{}).
		Where("match_id = ? AND version = ?", m.MatchID, m.Version).
		Updates(map[string]interface{}{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.ErrOptimisticLock
	}
	return nil
}

// ClaimSlot increments joined_count under both the version check and a
// capacity guard, so two joiners racing for the last slot cannot both win.
func (r *RepositoryImpl) ClaimSlot(ctx context.Context, tx *gorm.DB, m *Match) error {
	result := tx.WithContext(ctx).Model(&Match{}).
		Where("match_id = ? AND version = ? AND joined_count < total_slots", m.MatchID, m.Version).
		Updates(map[string]interface{}{
			"joined_count": gorm.Expr("joined_count + 1"),
			"version":      gorm.Expr("version + 1"),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to claim slot: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ledger.ErrOptimisticLock
	}
	return nil
}

func (r *RepositoryImpl) HasJoined(ctx context.Context, tx *gorm.DB, matchID, userID string) (bool, error) {
	if tx == nil {
		tx = r.db
	}
	var count int64
	err := tx.WithContext(ctx).Model(&JoinRecord{}).
		Where("match_id = ? AND user_id = ?", matchID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check join record: %w", err)
	}
	return count > 0, nil
}

func (r *RepositoryImpl) CreateJoinRecord(ctx context.Context, tx *gorm.DB, rec *JoinRecord) error {
	if err := tx.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyJoined
		}
		return fmt.Errorf("failed to create join record: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) ListJoinsForUser(ctx context.Context, userID string) ([]JoinRecord, error) {
	var recs []JoinRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("joined_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list joins: %w", err)
	}
	return recs, nil
}

func (r *RepositoryImpl) ListJoinsForMatch(ctx context.Context, matchID string) ([]JoinRecord, error) {
	var recs []JoinRecord
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("joined_at").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list joins: %w", err)
	}
	return recs, nil
}

func (r *RepositoryImpl) SaveResults(ctx context.Context, tx *gorm.DB, results []Result) error {
	if len(results) == 0 {
		return nil
	}
	if err := tx.WithContext(ctx).Create(&results).Error; err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}
	return nil
}

func (r *RepositoryImpl) ListResults(ctx context.Context, matchID string) ([]Result, error) {
	var results []Result
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("rank").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	return results, nil
}
