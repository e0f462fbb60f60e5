package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// TxFilter narrows ListTransactions. Zero-value fields are ignored.
type TxFilter struct {
	UserID string
	Type   string
	Status string
}

type Repository interface {
	GetUser(ctx context.Context, userID string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	ListUsers(ctx context.Context) ([]User, error)
	SetUserBlocked(ctx context.Context, userID string, blocked bool) error
	Credit(ctx context.Context, tx *gorm.DB, userID string, amount int64) error
	Debit(ctx context.Context, tx *gorm.DB, userID string, amount int64) error
	CreateTransaction(ctx context.Context, tx *gorm.DB, t *Transaction) error
	GetTransaction(ctx context.Context, transactionID string) (*Transaction, error)
	MarkSettled(ctx context.Context, tx *gorm.DB, transactionID, status string, settledAt time.Time) error
	ListTransactions(ctx context.Context, filter TxFilter) ([]Transaction, error)
}

type RepositoryImpl struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewRepositoryImpl(db *gorm.DB, logger zerolog.Logger) Repository {
	return &RepositoryImpl{db: db, logger: logger}
}

func (r *RepositoryImpl) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStore(err)
	}
	return &u, nil
}

func (r *RepositoryImpl) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStore(err)
	}
	return &u, nil
}

func (r *RepositoryImpl) CreateUser(ctx context.Context, user *User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		return wrapStore(err)
	}
	return nil
}

func (r *RepositoryImpl) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := r.db.WithContext(ctx).Order("created_at").Find(&users).Error; err != nil {
		return nil, wrapStore(err)
	}
	return users, nil
}

func (r *RepositoryImpl) SetUserBlocked(ctx context.Context, userID string, blocked bool) error {
	result := r.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_blocked": blocked,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return wrapStore(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Credit adds amount to the user's balance under an optimistic version check.
// Callers run it inside a DB transaction and retry on ErrOptimisticLock.
func (r *RepositoryImpl) Credit(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	var u User
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return wrapStore(err)
	}

	result := tx.WithContext(ctx).Model(&User{}).
		Where("user_id = ? AND version = ?", u.UserID, u.Version).
		Updates(map[string]interface{}{
			"wallet_balance": u.WalletBalance + amount,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return wrapStore(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// Debit is the only path that lowers a balance; the funds check and the
// version check on the same read keep the balance from ever going negative
// under concurrent debits.
func (r *RepositoryImpl) Debit(ctx context.Context, tx *gorm.DB, userID string, amount int64) error {
	var u User
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return wrapStore(err)
	}

	if u.WalletBalance < amount {
		return ErrInsufficientFunds
	}

	result := tx.WithContext(ctx).Model(&User{}).
		Where("user_id = ? AND version = ?", u.UserID, u.Version).
		Updates(map[string]interface{}{
			"wallet_balance": u.WalletBalance - amount,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return wrapStore(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (r *RepositoryImpl) CreateTransaction(ctx context.Context, tx *gorm.DB, t *Transaction) error {
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		return wrapStore(err)
	}
	return nil
}

func (r *RepositoryImpl) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStore(err)
	}
	return &t, nil
}

// MarkSettled flips a pending transaction into a terminal status. The status
// guard in the WHERE clause is what makes a second settlement attempt lose:
// zero rows updated means someone already settled it.
func (r *RepositoryImpl) MarkSettled(ctx context.Context, tx *gorm.DB, transactionID, status string, settledAt time.Time) error {
	result := tx.WithContext(ctx).Model(&Transaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, TxStatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"settled_at": settledAt,
		})
	if result.Error != nil {
		return wrapStore(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadySettled
	}
	return nil
}

func (r *RepositoryImpl) ListTransactions(ctx context.Context, filter TxFilter) ([]Transaction, error) {
	q := r.db.WithContext(ctx).Model(&Transaction{})
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var txs []Transaction
	if err := q.Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, wrapStore(err)
	}
	return txs, nil
}
