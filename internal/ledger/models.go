package ledger

import (
	"time"

	"github.com/google/uuid"
)

const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

const (
	TxTypeDeposit  = "deposit"
	TxTypeWithdraw = "withdraw"
	TxTypeJoinFee  = "join_fee"
	TxTypeWinning  = "winning"
)

const (
	TxStatusPending  = "pending"
	TxStatusApproved = "approved"
	TxStatusRejected = "rejected"
)

const (
	OutcomeApprove = "approve"
	OutcomeReject  = "reject"
)

type User struct {
	UserID        string    `gorm:"column:user_id;primaryKey;type:uuid"`
	Name          string    `gorm:"column:name;type:varchar(100);not null"`
	Email         string    `gorm:"column:email;type:varchar(255);not null;uniqueIndex"`
	Phone         string    `gorm:"column:phone;type:varchar(20);not null"`
	PasswordHash  string    `gorm:"column:password_hash;type:varchar(255);not null"`
	Role          string    `gorm:"column:role;type:varchar(10);not null;default:'player'"` // "player", "admin"
	WalletBalance int64     `gorm:"column:wallet_balance;not null;default:0"`               // paise, never negative
	IsBlocked     bool      `gorm:"column:is_blocked;not null;default:false"`
	Version       int       `gorm:"column:version;not null;default:1"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
	UpdatedAt     time.Time `gorm:"column:updated_at;not null"`
}

// Transaction is an append-only ledger entry. Once the status leaves
// "pending" the record is never edited again; corrections are new entries.
type Transaction struct {
	TransactionID string     `gorm:"column:transaction_id;primaryKey;type:uuid"`
	UserID        string     `gorm:"column:user_id;type:uuid;not null;index"`
	MatchID       string     `gorm:"column:match_id;type:uuid"`               // join_fee / winning only
	Amount        int64      `gorm:"column:amount;not null"`                  // paise, always positive
	Type          string     `gorm:"column:type;type:varchar(20);not null"`   // "deposit", "withdraw", "join_fee", "winning"
	Status        string     `gorm:"column:status;type:varchar(20);not null"` // "pending", "approved", "rejected"
	ScreenshotURL string     `gorm:"column:screenshot_url;type:varchar(512)"` // deposit proof
	UpiID         string     `gorm:"column:upi_id;type:varchar(100)"`         // withdraw payout handle
	Note          string     `gorm:"column:note;type:varchar(255)"`           // join_fee / winning annotation
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	SettledAt     *time.Time `gorm:"column:settled_at"`
}

// Each transaction type carries only its own metadata field, so the ledger
// is built through these constructors rather than struct literals.

func NewDepositTransaction(userID string, amount int64, screenshotURL string) *Transaction {
	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Amount:        amount,
		Type:          TxTypeDeposit,
		Status:        TxStatusPending,
		ScreenshotURL: screenshotURL,
		CreatedAt:     time.Now(),
	}
}

func NewWithdrawTransaction(userID string, amount int64, upiID string) *Transaction {
	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		Amount:        amount,
		Type:          TxTypeWithdraw,
		Status:        TxStatusPending,
		UpiID:         upiID,
		CreatedAt:     time.Now(),
	}
}

// Join fees never enter the admin approval queue, they settle synchronously.
func NewJoinFeeTransaction(userID, matchID string, amount int64, note string) *Transaction {
	now := time.Now()
	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		MatchID:       matchID,
		Amount:        amount,
		Type:          TxTypeJoinFee,
		Status:        TxStatusApproved,
		Note:          note,
		CreatedAt:     now,
		SettledAt:     &now,
	}
}

func NewWinningTransaction(userID, matchID string, amount int64, note string) *Transaction {
	now := time.Now()
	return &Transaction{
		TransactionID: uuid.New().String(),
		UserID:        userID,
		MatchID:       matchID,
		Amount:        amount,
		Type:          TxTypeWinning,
		Status:        TxStatusApproved,
		Note:          note,
		CreatedAt:     now,
		SettledAt:     &now,
	}
}
