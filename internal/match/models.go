package match

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusUpcoming  = "upcoming"
	StatusLive      = "live"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

const (
	TypeSolo  = "solo"
	TypeDuo   = "duo"
	TypeSquad = "squad"
)

type Match struct {
	MatchID     string    `gorm:"column:match_id;primaryKey;type:uuid"`
	Title       string    `gorm:"column:title;type:varchar(150);not null"`
	Type        string    `gorm:"column:type;type:varchar(10);not null"` // "solo", "duo", "squad"
	EntryFee    int64     `gorm:"column:entry_fee;not null"`             // paise, >= 0
	PrizePool   int64     `gorm:"column:prize_pool;not null"`            // paise
	StartTime   time.Time `gorm:"column:start_time;not null"`
	Status      string    `gorm:"column:status;type:varchar(10);not null"` // "upcoming", "live", "completed", "cancelled"
	JoinedCount int       `gorm:"column:joined_count;not null;default:0"`
	TotalSlots  int       `gorm:"column:total_slots;not null"`
	RoomID      string    `gorm:"column:room_id;type:varchar(50)"`
	RoomPass    string    `gorm:"column:room_pass;type:varchar(50)"`
	Version     int       `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

// JoinRecord links a user to a match exactly once; the composite primary key
// is the storage-level duplicate guard.
type JoinRecord struct {
	MatchID  string    `gorm:"column:match_id;type:uuid;primaryKey"`
	UserID   string    `gorm:"column:user_id;type:uuid;primaryKey"`
	JoinedAt time.Time `gorm:"column:joined_at;not null"`
}

type Result struct {
	MatchID  string `gorm:"column:match_id;type:uuid;primaryKey"`
	UserID   string `gorm:"column:user_id;type:uuid;primaryKey"`
	Rank     int    `gorm:"column:rank;not null"`
	Kills    int    `gorm:"column:kills;not null"`
	Winnings int64  `gorm:"column:winnings;not null"` // paise
}

func (Result) TableName() string {
	return "match_results"
}

func NewMatch(title, matchType string, entryFee, prizePool int64, totalSlots int, startTime time.Time) *Match {
	now := time.Now()
	return &Match{
		MatchID:    uuid.New().String(),
		Title:      title,
		Type:       matchType,
		EntryFee:   entryFee,
		PrizePool:  prizePool,
		StartTime:  startTime,
		Status:     StatusUpcoming,
		TotalSlots: totalSlots,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
