package match_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nova_arena/internal/auth"
	"nova_arena/internal/ledger"
	"nova_arena/internal/match"
)

type fixture struct {
	db      *gorm.DB
	engine  *ledger.Service
	repo    ledger.Repository
	matches *match.Service
	admin   auth.Identity
	player  auth.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&ledger.User{}, &ledger.Transaction{},
		&match.Match{}, &match.JoinRecord{}, &match.Result{},
	))

	repo := ledger.NewRepositoryImpl(db, zerolog.Nop())
	engine := ledger.NewService(db, repo, ledger.Limits{MinDeposit: 10, MinWithdraw: 50}, zerolog.Nop())
	matches := match.NewService(db, match.NewRepositoryImpl(db, zerolog.Nop()), engine, zerolog.Nop())

	return &fixture{
		db:      db,
		engine:  engine,
		repo:    repo,
		matches: matches,
		admin:   auth.Identity{UserID: uuid.NewString(), Role: ledger.RoleAdmin},
		player:  auth.Identity{UserID: uuid.NewString(), Role: ledger.RolePlayer},
	}
}

func (f *fixture) user(t *testing.T, balance int64) *ledger.User {
	t.Helper()
	now := time.Now()
	u := &ledger.User{
		UserID:        uuid.New().String(),
		Name:          "Test Player",
		Email:         uuid.NewString() + "@example.com",
		Phone:         "9999999999",
		PasswordHash:  "x",
		Role:          ledger.RolePlayer,
		WalletBalance: balance,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.repo.CreateUser(context.Background(), u))
	return u
}

func (f *fixture) match(t *testing.T, entryFee int64, totalSlots int) *match.Match {
	t.Helper()
	m, err := f.matches.Create(context.Background(), f.admin,
		"Sunday Night Blitz", match.TypeSolo, entryFee, entryFee*int64(totalSlots), totalSlots,
		time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	return m
}

func (f *fixture) balance(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := f.engine.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.WalletBalance
}

func TestJoinMatchChargesFeeAndClaimsSlot(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 10)
	m := f.match(t, 10, 1)

	rec, err := f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.NoError(t, err)
	require.Equal(t, m.MatchID, rec.MatchID)

	require.Equal(t, int64(0), f.balance(t, u.UserID))

	got, err := f.matches.GetMatch(context.Background(), m.MatchID)
	require.NoError(t, err)
	require.Equal(t, 1, got.JoinedCount)

	txs, err := f.engine.ListTransactions(context.Background(), ledger.TxFilter{UserID: u.UserID})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, ledger.TxTypeJoinFee, txs[0].Type)
	require.Equal(t, ledger.TxStatusApproved, txs[0].Status)
}

func TestJoinMatchFull(t *testing.T) {
	f := newFixture(t)
	first := f.user(t, 10)
	second := f.user(t, 10)
	m := f.match(t, 10, 1)

	_, err := f.matches.JoinMatch(context.Background(), first.UserID, m.MatchID)
	require.NoError(t, err)

	_, err = f.matches.JoinMatch(context.Background(), second.UserID, m.MatchID)
	require.ErrorIs(t, err, match.ErrMatchFull)

	// The loser is not charged.
	require.Equal(t, int64(10), f.balance(t, second.UserID))
}

func TestJoinMatchTwice(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 100)
	m := f.match(t, 10, 4)

	_, err := f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.NoError(t, err)

	_, err = f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.ErrorIs(t, err, match.ErrAlreadyJoined)

	// Charged exactly once.
	require.Equal(t, int64(90), f.balance(t, u.UserID))
	got, err := f.matches.GetMatch(context.Background(), m.MatchID)
	require.NoError(t, err)
	require.Equal(t, 1, got.JoinedCount)
}

func TestJoinMatchNotJoinable(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 100)
	m := f.match(t, 10, 4)

	_, err := f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusCancelled)
	require.NoError(t, err)

	_, err = f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.ErrorIs(t, err, match.ErrMatchNotJoinable)
	require.Equal(t, int64(100), f.balance(t, u.UserID))
}

func TestJoinMatchInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 40)
	m := f.match(t, 50, 4)

	_, err := f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	// Nothing committed: no join record, no slot, no charge.
	joined, err := f.matches.HasJoined(context.Background(), m.MatchID, u.UserID)
	require.NoError(t, err)
	require.False(t, joined)

	got, err := f.matches.GetMatch(context.Background(), m.MatchID)
	require.NoError(t, err)
	require.Equal(t, 0, got.JoinedCount)
	require.Equal(t, int64(40), f.balance(t, u.UserID))
}

func TestJoinFreeMatch(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 0)
	m := f.match(t, 0, 4)

	_, err := f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.NoError(t, err)

	txs, err := f.engine.ListTransactions(context.Background(), ledger.TxFilter{UserID: u.UserID})
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestJoinMatchBlockedUser(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 100)
	m := f.match(t, 10, 4)
	require.NoError(t, f.engine.SetUserBlocked(context.Background(), u.UserID, true))

	_, err := f.matches.JoinMatch(context.Background(), u.UserID, m.MatchID)
	require.ErrorIs(t, err, ledger.ErrUserBlocked)
}

func TestJoinMatchUnknownMatch(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, 100)

	_, err := f.matches.JoinMatch(context.Background(), u.UserID, uuid.NewString())
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestConcurrentJoinLastSlot(t *testing.T) {
	f := newFixture(t)
	m := f.match(t, 10, 1)

	users := make([]*ledger.User, 6)
	for i := range users {
		users[i] = f.user(t, 100)
	}

	var mu sync.Mutex
	successCount := 0
	var losers []error

	var g errgroup.Group
	for _, u := range users {
		userID := u.UserID
		g.Go(func() error {
			var err error
			for {
				_, err = f.matches.JoinMatch(context.Background(), userID, m.MatchID)
				if !errors.Is(err, ledger.ErrOptimisticLock) {
					break
				}
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losers = append(losers, err)
			} else {
				successCount++
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 1, successCount, "exactly one joiner wins the last slot")
	require.Len(t, losers, 5)
	for _, err := range losers {
		require.ErrorIs(t, err, match.ErrMatchFull)
	}

	got, err := f.matches.GetMatch(context.Background(), m.MatchID)
	require.NoError(t, err)
	require.Equal(t, 1, got.JoinedCount)

	// Exactly one user was charged; everyone else keeps their balance.
	charged := 0
	for _, u := range users {
		switch f.balance(t, u.UserID) {
		case 90:
			charged++
		case 100:
		default:
			t.Fatalf("unexpected balance for user %s", u.UserID)
		}
	}
	assert.Equal(t, 1, charged)
}

func TestCreateMatchValidation(t *testing.T) {
	f := newFixture(t)
	start := time.Now().Add(time.Hour)

	_, err := f.matches.Create(context.Background(), f.player, "Blitz", match.TypeSolo, 10, 100, 4, start)
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = f.matches.Create(context.Background(), f.admin, "", match.TypeSolo, 10, 100, 4, start)
	require.ErrorIs(t, err, match.ErrInvalidMatch)

	_, err = f.matches.Create(context.Background(), f.admin, "Blitz", match.TypeSolo, 10, 100, 0, start)
	require.ErrorIs(t, err, match.ErrInvalidMatch)

	_, err = f.matches.Create(context.Background(), f.admin, "Blitz", "arcade", 10, 100, 4, start)
	require.ErrorIs(t, err, match.ErrInvalidMatch)

	m, err := f.matches.Create(context.Background(), f.admin, "Blitz", match.TypeSquad, 10, 100, 4, start)
	require.NoError(t, err)
	require.Equal(t, match.StatusUpcoming, m.Status)
	require.Equal(t, 0, m.JoinedCount)
}

func TestPublishRoomFlipsLive(t *testing.T) {
	f := newFixture(t)
	m := f.match(t, 10, 4)

	_, err := f.matches.PublishRoom(context.Background(), f.player, m.MatchID, "r-1", "pass")
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	_, err = f.matches.PublishRoom(context.Background(), f.admin, m.MatchID, "", "")
	require.ErrorIs(t, err, match.ErrInvalidMatch)

	got, err := f.matches.PublishRoom(context.Background(), f.admin, m.MatchID, "r-1", "pass")
	require.NoError(t, err)
	require.Equal(t, match.StatusLive, got.Status)
	require.Equal(t, "r-1", got.RoomID)

	// Credentials may be corrected while live, but not after completion.
	_, err = f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusCompleted)
	require.NoError(t, err)
	_, err = f.matches.PublishRoom(context.Background(), f.admin, m.MatchID, "r-2", "pass")
	require.ErrorIs(t, err, match.ErrMatchNotJoinable)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	m := f.match(t, 10, 4)

	// Upcoming cannot jump straight to completed.
	_, err := f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusCompleted)
	require.ErrorIs(t, err, match.ErrMatchNotJoinable)

	_, err = f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusLive)
	require.NoError(t, err)

	_, err = f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusCompleted)
	require.NoError(t, err)

	// Completed is terminal.
	_, err = f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusLive)
	require.ErrorIs(t, err, match.ErrMatchNotJoinable)
}

func TestDeclareResultsCreditsWinnings(t *testing.T) {
	f := newFixture(t)
	winner := f.user(t, 100)
	runnerUp := f.user(t, 100)
	m := f.match(t, 10, 4)

	_, err := f.matches.JoinMatch(context.Background(), winner.UserID, m.MatchID)
	require.NoError(t, err)
	_, err = f.matches.JoinMatch(context.Background(), runnerUp.UserID, m.MatchID)
	require.NoError(t, err)

	_, err = f.matches.UpdateStatus(context.Background(), f.admin, m.MatchID, match.StatusLive)
	require.NoError(t, err)

	results := []match.PlayerResult{
		{UserID: winner.UserID, Rank: 1, Kills: 9, Winnings: 500},
		{UserID: runnerUp.UserID, Rank: 2, Kills: 4, Winnings: 0},
	}

	require.ErrorIs(t, f.matches.DeclareResults(context.Background(), f.player, m.MatchID, results), ledger.ErrUnauthorized)
	require.NoError(t, f.matches.DeclareResults(context.Background(), f.admin, m.MatchID, results))

	require.Equal(t, int64(590), f.balance(t, winner.UserID))
	require.Equal(t, int64(90), f.balance(t, runnerUp.UserID))

	got, err := f.matches.GetMatch(context.Background(), m.MatchID)
	require.NoError(t, err)
	require.Equal(t, match.StatusCompleted, got.Status)

	board, err := f.matches.ListResults(context.Background(), m.MatchID)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, winner.UserID, board[0].UserID)

	winnings, err := f.engine.ListTransactions(context.Background(), ledger.TxFilter{UserID: winner.UserID, Type: ledger.TxTypeWinning})
	require.NoError(t, err)
	require.Len(t, winnings, 1)
	require.Equal(t, int64(500), winnings[0].Amount)
}

func TestDeclareResultsRequiresLiveOrCompleted(t *testing.T) {
	f := newFixture(t)
	m := f.match(t, 10, 4)

	err := f.matches.DeclareResults(context.Background(), f.admin, m.MatchID, nil)
	require.ErrorIs(t, err, match.ErrMatchNotJoinable)
}
