package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"nova_arena/internal/admin"
	"nova_arena/internal/api"
	"nova_arena/internal/auth"
	"nova_arena/internal/ledger"
	"nova_arena/internal/match"
)

type testApp struct {
	router     *gin.Engine
	authSvc    *auth.Service
	repo       ledger.Repository
	adminToken string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

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
	engine := ledger.NewService(db, repo, ledger.Limits{MinDeposit: 1000, MinWithdraw: 5000}, zerolog.Nop())
	matches := match.NewService(db, match.NewRepositoryImpl(db, zerolog.Nop()), engine, zerolog.Nop())
	adminSvc := admin.NewService(engine, zerolog.Nop())
	authSvc := auth.NewService(repo, "test-secret", time.Hour, zerolog.Nop())

	now := time.Now()
	adminUser := &ledger.User{
		UserID:       uuid.New().String(),
		Name:         "Ops",
		Email:        "ops@example.com",
		Phone:        "9999999999",
		PasswordHash: "x",
		Role:         ledger.RoleAdmin,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, repo.CreateUser(context.Background(), adminUser))
	adminToken, err := authSvc.IssueToken(adminUser)
	require.NoError(t, err)

	router := gin.New()
	api.NewServer(engine, matches, adminSvc, authSvc, zerolog.Nop()).Register(router)

	return &testApp{router: router, authSvc: authSvc, repo: repo, adminToken: adminToken}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testApp) registerPlayer(t *testing.T, email string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/auth/register", "", gin.H{
		"name":     "Riya",
		"email":    email,
		"phone":    "8888888888",
		"password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodGet, "/me", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoutesForbiddenForPlayers(t *testing.T) {
	app := newTestApp(t)
	token := app.registerPlayer(t, "riya@example.com")

	w := app.do(t, http.MethodGet, "/admin/users", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestDepositSettleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	token := app.registerPlayer(t, "riya@example.com")

	// Sub-paise precision is rejected at the boundary.
	w := app.do(t, http.MethodPost, "/wallet/deposit", token, gin.H{
		"amount":         "100.005",
		"screenshot_url": "proof.png",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodPost, "/wallet/deposit", token, gin.H{
		"amount":         "100.50",
		"screenshot_url": "proof.png",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, ledger.TxStatusPending, created.Status)

	// Pending deposits do not move the balance.
	w = app.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		WalletBalance string `json:"wallet_balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, "0.00", me.WalletBalance)

	w = app.do(t, http.MethodPost, "/admin/transactions/"+created.TransactionID+"/settle", app.adminToken, gin.H{
		"outcome": "approve",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = app.do(t, http.MethodGet, "/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	require.Equal(t, "100.50", me.WalletBalance)

	// A second settlement attempt conflicts.
	w = app.do(t, http.MethodPost, "/admin/transactions/"+created.TransactionID+"/settle", app.adminToken, gin.H{
		"outcome": "reject",
	})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestWithdrawInsufficientOverHTTP(t *testing.T) {
	app := newTestApp(t)
	token := app.registerPlayer(t, "riya@example.com")

	w := app.do(t, http.MethodPost, "/wallet/withdraw", token, gin.H{
		"amount": "50",
		"upi_id": "riya@upi",
	})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
}

func TestMatchJoinAndRoomRevealOverHTTP(t *testing.T) {
	app := newTestApp(t)
	token := app.registerPlayer(t, "riya@example.com")
	other := app.registerPlayer(t, "dev@example.com")

	w := app.do(t, http.MethodPost, "/admin/matches", app.adminToken, gin.H{
		"title":       "Sunday Night Blitz",
		"type":        match.TypeSolo,
		"entry_fee":   "0",
		"prize_pool":  "500",
		"total_slots": 2,
		"start_time":  time.Now().Add(2 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		MatchID string `json:"match_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = app.do(t, http.MethodPost, "/matches/"+created.MatchID+"/join", token, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = app.do(t, http.MethodPost, "/matches/"+created.MatchID+"/join", token, nil)
	require.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodPut, "/admin/matches/"+created.MatchID+"/room", app.adminToken, gin.H{
		"room_id":   "r-42",
		"room_pass": "hushhush",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Joined player sees the room; a bystander does not.
	var view struct {
		RoomID string `json:"room_id"`
		Status string `json:"status"`
	}
	w = app.do(t, http.MethodGet, "/matches/"+created.MatchID, token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Equal(t, "r-42", view.RoomID)
	require.Equal(t, match.StatusLive, view.Status)

	w = app.do(t, http.MethodGet, "/matches/"+created.MatchID, other, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	require.Empty(t, view.RoomID)

	// Live matches reject new joiners.
	w = app.do(t, http.MethodPost, "/matches/"+created.MatchID+"/join", other, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}
