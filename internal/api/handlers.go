package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nova_arena/internal/admin"
	"nova_arena/internal/auth"
	"nova_arena/internal/ledger"
	"nova_arena/internal/match"
)

// Server is the thin JSON shim over the engine: it parses requests, converts
// rupee decimals to integer paise, and maps typed failures to HTTP statuses.
// No business rules live here.
type Server struct {
	engine  *ledger.Service
	matches *match.Service
	admin   *admin.Service
	auth    *auth.Service
	logger  zerolog.Logger
}

func NewServer(engine *ledger.Service, matches *match.Service, adminSvc *admin.Service, authSvc *auth.Service, logger zerolog.Logger) *Server {
	return &Server{engine: engine, matches: matches, admin: adminSvc, auth: authSvc, logger: logger}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, match.ErrInvalidMatch):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadySettled),
		errors.Is(err, ledger.ErrUserBlocked),
		errors.Is(err, match.ErrMatchFull),
		errors.Is(err, match.ErrMatchNotJoinable),
		errors.Is(err, match.ErrAlreadyJoined),
		errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error()})
}

// rupeesToPaise rejects amounts with sub-paise precision.
func rupeesToPaise(amount decimal.Decimal) (int64, error) {
	paise := amount.Shift(2)
	if !paise.IsInteger() {
		return 0, ledger.ErrInvalidAmount
	}
	return paise.IntPart(), nil
}

func paiseToRupees(paise int64) decimal.Decimal {
	return decimal.NewFromInt(paise).Shift(-2)
}

type userResponse struct {
	UserID        string          `json:"user_id"`
	Name          string          `json:"name"`
	Email         string          `json:"email"`
	Phone         string          `json:"phone"`
	Role          string          `json:"role"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	IsBlocked     bool            `json:"is_blocked"`
}

func toUserResponse(u *ledger.User) userResponse {
	return userResponse{
		UserID:        u.UserID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Role:          u.Role,
		WalletBalance: paiseToRupees(u.WalletBalance),
		IsBlocked:     u.IsBlocked,
	}
}

type transactionResponse struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	MatchID       string          `json:"match_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	ScreenshotURL string          `json:"screenshot_url,omitempty"`
	UpiID         string          `json:"upi_id,omitempty"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	SettledAt     *time.Time      `json:"settled_at,omitempty"`
}

func toTransactionResponse(t *ledger.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: t.TransactionID,
		UserID:        t.UserID,
		MatchID:       t.MatchID,
		Amount:        paiseToRupees(t.Amount),
		Type:          t.Type,
		Status:        t.Status,
		ScreenshotURL: t.ScreenshotURL,
		UpiID:         t.UpiID,
		Note:          t.Note,
		CreatedAt:     t.CreatedAt,
		SettledAt:     t.SettledAt,
	}
}

type matchResponse struct {
	MatchID     string          `json:"match_id"`
	Title       string          `json:"title"`
	Type        string          `json:"type"`
	EntryFee    decimal.Decimal `json:"entry_fee"`
	PrizePool   decimal.Decimal `json:"prize_pool"`
	StartTime   time.Time       `json:"start_time"`
	Status      string          `json:"status"`
	JoinedCount int             `json:"joined_count"`
	TotalSlots  int             `json:"total_slots"`
	RoomID      string          `json:"room_id,omitempty"`
	RoomPass    string          `json:"room_pass,omitempty"`
}

// toMatchResponse withholds the room credentials unless the viewer has paid
// into the match (or is an admin).
func toMatchResponse(m *match.Match, revealRoom bool) matchResponse {
	resp := matchResponse{
		MatchID:     m.MatchID,
		Title:       m.Title,
		Type:        m.Type,
		EntryFee:    paiseToRupees(m.EntryFee),
		PrizePool:   paiseToRupees(m.PrizePool),
		StartTime:   m.StartTime,
		Status:      m.Status,
		JoinedCount: m.JoinedCount,
		TotalSlots:  m.TotalSlots,
	}
	if revealRoom {
		resp.RoomID = m.RoomID
		resp.RoomPass = m.RoomPass
	}
	return resp
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Phone    string `json:"phone" binding:"required"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := s.auth.Signup(c.Request.Context(), req.Name, req.Email, req.Phone, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	token, err := s.auth.IssueToken(user)
	if err != nil {
		fail(c, err)
		return
	}

	c.SetCookie(auth.CookieName, token, int((24 * time.Hour).Seconds()), "/", "", false, true)
	c.JSON(http.StatusCreated, gin.H{"user": toUserResponse(user), "token": token})
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, token, err := s.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}

	c.SetCookie(auth.CookieName, token, int((24 * time.Hour).Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(user), "token": token})
}

func (s *Server) me(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	user, err := s.engine.GetUser(c.Request.Context(), ident.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

func (s *Server) myTransactions(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	txs, err := s.engine.ListTransactions(c.Request.Context(), ledger.TxFilter{
		UserID: ident.UserID,
		Type:   c.Query("type"),
		Status: c.Query("status"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		resp = append(resp, toTransactionResponse(&txs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

func (s *Server) myMatches(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	recs, err := s.matches.ListJoinsForUser(c.Request.Context(), ident.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"joined": recs})
}

func (s *Server) listMatches(c *gin.Context) {
	matches, err := s.matches.ListMatches(c.Request.Context(), c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]matchResponse, 0, len(matches))
	for i := range matches {
		resp = append(resp, toMatchResponse(&matches[i], false))
	}
	c.JSON(http.StatusOK, gin.H{"matches": resp})
}

func (s *Server) getMatch(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	m, err := s.matches.GetMatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}

	reveal := ident.IsAdmin()
	if !reveal {
		joined, err := s.matches.HasJoined(c.Request.Context(), m.MatchID, ident.UserID)
		if err != nil {
			fail(c, err)
			return
		}
		reveal = joined
	}
	c.JSON(http.StatusOK, toMatchResponse(m, reveal))
}

func (s *Server) joinMatch(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	rec, err := s.matches.JoinMatch(c.Request.Context(), ident.UserID, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"joined": rec})
}

func (s *Server) deposit(c *gin.Context) {
	var req struct {
		Amount        decimal.Decimal `json:"amount" binding:"required"`
		ScreenshotURL string          `json:"screenshot_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	paise, err := rupeesToPaise(req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	ident := auth.CurrentIdentity(c)
	t, err := s.engine.RecordDeposit(c.Request.Context(), ident.UserID, paise, req.ScreenshotURL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) withdraw(c *gin.Context) {
	var req struct {
		Amount decimal.Decimal `json:"amount" binding:"required"`
		UpiID  string          `json:"upi_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	paise, err := rupeesToPaise(req.Amount)
	if err != nil {
		fail(c, err)
		return
	}

	ident := auth.CurrentIdentity(c)
	t, err := s.engine.RecordWithdrawRequest(c.Request.Context(), ident.UserID, paise, req.UpiID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) adminTransactions(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	txs, err := s.admin.ListTransactions(c.Request.Context(), ident, ledger.TxFilter{
		UserID: c.Query("user_id"),
		Type:   c.Query("type"),
		Status: c.Query("status"),
	})
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for i := range txs {
		resp = append(resp, toTransactionResponse(&txs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

func (s *Server) settle(c *gin.Context) {
	var req struct {
		Outcome string `json:"outcome" binding:"required,oneof=approve reject"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := auth.CurrentIdentity(c)
	t, err := s.admin.Settle(c.Request.Context(), ident, c.Param("id"), req.Outcome)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(t))
}

func (s *Server) adminUsers(c *gin.Context) {
	ident := auth.CurrentIdentity(c)
	users, err := s.admin.ListUsers(c.Request.Context(), ident)
	if err != nil {
		fail(c, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

func (s *Server) blockUser(c *gin.Context) {
	var req struct {
		Blocked *bool `json:"blocked" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := auth.CurrentIdentity(c)
	if err := s.admin.SetBlocked(c.Request.Context(), ident, c.Param("id"), *req.Blocked); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": *req.Blocked})
}

func (s *Server) createMatch(c *gin.Context) {
	var req struct {
		Title      string          `json:"title" binding:"required"`
		Type       string          `json:"type" binding:"required"`
		EntryFee   decimal.Decimal `json:"entry_fee"`
		PrizePool  decimal.Decimal `json:"prize_pool"`
		TotalSlots int             `json:"total_slots" binding:"required,gt=0"`
		StartTime  time.Time       `json:"start_time" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	feePaise, err := rupeesToPaise(req.EntryFee)
	if err != nil {
		fail(c, err)
		return
	}
	prizePaise, err := rupeesToPaise(req.PrizePool)
	if err != nil {
		fail(c, err)
		return
	}

	ident := auth.CurrentIdentity(c)
	m, err := s.matches.Create(c.Request.Context(), ident, req.Title, req.Type, feePaise, prizePaise, req.TotalSlots, req.StartTime)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMatchResponse(m, true))
}

func (s *Server) publishRoom(c *gin.Context) {
	var req struct {
		RoomID   string `json:"room_id" binding:"required"`
		RoomPass string `json:"room_pass" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := auth.CurrentIdentity(c)
	m, err := s.matches.PublishRoom(c.Request.Context(), ident, c.Param("id"), req.RoomID, req.RoomPass)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMatchResponse(m, true))
}

func (s *Server) updateMatchStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required,oneof=live completed cancelled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ident := auth.CurrentIdentity(c)
	m, err := s.matches.UpdateStatus(c.Request.Context(), ident, c.Param("id"), req.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toMatchResponse(m, true))
}

func (s *Server) declareResults(c *gin.Context) {
	var req struct {
		Results []struct {
			UserID   string          `json:"user_id" binding:"required"`
			Rank     int             `json:"rank"`
			Kills    int             `json:"kills"`
			Winnings decimal.Decimal `json:"winnings"`
		} `json:"results" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results := make([]match.PlayerResult, 0, len(req.Results))
	for _, r := range req.Results {
		paise, err := rupeesToPaise(r.Winnings)
		if err != nil {
			fail(c, err)
			return
		}
		results = append(results, match.PlayerResult{
			UserID:   r.UserID,
			Rank:     r.Rank,
			Kills:    r.Kills,
			Winnings: paise,
		})
	}

	ident := auth.CurrentIdentity(c)
	if err := s.matches.DeclareResults(c.Request.Context(), ident, c.Param("id"), results); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"declared": len(results)})
}
