package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nova_arena/internal/admin"
	"nova_arena/internal/api"
	"nova_arena/internal/auth"
	"nova_arena/internal/config"
	"nova_arena/internal/ledger"
	"nova_arena/internal/logger"
	"nova_arena/internal/match"
)

func main() {
	log := logger.New()

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DBConnStr)
	default:
		dialector = postgres.Open(cfg.DBConnStr)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	err = db.AutoMigrate(
		&ledger.User{},
		&ledger.Transaction{},
		&match.Match{},
		&match.JoinRecord{},
		&match.Result{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	ledgerRepo := ledger.NewRepositoryImpl(db, log)
	engine := ledger.NewService(db, ledgerRepo, ledger.Limits{
		MinDeposit:  cfg.MinDepositPaise,
		MinWithdraw: cfg.MinWithdrawPaise,
	}, log)
	matchRepo := match.NewRepositoryImpl(db, log)
	matchSvc := match.NewService(db, matchRepo, engine, log)
	adminSvc := admin.NewService(engine, log)
	authSvc := auth.NewService(ledgerRepo, cfg.JWTSecret, cfg.TokenTTL, log)

	if err := seedAdmin(cfg, ledgerRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to seed admin account")
	}

	r := gin.Default()
	api.NewServer(engine, matchSvc, adminSvc, authSvc, log).Register(r)

	log.Info().Str("port", cfg.ServerPort).Msg("server starting")
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// seedAdmin creates the configured admin account on first boot. Signup only
// ever produces players, so this is the single path to an admin identity.
func seedAdmin(cfg *config.Config, repo ledger.Repository) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	ctx := context.Background()
	if _, err := repo.GetUserByEmail(ctx, cfg.AdminEmail); err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now()
	return repo.CreateUser(ctx, &ledger.User{
		UserID:       uuid.New().String(),
		Name:         "Admin",
		Email:        cfg.AdminEmail,
		PasswordHash: string(hash),
		Role:         ledger.RoleAdmin,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}
