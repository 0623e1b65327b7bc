package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vocalix/bookline/internal/app"
	"github.com/vocalix/bookline/internal/auth"
	"github.com/vocalix/bookline/internal/clock"
	"github.com/vocalix/bookline/internal/config"
	"github.com/vocalix/bookline/internal/controller"
	"github.com/vocalix/bookline/internal/repository"
	"github.com/vocalix/bookline/internal/repository/base"
	"github.com/vocalix/bookline/internal/service"
	"github.com/vocalix/bookline/internal/signals"
	"github.com/vocalix/bookline/internal/sms"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, "migrations")
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	migrator.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	store := base.NewStore(pool)
	slotRepo := repository.NewSlotRepository(store)
	holdRepo := repository.NewHoldRepository(store)
	bookingRepo := repository.NewBookingRepository(store)
	ruleRepo := repository.NewEscalationRuleRepository(store)
	auditRepo := repository.NewAuditRepository(store)

	clk := clock.NewSystem()
	dispatcher := sms.NewClient(cfg.SMSAPIURL, cfg.SMSAPIKey, cfg.SMSFrom, logger)

	locker := service.NewLockerService(store, slotRepo, holdRepo, clk, logger,
		service.WithHoldTTL(cfg.HoldTTL))
	verifier := service.NewVerificationService(store, slotRepo, holdRepo, bookingRepo, auditRepo, dispatcher, clk, logger,
		service.WithResendCooldown(cfg.ResendCooldown))
	escalation := service.NewEscalationService(store, ruleRepo, auditRepo, clk, logger)

	signalCache := signals.NewCache(rdb)
	resolver := auth.NewResolver(cfg.JWTSecret)

	sweeper := app.NewSweeper(locker, verifier, clk, cfg.SweepInterval, cfg.NotifyInterval, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := controller.NewServer(cfg.Environment, resolver, locker, verifier, escalation, signalCache, logger)

	logger.Info("Starting bookline server",
		zap.String("environment", cfg.Environment),
		zap.String("addr", cfg.HTTPAddr),
	)

	if err := server.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
