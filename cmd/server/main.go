package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"attendance-session-service/internal/app"
	"attendance-session-service/internal/config"
	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/http/handler"
	"attendance-session-service/internal/http/router"
	"attendance-session-service/internal/observability"
	"attendance-session-service/internal/repository"
	"attendance-session-service/internal/security"
	"attendance-session-service/internal/service"
	"attendance-session-service/internal/tools/attendgen"
	"attendance-session-service/internal/tools/common"
)

func main() {
	root := &cobra.Command{
		Use:   "attendance-server",
		Short: "Attendance session backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
	root.AddCommand(attendgen.NewCommand())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context) error {
	if err := common.LoadEnvFile(".env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
	if err != nil {
		return err
	}
	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&domain.Session{},
		&domain.AttendanceRecord{},
		&repository.SessionClass{},
		&domain.Enrollment{},
		&domain.ManagedClass{},
		&domain.LeaveRequest{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	var rosterCache service.RosterCacheStore = service.NewInMemoryRosterCacheStore()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, falling back to in-memory roster cache", "error", err)
		} else {
			rosterCache = service.NewRedisRosterCacheStore(client, "")
		}
	}

	sessionRepo := repository.NewSessionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	scopes := service.NewScopeResolver(rosterCache, rosterRepo, cfg.RosterCacheTTL)
	lifecycle := service.NewLifecycleService(sessionRepo, rosterRepo, leaveRepo, scopes, cfg.QRTokenTTL)
	checkIn := service.NewCheckInService(sessionRepo, lifecycle, cfg.CheckInLateGrace)
	stats := service.NewStatisticsService(sessionRepo, lifecycle, scopes)

	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret)
	h := router.NewRouter(router.Dependencies{
		AttendanceHandler:   handler.NewAttendanceHandler(lifecycle, checkIn, stats),
		JWTManager:          jwtMgr,
		APIRateLimitRPM:     cfg.APIRateLimitRPM,
		CheckInRateLimitRPM: cfg.CheckInRateLimitRPM,
		EnableOTelHTTP:      cfg.EnableOTelHTTP,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a := app.New(cfg, logger, server, runtime)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "profile", cfg.Profile)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		return a.Shutdown(context.Background())
	}
}
