package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"library/docs" // swagger docs

	"github.com/labstack/echo/v4"

	"library/internal/auth"
	"library/internal/cache"
	"library/internal/config"
	"library/internal/db"
	"library/internal/handler"
	"library/internal/model"
	"library/internal/notify"
	"library/internal/repository"
	"library/internal/router"
	"library/internal/scheduler"
	"library/internal/service"
)

const notifyQueueSize = 256

// @title Library Management API
// @version 1.0
// @description Library lending API: catalogue, borrowing and returns, overdue tracking, notifications and JWT authentication.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		fatal("database init", err)
	}

	// Drop tables if RESET_DB environment variable is set
	if os.Getenv("RESET_DB") == "true" {
		logger.Warn("RESET_DB=true detected, dropping all tables")
		tables := model.All()
		for i := len(tables) - 1; i >= 0; i-- {
			if err := gormDB.Migrator().DropTable(tables[i]); err != nil {
				logger.Warn("drop table failed", "err", err)
			}
		}
	}

	if os.Getenv("AUTO_MIGRATE") != "false" {
		if err := gormDB.AutoMigrate(model.All()...); err != nil {
			fatal("auto-migrate", err)
		}
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	repos := repository.NewRepositories(gormDB)
	transactor := repository.NewTransactor(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Notifications: mail plus in-app records, queued for request handlers.
	mailer := newMailer(cfg, logger)
	emitter := notify.Multi(mailer, notify.NewInAppEmitter(repos.Notifications, logger))
	dispatcher := notify.NewDispatcher(emitter, notifyQueueSize, logger)

	// Initialize services
	authService := service.NewAuthService(repos.Users, jwtService, tokenStore, dispatcher, cfg.AppURL, logger)
	bookService := service.NewBookService(repos.Books, transactor, cacheClient, logger)
	borrowingService := service.NewBorrowingService(repos, transactor, dispatcher, service.BorrowingOptions{
		LateFeePerDay: cfg.LateFeePerDay,
		Logger:        logger,
	})
	sweepService := service.NewSweepService(repos.Borrowings, cacheClient, emitter, nil, logger)
	userService := service.NewUserService(repos, transactor, logger)
	notificationService := service.NewNotificationService(repos.Notifications, mailer, cfg.AppURL)

	e := echo.New()
	e.HideBanner = true

	router.Register(e, cfg, router.Handlers{
		Auth:         handler.NewAuthHandler(authService),
		Book:         handler.NewBookHandler(bookService),
		Borrowing:    handler.NewBorrowingHandler(borrowingService, sweepService),
		Admin:        handler.NewAdminHandler(userService, notificationService),
		Notification: handler.NewNotificationHandler(notificationService),
	}, jwtService, tokenStore)

	var sched *scheduler.Scheduler
	if cfg.SweepSchedule != "" {
		sched = scheduler.New(sweepService, logger)
		if err := sched.Schedule(cfg.SweepSchedule); err != nil {
			fatal("invalid SWEEP_SCHEDULE", err)
		}
		sched.Start()
		logger.Info("overdue sweep scheduled", "schedule", cfg.SweepSchedule)
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET is empty, the sweep endpoint rejects every request")
	}

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "http://"), "https://")
	}
	logger.Info("swagger documentation available", "path", "/swagger/index.html")

	go func() {
		addr := ":" + cfg.ServerPort
		logger.Info("server starting", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server start", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}
	if sched != nil {
		sched.Stop(shutdownCtx)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("notification queue drain", "err", err)
	}
	logger.Info("server stopped")
}

// newMailer returns an SMTP-backed emitter, or a log-only emitter when SMTP
// is not configured.
func newMailer(cfg *config.Config, logger *slog.Logger) notify.Emitter {
	if !cfg.SMTP.Enabled() {
		logger.Warn("SMTP_HOST not set, emails are logged instead of sent")
		return notify.NewLogEmitter(logger)
	}
	client, err := notify.NewSMTPSender(notify.SMTPSettings{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Secure:   cfg.SMTP.Secure,
	})
	if err != nil {
		fatal("smtp client", err)
	}
	return notify.NewMailEmitter(client, cfg.SMTP.From, logger)
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
