package main

import (
	"context"
	"log/slog"
	"os"

	"library/internal/config"
	"library/internal/db"
	"library/internal/model"
	"library/internal/repository"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	logger.Info("starting seed script")

	// Load configuration
	cfg := config.Load()

	// Connect to database
	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		fatal("connect to database", err)
	}

	// Run migrations to ensure schema is up to date
	if err := gormDB.AutoMigrate(model.All()...); err != nil {
		fatal("run migrations", err)
	}

	ctx := context.Background()
	repos := repository.NewRepositories(gormDB)

	adminEmail := os.Getenv("SEED_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@library.local"
	}
	adminPassword := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin123"
	}
	created, err := seedAdmin(ctx, repos.Users, adminEmail, adminPassword)
	if err != nil {
		fatal("seed admin", err)
	}
	logger.Info("admin user ready", "email", adminEmail, "created", created)

	source := os.Getenv("SEED_BOOKS_SOURCE")
	books, err := loadBooks(ctx, source)
	if err != nil {
		fatal("load books", err)
	}
	logger.Info("loaded book catalogue", "source", sourceName(source), "count", len(books))

	seeded, updated, err := seedBooks(ctx, repos.Books, books)
	if err != nil {
		fatal("seed books", err)
	}

	logger.Info("seed completed",
		"books_created", seeded,
		"books_updated", updated,
		"books_processed", seeded+updated,
	)
}

func sourceName(source string) string {
	if source == "" {
		return "builtin"
	}
	return source
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
