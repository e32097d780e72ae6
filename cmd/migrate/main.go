package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/aldoetobex/clearinsure-backend/internal/seed"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/migrate"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
)

func main() {
	logg := logger.New(logger.Options{Service: "migrate"})

	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "command: up|down|status|version|seed")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		Service:   "migrate",
		Level:     logger.ParseLevel(cfg.App.LogLevel),
		Console:   cfg.App.IsDev(),
		WarnStack: cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"driver": cfg.DB.Driver,
	})

	client, err := database.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer client.Close()

	if *cmd == "seed" {
		if _, err := seed.Run(ctx, client.DB(), cfg.Seed, logg); err != nil {
			fail("seed failed: %v", err)
		}
		return
	}

	if client.DB().Dialector.Name() == "sqlite" {
		if *cmd != "up" {
			fail("sqlite only supports -cmd=up and -cmd=seed")
		}
		if err := client.DB().AutoMigrate(models.All()...); err != nil {
			fail("automigrate failed: %v", err)
		}
		logg.Info(ctx, "automigrate completed")
		return
	}

	sqlDB, err := client.DB().DB()
	requireResource(ctx, logg, "sql database", err)
	logg.Info(ctx, "migrate ready")

	switch *cmd {
	case "up", "down", "status":
		if err := migrate.Run(ctx, sqlDB, *cmd); err != nil {
			fail("goose %s failed: %v", *cmd, err)
		}
	case "version":
		if *version == "" {
			fail("missing -version for version command")
		}
		if err := migrate.ToVersion(ctx, sqlDB, *version); err != nil {
			fail("goose version migrate failed: %v", err)
		}
	default:
		fail("unknown -cmd value: %s", *cmd)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
