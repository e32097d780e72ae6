// @title           ClearInsure API
// @version         1.0
// @description     Motor insurance administration portal: insurers issue policies and handle claims, customers follow their policies and raise requests, regulators oversee the market, and admins run onboarding and reference data.
// @contact.name    Aldo Rifki Putra
// @contact.email   aldoetobex@gmail.com
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/metrics"
	"github.com/aldoetobex/clearinsure-backend/pkg/migrate"
	"github.com/aldoetobex/clearinsure-backend/pkg/redis"

	_ "github.com/aldoetobex/clearinsure-backend/docs"
)

func main() {
	logg := logger.New(logger.Options{Service: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		Service:   "api",
		Level:     logger.ParseLevel(cfg.App.LogLevel),
		Console:   cfg.App.IsDev(),
		WarnStack: cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env})

	dbClient, err := database.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	// Redis only backs quote drafts and login throttling; both degrade
	// gracefully without it.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" || cfg.Redis.Address != "" {
		redisClient, err = redis.New(ctx, cfg.Redis)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable, continuing without drafts and login throttling")
			redisClient = nil
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logg.Error(ctx, "error closing redis", err)
				}
			}()
		}
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(registry)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler(logg),
		BodyLimit:    (cfg.Storage.MaxUploadMB*len(storage.PolicyPhotoSlots) + 1) << 20,
	})

	register(app, deps{
		cfg:      cfg,
		logg:     logg,
		db:       dbClient,
		redis:    redisClient,
		store:    store,
		rec:      rec,
		registry: registry,
	})

	addr := ":" + cfg.App.Port
	ctx = logg.WithField(ctx, "addr", addr)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := app.Listen(addr); err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Error(ctx, "graceful shutdown failed", err)
	}
	logg.Info(ctx, "api server stopped")
}
