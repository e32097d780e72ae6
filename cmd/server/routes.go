package main

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aldoetobex/clearinsure-backend/internal/admin"
	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/internal/claims"
	"github.com/aldoetobex/clearinsure-backend/internal/files"
	"github.com/aldoetobex/clearinsure-backend/internal/monitoring"
	"github.com/aldoetobex/clearinsure-backend/internal/onboarding"
	"github.com/aldoetobex/clearinsure-backend/internal/policies"
	"github.com/aldoetobex/clearinsure-backend/internal/quotes"
	"github.com/aldoetobex/clearinsure-backend/internal/regulator"
	"github.com/aldoetobex/clearinsure-backend/internal/requests"
	"github.com/aldoetobex/clearinsure-backend/internal/storage"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/database"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/metrics"
	"github.com/aldoetobex/clearinsure-backend/pkg/models"
	"github.com/aldoetobex/clearinsure-backend/pkg/redis"
)

type deps struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *database.Client
	redis    *redis.Client // nil when redis is not configured
	store    storage.ObjectStore
	rec      *metrics.Recorder
	registry *prometheus.Registry
}

func register(app *fiber.App, d deps) {
	db := d.db.DB()

	useMiddleware(app, d)

	app.Get("/health", health(d))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	// Interfaces stay nil rather than holding a nil *redis.Client.
	var (
		drafts  redis.DraftStore
		limiter redis.RateLimiter
	)
	if d.redis != nil {
		drafts, limiter = d.redis, d.redis
	}

	tokens := auth.NewTokens(d.cfg.JWT.Secret, d.cfg.JWT.TTL)
	authSvc := auth.NewService(auth.ServiceParams{
		DB:      db,
		Tokens:  tokens,
		Limiter: limiter,
		Limits:  d.cfg.AuthRateLimit,
		Logger:  d.logg,
	})
	dir := authSvc.Directory()

	authH := auth.NewHandler(authSvc)
	onboardH := onboarding.NewHandler(onboarding.NewService(db, d.rec, d.logg))
	policyH := policies.NewHandler(policies.NewService(policies.Params{
		DB: db, Store: d.store, Recorder: d.rec, Logger: d.logg,
	}), d.cfg.Storage.MaxUploadMB)
	claimH := claims.NewHandler(claims.NewService(claims.Params{
		DB:       db,
		Store:    d.store,
		Scorer:   claims.NewPlaceholderScorer(d.cfg.Fraud.MinScore, d.cfg.Fraud.MaxScore),
		Recorder: d.rec,
		Logger:   d.logg,
	}), d.cfg.Storage.MaxUploadMB)
	quoteH := quotes.NewHandler(quotes.NewService(quotes.Params{
		DB: db, Drafts: drafts, DraftTTL: d.cfg.Redis.DraftTTL, Recorder: d.rec, Logger: d.logg,
	}))
	requestH := requests.NewHandler(requests.NewService(db, d.rec, d.logg))
	monitorH := monitoring.NewHandler(monitoring.NewService(db))
	adminH := admin.NewHandler(admin.NewService(db, d.logg))
	regulatorH := regulator.NewHandler(regulator.NewService(db))
	fileH := files.NewHandler(files.NewService(db, d.store, d.cfg.Storage.SignedURLTTL))

	api := app.Group("/api")
	authn := auth.RequireAuth(tokens, d.logg)
	as := func(role models.Role) []fiber.Handler {
		return []fiber.Handler{authn, auth.RequireRole(role), auth.RequireActive(dir)}
	}
	approved := auth.RequireApproved(dir)

	// Auth
	api.Post("/auth/signup", authH.Signup)
	api.Post("/auth/login", authH.Login)
	api.Get("/auth/me", authn, authH.Me)

	// Admin
	adm := api.Group("/admin", as(models.RoleAdmin)...)
	adm.Get("/onboarding/:kind", onboardH.AdminList)
	adm.Post("/onboarding/:kind/:id", onboardH.AdminReview)
	adm.Get("/users/:role", adminH.ListUsers)
	adm.Patch("/users/:role/:id", adminH.EditUser)
	adm.Put("/users/:role/:id/active", adminH.SetActive)
	adm.Get("/refs/:kind", adminH.ListRefs)
	adm.Post("/refs/:kind", adminH.CreateRef)
	adm.Post("/refs/:kind/:id/toggle", adminH.ToggleRef)
	adm.Get("/rates", quoteH.AdminRates)
	adm.Put("/rates/:companyId", quoteH.UpsertRate)
	adm.Get("/export", adminH.Export)

	// Customer
	cust := api.Group("/customer", as(models.RoleCustomer)...)
	cust.Get("/policies", policyH.ListOwned)
	cust.Get("/policies/:id", policyH.GetOwned)
	cust.Get("/claims", claimH.ListOwned)
	cust.Get("/requests/policy-search", requestH.SearchPolicy)
	cust.Post("/requests/access", requestH.RequestAccess)
	cust.Post("/requests/cancellation", requestH.RequestCancellation)
	cust.Post("/requests/renewal", requestH.RequestRenewal)
	cust.Get("/requests/:kind", requestH.ListMine)
	cust.Get("/monitoring/search", monitorH.Search)
	cust.Get("/monitoring", monitorH.List)
	cust.Post("/monitoring/:id", monitorH.Monitor)
	cust.Delete("/monitoring/:id", monitorH.Unmonitor)

	// Insurer. Group middleware covers the whole prefix, so the approval
	// gate goes on each route to keep onboarding reachable.
	ins := api.Group("/insurer", as(models.RoleInsurer)...)
	ins.Get("/onboarding", onboardH.Status)
	ins.Post("/onboarding", onboardH.Submit)
	ins.Get("/onboarding/options", onboardH.Affiliations)
	ins.Post("/policies", approved, policyH.Create)
	ins.Get("/policies", approved, policyH.ListCompany)
	ins.Get("/policies/:id", approved, policyH.GetCompany)
	ins.Post("/policies/:id/cancel", approved, policyH.Cancel)
	ins.Post("/policies/:id/photos", approved, policyH.UploadPhotos)
	ins.Post("/claims", approved, claimH.File)
	ins.Get("/claims", approved, claimH.ListCompany)
	ins.Get("/claims/:id", approved, claimH.GetCompany)
	ins.Post("/claims/:id/review", approved, claimH.Review)
	ins.Post("/claims/:id/fraud-check", approved, claimH.FraudCheck)
	ins.Post("/claims/:id/approve", approved, claimH.Approve)
	ins.Post("/claims/:id/reject", approved, claimH.Reject)
	ins.Post("/quotes/calculate", approved, quoteH.Calculate)
	ins.Get("/quotes/draft", approved, quoteH.Draft)
	ins.Post("/quotes", approved, quoteH.Save)
	ins.Get("/quotes", approved, quoteH.List)
	ins.Get("/quotes/:id", approved, quoteH.Get)
	ins.Get("/rates", approved, quoteH.CompanyRates)
	ins.Get("/requests/:kind", approved, requestH.Queue)
	ins.Post("/requests/:kind/:id/review", approved, requestH.Review)

	// Regulator
	reg := api.Group("/regulator", as(models.RoleRegulator)...)
	reg.Get("/onboarding", onboardH.Status)
	reg.Post("/onboarding", onboardH.Submit)
	reg.Get("/onboarding/options", onboardH.Affiliations)
	reg.Get("/policies", approved, regulatorH.ListPolicies)
	reg.Get("/policies/:id", approved, regulatorH.GetPolicy)
	reg.Get("/claims", approved, regulatorH.ListClaims)
	reg.Get("/summary", approved, regulatorH.Summary)

	// Files are scoped per principal by the service.
	api.Get("/files/:kind/:id", authn, auth.RequireActive(dir), approved, fileH.Get)
}

// useMiddleware installs the stack every route runs behind. A handler panic
// becomes a 500 for that request only.
func useMiddleware(app *fiber.App, d deps) {
	app.Use(recover.New(recover.Config{EnableStackTrace: d.cfg.App.IsDev()}))
	app.Use(d.logg.Middleware())
	app.Use(d.rec.Middleware())
}

func health(d deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.Map{"status": "ok", "database": "ok"}
		code := fiber.StatusOK
		if err := d.db.Ping(ctx); err != nil {
			status["status"], status["database"] = "degraded", "unavailable"
			code = fiber.StatusServiceUnavailable
		}
		if d.redis != nil {
			status["redis"] = "ok"
			if err := d.redis.Ping(ctx); err != nil {
				status["redis"] = "unavailable"
			}
		}
		return c.Status(code).JSON(status)
	}
}
