package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mediaplatform/config"
	"mediaplatform/db"
	"mediaplatform/handlers"
	"mediaplatform/jobs"
	"mediaplatform/logging"
	"mediaplatform/metrics"
	"mediaplatform/middleware"
	"mediaplatform/models"
	"mediaplatform/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().
		Bool("auth", cfg.Features.AuthEnabled).
		Bool("billing", cfg.Features.BillingEnabled).
		Bool("email", cfg.Features.EmailEnabled).
		Msg("features")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn, cfg.SchemaPath); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}
	log.Info().Msg("database schema verified")

	m := metrics.Default()
	users := db.NewEntitlementStore(conn)
	logStore := db.NewLogStore(conn)
	audit := services.NewAudit(logStore, cfg.StoreTimeout)
	ops := services.NewSlackNotifier(cfg.SlackWebhookURL)

	var mailer jobs.Mailer = services.LogMailer{}
	if cfg.Features.EmailEnabled {
		mailer = services.NewSendGridMailer(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
	}
	emails := jobs.NewEmailQueue(mailer, m, cfg.EmailWorkers, 100, 30*time.Second)
	emails.Start()

	scheduler := jobs.NewScheduler(jobs.NewLogCleanup(logStore, audit, m, cfg.LogRetentionDays, time.Minute))
	if err := scheduler.Start(cfg.LogCleanupSchedule); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}

	h := &handlers.Handler{
		Users:     users,
		Logs:      logStore,
		Emails:    emails,
		JWTSecret: []byte(cfg.JWTSecret),
		Features:  cfg.Features,
	}

	if cfg.Features.BillingEnabled {
		verifier, err := services.NewVerifier(cfg.StripeWebhookSecret)
		if err != nil {
			log.Fatal().Err(err).Msg("stripe webhook verification unavailable")
		}
		provider, err := services.NewStripeProvider(services.StripeConfig{
			SecretKey:  cfg.StripeSecretKey,
			APIURL:     cfg.StripeAPIURL,
			Timeout:    cfg.ProviderTimeout,
			MaxRetries: 2,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("stripe client unavailable")
		}

		h.Verifier = verifier
		h.Reconciler = services.NewReconciler(services.ReconcilerDeps{
			Store:        users,
			Ledger:       db.NewEventLedger(conn),
			Audit:        audit,
			Emails:       emails,
			Ops:          ops,
			Metrics:      m,
			StoreTimeout: cfg.StoreTimeout,
		})
		resolver := services.NewCustomerResolver(users, provider, audit, ops, m, cfg.StoreTimeout)
		h.Checkout = services.NewCheckoutService(resolver, provider, cfg.StripeProPriceID, cfg.FrontendURL)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(h, users, cfg.Features),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		<-scheduler.Stop().Done()
		if qerr := emails.Stop(shutdownCtx); qerr != nil {
			log.Warn().Err(qerr).Msg("email queue did not drain")
		}
		audit.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func newRouter(h *handlers.Handler, users middleware.UserFinder, features config.Features) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	r.POST("/webhooks/stripe", h.StripeWebhook)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/health", h.Health)

	if !features.AuthEnabled {
		return r
	}

	auth := api.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.GET("/me", middleware.AuthRequired(h.JWTSecret), h.Me)
	}

	content := api.Group("/content", middleware.AuthRequired(h.JWTSecret), middleware.RequireRole(users, models.RolePro, models.RoleAdmin))
	{
		content.GET("/pro", h.ProContent)
	}

	payments := api.Group("/payments", middleware.AuthRequired(h.JWTSecret))
	{
		payments.POST("/checkout", h.CreateCheckout)
	}

	admin := api.Group("/admin", middleware.AuthRequired(h.JWTSecret), middleware.RequireRole(users, models.RoleAdmin))
	{
		admin.GET("/users", h.ListUsers)
		admin.GET("/users/:id", h.GetUserEntitlement)
		admin.GET("/logs", h.ListLogs)
		admin.GET("/stats/subscriptions", h.GetSubscriptionStats)
	}
	return r
}
