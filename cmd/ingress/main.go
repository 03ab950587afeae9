// Command ingress runs the HTTP surface: webhook intake (§4.4), the
// operator dashboard (§6), and health/readiness checks.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/agk"
	"github.com/meridianlabs/trustpipeline/internal/auth"
	"github.com/meridianlabs/trustpipeline/internal/bse"
	"github.com/meridianlabs/trustpipeline/internal/cache"
	"github.com/meridianlabs/trustpipeline/internal/dashboard"
	"github.com/meridianlabs/trustpipeline/internal/ingress"
	"github.com/meridianlabs/trustpipeline/internal/maf"
	"github.com/meridianlabs/trustpipeline/internal/queue"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := configs.Load()
	if err != nil {
		// Fatal config errors exit 1 (§6 exit codes).
		setupLogging("production")
		log.Error().Err(err).Msg("ingress: configuration error")
		os.Exit(1)
	}

	setupLogging(cfg.Server.Environment)
	log.Info().Str("environment", cfg.Server.Environment).Str("port", cfg.Server.Port).Msg("ingress: starting")

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("ingress: database unreachable")
		os.Exit(2)
	}
	defer db.Close()

	redisClient, err := cache.NewClient(cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("ingress: redis unreachable")
		os.Exit(2)
	}
	defer redisClient.Close()

	fingerprintStream, err := queue.NewFingerprintStreamClient(cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("ingress: fingerprint stream unreachable")
		os.Exit(2)
	}
	defer fingerprintStream.Close()

	users := store.NewUserStore(db)
	events := store.NewEventStore(db)
	flags := store.NewRiskFlagStore(db)
	anomalies := store.NewAnomalyStore(db)
	leaderboard := store.NewLeaderboardStore(db)
	audit := store.NewAuditStore(db)
	misc := store.NewMiscStore(db)

	forwarder := bse.NewForwarder(cfg.Webhook)
	bseEngine := bse.NewEngine(forwarder)
	identityCache := cache.NewIdentityProviderCache(redisClient, cfg.Redis.IdentityCacheTTL)
	collector := maf.NewCollector(identityCache)

	macSecret := cfg.Security.PasskeyMACSecret
	if macSecret == "" {
		macSecret = cfg.Security.TokenEncryptionKey
	}
	gatekeeper := agk.NewGatekeeper(users, audit, cfg.AGK, []byte(macSecret))

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLoggingMiddleware())

	handler := ingress.NewHandler(cfg.Webhook, db, users, events, flags, audit, misc, redisClient, bseEngine, collector, fingerprintStream)
	handler.RegisterRoutes(router)

	registerAdminRoutes(router, gatekeeper)

	dashboardService := dashboard.NewService(events, flags, anomalies, leaderboard, users, prometheus.DefaultRegisterer)
	var jwtManager *auth.JWTManager
	if cfg.Dashboard.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.Dashboard.JWTSecret, "trustpipeline-dashboard", 24*time.Hour)
	}
	dashboardService.RegisterRoutes(router, jwtManager)

	refreshInterval := time.Duration(cfg.Dashboard.RefreshSeconds) * time.Second
	ctx, cancel := context.WithCancel(context.Background())
	go dashboardService.Run(ctx, refreshInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("ingress: listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ingress: server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("ingress: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ingress: forced shutdown")
	}
	log.Info().Msg("ingress: exited")
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

// registerAdminRoutes exposes the Access Gatekeeper decision as a thin
// HTTP surface for the dashboard/admin tooling to call directly.
func registerAdminRoutes(r *gin.Engine, gatekeeper *agk.Gatekeeper) {
	r.GET("/api/admin/access/:user_id", func(c *gin.Context) {
		decision := gatekeeper.Validate(c.Request.Context(), c.Param("user_id"))
		c.JSON(http.StatusOK, decision)
	})
}
