// Command sol-worker runs the Scheduled Operations Layer (§4.3): the
// daily BSE recalculation, weekly challenges/reset, and hourly flagged-user
// detection jobs, each fired off a single cooperative scheduler.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/bse"
	"github.com/meridianlabs/trustpipeline/internal/sol"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := configs.Load()
	if err != nil {
		setupLogging("production")
		log.Error().Err(err).Msg("sol-worker: configuration error")
		os.Exit(1)
	}

	setupLogging(cfg.Server.Environment)
	log.Info().Str("environment", cfg.Server.Environment).Msg("sol-worker: starting")

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("sol-worker: database unreachable")
		os.Exit(2)
	}
	defer db.Close()

	templateYAML, err := os.ReadFile("configs/challenge_templates.yaml")
	if err != nil {
		log.Error().Err(err).Msg("sol-worker: failed to read challenge templates")
		os.Exit(1)
	}

	users := store.NewUserStore(db)
	events := store.NewEventStore(db)
	flags := store.NewRiskFlagStore(db)
	anomalies := store.NewAnomalyStore(db)
	leaderboard := store.NewLeaderboardStore(db)
	challenges := store.NewChallengeStore(db)
	jobLogs := store.NewJobLogStore(db)
	alerts := store.NewAlertStore(db)
	audit := store.NewAuditStore(db)

	// SOL's daily recalculation never forwards to the outbound webhook
	// (§4.3), so its engine gets a no-op forwarder.
	bseEngine := bse.NewEngine(nil)

	runner, err := sol.NewRunner(users, events, flags, anomalies, leaderboard, challenges, jobLogs, alerts, audit, bseEngine, cfg.SOL, templateYAML)
	if err != nil {
		log.Error().Err(err).Msg("sol-worker: failed to build runner")
		os.Exit(1)
	}

	scheduler := sol.NewScheduler(runner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		scheduler.Run(ctx)
		close(done)
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("sol-worker: shutting down")
	cancel()
	<-done
	log.Info().Msg("sol-worker: exited")
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
