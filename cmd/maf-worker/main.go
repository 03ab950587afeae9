// Command maf-worker consumes fingerprint records off the stream ingress
// publishes to, persists them, and runs the MAF pattern bank against each
// one (§4.2).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/maf"
	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/queue"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := configs.Load()
	if err != nil {
		setupLogging("production")
		log.Error().Err(err).Msg("maf-worker: configuration error")
		os.Exit(1)
	}

	setupLogging(cfg.Server.Environment)
	log.Info().Str("environment", cfg.Server.Environment).Msg("maf-worker: starting")

	db, err := store.NewDatabase(cfg.Database)
	if err != nil {
		log.Error().Err(err).Msg("maf-worker: database unreachable")
		os.Exit(2)
	}
	defer db.Close()

	stream, err := queue.NewFingerprintStreamClient(cfg.Redis)
	if err != nil {
		log.Error().Err(err).Msg("maf-worker: fingerprint stream unreachable")
		os.Exit(2)
	}
	defer stream.Close()

	deadLetter, err := queue.NewDeadLetterProducer(cfg.Kafka)
	if err != nil {
		log.Error().Err(err).Msg("maf-worker: dead-letter producer unreachable")
		os.Exit(2)
	}
	defer deadLetter.Close()

	fingerprints := store.NewFingerprintStore(db)
	anomalies := store.NewAnomalyStore(db)
	users := store.NewUserStore(db)
	misc := store.NewMiscStore(db)
	mafService := maf.NewService(fingerprints, anomalies)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		runConsumeLoop(ctx, stream, fingerprints, users, misc, deadLetter, mafService)
		close(done)
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("maf-worker: shutting down")
	cancel()
	<-done
	log.Info().Msg("maf-worker: exited")
}

const consumerName = "maf-worker"

func runConsumeLoop(
	ctx context.Context,
	stream *queue.FingerprintStreamClient,
	fingerprints *store.FingerprintStore,
	users *store.UserStore,
	misc *store.MiscStore,
	deadLetter *queue.DeadLetterProducer,
	mafService *maf.Service,
) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		messages, err := stream.Consume(ctx, consumerName, 10, 5*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("maf-worker: consume failed, backing off")
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range messages {
			processMessage(ctx, msg, stream, fingerprints, users, misc, deadLetter, mafService)
		}
	}
}

func processMessage(
	ctx context.Context,
	msg queue.StreamMessage,
	stream *queue.FingerprintStreamClient,
	fingerprints *store.FingerprintStore,
	users *store.UserStore,
	misc *store.MiscStore,
	deadLetter *queue.DeadLetterProducer,
	mafService *maf.Service,
) {
	record := msg.Record
	if err := fingerprints.Create(ctx, record); err != nil {
		log.Error().Err(err).Str("user_id", record.UserID).Msg("maf-worker: failed to persist fingerprint record, sending to dead letter")
		dle := queue.DeadLetterEvent{
			Event:    models.Event{UserID: record.UserID, EventType: record.EventType, Timestamp: record.Timestamp},
			Reason:   "fingerprint_persist_failed",
			FailedAt: time.Now().UTC(),
		}
		if pubErr := deadLetter.Publish(ctx, dle); pubErr != nil {
			log.Error().Err(pubErr).Str("user_id", record.UserID).Msg("maf-worker: failed to publish dead letter event")
		}
		return
	}

	var behaviorScore *int
	if u, err := users.GetByID(ctx, record.UserID); err == nil && u != nil {
		behaviorScore = &u.BehaviorScore
	}

	if _, _, err := mafService.ProcessEvaluation(ctx, *record, behaviorScore); err != nil {
		log.Error().Err(err).Str("user_id", record.UserID).Msg("maf-worker: pattern evaluation failed")
		misc.SkippedPayload(ctx, models.JSONB{"user_id": record.UserID, "fingerprint_id": record.ID}, "maf_evaluation_failed")
	}

	if err := stream.Acknowledge(ctx, msg.ID); err != nil {
		log.Warn().Err(err).Str("message_id", msg.ID).Msg("maf-worker: failed to acknowledge message")
	}
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
