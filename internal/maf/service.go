package maf

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/store"
	"github.com/meridianlabs/trustpipeline/internal/velocity"
)

// Service wires the collector, pattern bank, and flag-color determination
// to the store. It is the consumer-side counterpart of the ingress
// handler, normally driven off the fingerprint stream by cmd/maf-worker.
type Service struct {
	fingerprints *store.FingerprintStore
	anomalies    *store.AnomalyStore
	bank         []Pattern
}

func NewService(fingerprints *store.FingerprintStore, anomalies *store.AnomalyStore) *Service {
	return &Service{
		fingerprints: fingerprints,
		anomalies:    anomalies,
		bank:         DefaultBank(),
	}
}

// ProcessEvaluation runs the full pattern bank against the trailing window
// each pattern needs, persists newly detected anomalies (one insert
// failure is retried once, then degraded to a log line per §4.2 failure
// semantics), and returns the flag color for the triggering event.
func (s *Service) ProcessEvaluation(ctx context.Context, record models.FingerprintRecord, behaviorScore *int) (string, []models.Anomaly, error) {
	fetch := func(windowMinutes int) []Sighting {
		since := record.Timestamp.Add(-time.Duration(windowMinutes) * time.Minute)
		window, err := s.fingerprints.Window(ctx, since, record.Timestamp)
		if err != nil {
			log.Error().Err(err).Int("window_minutes", windowMinutes).Msg("maf: failed to fetch fingerprint window")
			return nil
		}
		return window
	}

	anomalies := Run(s.bank, fetch)
	for i := range anomalies {
		s.persistAnomaly(ctx, &anomalies[i])
	}

	fullHourWindow, err := s.fingerprints.Window(ctx, record.Timestamp.Add(-time.Hour), record.Timestamp)
	if err != nil {
		log.Error().Err(err).Msg("maf: failed to fetch velocity window")
	}
	velocityScore := velocityClassification(record, fullHourWindow)

	relevant := anomaliesAffecting(anomalies, record.UserID)
	color := FlagColor(ScoreInput{Anomalies: relevant, BehaviorScore: behaviorScore, VelocityScore: velocityScore})
	return color, anomalies, nil
}

func (s *Service) persistAnomaly(ctx context.Context, a *models.Anomaly) {
	err := s.anomalies.Create(ctx, a)
	if err == nil {
		return
	}
	log.Warn().Err(err).Str("pattern", a.PatternName).Msg("maf: anomaly insert failed, retrying once")

	if err := s.anomalies.Create(ctx, a); err != nil {
		log.Error().Err(err).Str("pattern", a.PatternName).Msg("maf: anomaly insert failed twice, degrading to log")
	}
}

func anomaliesAffecting(anomalies []models.Anomaly, userID string) []models.Anomaly {
	var out []models.Anomaly
	for _, a := range anomalies {
		for _, u := range a.AffectedUsers {
			if u == userID {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

func velocityClassification(record models.FingerprintRecord, window []Sighting) string {
	m := VelocityMetrics(record, window)
	return velocity.Classify(m)
}
