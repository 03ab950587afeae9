package maf

import (
	"time"

	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/velocity"
)

// ScoreInput is what FlagColor needs: the anomalies matched against the
// current event plus the behavior score (nil when the user has none yet)
// and the velocity classification for this user/event.
type ScoreInput struct {
	Anomalies     []models.Anomaly
	BehaviorScore *int
	VelocityScore string
}

func anyHighSeverity(anomalies []models.Anomaly) bool {
	for _, a := range anomalies {
		if a.Severity == models.SeverityHigh {
			return true
		}
	}
	return false
}

// FlagColor implements the §4.2 determination matrix.
func FlagColor(in ScoreInput) string {
	if anyHighSeverity(in.Anomalies) {
		return models.FlagColorRed
	}

	if in.BehaviorScore == nil {
		if len(in.Anomalies) > 0 || in.VelocityScore == velocity.High {
			return models.FlagColorYellow
		}
		return models.FlagColorGreen
	}

	score := *in.BehaviorScore
	switch {
	case score < 50:
		return models.FlagColorRed
	case score <= 79 && (len(in.Anomalies) > 0 || in.VelocityScore == velocity.Medium || in.VelocityScore == velocity.High):
		return models.FlagColorYellow
	case score > 80 && in.VelocityScore == velocity.Low && len(in.Anomalies) == 0:
		return models.FlagColorGreen
	default:
		return models.FlagColorYellow
	}
}

// FinalRiskAssessment combines BSE's risk level with MAF's flag color into
// the integration-output matrix (§4.2).
func FinalRiskAssessment(riskLevel, flagColor string) string {
	switch {
	case flagColor == models.FlagColorRed && riskLevel == models.RiskLevelSuspicious:
		return models.RiskCritical
	case flagColor == models.FlagColorRed:
		return models.RiskHigh
	case flagColor == models.FlagColorYellow && riskLevel == models.RiskLevelSuspicious:
		return models.RiskHigh
	case flagColor == models.FlagColorYellow:
		return models.RiskMedium
	case flagColor == models.FlagColorGreen && riskLevel == models.RiskLevelHighlyTrusted:
		return models.RiskVeryLow
	default:
		return models.RiskLow
	}
}

// VelocityMetrics computes the per-user, per-event counts MAF needs from a
// window of fingerprint sightings (§4.2 velocity metrics).
func VelocityMetrics(event models.FingerprintRecord, window []Sighting) velocity.Metrics {
	var m velocity.Metrics
	ips := make(map[string]struct{})
	devices := make(map[string]struct{})

	for _, s := range window {
		if s.UserID != event.UserID {
			continue
		}
		age := event.Timestamp.Sub(s.Timestamp)
		if age < 0 {
			continue
		}
		if age <= 5*time.Minute {
			m.EventCount5m++
		}
		if age <= time.Hour {
			m.EventCount1h++
			if s.IP != "" {
				ips[s.IP] = struct{}{}
			}
			if s.DeviceHash != "" {
				devices[s.DeviceHash] = struct{}{}
			}
		}
	}

	m.UniqueIPs1h = len(ips)
	m.UniqueDevices1h = len(devices)
	return m
}
