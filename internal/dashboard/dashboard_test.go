package dashboard

import (
	"testing"
	"time"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

func TestScoreZones_Buckets(t *testing.T) {
	entries := []models.LeaderboardEntry{
		{BehaviorScore: 10},
		{BehaviorScore: 49},
		{BehaviorScore: 50},
		{BehaviorScore: 79},
		{BehaviorScore: 80},
		{BehaviorScore: 100},
	}
	zones := scoreZones(entries)
	if zones["suspicious"] != 2 {
		t.Errorf("suspicious = %v, want 2", zones["suspicious"])
	}
	if zones["normal"] != 2 {
		t.Errorf("normal = %v, want 2", zones["normal"])
	}
	if zones["highly_trusted"] != 2 {
		t.Errorf("highly_trusted = %v, want 2", zones["highly_trusted"])
	}
}

func TestFlagPie_CountsByFlagName(t *testing.T) {
	flags := []models.RiskFlag{
		{Flag: "new_account"},
		{Flag: "new_account"},
		{Flag: "high_velocity_activity"},
	}
	pie := flagPie(flags)
	if pie["new_account"] != 2 {
		t.Errorf("new_account = %d, want 2", pie["new_account"])
	}
	if pie["high_velocity_activity"] != 1 {
		t.Errorf("high_velocity_activity = %d, want 1", pie["high_velocity_activity"])
	}
}

func TestBSETrend_BucketsByHour(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 1, 10, 45, 0, 0, time.UTC)
	t3 := time.Date(2026, 1, 1, 11, 5, 0, 0, time.UTC)
	flags := []models.RiskFlag{{Timestamp: t1}, {Timestamp: t2}, {Timestamp: t3}}

	buckets := bseTrend(flags, t1, t3)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 hourly buckets, got %d", len(buckets))
	}
}

func TestBotPatternBubbles_ShapesAnomalies(t *testing.T) {
	anomalies := []models.Anomaly{
		{PatternName: "same_ip_signups", Severity: models.SeverityMedium, RiskScore: 40, AffectedUsers: []string{"a", "b"}},
	}
	bubbles := botPatternBubbles(anomalies)
	if len(bubbles) != 1 {
		t.Fatalf("expected 1 bubble, got %d", len(bubbles))
	}
	if bubbles[0]["users"] != 2 {
		t.Errorf("users = %v, want 2", bubbles[0]["users"])
	}
}
