package maf

import (
	"testing"
	"time"

	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/velocity"
)

func intPtr(v int) *int { return &v }

func TestFlagColor_HighSeverityAnomalyAlwaysRed(t *testing.T) {
	in := ScoreInput{
		Anomalies:     []models.Anomaly{{Severity: models.SeverityHigh}},
		BehaviorScore: intPtr(95),
		VelocityScore: velocity.Low,
	}
	if got := FlagColor(in); got != models.FlagColorRed {
		t.Errorf("FlagColor = %q, want RED", got)
	}
}

func TestFlagColor_NoBehaviorScoreYellowOnVelocity(t *testing.T) {
	in := ScoreInput{VelocityScore: velocity.High}
	if got := FlagColor(in); got != models.FlagColorYellow {
		t.Errorf("FlagColor = %q, want YELLOW", got)
	}
}

func TestFlagColor_NoBehaviorScoreGreenWhenClean(t *testing.T) {
	in := ScoreInput{VelocityScore: velocity.Low}
	if got := FlagColor(in); got != models.FlagColorGreen {
		t.Errorf("FlagColor = %q, want GREEN", got)
	}
}

func TestFlagColor_LowBehaviorScoreIsRed(t *testing.T) {
	in := ScoreInput{BehaviorScore: intPtr(49), VelocityScore: velocity.Low}
	if got := FlagColor(in); got != models.FlagColorRed {
		t.Errorf("FlagColor = %q, want RED", got)
	}
}

func TestFlagColor_MidScoreYellowWithAnomaly(t *testing.T) {
	in := ScoreInput{
		BehaviorScore: intPtr(70),
		Anomalies:     []models.Anomaly{{Severity: models.SeverityMedium}},
		VelocityScore: velocity.Low,
	}
	if got := FlagColor(in); got != models.FlagColorYellow {
		t.Errorf("FlagColor = %q, want YELLOW", got)
	}
}

func TestFlagColor_HighScoreCleanIsGreen(t *testing.T) {
	in := ScoreInput{BehaviorScore: intPtr(90), VelocityScore: velocity.Low}
	if got := FlagColor(in); got != models.FlagColorGreen {
		t.Errorf("FlagColor = %q, want GREEN", got)
	}
}

func TestFlagColor_HighScoreElevatedVelocityDefaultsYellow(t *testing.T) {
	in := ScoreInput{BehaviorScore: intPtr(85), VelocityScore: velocity.Medium}
	if got := FlagColor(in); got != models.FlagColorYellow {
		t.Errorf("FlagColor = %q, want YELLOW", got)
	}
}

func TestFlagColor_ScoreExactly80CleanDefaultsYellow(t *testing.T) {
	in := ScoreInput{BehaviorScore: intPtr(80), VelocityScore: velocity.Low}
	if got := FlagColor(in); got != models.FlagColorYellow {
		t.Errorf("FlagColor = %q, want YELLOW (rule 5 requires score strictly > 80)", got)
	}
}

func TestFinalRiskAssessment_Matrix(t *testing.T) {
	cases := []struct {
		flagColor, riskLevel, want string
	}{
		{models.FlagColorRed, models.RiskLevelSuspicious, models.RiskCritical},
		{models.FlagColorRed, models.RiskLevelNormal, models.RiskHigh},
		{models.FlagColorYellow, models.RiskLevelSuspicious, models.RiskHigh},
		{models.FlagColorYellow, models.RiskLevelNormal, models.RiskMedium},
		{models.FlagColorGreen, models.RiskLevelHighlyTrusted, models.RiskVeryLow},
		{models.FlagColorGreen, models.RiskLevelNormal, models.RiskLow},
	}
	for _, c := range cases {
		if got := FinalRiskAssessment(c.riskLevel, c.flagColor); got != c.want {
			t.Errorf("FinalRiskAssessment(%q, %q) = %q, want %q", c.riskLevel, c.flagColor, got, c.want)
		}
	}
}

func TestVelocityMetrics_FiltersOtherUsersAndFutureEvents(t *testing.T) {
	event := models.FingerprintRecord{UserID: "u1"}
	window := []Sighting{
		{UserID: "u2", IP: "1.1.1.1"},                       // different user, excluded
		{UserID: "u1", IP: "2.2.2.2", DeviceHash: "dh1"},
		{UserID: "u1", IP: "3.3.3.3", DeviceHash: "dh2", Timestamp: time.Time{}.Add(time.Minute)}, // after the event, excluded
	}
	m := VelocityMetrics(event, window)
	if m.UniqueIPs1h != 1 {
		t.Errorf("UniqueIPs1h = %d, want 1", m.UniqueIPs1h)
	}
	if m.UniqueDevices1h != 1 {
		t.Errorf("UniqueDevices1h = %d, want 1", m.UniqueDevices1h)
	}
}
