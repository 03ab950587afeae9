package bse

import (
	"testing"
	"time"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

func TestRiskLevelFor(t *testing.T) {
	cases := []struct {
		score int
		want  string
	}{
		{0, models.RiskLevelSuspicious},
		{49, models.RiskLevelSuspicious},
		{50, models.RiskLevelNormal},
		{79, models.RiskLevelNormal},
		{80, models.RiskLevelHighlyTrusted},
		{100, models.RiskLevelHighlyTrusted},
	}
	for _, c := range cases {
		if got := RiskLevelFor(c.score); got != c.want {
			t.Errorf("RiskLevelFor(%d) = %q, want %q", c.score, got, c.want)
		}
	}
}

func TestBoundChange(t *testing.T) {
	cases := []struct {
		candidate, current, want float64
	}{
		{90, 50, 60},  // +10 cap
		{10, 50, 40},  // -10 floor
		{55, 50, 55},  // within bound, passes through
	}
	for _, c := range cases {
		if got := boundChange(c.candidate, c.current); got != c.want {
			t.Errorf("boundChange(%v, %v) = %v, want %v", c.candidate, c.current, got, c.want)
		}
	}
}

func TestScore_NewAccountPenalty(t *testing.T) {
	engine := NewEngine(nil)
	event := models.Event{
		UserID:    "user-1",
		EventType: models.EventLogin,
		Timestamp: time.Now(),
	}
	userCtx := models.UserContext{AccountAgeDays: 0, CurrentScore: 100}

	result := engine.Score(event, userCtx)

	found := false
	for _, f := range result.Flags {
		if f == "new_account" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected new_account flag, got %v", result.Flags)
	}
	// base 100 - 20 = 80; new_account raises a flag so the ±10 bound
	// vs current_score is bypassed and the raw value passes through.
	if result.Score != 80 {
		t.Errorf("score = %d, want 80", result.Score)
	}
}

func TestScore_BoundAppliesWithNoFlags(t *testing.T) {
	engine := NewEngine(nil)
	event := models.Event{
		UserID:    "user-1",
		EventType: models.EventSignup,
		Timestamp: time.Now(),
	}
	userCtx := models.UserContext{AccountAgeDays: 100, CurrentScore: 50}

	result := engine.Score(event, userCtx)
	if len(result.Flags) != 0 {
		t.Fatalf("expected no flags for a mid-age account with no signals, got %v", result.Flags)
	}
	// base stays 100, no bound-bypass flags raised, so the ±10 rule vs
	// current_score(50) caps the result at 60.
	if result.Score != 60 {
		t.Errorf("score = %d, want 60", result.Score)
	}
}

func TestScore_NonMapBotAnalysisStaysInBounds(t *testing.T) {
	engine := NewEngine(nil)
	event := models.Event{
		UserID:    "user-1",
		EventType: models.EventLogin,
		Timestamp: time.Now(),
		Metadata: models.JSONB{
			"bot_analysis": "not-a-map-but-string-wont-panic",
		},
	}
	userCtx := models.UserContext{AccountAgeDays: 10, CurrentScore: 50}

	result := engine.Score(event, userCtx)
	if result.Score < 0 || result.Score > 100 {
		t.Errorf("score out of bounds: %d", result.Score)
	}
}

func TestScore_ForwardDefaultsTrue(t *testing.T) {
	engine := NewEngine(nil)
	event := models.Event{UserID: "u", EventType: models.EventLogin, Timestamp: time.Now()}
	result := engine.Score(event, models.UserContext{AccountAgeDays: 10, CurrentScore: 50})
	if !result.Forward {
		t.Error("expected Forward to be true")
	}
}
