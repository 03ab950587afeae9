package maf

import (
	"testing"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

func sighting(userID, eventType, ip, deviceHash string) Sighting {
	return models.FingerprintRecord{
		UserID:    userID,
		EventType: eventType,
		IP:        ip,
		DeviceHash: deviceHash,
	}
}

func TestSameIPSignups_ThresholdExceeded(t *testing.T) {
	var window []Sighting
	for i := 0; i < 6; i++ {
		window = append(window, sighting("user-"+string(rune('a'+i)), models.EventSignup, "1.2.3.4", ""))
	}

	anomalies := sameIPSignups(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].PatternName != "same_ip_signups" {
		t.Errorf("pattern name = %q", anomalies[0].PatternName)
	}
	if anomalies[0].Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want HIGH", anomalies[0].Severity)
	}
	if len(anomalies[0].AffectedUsers) != 6 {
		t.Errorf("affected users = %d, want 6", len(anomalies[0].AffectedUsers))
	}
}

func TestSameIPSignups_BelowThreshold(t *testing.T) {
	var window []Sighting
	for i := 0; i < 5; i++ {
		window = append(window, sighting("user-"+string(rune('a'+i)), models.EventSignup, "1.2.3.4", ""))
	}
	if anomalies := sameIPSignups(window); len(anomalies) != 0 {
		t.Fatalf("expected no anomalies at threshold boundary, got %d", len(anomalies))
	}
}

func TestSameIPSignups_IgnoresOtherEventTypes(t *testing.T) {
	var window []Sighting
	for i := 0; i < 10; i++ {
		window = append(window, sighting("user-"+string(rune('a'+i)), models.EventLogin, "1.2.3.4", ""))
	}
	if anomalies := sameIPSignups(window); len(anomalies) != 0 {
		t.Fatalf("expected login events to be ignored, got %d", len(anomalies))
	}
}

func TestReferralSpam_SeverityEscalatesOnLowDiversity(t *testing.T) {
	var window []Sighting
	// 21 referrals, all from the same 2 IPs => diversity 2/21 < 0.3.
	for i := 0; i < 21; i++ {
		ip := "10.0.0.1"
		if i%10 == 0 {
			ip = "10.0.0.2"
		}
		window = append(window, sighting("spammer", models.EventReferral, ip, ""))
	}

	anomalies := referralSpam(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want %q", anomalies[0].Severity, models.SeverityHigh)
	}
}

func TestReferralSpam_MediumSeverityWithDiverseIPs(t *testing.T) {
	var window []Sighting
	for i := 0; i < 21; i++ {
		window = append(window, sighting("spammer", models.EventReferral, "10.0.0."+string(rune('1'+i%9)), ""))
	}

	anomalies := referralSpam(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != models.SeverityMedium {
		t.Errorf("severity = %q, want %q", anomalies[0].Severity, models.SeverityMedium)
	}
}

func TestDuplicateMemes_ReadsHashFromBrowserDetails(t *testing.T) {
	window := []Sighting{
		{UserID: "u1", EventType: models.EventMemeUpload, BrowserDetails: models.JSONB{"meme_hash": "abc"}},
		{UserID: "u1", EventType: models.EventMemeUpload, BrowserDetails: models.JSONB{"meme_hash": "abc"}},
		{UserID: "u1", EventType: models.EventMemeUpload, BrowserDetails: models.JSONB{"meme_hash": "abc"}},
		{UserID: "u1", EventType: models.EventMemeUpload, BrowserDetails: models.JSONB{"meme_hash": "abc"}},
	}

	anomalies := duplicateMemes(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != models.SeverityLow {
		t.Errorf("severity = %q, want LOW", anomalies[0].Severity)
	}
}

func TestDuplicateMemes_IgnoresMissingHash(t *testing.T) {
	window := []Sighting{
		{UserID: "u1", EventType: models.EventMemeUpload, BrowserDetails: nil},
		{UserID: "u1", EventType: models.EventMemeUpload, BrowserDetails: models.JSONB{}},
	}
	if anomalies := duplicateMemes(window); len(anomalies) != 0 {
		t.Fatalf("expected no anomalies, got %d", len(anomalies))
	}
}

func TestRun_PatternPanicIsRecoveredAndSkipped(t *testing.T) {
	bank := []Pattern{
		{Name: "panics", Threshold: 1, WindowMinutes: 5, Detect: func(window []Sighting) []models.Anomaly {
			panic("boom")
		}},
		{Name: "same_ip_signups", Threshold: 5, WindowMinutes: 60, Detect: sameIPSignups},
	}

	fetch := func(windowMinutes int) []Sighting {
		var window []Sighting
		for i := 0; i < 6; i++ {
			window = append(window, sighting("user-"+string(rune('a'+i)), models.EventSignup, "1.2.3.4", ""))
		}
		return window
	}

	anomalies := Run(bank, fetch)
	if len(anomalies) != 1 {
		t.Fatalf("expected the panicking pattern to be skipped and the other to still run, got %d anomalies", len(anomalies))
	}
}

func TestRiskScore_CapsAt100(t *testing.T) {
	if got := riskScore(100, 5, 70); got != 100 {
		t.Errorf("riskScore(100, 5, 70) = %v, want 100", got)
	}
	if got := riskScore(5, 5, 50); got != 50 {
		t.Errorf("riskScore(5, 5, 50) = %v, want 50", got)
	}
}

func TestLoginVelocityPerIP_SeverityHigh(t *testing.T) {
	var window []Sighting
	for i := 0; i < 11; i++ {
		window = append(window, sighting("user-"+string(rune('a'+i)), models.EventLogin, "1.2.3.4", ""))
	}
	anomalies := loginVelocityPerIP(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want HIGH", anomalies[0].Severity)
	}
}

func TestSameDeviceSignups_SeverityHigh(t *testing.T) {
	var window []Sighting
	for i := 0; i < 4; i++ {
		window = append(window, sighting("user-"+string(rune('a'+i)), models.EventSignup, "", "device-1"))
	}
	anomalies := sameDeviceSignups(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != models.SeverityHigh {
		t.Errorf("severity = %q, want HIGH", anomalies[0].Severity)
	}
}

func TestRapidWalletConnections_SeverityMedium(t *testing.T) {
	var window []Sighting
	for i := 0; i < 11; i++ {
		window = append(window, sighting("user-1", models.EventWalletConnection, "1.2.3.4", ""))
	}
	anomalies := rapidWalletConnections(window)
	if len(anomalies) != 1 {
		t.Fatalf("expected 1 anomaly, got %d", len(anomalies))
	}
	if anomalies[0].Severity != models.SeverityMedium {
		t.Errorf("severity = %q, want MEDIUM", anomalies[0].Severity)
	}
}
