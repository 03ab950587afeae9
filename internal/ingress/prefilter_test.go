package ingress

import "testing"

func TestBotPrefilter_DetectsBotUserAgent(t *testing.T) {
	result := BotPrefilter("Mozilla/5.0 GoogleBot crawler scanning the web", "device-1")
	if !result.Blocked() {
		t.Errorf("expected bot user-agent to be blocked: %+v", result)
	}
}

func TestBotPrefilter_ShortUserAgentAndMissingFingerprint(t *testing.T) {
	result := BotPrefilter("curl", "")
	if !result.Blocked() {
		t.Errorf("expected short UA + missing fingerprint to cross the 2-signal threshold: %+v", result)
	}
	if len(result.Signals) != 2 {
		t.Errorf("signals = %v, want 2", result.Signals)
	}
}

func TestBotPrefilter_LegitimateRequestNotBlocked(t *testing.T) {
	result := BotPrefilter("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", "device-123")
	if result.Blocked() {
		t.Errorf("expected a normal browser UA with a fingerprint to pass: %+v", result)
	}
}

func TestBotPrefilterResult_Blocked_ProbabilityThreshold(t *testing.T) {
	r := BotPrefilterResult{Probability: 0.81}
	if !r.Blocked() {
		t.Error("expected probability > 0.8 to block")
	}
	r = BotPrefilterResult{Probability: 0.8}
	if r.Blocked() {
		t.Error("expected probability == 0.8 to not block on its own")
	}
}
