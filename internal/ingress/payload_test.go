package ingress

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestValidatePayload_Valid(t *testing.T) {
	p := WebhookPayload{UserID: "u1", BehaviorScore: intPtr(50)}
	if errs := ValidatePayload(p); errs != nil {
		t.Errorf("expected no validation errors, got %v", errs)
	}
}

func TestValidatePayload_AccumulatesAllErrors(t *testing.T) {
	p := WebhookPayload{BehaviorScore: intPtr(150)}
	errs := ValidatePayload(p)
	if len(errs) < 2 {
		t.Fatalf("expected at least 2 accumulated errors (missing user_id, out-of-range score), got %v", errs)
	}
}

func TestValidatePayload_MissingBehaviorScore(t *testing.T) {
	p := WebhookPayload{UserID: "u1"}
	errs := ValidatePayload(p)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}

func TestValidatePayload_TooManyRiskFlags(t *testing.T) {
	flags := make([]string, 21)
	for i := range flags {
		flags[i] = "flag"
	}
	p := WebhookPayload{UserID: "u1", BehaviorScore: intPtr(50), RiskFlags: flags}
	errs := ValidatePayload(p)
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for too many risk flags, got %v", errs)
	}
}

func TestToEvent_DefaultsTimestampToNow(t *testing.T) {
	p := WebhookPayload{UserID: "u1", EventType: "login"}
	before := time.Now().UTC()
	event := p.ToEvent("1.2.3.4", "curl/8", "device-1")
	after := time.Now().UTC()

	if event.Timestamp.Before(before) || event.Timestamp.After(after) {
		t.Errorf("expected timestamp to default to now, got %v", event.Timestamp)
	}
	if event.UserID != "u1" || event.SourceIP != "1.2.3.4" || event.DeviceFingerprintID != "device-1" {
		t.Errorf("unexpected event shape: %+v", event)
	}
}

func TestToEvent_UsesProvidedTimestamp(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := WebhookPayload{UserID: "u1", Timestamp: &ts}
	event := p.ToEvent("", "", "")
	if !event.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", event.Timestamp, ts)
	}
}
