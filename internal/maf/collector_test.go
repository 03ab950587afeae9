package maf

import (
	"context"
	"testing"
	"time"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

func TestDeviceHash_Deterministic(t *testing.T) {
	in := DeviceHashInputs{IP: "1.2.3.4", UA: "curl/8", Screen: "1920x1080"}
	if DeviceHash(in) != DeviceHash(in) {
		t.Fatal("DeviceHash is not deterministic for identical inputs")
	}
}

func TestDeviceHash_FieldBoundarySeparatorPreventsCollision(t *testing.T) {
	a := DeviceHashInputs{IP: "ab", UA: "c"}
	b := DeviceHashInputs{IP: "a", UA: "bc"}
	if DeviceHash(a) == DeviceHash(b) {
		t.Fatal("expected different hashes for inputs that only differ in field boundary")
	}
}

func TestCollector_Build_DefaultsConfidenceWithoutIdentityCache(t *testing.T) {
	c := NewCollector(nil)
	event := models.Event{UserID: "u1", EventType: models.EventLogin, SourceIP: "1.2.3.4", Timestamp: time.Now()}

	record := c.Build(context.Background(), event, DeviceHashInputs{IP: "1.2.3.4"}, "")

	if record.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", record.Confidence)
	}
	if record.UserID != "u1" {
		t.Errorf("UserID = %q, want u1", record.UserID)
	}
	if record.DeviceHash == "" {
		t.Error("expected a non-empty device hash")
	}
}
