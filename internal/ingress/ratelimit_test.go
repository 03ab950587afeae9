package ingress

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToRate(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("4th request within the window should be rejected")
	}
}

func TestRateLimiter_IndependentPerIP(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow("1.1.1.1") {
		t.Fatal("first request for 1.1.1.1 should be allowed")
	}
	if !rl.Allow("2.2.2.2") {
		t.Fatal("first request for a different IP should be allowed independently")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("second request for 1.1.1.1 should be rejected")
	}
}
