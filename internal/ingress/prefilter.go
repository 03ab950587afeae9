package ingress

import (
	"context"
	"strings"
	"time"

	"github.com/meridianlabs/trustpipeline/internal/cache"
)

var botUAMarkers = []string{"bot", "crawler", "spider", "scraper"}

// BotPrefilterResult is the quick pre-validation bot check (§4.4).
type BotPrefilterResult struct {
	Probability float64
	Signals     []string
}

// Blocked reports whether the probability or signal count crosses the
// reject threshold: probability > 0.8 OR at least 2 distinct signals.
func (r BotPrefilterResult) Blocked() bool {
	return r.Probability > 0.8 || len(r.Signals) >= 2
}

// BotPrefilter derives quick bot signals from the user-agent and whether a
// device fingerprint id was supplied.
func BotPrefilter(userAgent, deviceFingerprintID string) BotPrefilterResult {
	var result BotPrefilterResult

	lowered := strings.ToLower(userAgent)
	for _, marker := range botUAMarkers {
		if strings.Contains(lowered, marker) {
			result.Probability = max(result.Probability, 0.9)
			result.Signals = append(result.Signals, "bot_user_agent")
			break
		}
	}

	if userAgent == "" || len(userAgent) < 20 {
		result.Probability = max(result.Probability, 0.6)
		result.Signals = append(result.Signals, "suspicious_user_agent")
	}

	if deviceFingerprintID == "" {
		result.Probability = max(result.Probability, 0.4)
		result.Signals = append(result.Signals, "missing_fingerprint")
	}

	return result
}

// FakeReferralPrefilter counts same-IP referrals in the last hour and the
// referring user's own referral volume today (§4.4), using the shared
// Redis counters cache for both.
type FakeReferralPrefilter struct {
	cache *cache.Client
}

func NewFakeReferralPrefilter(c *cache.Client) *FakeReferralPrefilter {
	return &FakeReferralPrefilter{cache: c}
}

// Check increments the IP and user counters and returns the signals that
// fired. Counters reset after their window via TTL.
func (f *FakeReferralPrefilter) Check(ctx context.Context, userID, sourceIP string) ([]string, error) {
	var signals []string

	ipCount, err := f.cache.Increment(ctx, "referral_ip:"+sourceIP, time.Hour)
	if err != nil {
		return nil, err
	}
	if ipCount > 3 {
		signals = append(signals, "excessive_ip_referrals")
	}

	userCount, err := f.cache.Increment(ctx, "referral_user_daily:"+userID, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	if userCount > 10 {
		signals = append(signals, "excessive_user_referrals")
	}

	return signals, nil
}
