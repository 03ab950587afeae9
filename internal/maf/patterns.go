package maf

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// Pattern declares one cross-user anomaly detector (§4.2 pattern bank):
// a name, a count threshold, and the trailing window it scans.
type Pattern struct {
	Name          string
	Threshold     int
	WindowMinutes int
	Detect        func(window []Sighting) []models.Anomaly
}

// DefaultBank returns the seven required patterns (§4.2).
func DefaultBank() []Pattern {
	return []Pattern{
		{Name: "same_ip_signups", Threshold: 5, WindowMinutes: 60, Detect: sameIPSignups},
		{Name: "same_device_signups", Threshold: 3, WindowMinutes: 60, Detect: sameDeviceSignups},
		{Name: "rapid_wallet_connections", Threshold: 10, WindowMinutes: 5, Detect: rapidWalletConnections},
		{Name: "rapid_nft_listings", Threshold: 15, WindowMinutes: 5, Detect: rapidNFTListings},
		{Name: "referral_spam", Threshold: 20, WindowMinutes: 60, Detect: referralSpam},
		{Name: "duplicate_memes", Threshold: 3, WindowMinutes: 24 * 60, Detect: duplicateMemes},
		{Name: "login_velocity_per_ip", Threshold: 10, WindowMinutes: 5, Detect: loginVelocityPerIP},
	}
}

func riskScore(count, threshold int, multiplier float64) float64 {
	score := float64(count) / float64(threshold) * multiplier
	if score > 100 {
		score = 100
	}
	return score
}

func newAnomaly(pattern, severity string, affected []string, count, threshold int, multiplier float64, desc string) models.Anomaly {
	return models.Anomaly{
		ID:            uuid.New(),
		PatternName:   pattern,
		Severity:      severity,
		AffectedUsers: affected,
		RiskScore:     riskScore(count, threshold, multiplier),
		DetectedAt:    time.Now().UTC(),
		Status:        models.AnomalyStatusOpen,
		Description:   desc,
	}
}

func groupBy(window []Sighting, eventType string, key func(Sighting) string) map[string][]Sighting {
	groups := make(map[string][]Sighting)
	for _, s := range window {
		if eventType != "" && s.EventType != eventType {
			continue
		}
		k := key(s)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], s)
	}
	return groups
}

func uniqueUsers(sightings []Sighting) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range sightings {
		if _, ok := seen[s.UserID]; !ok {
			seen[s.UserID] = struct{}{}
			out = append(out, s.UserID)
		}
	}
	return out
}

func sameIPSignups(window []Sighting) []models.Anomaly {
	var out []models.Anomaly
	for ip, group := range groupBy(window, models.EventSignup, func(s Sighting) string { return s.IP }) {
		if len(group) > 5 {
			out = append(out, newAnomaly("same_ip_signups", models.SeverityHigh, uniqueUsers(group), len(group), 5, 50,
				fmt.Sprintf("%d signups from IP %s within the window", len(group), ip)))
		}
	}
	return out
}

func sameDeviceSignups(window []Sighting) []models.Anomaly {
	var out []models.Anomaly
	for hash, group := range groupBy(window, models.EventSignup, func(s Sighting) string { return s.DeviceHash }) {
		if len(group) > 3 {
			out = append(out, newAnomaly("same_device_signups", models.SeverityHigh, uniqueUsers(group), len(group), 3, 60,
				fmt.Sprintf("%d signups from device %s within the window", len(group), hash)))
		}
	}
	return out
}

func rapidWalletConnections(window []Sighting) []models.Anomaly {
	var out []models.Anomaly
	for userID, group := range groupBy(window, models.EventWalletConnection, func(s Sighting) string { return s.UserID }) {
		if len(group) > 10 {
			out = append(out, newAnomaly("rapid_wallet_connections", models.SeverityMedium, []string{userID}, len(group), 10, 40,
				fmt.Sprintf("%d wallet connections by %s in 5 minutes", len(group), userID)))
		}
	}
	return out
}

func rapidNFTListings(window []Sighting) []models.Anomaly {
	var out []models.Anomaly
	for userID, group := range groupBy(window, models.EventNFTListing, func(s Sighting) string { return s.UserID }) {
		if len(group) > 15 {
			out = append(out, newAnomaly("rapid_nft_listings", models.SeverityMedium, []string{userID}, len(group), 15, 40,
				fmt.Sprintf("%d NFT listings by %s in 5 minutes", len(group), userID)))
		}
	}
	return out
}

// referralSpam escalates to HIGH when the referrer's referred-IP diversity
// is at or below 0.3 (same handful of IPs reused across many referrals).
func referralSpam(window []Sighting) []models.Anomaly {
	var out []models.Anomaly
	for userID, group := range groupBy(window, models.EventReferral, func(s Sighting) string { return s.UserID }) {
		if len(group) <= 20 {
			continue
		}
		ips := make(map[string]struct{})
		for _, s := range group {
			ips[s.IP] = struct{}{}
		}
		diversity := float64(len(ips)) / float64(len(group))

		severity := models.SeverityMedium
		if diversity <= 0.3 {
			severity = models.SeverityHigh
		}
		multiplier := 35.0
		if diversity < 0.3 {
			multiplier = 60.0
		}
		out = append(out, newAnomaly("referral_spam", severity, []string{userID}, len(group), 20, multiplier,
			fmt.Sprintf("%d referrals by %s, source diversity %.2f", len(group), userID, diversity)))
	}
	return out
}

// duplicateMemes reads meme_hash out of BrowserDetails, where the
// collector stashes it for meme_upload events — FingerprintRecord has no
// dedicated column since it only applies to one event type.
func duplicateMemes(window []Sighting) []models.Anomaly {
	type key struct{ userID, hash string }
	counts := make(map[key][]Sighting)

	for _, s := range window {
		if s.EventType != models.EventMemeUpload || s.BrowserDetails == nil {
			continue
		}
		hash, ok := s.BrowserDetails["meme_hash"].(string)
		if !ok || hash == "" {
			continue
		}
		k := key{s.UserID, hash}
		counts[k] = append(counts[k], s)
	}

	var out []models.Anomaly
	for k, group := range counts {
		if len(group) > 3 {
			out = append(out, newAnomaly("duplicate_memes", models.SeverityLow, []string{k.userID}, len(group), 3, 25,
				fmt.Sprintf("%d identical memes uploaded by %s in 24h", len(group), k.userID)))
		}
	}
	return out
}

func loginVelocityPerIP(window []Sighting) []models.Anomaly {
	var out []models.Anomaly
	for ip, group := range groupBy(window, models.EventLogin, func(s Sighting) string { return s.IP }) {
		if len(group) > 10 {
			out = append(out, newAnomaly("login_velocity_per_ip", models.SeverityHigh, uniqueUsers(group), len(group), 10, 70,
				fmt.Sprintf("%d logins from IP %s in 5 minutes", len(group), ip)))
		}
	}
	return out
}

// Run evaluates every pattern in the bank over the records it needs,
// fetching a window sized to each pattern's own WindowMinutes. A panic
// inside one pattern is recovered and skipped so the rest of the bank
// still runs (§4.2 failure semantics).
func Run(bank []Pattern, fetch func(windowMinutes int) []Sighting) []models.Anomaly {
	var all []models.Anomaly
	for _, p := range bank {
		all = append(all, runOne(p, fetch)...)
	}
	return all
}

func runOne(p Pattern, fetch func(windowMinutes int) []Sighting) (out []models.Anomaly) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("pattern", p.Name).Msg("maf: pattern detector panicked, skipping")
			out = nil
		}
	}()
	window := fetch(p.WindowMinutes)
	return p.Detect(window)
}
