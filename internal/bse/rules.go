package bse

import (
	"time"

	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/velocity"
)

// accountAgeAdjustment implements §4.1 step 1.
func accountAgeAdjustment(accountAgeDays float64) (float64, string) {
	switch {
	case accountAgeDays < 1:
		return -20, "new_account"
	case accountAgeDays < 7:
		return -10, "recent_account"
	case accountAgeDays > 365:
		return 5, ""
	default:
		return 0, ""
	}
}

// botSignalAdjustment implements §4.1 step 2, reading metadata.bot_analysis.
func botSignalAdjustment(event models.Event) (float64, []string) {
	var delta float64
	var flags []string

	analysis := subMap(event.Metadata, "bot_analysis")
	if analysis == nil {
		return 0, nil
	}

	fingerprint := subMap(models.JSONB(analysis), "fingerprint")
	if prob, ok := numField(models.JSONB(fingerprint), "bot_probability"); ok {
		switch {
		case prob > 0.8:
			delta -= 40
			flags = append(flags, "high_bot_probability")
		case prob > 0.6:
			delta -= 25
			flags = append(flags, "medium_bot_probability")
		case prob > 0.4:
			delta -= 10
			flags = append(flags, "low_bot_probability")
		}
	}

	for _, raw := range sliceField(models.JSONB(analysis), "bot_detection_flags") {
		flag, ok := raw.(string)
		if !ok {
			continue
		}
		switch flag {
		case "browser_bot_flag":
			delta -= 35
			flags = append(flags, "browser_detected_bot")
		case "datacenter_ip":
			delta -= 20
			flags = append(flags, "datacenter_ip_usage")
		case "blacklisted_ip":
			delta -= 30
			flags = append(flags, "blacklisted_ip_detected")
		case "low_confidence", "incognito_mode":
			delta -= 10
			flags = append(flags, "bot_signal_"+flag)
		}
	}

	iphub := subMap(models.JSONB(analysis), "iphub")
	if blacklisted, ok := boolField(models.JSONB(iphub), "is_blacklisted"); ok && blacklisted {
		blockType, _ := numField(models.JSONB(iphub), "block_type")
		switch int(blockType) {
		case 1:
			delta -= 25
			flags = append(flags, "commercial_vpn")
		case 2:
			delta -= 30
			flags = append(flags, "hosting_provider_ip")
		}
	}

	return delta, flags
}

// fakeReferralAdjustment implements §4.1 step 3, reading
// metadata.fake_referral_analysis on referral events.
func fakeReferralAdjustment(event models.Event) (float64, []string) {
	analysis := subMap(event.Metadata, "fake_referral_analysis")
	if analysis == nil {
		return 0, nil
	}
	isFake, _ := boolField(models.JSONB(analysis), "is_fake_referral")
	if !isFake {
		return 0, nil
	}

	var delta float64
	var flags []string
	for _, raw := range sliceField(models.JSONB(analysis), "fake_signals") {
		signal, ok := raw.(string)
		if !ok {
			continue
		}
		switch signal {
		case "same_ip_referral":
			delta -= 35
			flags = append(flags, "fake_referral_same_ip")
		case "excessive_ip_referrals":
			delta -= 30
			flags = append(flags, "fake_referral_ip_abuse")
		case "inactive_referred_user":
			delta -= 25
			flags = append(flags, "fake_referral_inactive_user")
		case "rapid_referrals":
			delta -= 20
			flags = append(flags, "fake_referral_velocity")
		}
	}
	return delta, flags
}

// eventSpecificAdjustment implements §4.1 step 4: per-event-type delegation.
func eventSpecificAdjustment(event models.Event) (float64, []string) {
	switch event.EventType {
	case models.EventLogin:
		return scoreLoginActivity(event)
	case models.EventMemeUpload:
		return scoreMemeActivity(event)
	case models.EventSocialInteraction:
		return scoreSocialActivity(event)
	case models.EventReferral:
		return scoreReferralActivity(event)
	case models.EventFormSubmission:
		return scoreFormActivity(event)
	default:
		return 0, nil
	}
}

func scoreLoginActivity(event models.Event) (float64, []string) {
	count, ok := numField(event.Metadata, "login_count")
	if ok && count > 10 {
		return -10, []string{"excessive_login_frequency"}
	}
	return 0, nil
}

func scoreMemeActivity(event models.Event) (float64, []string) {
	count, ok := numField(event.Metadata, "upload_count_today")
	if ok && count > 20 {
		return -15, []string{"meme_spam_volume"}
	}
	return 0, nil
}

func scoreSocialActivity(event models.Event) (float64, []string) {
	rate, ok := numField(event.Metadata, "interaction_rate")
	if ok && rate > 50 {
		return -10, []string{"social_interaction_spam"}
	}
	return 0, nil
}

func scoreReferralActivity(event models.Event) (float64, []string) {
	count, ok := numField(event.Metadata, "referral_count_today")
	if ok && count > 10 {
		return -15, []string{"referral_volume_spike"}
	}
	return 0, nil
}

func scoreFormActivity(event models.Event) (float64, []string) {
	rate, ok := numField(event.Metadata, "submission_rate")
	if ok && rate > 5 {
		return -10, []string{"form_submission_spam"}
	}
	return 0, nil
}

// behavioralAdjustment implements §4.1 step 5: pattern detectors over the
// recent-activity window. bot_like_velocity fires when a user's recent
// window shows a volume a human could not plausibly sustain.
func behavioralAdjustment(event models.Event, recent []models.Event) (float64, []string) {
	if len(recent) < 20 {
		return 0, nil
	}

	window := recent[len(recent)-20:]
	span := event.Timestamp.Sub(window[0].Timestamp)
	if span <= 0 {
		return -20, []string{"bot_like_velocity"}
	}
	if span.Minutes() < 2 {
		return -20, []string{"bot_like_velocity"}
	}
	return 0, nil
}

// deviceAdjustment implements §4.1 step 6: consistency of UA/device across
// the user's recent sessions. Frequent device-fingerprint churn reads as
// account sharing or a bot farm rotating identities.
func deviceAdjustment(event models.Event, recent []models.Event) (float64, []string) {
	if len(recent) == 0 {
		return 0, nil
	}

	seen := make(map[string]struct{}, len(recent))
	for _, e := range recent {
		if e.DeviceFingerprintID != "" {
			seen[e.DeviceFingerprintID] = struct{}{}
		}
	}
	if event.DeviceFingerprintID != "" {
		seen[event.DeviceFingerprintID] = struct{}{}
	}

	if len(seen) > 5 {
		return -15, []string{"device_inconsistency"}
	}
	return 0, nil
}

// velocityAdjustment implements §4.1 step 7, delegating classification to
// the shared velocity package so BSE and MAF agree on thresholds.
func velocityAdjustment(event models.Event, recent []models.Event) (string, float64, []string) {
	m := computeVelocityMetrics(event, recent)
	score := velocity.Classify(m)

	switch score {
	case velocity.High:
		return score, -15, []string{"high_velocity_activity"}
	case velocity.Medium:
		return score, -5, nil
	default:
		return score, 0, nil
	}
}

func computeVelocityMetrics(event models.Event, recent []models.Event) velocity.Metrics {
	var m velocity.Metrics
	ips := make(map[string]struct{})
	devices := make(map[string]struct{})

	for _, e := range recent {
		age := event.Timestamp.Sub(e.Timestamp)
		if age < 0 {
			continue
		}
		if age <= 5*time.Minute {
			m.EventCount5m++
		}
		if age <= time.Hour {
			m.EventCount1h++
			if e.SourceIP != "" {
				ips[e.SourceIP] = struct{}{}
			}
			if e.DeviceFingerprintID != "" {
				devices[e.DeviceFingerprintID] = struct{}{}
			}
		}
	}

	m.UniqueIPs1h = len(ips)
	m.UniqueDevices1h = len(devices)
	return m
}

// --- JSONB field helpers ---

func subMap(m models.JSONB, key string) map[string]interface{} {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	sub, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return sub
}

func numField(m models.JSONB, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func boolField(m models.JSONB, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	v, ok := m[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func sliceField(m models.JSONB, key string) []interface{} {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	s, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return s
}
