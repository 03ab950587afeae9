// Package bse implements the Behavioral Scoring Engine (§4.1): a pure-ish
// function of (Event, UserContext, RecentActivity) that yields a new
// behavior_score and a set of risk flags. All I/O — the user-row write,
// the outbound webhook forward — lives at the edges; Score itself never
// touches the network or the store.
package bse

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/velocity"
)

// Result is BSE's output: the new score, the ordered set of flags raised,
// and whether the caller should forward to downstream consumers.
type Result struct {
	Score            int
	Flags            []string
	RiskLevel        string
	VelocityScore    string
	Forward          bool
}

// Engine computes scores. It carries no state beyond the webhook forwarder
// (internal/bse/webhook.go); callers supply UserContext per call.
type Engine struct {
	forwarder *Forwarder
}

func NewEngine(forwarder *Forwarder) *Engine {
	return &Engine{forwarder: forwarder}
}

// Score runs the full additive-adjustment algorithm (§4.1). It never
// returns an error: any panic during computation is recovered and mapped
// to the calculation_error fallback, matching the "BSE never throws to the
// caller" failure semantics.
func (e *Engine) Score(event models.Event, userCtx models.UserContext) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("user_id", event.UserID).Msg("bse: recovered from panic during scoring")
			result = Result{Score: 50, Flags: []string{"calculation_error"}, RiskLevel: models.RiskLevelNormal}
		}
	}()

	base := 100.0
	var allFlags []string
	var boundBypassFlags []string // any new flag raised this event bypasses the ±10 bound

	// Step 1: account age.
	ageDelta, ageFlag := accountAgeAdjustment(userCtx.AccountAgeDays)
	base += ageDelta
	if ageFlag != "" {
		allFlags = append(allFlags, ageFlag)
		boundBypassFlags = append(boundBypassFlags, ageFlag)
	}

	// Step 2: bot signals.
	botDelta, botFlags := botSignalAdjustment(event)
	base += botDelta
	allFlags = append(allFlags, botFlags...)
	boundBypassFlags = append(boundBypassFlags, botFlags...)

	// Step 3: fake-referral signals (referral events only).
	if event.EventType == models.EventReferral {
		refDelta, refFlags := fakeReferralAdjustment(event)
		base += refDelta
		allFlags = append(allFlags, refFlags...)
		boundBypassFlags = append(boundBypassFlags, refFlags...)
	}

	// Step 4: event-specific delegation.
	evDelta, evFlags := eventSpecificAdjustment(event)
	base += evDelta
	allFlags = append(allFlags, evFlags...)
	boundBypassFlags = append(boundBypassFlags, evFlags...)

	// Step 5: behavioral pattern detectors over the recent-activity window.
	behDelta, behFlags := behavioralAdjustment(event, userCtx.RecentActivity)
	base += behDelta
	allFlags = append(allFlags, behFlags...)
	boundBypassFlags = append(boundBypassFlags, behFlags...)

	// Step 6: device consistency.
	devDelta, devFlags := deviceAdjustment(event, userCtx.RecentActivity)
	base += devDelta
	allFlags = append(allFlags, devFlags...)
	boundBypassFlags = append(boundBypassFlags, devFlags...)

	// Step 7: velocity classification.
	velScore, velDelta, velFlags := velocityAdjustment(event, userCtx.RecentActivity)
	base += velDelta
	allFlags = append(allFlags, velFlags...)
	boundBypassFlags = append(boundBypassFlags, velFlags...)

	clamped := clamp(base, 0, 100)

	final := clamped
	if len(boundBypassFlags) == 0 {
		final = boundChange(clamped, float64(userCtx.CurrentScore))
	}

	score := int(final)
	return Result{
		Score:         score,
		Flags:         allFlags,
		RiskLevel:     RiskLevelFor(score),
		VelocityScore: velScore,
		Forward:       true,
	}
}

// RiskLevelFor buckets a score into suspicious/normal/highly_trusted (§4.1).
func RiskLevelFor(score int) string {
	switch {
	case score <= 49:
		return models.RiskLevelSuspicious
	case score <= 79:
		return models.RiskLevelNormal
	default:
		return models.RiskLevelHighlyTrusted
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// boundChange restricts the change versus current_score to ±10 (§3 invariant).
func boundChange(candidate, current float64) float64 {
	delta := candidate - current
	if delta > 10 {
		return current + 10
	}
	if delta < -10 {
		return current - 10
	}
	return candidate
}

// Forward dispatches the scored result to the outbound webhook (§4.1
// Forwarding). Outbound failure is logged but never reverses the persisted
// update — callers should invoke this after the user row write succeeds.
func (e *Engine) Forward(userID string, result Result, timestamp time.Time) {
	if e.forwarder == nil || !result.Forward {
		return
	}
	e.forwarder.Send(userID, result.Score, result.Flags, timestamp)
}
