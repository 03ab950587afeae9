// Package maf implements the Multi-Layer Anomaly Flagger (§4.2): a rolling
// fingerprint collector plus a bank of cross-user pattern detectors that
// run over it, producing per-event flag colors and Anomaly records.
package maf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/internal/cache"
	"github.com/meridianlabs/trustpipeline/internal/models"
)

// DeviceHashInputs are the fixed, ordered fields hashed into
// FingerprintRecord.DeviceHash (§3 invariant): identical inputs always
// yield identical hashes.
type DeviceHashInputs struct {
	IP        string
	UA        string
	Screen    string
	TZ        string
	Lang      string
	Platform  string
	CanvasFP  string
	WebGLFP   string
}

// DeviceHash computes the SHA-256 device fingerprint over a fixed,
// ordered concatenation of its inputs.
func DeviceHash(in DeviceHashInputs) string {
	h := sha256.New()
	for _, part := range []string{in.IP, in.UA, in.Screen, in.TZ, in.Lang, in.Platform, in.CanvasFP, in.WebGLFP} {
		h.Write([]byte(part))
		h.Write([]byte{0}) // separator, prevents field-boundary collisions
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Collector builds and persists one FingerprintRecord per event.
type Collector struct {
	identity *cache.IdentityProviderCache
}

func NewCollector(identity *cache.IdentityProviderCache) *Collector {
	return &Collector{identity: identity}
}

// Build assembles a FingerprintRecord for an event. visitorID is an
// optional external identity-provider correlation key (e.g. FingerprintJS
// visitorId); when present and cached, its cached confidence score is used.
// Otherwise the record keeps the default confidence 1.0; Build does not
// query the identity provider itself.
func (c *Collector) Build(ctx context.Context, event models.Event, hashIn DeviceHashInputs, visitorID string) models.FingerprintRecord {
	record := models.FingerprintRecord{
		ID:         uuid.New(),
		UserID:     event.UserID,
		EventType:  event.EventType,
		IP:         event.SourceIP,
		UserAgent:  event.UserAgent,
		DeviceHash: DeviceHash(hashIn),
		Timestamp:  event.Timestamp,
		Confidence: 1.0,
	}

	if visitorID == "" || c.identity == nil {
		return record
	}

	if result, ok := c.identity.Get(ctx, visitorID); ok {
		record.Confidence = result.Confidence
		return record
	}

	log.Debug().Str("visitor_id", visitorID).Msg("maf: identity provider cache miss, using default confidence")
	return record
}

// Sighting is the shape a pattern reads out of a fingerprint window: an
// alias of models.FingerprintRecord, so patterns don't need a live event
// alongside it.
type Sighting = models.FingerprintRecord

// WindowFetcher abstracts a fingerprint-window store lookup. Every pattern,
// the signup ones included, reads FingerprintRecord sightings from such a
// window.
type WindowFetcher interface {
	Window(ctx context.Context, since, now time.Time) ([]models.FingerprintRecord, error)
}
