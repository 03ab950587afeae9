// Package agk implements the Access Gatekeeper (§4.5): policy over a
// stored user record and an optional passkey, deciding whether a
// privileged content operation (typically an upload) may proceed.
package agk

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

// Denial reasons (§4.5 step 2, step 5).
const (
	ReasonLowScore   = "low_score"
	ReasonNoPasskey  = "no_passkey"
	ReasonNotFound   = "user_not_found"
	ReasonBadUpload  = "invalid_upload"
)

const accessLevelBasic = "BASIC_ACCESS"

var passkeyMaxAge = 24 * time.Hour

var allowedUploadMIME = map[string]struct{}{
	"image/jpeg":       {},
	"image/png":        {},
	"image/gif":        {},
	"image/webp":       {},
	"text/plain":       {},
	"application/json": {},
}

// Decision is the outcome of an access check.
type Decision struct {
	Granted     bool
	AccessLevel string
	Reason      string
}

// Gatekeeper evaluates access decisions and logs them best-effort.
type Gatekeeper struct {
	users       *store.UserStore
	audit       *store.AuditStore
	cfg         configs.AGKConfig
	passkeyMAC  []byte
}

func NewGatekeeper(users *store.UserStore, audit *store.AuditStore, cfg configs.AGKConfig, macSecret []byte) *Gatekeeper {
	return &Gatekeeper{users: users, audit: audit, cfg: cfg, passkeyMAC: derivePasskeyKey(macSecret)}
}

// derivePasskeyKey stretches the configured secret into a purpose-bound MAC
// key via HKDF-SHA256, so the same TOKEN_ENCRYPTION_KEY/PASSKEY_MAC_SECRET
// value can't be replayed against a different HMAC use elsewhere.
func derivePasskeyKey(secret []byte) []byte {
	if len(secret) == 0 {
		return secret
	}
	kdf := hkdf.New(sha256.New, secret, nil, []byte("agk-passkey-mac"))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return secret
	}
	return key
}

// Validate runs steps 1-5 of §4.5's algorithm for a non-upload request.
func (g *Gatekeeper) Validate(ctx context.Context, userID string) Decision {
	user, err := g.users.GetByID(ctx, userID)
	if err != nil {
		decision := Decision{Granted: false, Reason: ReasonNotFound}
		g.logAccess(ctx, userID, decision)
		return decision
	}

	minScore := g.cfg.MinBehaviorScore
	if minScore == 0 {
		minScore = 60
	}
	if user.BehaviorScore < minScore {
		decision := Decision{Granted: false, Reason: ReasonLowScore}
		g.logAccess(ctx, userID, decision)
		return decision
	}

	if passkey, ok := loadPasskey(user.Metadata); ok {
		if g.validPasskey(passkey) {
			level := passkey.Scope
			if level == "" {
				level = accessLevelBasic
			}
			decision := Decision{Granted: true, AccessLevel: level}
			g.logAccess(ctx, userID, decision)
			return decision
		}
	}

	if user.BehaviorScore >= 80 {
		decision := Decision{Granted: true, AccessLevel: accessLevelBasic}
		g.logAccess(ctx, userID, decision)
		return decision
	}

	decision := Decision{Granted: false, Reason: ReasonNoPasskey}
	g.logAccess(ctx, userID, decision)
	return decision
}

// ValidateUpload additionally checks content type and size (§4.5 step 6).
func (g *Gatekeeper) ValidateUpload(ctx context.Context, userID, contentType string, sizeBytes int64) Decision {
	decision := g.Validate(ctx, userID)
	if !decision.Granted {
		return decision
	}

	if _, ok := allowedUploadMIME[contentType]; !ok {
		decision = Decision{Granted: false, Reason: ReasonBadUpload}
		g.logAccess(ctx, userID, decision)
		return decision
	}
	maxBytes := g.cfg.MaxUploadBytes
	if maxBytes == 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if sizeBytes > maxBytes {
		decision = Decision{Granted: false, Reason: ReasonBadUpload}
		g.logAccess(ctx, userID, decision)
		return decision
	}
	return decision
}

func loadPasskey(metadata models.JSONB) (models.Passkey, bool) {
	if metadata == nil {
		return models.Passkey{}, false
	}
	raw, ok := metadata["passkey"].(string)
	if !ok || raw == "" {
		return models.Passkey{}, false
	}

	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return models.Passkey{}, false
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return models.Passkey{}, false
	}
	return models.Passkey{Scope: parts[0], MAC: parts[1], IssuedAt: ts}, true
}

// validPasskey checks age and MAC, the MAC comparison using constant time
// (§4.5 contract: "MUST be constant-time").
func (g *Gatekeeper) validPasskey(p models.Passkey) bool {
	issued := time.Unix(p.IssuedAt, 0)
	if time.Since(issued) >= passkeyMaxAge {
		return false
	}

	expectedMAC, err := computeMAC(g.passkeyMAC, p.Scope, p.IssuedAt)
	if err != nil {
		return false
	}
	actualMAC, err := hex.DecodeString(p.MAC)
	if err != nil {
		return false
	}
	return hmac.Equal(expectedMAC, actualMAC)
}

// IssuePasskey mints a new passkey string in the <scope>:<hex-mac>:<unix-ts>
// format, for callers that grant a passkey out-of-band. secret is the same
// raw configured value passed to NewGatekeeper — it's put through the same
// HKDF derivation here so the two round-trip without the caller having to
// pre-derive it themselves.
func IssuePasskey(secret []byte, scope string, issuedAt time.Time) (string, error) {
	mac, err := computeMAC(derivePasskeyKey(secret), scope, issuedAt.Unix())
	if err != nil {
		return "", err
	}
	return scope + ":" + hex.EncodeToString(mac) + ":" + strconv.FormatInt(issuedAt.Unix(), 10), nil
}

func computeMAC(secret []byte, scope string, issuedAt int64) ([]byte, error) {
	if len(secret) == 0 {
		return nil, errors.New("agk: passkey mac secret not configured")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(scope))
	mac.Write([]byte(":"))
	mac.Write([]byte(strconv.FormatInt(issuedAt, 10)))
	return mac.Sum(nil), nil
}

func (g *Gatekeeper) logAccess(ctx context.Context, userID string, d Decision) {
	if g.audit == nil {
		return
	}
	g.audit.CreateAccessLog(ctx, &models.AccessLog{
		UserID:      userID,
		Granted:     d.Granted,
		Reason:      d.Reason,
		AccessLevel: d.AccessLevel,
		CreatedAt:   time.Now().UTC(),
	})
}
