package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/apierr"
)

// Authenticator verifies inbound requests by one of two pluggable methods
// (§4.4): an HMAC-SHA256 body signature, or a bearer token. Comparison is
// constant-time either way.
type Authenticator struct {
	method string
	secret string
	token  string
}

func NewAuthenticator(cfg configs.WebhookConfig) *Authenticator {
	return &Authenticator{method: cfg.AuthMethod, secret: cfg.Secret, token: cfg.BearerToken}
}

// Verify checks the request's auth header against the configured method.
// body is the raw request bytes (only used for signature verification).
func (a *Authenticator) Verify(signatureHeader, authHeader string, body []byte) *apierr.APIError {
	switch a.method {
	case "token":
		return a.verifyBearer(authHeader)
	default:
		return a.verifySignature(signatureHeader, body)
	}
}

func (a *Authenticator) verifySignature(header string, body []byte) *apierr.APIError {
	if header == "" {
		return apierr.New(apierr.MissingAuth, "missing X-Webhook-Signature header")
	}

	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return apierr.New(apierr.InvalidSignature, "signature header must be in sha256=<hex> form")
	}
	providedHex := strings.TrimPrefix(header, prefix)
	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return apierr.New(apierr.InvalidSignature, "signature header is not valid hex")
	}

	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if !hmac.Equal(expected, provided) {
		return apierr.New(apierr.InvalidSignature, "signature does not match")
	}
	return nil
}

func (a *Authenticator) verifyBearer(header string) *apierr.APIError {
	if header == "" {
		return apierr.New(apierr.MissingAuth, "missing Authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return apierr.New(apierr.InvalidAuth, "Authorization header must be a Bearer token")
	}
	provided := strings.TrimPrefix(header, prefix)

	if subtle.ConstantTimeCompare([]byte(provided), []byte(a.token)) != 1 {
		return apierr.New(apierr.InvalidAuth, "bearer token does not match")
	}
	return nil
}
