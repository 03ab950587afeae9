package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/apierr"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestAuthenticator_SignatureValid(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "signature", Secret: "shh"})
	body := []byte(`{"user_id":"u1"}`)

	if err := a.Verify(sign("shh", body), "", body); err != nil {
		t.Fatalf("expected valid signature to pass, got %v", err)
	}
}

func TestAuthenticator_SignatureMissing(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "signature", Secret: "shh"})
	err := a.Verify("", "", []byte("body"))
	if err == nil || err.Code != apierr.MissingAuth {
		t.Fatalf("expected MissingAuth, got %v", err)
	}
}

func TestAuthenticator_SignatureWrongPrefix(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "signature", Secret: "shh"})
	err := a.Verify("md5=abc", "", []byte("body"))
	if err == nil || err.Code != apierr.InvalidSignature {
		t.Fatalf("expected InvalidSignature, got %v", err)
	}
}

func TestAuthenticator_SignatureMismatch(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "signature", Secret: "shh"})
	body := []byte(`{"user_id":"u1"}`)
	err := a.Verify(sign("wrong-secret", body), "", body)
	if err == nil || err.Code != apierr.InvalidSignature {
		t.Fatalf("expected InvalidSignature, got %v", err)
	}
}

func TestAuthenticator_BearerValid(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "token", BearerToken: "secret-token"})
	if err := a.Verify("", "Bearer secret-token", nil); err != nil {
		t.Fatalf("expected valid bearer token to pass, got %v", err)
	}
}

func TestAuthenticator_BearerMismatch(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "token", BearerToken: "secret-token"})
	err := a.Verify("", "Bearer wrong-token", nil)
	if err == nil || err.Code != apierr.InvalidAuth {
		t.Fatalf("expected InvalidAuth, got %v", err)
	}
}

func TestAuthenticator_BearerMissingHeader(t *testing.T) {
	a := NewAuthenticator(configs.WebhookConfig{AuthMethod: "token", BearerToken: "secret-token"})
	err := a.Verify("", "", nil)
	if err == nil || err.Code != apierr.MissingAuth {
		t.Fatalf("expected MissingAuth, got %v", err)
	}
}
