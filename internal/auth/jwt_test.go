package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	m := NewJWTManager("test-secret", "trustpipeline-dashboard", time.Hour)
	userID := uuid.New()

	token, err := m.GenerateToken(userID, "operator@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %v, want %v", claims.UserID, userID)
	}
	if claims.Email != "operator@example.com" {
		t.Errorf("Email = %q", claims.Email)
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q", claims.Role)
	}
}

func TestJWTManager_ExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", "trustpipeline-dashboard", time.Hour)
	userID := uuid.New()

	now := time.Now().UTC().Add(-2 * time.Hour)
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := m.ValidateToken(signed); err != ErrExpiredToken {
		t.Errorf("ValidateToken error = %v, want ErrExpiredToken", err)
	}
}

func TestJWTManager_WrongSecretRejected(t *testing.T) {
	issuer := NewJWTManager("secret-a", "trustpipeline-dashboard", time.Hour)
	verifier := NewJWTManager("secret-b", "trustpipeline-dashboard", time.Hour)

	token, err := issuer.GenerateToken(uuid.New(), "x@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("ValidateToken error = %v, want ErrInvalidToken", err)
	}
}

func TestNewJWTManager_DefaultsTTL(t *testing.T) {
	m := NewJWTManager("secret", "issuer", 0)
	if m.ttl != 24*time.Hour {
		t.Errorf("ttl = %v, want 24h", m.ttl)
	}
}
