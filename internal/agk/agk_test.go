package agk

import (
	"testing"
	"time"
)

func TestIssuePasskey_RoundTripsThroughValidPasskey(t *testing.T) {
	rawSecret := []byte("top-secret")
	g := &Gatekeeper{passkeyMAC: derivePasskeyKey(rawSecret)}

	raw, err := IssuePasskey(rawSecret, "BASIC_ACCESS", time.Now())
	if err != nil {
		t.Fatalf("IssuePasskey: %v", err)
	}

	passkey, ok := loadPasskey(map[string]interface{}{"passkey": raw})
	if !ok {
		t.Fatal("expected passkey to parse")
	}
	if !g.validPasskey(passkey) {
		t.Error("expected freshly issued passkey to validate")
	}
}

func TestValidPasskey_RejectsExpired(t *testing.T) {
	rawSecret := []byte("top-secret")
	g := &Gatekeeper{passkeyMAC: derivePasskeyKey(rawSecret)}

	raw, err := IssuePasskey(rawSecret, "BASIC_ACCESS", time.Now().Add(-48*time.Hour))
	if err != nil {
		t.Fatalf("IssuePasskey: %v", err)
	}
	passkey, ok := loadPasskey(map[string]interface{}{"passkey": raw})
	if !ok {
		t.Fatal("expected passkey to parse")
	}
	if g.validPasskey(passkey) {
		t.Error("expected an expired passkey to fail validation")
	}
}

func TestValidPasskey_RejectsTamperedMAC(t *testing.T) {
	rawSecret := []byte("top-secret")
	g := &Gatekeeper{passkeyMAC: derivePasskeyKey(rawSecret)}

	raw, err := IssuePasskey(rawSecret, "BASIC_ACCESS", time.Now())
	if err != nil {
		t.Fatalf("IssuePasskey: %v", err)
	}

	// Flip the first hex digit of the MAC segment, which starts right after
	// the "BASIC_ACCESS:" scope prefix.
	macStart := len("BASIC_ACCESS:")
	flipped := byte('0')
	if raw[macStart] == '0' {
		flipped = '1'
	}
	tampered := raw[:macStart] + string(flipped) + raw[macStart+1:]
	passkey, ok := loadPasskey(map[string]interface{}{"passkey": tampered})
	if !ok {
		t.Fatal("expected tampered passkey string to still parse structurally")
	}
	if g.validPasskey(passkey) {
		t.Error("expected a tampered MAC to fail validation")
	}
}

func TestValidPasskey_RejectsWrongSecret(t *testing.T) {
	issuingSecret := []byte("secret-a")
	g := &Gatekeeper{passkeyMAC: derivePasskeyKey([]byte("secret-b"))}

	raw, err := IssuePasskey(issuingSecret, "BASIC_ACCESS", time.Now())
	if err != nil {
		t.Fatalf("IssuePasskey: %v", err)
	}
	passkey, _ := loadPasskey(map[string]interface{}{"passkey": raw})
	if g.validPasskey(passkey) {
		t.Error("expected a passkey signed with a different secret to fail validation")
	}
}

func TestDerivePasskeyKey_EmptySecretPassesThrough(t *testing.T) {
	if got := derivePasskeyKey(nil); got != nil {
		t.Errorf("expected nil secret to pass through unchanged, got %v", got)
	}
}

func TestDerivePasskeyKey_Deterministic(t *testing.T) {
	a := derivePasskeyKey([]byte("same-input"))
	b := derivePasskeyKey([]byte("same-input"))
	if string(a) != string(b) {
		t.Error("expected derivePasskeyKey to be deterministic for the same input")
	}
}

func TestLoadPasskey_MissingOrMalformed(t *testing.T) {
	if _, ok := loadPasskey(nil); ok {
		t.Error("expected nil metadata to fail")
	}
	if _, ok := loadPasskey(map[string]interface{}{}); ok {
		t.Error("expected missing passkey key to fail")
	}
	if _, ok := loadPasskey(map[string]interface{}{"passkey": "not:enough"}); ok {
		t.Error("expected a malformed passkey string to fail")
	}
}
