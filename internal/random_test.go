package internal

import (
	"strings"
	"testing"
)

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID error: %v", err)
	}

	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID error: %v", err)
	}
	if parsed != sid {
		t.Fatal("session id did not survive the round trip")
	}

	if _, err := ParseSessionID("not!base64url"); err == nil {
		t.Fatal("expected error for invalid encoding")
	}
	if _, err := ParseSessionID("AAAA"); err == nil {
		t.Fatal("expected error for wrong size")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID error: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret error: %v", err)
	}

	token, err := EncodeRefreshToken(sid.String(), secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken error: %v", err)
	}

	gotSID, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken error: %v", err)
	}
	if gotSID != sid.String() {
		t.Fatalf("session id = %q, want %q", gotSID, sid.String())
	}
	if gotSecret != secret {
		t.Fatal("secret did not survive the round trip")
	}
}

func TestDecodeRefreshTokenRejectsGarbage(t *testing.T) {
	for _, token := range []string{"", "short", "!!!not-base64!!!"} {
		if _, _, err := DecodeRefreshToken(token); err == nil {
			t.Fatalf("expected error for %q", token)
		}
	}
}

func TestNewOTP(t *testing.T) {
	code, err := NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP error: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("code length = %d, want 6", len(code))
	}
	if strings.Trim(code, "0123456789") != "" {
		t.Fatalf("code %q contains non-digits", code)
	}

	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for too few digits")
	}
	if _, err := NewOTP(11); err == nil {
		t.Fatal("expected error for too many digits")
	}
}
