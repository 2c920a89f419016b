package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func hs256Config() Config {
	return Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("test-secret-test-secret-test-sec"),
		Issuer:        "authd-test",
		RequireIAT:    true,
	}
}

func TestCreateAndParseHS256(t *testing.T) {
	m, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := m.CreateAccess("user-1", "sid-1", "admin")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess error: %v", err)
	}
	if claims.UID != "user-1" || claims.SID != "sid-1" || claims.Role != "admin" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "authd-test" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	m, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	token, err := m.CreateAccess("user-1", "sid-1", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}

	otherCfg := hs256Config()
	otherCfg.PrivateKey = []byte("other-secret-other-secret-other!")
	other, err := NewManager(otherCfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	if _, err := other.ParseAccess(token); err == nil {
		t.Fatal("expected signature verification to fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := hs256Config()
	cfg.AccessTTL = time.Nanosecond
	cfg.Leeway = 0
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := m.CreateAccess("user-1", "sid-1", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	_, err = m.ParseAccess(token)
	if !errors.Is(err, jwtv5.ErrTokenExpired) {
		t.Fatalf("ParseAccess error = %v, want ErrTokenExpired", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	issue, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	token, err := issue.CreateAccess("user-1", "sid-1", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}

	cfg := hs256Config()
	cfg.Issuer = "someone-else"
	verify, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	if _, err := verify.ParseAccess(token); err == nil {
		t.Fatal("expected issuer check to fail")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	m, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	for _, tokenStr := range []string{"", "abc", "a.b.c"} {
		if _, err := m.ParseAccess(tokenStr); err == nil {
			t.Fatalf("expected parse failure for %q", tokenStr)
		}
	}
}

func TestEd25519RoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}

	m, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authd-test",
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	token, err := m.CreateAccess("user-2", "sid-2", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}
	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess error: %v", err)
	}
	if claims.UID != "user-2" || claims.SID != "sid-2" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestParseRejectsAlgorithmSwap(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	edManager, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
	})
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}

	hsManager, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	token, err := hsManager.CreateAccess("user-3", "sid-3", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}

	// An HS256 token must not pass an ed25519 verifier.
	if _, err := edManager.ParseAccess(token); err == nil {
		t.Fatal("expected algorithm mismatch to fail")
	}
}

func TestVerifyKeysKeyRotation(t *testing.T) {
	keyOld := []byte("old-signing-key-old-signing-key!")
	keyNew := []byte("new-signing-key-new-signing-key!")
	verifyKeys := map[string][]byte{"2024": keyOld, "2025": keyNew}

	signerFor := func(kid string, key []byte) *Manager {
		cfg := hs256Config()
		cfg.PrivateKey = key
		cfg.KeyID = kid
		m, err := NewManager(cfg)
		if err != nil {
			t.Fatalf("NewManager(%s) error: %v", kid, err)
		}
		return m
	}

	verifierCfg := hs256Config()
	verifierCfg.PrivateKey = keyNew
	verifierCfg.KeyID = "2025"
	verifierCfg.VerifyKeys = verifyKeys
	verifier, err := NewManager(verifierCfg)
	if err != nil {
		t.Fatalf("NewManager(verifier) error: %v", err)
	}

	// Tokens signed under either key id verify against the key set, so
	// a rotation does not invalidate in-flight tokens.
	for kid, key := range map[string][]byte{"2024": keyOld, "2025": keyNew} {
		token, err := signerFor(kid, key).CreateAccess("user-1", "sid-1", "user")
		if err != nil {
			t.Fatalf("CreateAccess(%s) error: %v", kid, err)
		}
		claims, err := verifier.ParseAccess(token)
		if err != nil {
			t.Fatalf("ParseAccess(%s) error: %v", kid, err)
		}
		if claims.UID != "user-1" {
			t.Fatalf("claims = %+v", claims)
		}
	}

	// A token with no kid header is rejected when a key set is in force.
	bare, err := NewManager(hs256Config())
	if err != nil {
		t.Fatalf("NewManager(bare) error: %v", err)
	}
	noKid, err := bare.CreateAccess("user-1", "sid-1", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}
	if _, err := verifier.ParseAccess(noKid); err == nil {
		t.Fatal("expected token without kid to be rejected")
	}

	// So is one signed under a kid outside the set.
	unknown, err := signerFor("2023", keyOld).CreateAccess("user-1", "sid-1", "user")
	if err != nil {
		t.Fatalf("CreateAccess error: %v", err)
	}
	if _, err := verifier.ParseAccess(unknown); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestNewManagerRejectsKeyIDOutsideVerifyKeys(t *testing.T) {
	cfg := hs256Config()
	cfg.KeyID = "2026"
	cfg.VerifyKeys = map[string][]byte{"2025": cfg.PrivateKey}
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected KeyID outside VerifyKeys to be rejected")
	}
}

func TestNewManagerValidation(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256}); err == nil {
		t.Fatal("expected error for missing TTL")
	}

	cfg := hs256Config()
	cfg.PrivateKey = nil
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for missing hs256 key")
	}

	cfg = hs256Config()
	cfg.Leeway = 10 * time.Minute
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected error for oversized leeway")
	}

	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}); err == nil {
		t.Fatal("expected error for ed25519 without keys")
	}
}
