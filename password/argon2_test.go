package password

import (
	"strings"
	"testing"
)

func testParams() Params {
	return Params{
		Memory:      8192,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	encoded, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("correct horse battery", encoded)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}

	ok, err = h.Verify("wrong horse battery", encoded)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	a, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := h.Hash("correct horse battery")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	if _, err := h.Hash("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if _, err := h.Hash(""); err == nil {
		t.Fatal("expected empty password to be rejected")
	}
}

func TestMinimumPasswordLength(t *testing.T) {
	// Default floor is 8 bytes: a 9-byte password is accepted, a
	// 7-byte one is not.
	h, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	if _, err := h.Hash("P@ssw0rd!"); err != nil {
		t.Fatalf("9-byte password rejected: %v", err)
	}
	if _, err := h.Hash("12345678"); err != nil {
		t.Fatalf("8-byte password rejected: %v", err)
	}
	if _, err := h.Hash("1234567"); err == nil {
		t.Fatal("expected 7-byte password to be rejected")
	}

	// The floor is configurable.
	p := testParams()
	p.MinPasswordBytes = 12
	strict, err := NewHasher(p)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	if _, err := strict.Hash("elevenchars"); err == nil {
		t.Fatal("expected 11-byte password to be rejected at min 12")
	}
	if _, err := strict.Hash("twelve chars"); err != nil {
		t.Fatalf("12-byte password rejected: %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	encoded, err := weak.Hash("migration-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	strongParams := testParams()
	strongParams.Memory = 16384
	strong, err := NewHasher(strongParams)
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	needs, err := strong.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if !needs {
		t.Fatal("expected rehash needed after raising memory cost")
	}

	needs, err = weak.NeedsRehash(encoded)
	if err != nil {
		t.Fatalf("NeedsRehash error: %v", err)
	}
	if needs {
		t.Fatal("expected no rehash for unchanged parameters")
	}
}

func TestVerifyRejectsMalformedPHC(t *testing.T) {
	h, err := NewHasher(testParams())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}

	good, err := h.Hash("version-probe-pw")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	cases := []string{
		"",
		"not-a-phc-hash",
		strings.Replace(good, "$v=19$", "$v=18$", 1),
		strings.Replace(good, "argon2id", "argon2i", 1),
		strings.Replace(good, "m=8192", "m=1", 1),
	}
	for _, encoded := range cases {
		if _, err := h.Verify("version-probe-pw", encoded); err == nil {
			t.Fatalf("expected parse error for %q", encoded)
		}
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Params)
	}{
		{"low memory", func(p *Params) { p.Memory = 1024 }},
		{"zero time", func(p *Params) { p.Time = 0 }},
		{"zero parallelism", func(p *Params) { p.Parallelism = 0 }},
		{"short salt", func(p *Params) { p.SaltLength = 8 }},
		{"short key", func(p *Params) { p.KeyLength = 8 }},
	}
	for _, tc := range cases {
		p := testParams()
		tc.mutate(&p)
		if _, err := NewHasher(p); err == nil {
			t.Fatalf("%s: expected NewHasher to reject params", tc.name)
		}
	}
}
