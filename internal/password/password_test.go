package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher() error: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty hash")
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plaintext")
	}

	if !h.Verify("correct horse battery staple", hash) {
		t.Error("Verify should accept the original password")
	}
	if h.Verify("wrong password", hash) {
		t.Error("Verify should reject a different password")
	}
}

func TestHash_DifferentSalts(t *testing.T) {
	h := newTestHasher(t)

	h1, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	h2, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should differ (random salt)")
	}
}

func TestVerifyWithTimingProtection(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("secret-password")
	if err != nil {
		t.Fatalf("Hash() error: %v", err)
	}

	tests := []struct {
		name     string
		password string
		hash     string
		want     bool
	}{
		{"correct password", "secret-password", hash, true},
		{"wrong password", "not-the-password", hash, false},
		{"empty hash (unknown account)", "secret-password", "", false},
		{"empty password against real hash", "", hash, false},
		{"empty password against empty hash", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.VerifyWithTimingProtection(tt.password, tt.hash); got != tt.want {
				t.Errorf("VerifyWithTimingProtection(%q, ...) = %v, want %v", tt.password, got, tt.want)
			}
		})
	}
}

func TestNewHasher_DefaultCost(t *testing.T) {
	h, err := NewHasher(0)
	if err != nil {
		t.Fatalf("NewHasher(0) error: %v", err)
	}
	if h.cost != Cost {
		t.Errorf("expected default cost %d, got %d", Cost, h.cost)
	}
	if h.dummyHash == "" {
		t.Error("expected a dummy hash to be generated")
	}
	// The dummy hash must itself be a valid bcrypt hash so the comparison
	// performs real work instead of failing fast on a parse error.
	if _, err := bcrypt.Cost([]byte(h.dummyHash)); err != nil {
		t.Errorf("dummy hash is not a valid bcrypt hash: %v", err)
	}
}
