package service

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndVerify(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	digest, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if strings.Contains(digest, "correct horse") {
		t.Fatalf("digest leaks plaintext")
	}
	if cost, _ := bcrypt.Cost([]byte(digest)); cost != bcrypt.MinCost {
		t.Fatalf("expected cost %d, got %d", bcrypt.MinCost, cost)
	}
	if !h.Verify("correct horse", digest) {
		t.Fatalf("expected match")
	}
	if h.Verify("correct horsE", digest) {
		t.Fatalf("expected mismatch")
	}
}

func TestHasher_SaltedDigests(t *testing.T) {
	h, _ := NewHasher(bcrypt.MinCost)
	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Fatalf("expected distinct salts")
	}
}

func TestHasher_MalformedDigestNeverMatches(t *testing.T) {
	h, _ := NewHasher(bcrypt.MinCost)
	for _, digest := range []string{"", "plaintext", "$2a$99$short"} {
		if h.Verify("plaintext", digest) {
			t.Fatalf("malformed digest %q matched", digest)
		}
	}
}

func TestHasher_DummyDigestMatchesCost(t *testing.T) {
	h, err := NewHasher(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	cost, err := bcrypt.Cost(h.dummy)
	if err != nil || cost != h.Cost() {
		t.Fatalf("dummy digest must cost as much as a real one: cost=%d err=%v", cost, err)
	}
}

func TestHasher_CostBounds(t *testing.T) {
	if _, err := NewHasher(bcrypt.MaxCost + 1); err == nil {
		t.Fatalf("expected error for cost above max")
	}
	if _, err := NewHasher(1); err == nil {
		t.Fatalf("expected error for cost below min")
	}
}

func TestHasher_PasswordTooLong(t *testing.T) {
	h, _ := NewHasher(bcrypt.MinCost)
	long := strings.Repeat("x", 100)
	_, err := h.Hash(long)
	if err == nil {
		t.Fatalf("expected error for 100-byte password")
	}
	if strings.Contains(err.Error(), long) {
		t.Fatalf("error leaks plaintext")
	}
}
