package security

import (
	"strings"
	"testing"
	"time"
)

func TestIssueQRTokenUnguessable(t *testing.T) {
	now := time.Now()

	first, err := IssueQRToken(now, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	second, err := IssueQRToken(now, time.Minute)
	if err != nil {
		t.Fatalf("issue second token: %v", err)
	}
	if first.Value == second.Value {
		t.Fatal("two issued tokens must differ")
	}
	if first.Hash == second.Hash {
		t.Fatal("token hashes must differ")
	}
	if !strings.Contains(first.Value, ".") {
		t.Fatalf("expected nonce.entropy shape, got %q", first.Value)
	}
	if got := first.ExpiresAt; !got.Equal(now.Add(time.Minute)) {
		t.Fatalf("expected expiry %v, got %v", now.Add(time.Minute), got)
	}
}

func TestHashQRTokenDeterministic(t *testing.T) {
	value := "token-value"
	if HashQRToken(value) != HashQRToken(value) {
		t.Fatal("hash must be stable for the same input")
	}
	if HashQRToken(value) == HashQRToken("token-value-2") {
		t.Fatal("distinct inputs must not collide in tests")
	}
	if len(HashQRToken(value)) != 64 {
		t.Fatalf("expected 32-byte hex digest, got %d chars", len(HashQRToken(value)))
	}
}

func TestIssueQRTokenHashMatchesValue(t *testing.T) {
	tok, err := IssueQRToken(time.Now(), time.Second)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	if HashQRToken(tok.Value) != tok.Hash {
		t.Fatal("stored hash must match the presented value's hash")
	}
}
