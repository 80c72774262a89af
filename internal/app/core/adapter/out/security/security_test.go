package security

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash err=%v", err)
	}
	if hash == "secret1" {
		t.Fatalf("password stored in clear text")
	}
	if err := h.Compare(hash, "secret1"); err != nil {
		t.Fatalf("Compare err=%v", err)
	}
	if err := h.Compare(hash, "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("wrong password err=%v", err)
	}
	if err := h.Compare("not-a-hash", "secret1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("malformed hash err=%v", err)
	}
}

func TestJWTIssuer(t *testing.T) {
	j, err := NewJWTIssuer("test-secret", "balance-desk", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTIssuer err=%v", err)
	}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return now }

	token, err := j.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue err=%v", err)
	}
	id, err := j.Verify(token)
	if err != nil || id != "alice@example.com" {
		t.Fatalf("Verify=%q,%v", id, err)
	}

	// 過期
	now = now.Add(2 * time.Hour)
	if _, err := j.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expired token err=%v", err)
	}
	now = now.Add(-2 * time.Hour)

	// 不同金鑰簽的
	other, _ := NewJWTIssuer("other-secret", "balance-desk", time.Hour)
	other.now = j.now
	forged, _ := other.Issue("alice@example.com")
	if _, err := j.Verify(forged); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("forged token err=%v", err)
	}
	if _, err := j.Verify("garbage"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("garbage token err=%v", err)
	}
}

func TestNewJWTIssuerRequiresSecret(t *testing.T) {
	if _, err := NewJWTIssuer("", "x", 0); err == nil {
		t.Fatalf("empty secret should be rejected")
	}
}
