package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

func newAuthUseCase(dir AccountDirectory, n Notifier) *AuthUseCase {
	return NewAuthUseCase(dir, plainHasher{}, fakeTokens{}, n, zap.NewNop())
}

func TestAuthUseCase_SignupAndLogin(t *testing.T) {
	dir := newFakeDirectory()
	notifier := &fakeNotifier{}
	uc := newAuthUseCase(dir, notifier)
	ctx := context.Background()

	view, err := uc.Signup(ctx, "Alice", "Alice@Example.com", "secret1")
	if err != nil {
		t.Fatalf("Signup err=%v", err)
	}
	if view.Email != "alice@example.com" || !view.Balance.IsZero() || view.WithdrawalLimit != nil {
		t.Fatalf("unexpected view %+v", view)
	}
	if got := notifier.types(); len(got) != 1 || got[0] != domain.NotificationSignup {
		t.Fatalf("notifications=%v", got)
	}

	stored, _ := dir.FindByIdentity(ctx, "alice@example.com")
	if stored.PasswordHash != "hashed:secret1" {
		t.Fatalf("password stored as %q", stored.PasswordHash)
	}

	res, err := uc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login err=%v", err)
	}
	if res.Token != "token:alice@example.com" || res.User.Name != "Alice" {
		t.Fatalf("unexpected login result %+v", res)
	}

	id, err := uc.Authenticate(res.Token)
	if err != nil || id != "alice@example.com" {
		t.Fatalf("Authenticate=%q,%v", id, err)
	}
	profile, err := uc.Profile(ctx, id)
	if err != nil || profile.Email != id {
		t.Fatalf("Profile=%+v,%v", profile, err)
	}
}

func TestAuthUseCase_SignupValidation(t *testing.T) {
	uc := newAuthUseCase(newFakeDirectory(), nil)
	ctx := context.Background()

	tests := []struct {
		name, email, password string
	}{
		{"", "a@example.com", "secret1"},
		{"A", "", "secret1"},
		{"A", "nope", "secret1"},
		{"A", "a@example.com", "123"},
	}
	for _, tt := range tests {
		if _, err := uc.Signup(ctx, tt.name, tt.email, tt.password); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("Signup(%q,%q) err=%v want ErrValidation", tt.name, tt.email, err)
		}
	}
}

func TestAuthUseCase_DuplicateSignup(t *testing.T) {
	uc := newAuthUseCase(newFakeDirectory(), nil)
	ctx := context.Background()

	if _, err := uc.Signup(ctx, "Alice", "alice@example.com", "secret1"); err != nil {
		t.Fatalf("first Signup err=%v", err)
	}
	if _, err := uc.Signup(ctx, "Alice 2", "ALICE@example.com", "secret2"); !errors.Is(err, domain.ErrAccountAlreadyExists) {
		t.Fatalf("duplicate Signup err=%v want ErrAccountAlreadyExists", err)
	}
}

func TestAuthUseCase_LoginFailures(t *testing.T) {
	uc := newAuthUseCase(newFakeDirectory(seedAccount()), nil)
	ctx := context.Background()

	if _, err := uc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("bad password err=%v", err)
	}
	if _, err := uc.Login(ctx, "bob@example.com", "secret"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("unknown email err=%v", err)
	}
	if _, err := uc.Authenticate("garbage"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("bad token err=%v", err)
	}
}

func TestAuthUseCase_SignupNotifierFailureIgnored(t *testing.T) {
	uc := newAuthUseCase(newFakeDirectory(), &fakeNotifier{err: errSinkDown})
	if _, err := uc.Signup(context.Background(), "Alice", "alice@example.com", "secret1"); err != nil {
		t.Fatalf("Signup err=%v", err)
	}
}
