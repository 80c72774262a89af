package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// fakeDirectory 測試用的記憶體 directory，可以注入版本衝突
type fakeDirectory struct {
	mu        sync.Mutex
	accounts  map[string]*domain.Account
	conflicts int // 接下來幾次 Save 要回傳衝突
	saves     int
}

func newFakeDirectory(accounts ...*domain.Account) *fakeDirectory {
	f := &fakeDirectory{accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		f.accounts[a.Identity] = a.Clone()
	}
	return f
}

func (f *fakeDirectory) FindByIdentity(_ context.Context, identity string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[identity]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a.Clone(), nil
}

func (f *fakeDirectory) Create(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[account.Identity]; ok {
		return domain.ErrAccountAlreadyExists
	}
	f.accounts[account.Identity] = account.Clone()
	return nil
}

func (f *fakeDirectory) Save(_ context.Context, account *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.conflicts > 0 {
		f.conflicts--
		return domain.ErrPersistenceConflict
	}
	stored, ok := f.accounts[account.Identity]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if stored.Version != account.Version {
		return domain.ErrPersistenceConflict
	}
	account.Version++
	f.accounts[account.Identity] = account.Clone()
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func (f *fakeNotifier) types() []domain.NotificationType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.NotificationType, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Type)
	}
	return out
}

// plainHasher 只加前綴，不做真的雜湊
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return domain.ErrInvalidCredentials
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(identity string) (string, error) { return "token:" + identity, nil }

func (fakeTokens) Verify(token string) (string, error) {
	id, ok := strings.CutPrefix(token, "token:")
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return id, nil
}

var errSinkDown = errors.New("sink down")
