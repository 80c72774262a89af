package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newBalanceUseCase(t *testing.T, dir AccountDirectory, n Notifier, opts ...BalanceOption) *BalanceUseCase {
	t.Helper()
	opts = append([]BalanceOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewBalanceUseCase(dir, n, zap.NewNop(), opts...)
}

func seedAccount() *domain.Account {
	return domain.NewAccount("alice@example.com", "Alice", "hashed:secret", fixedNow)
}

func TestBalanceUseCase_DepositAndWithdraw(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	notifier := &fakeNotifier{}
	uc := newBalanceUseCase(t, dir, notifier)
	ctx := context.Background()

	res, err := uc.Deposit(ctx, " Alice@Example.com ", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("Deposit err=%v", err)
	}
	if !res.View.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("balance=%s want=100", res.View.Balance)
	}
	if res.Entry == nil || res.Entry.Kind != domain.EntryKindDeposit {
		t.Fatalf("unexpected entry %+v", res.Entry)
	}

	res, err = uc.Withdraw(ctx, "alice@example.com", decimal.NewFromInt(30), "", "")
	if err != nil {
		t.Fatalf("Withdraw err=%v", err)
	}
	if !res.View.Balance.Equal(decimal.NewFromInt(70)) || res.Entry.Status != domain.EntryStatusPending {
		t.Fatalf("balance=%s status=%s", res.View.Balance, res.Entry.Status)
	}

	stored, _ := dir.FindByIdentity(ctx, "alice@example.com")
	if stored.Version != 2 || len(stored.Ledger) != 2 {
		t.Fatalf("stored version=%d entries=%d", stored.Version, len(stored.Ledger))
	}

	got := notifier.types()
	if len(got) != 2 || got[0] != domain.NotificationDeposit || got[1] != domain.NotificationWithdrawal {
		t.Fatalf("notifications=%v", got)
	}
}

func TestBalanceUseCase_RetriesOnConflict(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	dir.conflicts = 2
	uc := newBalanceUseCase(t, dir, nil)

	res, err := uc.Deposit(context.Background(), "alice@example.com", decimal.NewFromInt(5))
	if err != nil {
		t.Fatalf("Deposit err=%v", err)
	}
	if dir.saves != 3 {
		t.Fatalf("saves=%d want=3", dir.saves)
	}
	// 重試時從新讀取，不會重複入帳
	if !res.View.Balance.Equal(decimal.NewFromInt(5)) || len(res.View.Transactions) != 1 {
		t.Fatalf("balance=%s entries=%d", res.View.Balance, len(res.View.Transactions))
	}
}

func TestBalanceUseCase_GivesUpAfterMaxAttempts(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	dir.conflicts = 10
	notifier := &fakeNotifier{}
	uc := newBalanceUseCase(t, dir, notifier)

	_, err := uc.Deposit(context.Background(), "alice@example.com", decimal.NewFromInt(5))
	if !errors.Is(err, domain.ErrPersistenceConflict) {
		t.Fatalf("err=%v want ErrPersistenceConflict", err)
	}
	if dir.saves != DefaultMaxAttempts {
		t.Fatalf("saves=%d want=%d", dir.saves, DefaultMaxAttempts)
	}
	if len(notifier.types()) != 0 {
		t.Fatalf("failed mutation must not notify")
	}
}

func TestBalanceUseCase_NotifierFailureDoesNotFailMutation(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	uc := newBalanceUseCase(t, dir, &fakeNotifier{err: errSinkDown})

	if _, err := uc.SetWithdrawalLimit(context.Background(), "alice@example.com", decimal.NewFromInt(10)); err != nil {
		t.Fatalf("SetWithdrawalLimit err=%v", err)
	}
	stored, _ := dir.FindByIdentity(context.Background(), "alice@example.com")
	if stored.WithdrawalLimit == nil || !stored.WithdrawalLimit.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("limit not persisted: %v", stored.WithdrawalLimit)
	}
}

func TestBalanceUseCase_Errors(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	uc := newBalanceUseCase(t, dir, nil)
	ctx := context.Background()

	if _, err := uc.Deposit(ctx, "bob@example.com", decimal.NewFromInt(1)); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("unknown identity err=%v", err)
	}
	if _, err := uc.Deposit(ctx, "not-an-email", decimal.NewFromInt(1)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("bad identity err=%v", err)
	}
	if _, err := uc.Deposit(ctx, "alice@example.com", decimal.Zero); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("zero amount err=%v", err)
	}
	if _, err := uc.RemoveEntry(ctx, "alice@example.com", 0); !errors.Is(err, domain.ErrEntryNotFound) {
		t.Fatalf("remove on empty ledger err=%v", err)
	}
	if dir.saves != 0 {
		t.Fatalf("failed operations must not save, saves=%d", dir.saves)
	}
}

// 同一帳戶的並行異動不可遺失更新
func TestBalanceUseCase_ConcurrentMutationsSameAccount(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	uc := newBalanceUseCase(t, dir, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := uc.Deposit(ctx, "alice@example.com", decimal.NewFromInt(3)); err != nil {
				t.Errorf("Deposit err=%v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := uc.Withdraw(ctx, "alice@example.com", decimal.NewFromInt(1), domain.EntryStatusCompleted, ""); err != nil {
				t.Errorf("Withdraw err=%v", err)
			}
		}()
	}
	wg.Wait()

	view, err := uc.GetAccountView(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetAccountView err=%v", err)
	}
	if !view.Balance.Equal(decimal.NewFromInt(100)) || len(view.Transactions) != 100 {
		t.Fatalf("balance=%s entries=%d want 100/100", view.Balance, len(view.Transactions))
	}
}

func TestBalanceUseCase_RemoveEntryReturnsRemoved(t *testing.T) {
	dir := newFakeDirectory(seedAccount())
	notifier := &fakeNotifier{}
	uc := newBalanceUseCase(t, dir, notifier)
	ctx := context.Background()

	dep, _ := uc.Deposit(ctx, "alice@example.com", decimal.NewFromInt(100))
	res, err := uc.RemoveEntry(ctx, "alice@example.com", 0)
	if err != nil {
		t.Fatalf("RemoveEntry err=%v", err)
	}
	if res.Entry.ID != dep.Entry.ID || !res.View.Balance.IsZero() {
		t.Fatalf("removed=%v balance=%s", res.Entry.ID, res.View.Balance)
	}
	if got := notifier.types(); got[len(got)-1] != domain.NotificationEntryRemoved {
		t.Fatalf("last notification=%s", got[len(got)-1])
	}
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	unlock()
	if len(k.locks) != 0 {
		t.Fatalf("locks=%d want=0", len(k.locks))
	}
}
