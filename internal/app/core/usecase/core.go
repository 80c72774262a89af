package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// DefaultMaxAttempts 發生版本衝突時整個 讀取-計算-寫入 最多執行的次數
const DefaultMaxAttempts = 3

// MutationResult 異動結果
type MutationResult struct {
	View domain.AccountView
	// Entry 新增 (Deposit/Withdraw) 或被移除 (RemoveEntry) 的紀錄
	Entry *domain.LedgerEntry
}

// BalanceUseCase 是核心業務邏輯層
// 負責 讀取帳戶 -> domain.Apply -> 寫回，並在成功後送出通知
type BalanceUseCase struct {
	directory   AccountDirectory
	notifier    Notifier
	locks       *keyedMutex
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
}

// BalanceOption 定義了 BalanceUseCase 的配置選項函數
type BalanceOption func(*BalanceUseCase)

// WithClock 替換時間來源 (測試用)
func WithClock(now func() time.Time) BalanceOption {
	return func(u *BalanceUseCase) {
		u.now = now
	}
}

// WithMaxAttempts 設定版本衝突時的最大嘗試次數
func WithMaxAttempts(n int) BalanceOption {
	return func(u *BalanceUseCase) {
		if n > 0 {
			u.maxAttempts = n
		}
	}
}

// NewBalanceUseCase 建立 BalanceUseCase
//
// 參數:
//
//	directory: 帳戶儲存
//	notifier: 通知端，可為 nil
//	logger: zap logger
//	opts: 可選設定
func NewBalanceUseCase(directory AccountDirectory, notifier Notifier, logger *zap.Logger, opts ...BalanceOption) *BalanceUseCase {
	u := &BalanceUseCase{
		directory:   directory,
		notifier:    notifier,
		locks:       newKeyedMutex(),
		logger:      logger,
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Deposit 存款
func (u *BalanceUseCase) Deposit(ctx context.Context, identity string, amount decimal.Decimal) (MutationResult, error) {
	return u.Apply(ctx, identity, domain.Deposit{Amount: amount})
}

// Withdraw 提款，status 為空時預設 Pending
func (u *BalanceUseCase) Withdraw(ctx context.Context, identity string, amount decimal.Decimal, status domain.EntryStatus, reason string) (MutationResult, error) {
	return u.Apply(ctx, identity, domain.Withdraw{Amount: amount, Status: status, Reason: reason})
}

// SetWithdrawalLimit 設定提款上限，0 代表清除
func (u *BalanceUseCase) SetWithdrawalLimit(ctx context.Context, identity string, limit decimal.Decimal) (MutationResult, error) {
	return u.Apply(ctx, identity, domain.SetWithdrawalLimit{Amount: limit})
}

// RemoveEntry 移除指定索引的交易紀錄
func (u *BalanceUseCase) RemoveEntry(ctx context.Context, identity string, index int) (MutationResult, error) {
	return u.Apply(ctx, identity, domain.RemoveEntry{Index: index})
}

// GetAccountView 取得帳戶完整投影
func (u *BalanceUseCase) GetAccountView(ctx context.Context, identity string) (domain.AccountView, error) {
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return domain.AccountView{}, err
	}
	account, err := u.directory.FindByIdentity(ctx, id)
	if err != nil {
		return domain.AccountView{}, err
	}
	return account.View(), nil
}

// Apply 處理任一種帳戶異動
//
// 同一個 identity 的異動在本行程內依序執行；跨行程的競爭由 directory 的版本檢查偵測，
// 衝突時重新讀取並重算，最多 maxAttempts 次。
func (u *BalanceUseCase) Apply(ctx context.Context, identity string, op domain.Operation) (MutationResult, error) {
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return MutationResult{}, err
	}

	unlock := u.locks.Lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		current, err := u.directory.FindByIdentity(ctx, id)
		if err != nil {
			return MutationResult{}, err
		}

		now := u.now()
		next, entry, err := domain.Apply(*current, op, now)
		if err != nil {
			return MutationResult{}, err
		}

		if err := u.directory.Save(ctx, &next); err != nil {
			if errors.Is(err, domain.ErrPersistenceConflict) && attempt < u.maxAttempts {
				u.logger.Warn("Account version conflict, retrying",
					zap.String("email", id),
					zap.String("operation", op.Name()),
					zap.Int("attempt", attempt))
				continue
			}
			return MutationResult{}, err
		}

		u.logger.Info("Account updated",
			zap.String("email", id),
			zap.String("operation", op.Name()),
			zap.String("balance", next.Balance.String()),
			zap.Int64("version", next.Version))

		u.notify(ctx, domain.NotificationFor(op, next, entry, now))
		return MutationResult{View: next.View(), Entry: entry}, nil
	}
}

// notify 通知失敗只記 log，不影響異動結果
func (u *BalanceUseCase) notify(ctx context.Context, n domain.Notification) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		u.logger.Warn("Failed to dispatch notification",
			zap.String("type", string(n.Type)),
			zap.String("email", n.Identity),
			zap.Error(err))
	}
}
