package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation 帳戶異動請求
// 不再分 Deposit/Withdraw 各自的入口，統一交給 Apply 依型別分派
type Operation interface {
	// Name 操作名稱，用於 log 與通知
	Name() string
}

// Deposit 存款，永遠成功且狀態為 Completed
type Deposit struct {
	Amount decimal.Decimal
}

// Withdraw 提款
// Status 為空時預設 Pending；Reason 只有在最終狀態為 Failed 時才會保存
type Withdraw struct {
	Amount decimal.Decimal
	Status EntryStatus
	Reason string
}

// SetWithdrawalLimit 設定提款上限，Amount 為 0 代表清除上限
type SetWithdrawalLimit struct {
	Amount decimal.Decimal
}

// RemoveEntry 移除指定索引的交易紀錄並回沖其對餘額的影響
type RemoveEntry struct {
	Index int
}

func (Deposit) Name() string            { return "deposit" }
func (Withdraw) Name() string           { return "withdrawal" }
func (SetWithdrawalLimit) Name() string { return "limit_set" }
func (RemoveEntry) Name() string        { return "entry_removed" }

// LimitExceededReason 超過提款上限時寫入的失敗原因
func LimitExceededReason(limit decimal.Decimal) string {
	return fmt.Sprintf("Withdrawal exceeds limit of ₦%s", limit.String())
}

// Apply 帳戶異動核心邏輯
//
// 參數:
//
//	account: 目前的帳戶狀態 (不會被修改)
//	op: 異動請求
//	now: 交易時間
//
// 回傳:
//
//	Account: 異動後的新帳戶
//	*LedgerEntry: 新增或被移除的交易紀錄 (SetWithdrawalLimit 時為 nil)
//	error: 驗證失敗或索引不存在；發生錯誤時不會有任何部分套用
func Apply(account Account, op Operation, now time.Time) (Account, *LedgerEntry, error) {
	next := account.Clone()

	var (
		entry *LedgerEntry
		err   error
	)
	switch o := op.(type) {
	case Deposit:
		entry, err = applyDeposit(next, o, now)
	case *Deposit:
		entry, err = applyDeposit(next, *o, now)
	case Withdraw:
		entry, err = applyWithdraw(next, o, now)
	case *Withdraw:
		entry, err = applyWithdraw(next, *o, now)
	case SetWithdrawalLimit:
		err = applySetLimit(next, o)
	case *SetWithdrawalLimit:
		err = applySetLimit(next, *o)
	case RemoveEntry:
		entry, err = applyRemoveEntry(next, o)
	case *RemoveEntry:
		entry, err = applyRemoveEntry(next, *o)
	default:
		err = fmt.Errorf("%w: unsupported operation %T", ErrValidation, op)
	}
	if err != nil {
		return Account{}, nil, err
	}
	// 餘額同樣要能被儲存端表示
	if err := checkAmountRange(next.Balance); err != nil {
		return Account{}, nil, fmt.Errorf("%w: resulting balance out of range", err)
	}
	next.UpdatedAt = now
	return *next, entry, nil
}

func applyDeposit(a *Account, op Deposit, now time.Time) (*LedgerEntry, error) {
	if err := ValidateAmount(op.Amount); err != nil {
		return nil, err
	}
	entry := LedgerEntry{
		ID:        uuid.New(),
		Kind:      EntryKindDeposit,
		Amount:    op.Amount,
		Timestamp: now,
		Status:    EntryStatusCompleted,
	}
	a.Balance = a.Balance.Add(op.Amount)
	a.Ledger = append(a.Ledger, entry)
	return &entry, nil
}

func applyWithdraw(a *Account, op Withdraw, now time.Time) (*LedgerEntry, error) {
	if err := ValidateAmount(op.Amount); err != nil {
		return nil, err
	}
	status := op.Status
	if status == "" {
		status = EntryStatusPending
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction status %q", ErrValidation, op.Status)
	}

	reason := op.Reason
	if a.LimitExceeded(op.Amount) {
		// 超過上限：強制失敗，不扣款
		status = EntryStatusFailed
		reason = LimitExceededReason(*a.WithdrawalLimit)
	}
	if status != EntryStatusFailed {
		// Pending 也先扣款，失敗時才不扣
		a.Balance = a.Balance.Sub(op.Amount)
		reason = ""
	}

	entry := LedgerEntry{
		ID:        uuid.New(),
		Kind:      EntryKindWithdrawal,
		Amount:    op.Amount,
		Timestamp: now,
		Status:    status,
		Reason:    reason,
	}
	a.Ledger = append(a.Ledger, entry)
	return &entry, nil
}

func applySetLimit(a *Account, op SetWithdrawalLimit) error {
	if op.Amount.IsNegative() {
		return fmt.Errorf("%w: withdrawal limit cannot be negative", ErrValidation)
	}
	if err := checkAmountRange(op.Amount); err != nil {
		return err
	}
	if op.Amount.IsZero() {
		a.WithdrawalLimit = nil
		return nil
	}
	limit := op.Amount
	a.WithdrawalLimit = &limit
	return nil
}

func applyRemoveEntry(a *Account, op RemoveEntry) (*LedgerEntry, error) {
	if op.Index < 0 || op.Index >= len(a.Ledger) {
		return nil, fmt.Errorf("%w: index %d", ErrEntryNotFound, op.Index)
	}
	removed := a.Ledger[op.Index]
	a.Balance = a.Balance.Sub(EffectiveDelta(removed))
	a.Ledger = append(a.Ledger[:op.Index], a.Ledger[op.Index+1:]...)
	return &removed, nil
}
