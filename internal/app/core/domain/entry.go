package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryKind 交易類型
type EntryKind string

const (
	// 存款
	EntryKindDeposit EntryKind = "Deposit"
	// 提款
	EntryKindWithdrawal EntryKind = "Withdrawal"
)

// EntryStatus 交易狀態
type EntryStatus string

const (
	EntryStatusCompleted EntryStatus = "Completed"
	EntryStatusPending   EntryStatus = "Pending"
	EntryStatusFailed    EntryStatus = "Failed"
)

// ParseEntryStatus 解析管理端傳入的狀態字串 (大小寫不拘)
// 空字串回傳 "" 代表呼叫端未指定，由引擎套用預設值
func ParseEntryStatus(s string) (EntryStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "completed":
		return EntryStatusCompleted, nil
	case "pending":
		return EntryStatusPending, nil
	case "failed":
		return EntryStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction status %q", ErrValidation, s)
	}
}

// Valid 是否為已定義的狀態
func (s EntryStatus) Valid() bool {
	switch s {
	case EntryStatusCompleted, EntryStatusPending, EntryStatusFailed:
		return true
	}
	return false
}

// LedgerEntry 一筆交易紀錄
// Amount 永遠為正數，對餘額的影響由 Kind + Status 決定 (見 EffectiveDelta)
type LedgerEntry struct {
	ID        uuid.UUID       `json:"id"`
	Kind      EntryKind       `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"date"`
	Status    EntryStatus     `json:"status"`
	// Reason 只有 Status == Failed 時才有值
	Reason string `json:"reason,omitempty"`
}

// EffectiveDelta 回傳此筆紀錄建立時對餘額造成的影響
//
//	Deposit                  -> +amount
//	Withdrawal (非 Failed)    -> -amount
//	Withdrawal (Failed)      -> 0
func EffectiveDelta(e LedgerEntry) decimal.Decimal {
	switch e.Kind {
	case EntryKindDeposit:
		return e.Amount
	case EntryKindWithdrawal:
		if e.Status == EntryStatusFailed {
			return decimal.Zero
		}
		return e.Amount.Neg()
	}
	return decimal.Zero
}

// ReconcileBalance 依帳本重新計算餘額，用於檢查不變量
func ReconcileBalance(entries []LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(EffectiveDelta(e))
	}
	return sum
}
