package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotificationType 通知事件類型
type NotificationType string

const (
	NotificationSignup       NotificationType = "account.signup"
	NotificationDeposit      NotificationType = "balance.deposit"
	NotificationWithdrawal   NotificationType = "balance.withdrawal"
	NotificationLimitSet     NotificationType = "balance.limit_set"
	NotificationEntryRemoved NotificationType = "balance.entry_removed"
)

// Notification 異動完成後交給通知端的訊息 (best effort)
type Notification struct {
	ID         uuid.UUID        `json:"id"`
	Type       NotificationType `json:"type"`
	Identity   string           `json:"email"`
	Name       string           `json:"name,omitempty"`
	Balance    decimal.Decimal  `json:"balance"`
	Entry      *LedgerEntry     `json:"transaction,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// NotificationFor 依操作類型建立通知
func NotificationFor(op Operation, account Account, entry *LedgerEntry, now time.Time) Notification {
	var typ NotificationType
	switch op.(type) {
	case Deposit, *Deposit:
		typ = NotificationDeposit
	case Withdraw, *Withdraw:
		typ = NotificationWithdrawal
	case SetWithdrawalLimit, *SetWithdrawalLimit:
		typ = NotificationLimitSet
	case RemoveEntry, *RemoveEntry:
		typ = NotificationEntryRemoved
	default:
		typ = NotificationType("balance." + op.Name())
	}
	return Notification{
		ID:         uuid.New(),
		Type:       typ,
		Identity:   account.Identity,
		Name:       account.Name,
		Balance:    account.Balance,
		Entry:      entry,
		OccurredAt: now,
	}
}

// SignupNotification 新使用者註冊通知
func SignupNotification(account Account, now time.Time) Notification {
	return Notification{
		ID:         uuid.New(),
		Type:       NotificationSignup,
		Identity:   account.Identity,
		Name:       account.Name,
		Balance:    account.Balance,
		OccurredAt: now,
	}
}
