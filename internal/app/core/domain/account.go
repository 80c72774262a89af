package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account 使用者帳戶
//
// 不變量: Balance == ReconcileBalance(Ledger)
type Account struct {
	Identity     string
	Name         string
	PasswordHash string
	Balance      decimal.Decimal
	// WithdrawalLimit 為 nil 代表未設定上限；一旦設定必為正數
	WithdrawalLimit *decimal.Decimal
	Ledger          []LedgerEntry
	// Version 樂觀鎖版本號，每次成功寫入 +1
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewAccount 建立一個新帳戶 (餘額 0、空帳本、無提款上限)
func NewAccount(identity, name, passwordHash string, now time.Time) *Account {
	return &Account{
		Identity:     identity,
		Name:         name,
		PasswordHash: passwordHash,
		Balance:      decimal.Zero,
		Ledger:       make([]LedgerEntry, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone 深拷貝，讓引擎與儲存層不會共用 slice / pointer
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.WithdrawalLimit != nil {
		limit := *a.WithdrawalLimit
		c.WithdrawalLimit = &limit
	}
	c.Ledger = make([]LedgerEntry, len(a.Ledger))
	copy(c.Ledger, a.Ledger)
	return &c
}

// LimitExceeded 提款金額是否超過已設定的上限
func (a *Account) LimitExceeded(amount decimal.Decimal) bool {
	return a.WithdrawalLimit != nil && amount.GreaterThan(*a.WithdrawalLimit)
}

// NormalizeIdentity 統一 email 格式 (去空白、轉小寫) 並檢查格式
func NormalizeIdentity(identity string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(identity))
	if id == "" {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(id); err != nil {
		return "", fmt.Errorf("%w: invalid email %q", ErrValidation, identity)
	}
	return id, nil
}

// AccountView 帳戶對外的投影，不含密碼
type AccountView struct {
	Name            string           `json:"name"`
	Email           string           `json:"email"`
	Balance         decimal.Decimal  `json:"balance"`
	WithdrawalLimit *decimal.Decimal `json:"withdrawalLimit"`
	Transactions    []LedgerEntry    `json:"transactions"`
}

// View 產生完整帳本的投影
func (a *Account) View() AccountView {
	v := AccountView{
		Name:         a.Name,
		Email:        a.Identity,
		Balance:      a.Balance,
		Transactions: make([]LedgerEntry, len(a.Ledger)),
	}
	if a.WithdrawalLimit != nil {
		limit := *a.WithdrawalLimit
		v.WithdrawalLimit = &limit
	}
	copy(v.Transactions, a.Ledger)
	return v
}

// Window 只保留最近 n 筆交易；n <= 0 代表不截斷
func (v AccountView) Window(n int) AccountView {
	if n <= 0 || len(v.Transactions) <= n {
		return v
	}
	v.Transactions = v.Transactions[len(v.Transactions)-n:]
	return v
}
