package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
	"github.com/JoeShih716/go-balance-desk/pkg/mysql"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID              int64               `gorm:"primaryKey;autoIncrement"`
	Email           string              `gorm:"size:255;uniqueIndex;not null"`
	Name            string              `gorm:"size:255;not null"`
	PasswordHash    string              `gorm:"size:255;not null"`
	Balance         decimal.Decimal     `gorm:"type:decimal(20,4);not null;default:0"`
	WithdrawalLimit decimal.NullDecimal `gorm:"type:decimal(20,4)"` // NULL 代表未設定
	Version         int64               `gorm:"not null;default:0"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

// sqlLedgerEntry 對應資料庫的 ledger_entries 表
// Position 保存帳本內的順序 (0 起算)
type sqlLedgerEntry struct {
	ID         int64           `gorm:"primaryKey;autoIncrement"`
	RefID      []byte          `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.LedgerEntry.ID
	AccountID  int64           `gorm:"index:idx_account_position,priority:1;not null"`
	Position   int             `gorm:"index:idx_account_position,priority:2;not null"`
	Kind       string          `gorm:"size:16;not null"`
	Amount     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Status     string          `gorm:"size:16;not null"`
	Reason     string          `gorm:"size:255"`
	OccurredAt time.Time       `gorm:"not null"`
}

func (*sqlLedgerEntry) TableName() string {
	return "ledger_entries"
}

// Directory 以 MySQL (GORM) 實作的帳戶儲存
type Directory struct {
	client *mysql.Client
}

// NewDirectory 建立 Directory
func NewDirectory(client *mysql.Client) *Directory {
	return &Directory{
		client: client,
	}
}

// Migrate 建立 / 更新資料表
func (d *Directory) Migrate(ctx context.Context) error {
	if err := d.client.DB().WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlLedgerEntry{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// FindByIdentity 依 email 取得帳戶與完整帳本
func (d *Directory) FindByIdentity(ctx context.Context, identity string) (*domain.Account, error) {
	db := d.client.DB().WithContext(ctx)

	var row sqlAccount
	if err := db.Where("email = ?", identity).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	var entries []sqlLedgerEntry
	if err := db.Where("account_id = ?", row.ID).Order("position ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	return toDomainAccount(&row, entries)
}

// Create 建立新帳戶 (新帳戶的帳本必為空)
func (d *Directory) Create(ctx context.Context, account *domain.Account) error {
	row := fromDomainAccount(account)
	err := d.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&sqlAccount{}).Where("email = ?", row.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrAccountAlreadyExists
		}
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return insertEntries(tx, row.ID, account.Ledger)
	})
	return createError(err)
}

// createError 交易結果 -> domain 錯誤；email 唯一索引衝突 (併發建立) 也視為已存在
func createError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrAccountAlreadyExists), errors.Is(err, gorm.ErrDuplicatedKey):
		return domain.ErrAccountAlreadyExists
	default:
		return fmt.Errorf("failed to create account: %w", err)
	}
}

// Save 整筆寫回帳戶
//
// 在同一個交易內:
//  1. 以 version 做條件更新帳戶欄位 (RowsAffected 為 0 代表衝突)
//  2. 刪除舊帳本並依序重新寫入
//
// 成功後 account.Version +1
func (d *Directory) Save(ctx context.Context, account *domain.Account) error {
	row := fromDomainAccount(account)
	err := d.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sqlAccount{}).
			Where("email = ? AND version = ?", account.Identity, account.Version).
			Updates(map[string]any{
				"name":             row.Name,
				"balance":          row.Balance,
				"withdrawal_limit": row.WithdrawalLimit,
				"version":          account.Version + 1,
				"updated_at":       row.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if err := versionCheck(res.RowsAffected, func() (int64, error) {
			var count int64
			err := tx.Model(&sqlAccount{}).Where("email = ?", account.Identity).Count(&count).Error
			return count, err
		}); err != nil {
			return err
		}

		var id int64
		if err := tx.Model(&sqlAccount{}).Select("id").Where("email = ?", account.Identity).Scan(&id).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&sqlLedgerEntry{}).Error; err != nil {
			return err
		}
		return insertEntries(tx, id, account.Ledger)
	})
	if err := saveError(err); err != nil {
		return err
	}
	account.Version++
	return nil
}

// versionCheck 條件更新沒有影響任何列時，用 email 計數區分「帳戶不存在」與「版本已被改過」
func versionCheck(rowsAffected int64, countByEmail func() (int64, error)) error {
	if rowsAffected > 0 {
		return nil
	}
	count, err := countByEmail()
	if err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrAccountNotFound
	}
	return domain.ErrPersistenceConflict
}

func saveError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrPersistenceConflict), errors.Is(err, domain.ErrAccountNotFound):
		return err
	default:
		return fmt.Errorf("failed to save account: %w", err)
	}
}

func insertEntries(tx *gorm.DB, accountID int64, ledger []domain.LedgerEntry) error {
	if len(ledger) == 0 {
		return nil
	}
	rows := make([]sqlLedgerEntry, 0, len(ledger))
	for i, e := range ledger {
		rows = append(rows, fromDomainEntry(accountID, i, e))
	}
	return tx.CreateInBatches(rows, 100).Error
}

func fromDomainAccount(a *domain.Account) *sqlAccount {
	row := &sqlAccount{
		Email:        a.Identity,
		Name:         a.Name,
		PasswordHash: a.PasswordHash,
		Balance:      a.Balance,
		Version:      a.Version,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
	if a.WithdrawalLimit != nil {
		row.WithdrawalLimit = decimal.NewNullDecimal(*a.WithdrawalLimit)
	}
	return row
}

func fromDomainEntry(accountID int64, position int, e domain.LedgerEntry) sqlLedgerEntry {
	return sqlLedgerEntry{
		RefID:      e.ID[:],
		AccountID:  accountID,
		Position:   position,
		Kind:       string(e.Kind),
		Amount:     e.Amount,
		Status:     string(e.Status),
		Reason:     e.Reason,
		OccurredAt: e.Timestamp,
	}
}

func toDomainAccount(row *sqlAccount, entries []sqlLedgerEntry) (*domain.Account, error) {
	a := &domain.Account{
		Identity:     row.Email,
		Name:         row.Name,
		PasswordHash: row.PasswordHash,
		Balance:      row.Balance,
		Ledger:       make([]domain.LedgerEntry, 0, len(entries)),
		Version:      row.Version,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.WithdrawalLimit.Valid {
		limit := row.WithdrawalLimit.Decimal
		a.WithdrawalLimit = &limit
	}
	for _, e := range entries {
		id, err := uuid.FromBytes(e.RefID)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger entry ref_id: %w", err)
		}
		a.Ledger = append(a.Ledger, domain.LedgerEntry{
			ID:        id,
			Kind:      domain.EntryKind(e.Kind),
			Amount:    e.Amount,
			Timestamp: e.OccurredAt,
			Status:    domain.EntryStatus(e.Status),
			Reason:    e.Reason,
		})
	}
	return a, nil
}

var _ usecase.AccountDirectory = (*Directory)(nil)
