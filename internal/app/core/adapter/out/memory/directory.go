package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
	"github.com/JoeShih716/go-balance-desk/pkg/wal"
)

// walKindAccount 帳戶快照紀錄；重放時以最後一筆為準
const walKindAccount = "account"

// Directory 是一個使用 RWMutex 保護的記憶體帳戶儲存
//
// 結構:
//
//	accounts: email -> 帳戶
//	mu: RWMutex 用於保護帳戶資料
//	wal: Write-Ahead Log 實例，可為 nil (純記憶體)
type Directory struct {
	accounts map[string]*domain.Account
	mu       sync.RWMutex
	// Write-Ahead Logging
	wal *wal.WAL
}

// NewDirectory 建立一個新的 Directory 實例，並從 WAL 恢復資料
//
// 參數:
//
//	w: Write-Ahead Log 實例 (nil 代表不落地)
//
// 回傳:
//
//	*Directory: Directory 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewDirectory(w *wal.WAL) (*Directory, error) {
	d := &Directory{
		accounts: make(map[string]*domain.Account),
		wal:      w,
	}
	if err := d.recoverFromWAL(); err != nil {
		return nil, err
	}
	return d, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳戶狀態
// 只有 NewDirectory 呼叫，無需 Lock (單執行緒)
func (d *Directory) recoverFromWAL() error {
	if d.wal == nil {
		return nil
	}
	replayed := 0
	err := d.wal.Replay(func(rec wal.Record) error {
		if rec.Kind != walKindAccount {
			return nil
		}
		var account domain.Account
		if err := json.Unmarshal(rec.Payload, &account); err != nil {
			return fmt.Errorf("failed to decode account snapshot: %w", err)
		}
		d.accounts[account.Identity] = &account
		replayed++
		return nil
	})
	if err != nil {
		return err
	}
	// 每次寫入都追加完整快照，重啟時壓縮成每個帳戶一筆
	if replayed > len(d.accounts) {
		return d.compact()
	}
	return nil
}

// compact 以目前的帳戶狀態重寫 WAL
func (d *Directory) compact() error {
	identities := make([]string, 0, len(d.accounts))
	for id := range d.accounts {
		identities = append(identities, id)
	}
	sort.Strings(identities)

	records := make([]wal.Record, 0, len(identities))
	for _, id := range identities {
		rec, err := wal.NewRecord(walKindAccount, d.accounts[id])
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	if err := d.wal.Rewrite(records); err != nil {
		return fmt.Errorf("failed to compact wal: %w", err)
	}
	return nil
}

// FindByIdentity 依 email 取得帳戶 (回傳副本)
func (d *Directory) FindByIdentity(ctx context.Context, identity string) (*domain.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	account, ok := d.accounts[identity]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return account.Clone(), nil
}

// Create 建立新帳戶
func (d *Directory) Create(ctx context.Context, account *domain.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[account.Identity]; ok {
		return domain.ErrAccountAlreadyExists
	}
	stored := account.Clone()
	if err := d.persist(stored); err != nil {
		return err
	}
	d.accounts[stored.Identity] = stored
	return nil
}

// Save 整筆寫回帳戶 (樂觀鎖)
//
// 參數:
//
//	ctx: 上下文
//	account: 異動後的帳戶，Version 必須等於目前儲存的版本
//
// 回傳:
//
//	error: 版本不符時回傳 domain.ErrPersistenceConflict
func (d *Directory) Save(ctx context.Context, account *domain.Account) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	current, ok := d.accounts[account.Identity]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if current.Version != account.Version {
		return domain.ErrPersistenceConflict
	}

	stored := account.Clone()
	stored.Version++
	// 1. 寫入 WAL (Critical Path)，失敗則記憶體不變
	if err := d.persist(stored); err != nil {
		return err
	}
	// 2. 更新記憶體
	d.accounts[stored.Identity] = stored
	account.Version = stored.Version
	return nil
}

func (d *Directory) persist(account *domain.Account) error {
	if d.wal == nil {
		return nil
	}
	if err := d.wal.Append(walKindAccount, account); err != nil {
		return fmt.Errorf("failed to append account snapshot: %w", err)
	}
	return nil
}

var _ usecase.AccountDirectory = (*Directory)(nil)
