package usecase

import (
	"context"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// AccountDirectory 帳戶儲存介面，整個 Account (含帳本) 為一致性單位
type AccountDirectory interface {
	// FindByIdentity 依 email 取得帳戶，找不到回傳 domain.ErrAccountNotFound
	FindByIdentity(ctx context.Context, identity string) (*domain.Account, error)
	// Create 建立新帳戶，email 重複回傳 domain.ErrAccountAlreadyExists
	Create(ctx context.Context, account *domain.Account) error
	// Save 整筆寫回；儲存端版本與 account.Version 不同時回傳 domain.ErrPersistenceConflict
	// 成功後 account.Version 會 +1
	Save(ctx context.Context, account *domain.Account) error
}

// Notifier 通知端 (best effort)，實作不應阻塞呼叫端
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// PasswordHasher 密碼雜湊
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare 不相符時回傳 domain.ErrInvalidCredentials
	Compare(hash, password string) error
}

// TokenIssuer 簽發與驗證登入 token
type TokenIssuer interface {
	Issue(identity string) (string, error)
	// Verify 成功時回傳 token 所屬的 identity，失敗回傳 domain.ErrUnauthorized
	Verify(token string) (string, error)
}
