package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
)

// MinPasswordLength 註冊時的最短密碼長度
const MinPasswordLength = 6

// LoginResult 登入成功後回傳 token 與帳戶投影
type LoginResult struct {
	Token string             `json:"token"`
	User  domain.AccountView `json:"user"`
}

// AuthUseCase 使用者註冊 / 登入
type AuthUseCase struct {
	directory AccountDirectory
	hasher    PasswordHasher
	tokens    TokenIssuer
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthUseCase 建立 AuthUseCase，notifier 可為 nil
func NewAuthUseCase(directory AccountDirectory, hasher PasswordHasher, tokens TokenIssuer, notifier Notifier, logger *zap.Logger) *AuthUseCase {
	return &AuthUseCase{
		directory: directory,
		hasher:    hasher,
		tokens:    tokens,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// Signup 建立新帳戶
//
// 參數:
//
//	name: 顯示名稱
//	identity: email
//	password: 明碼，只保存 bcrypt 雜湊
//
// 回傳:
//
//	domain.AccountView: 新帳戶 (餘額 0、空帳本)
//	error: 驗證失敗 / email 已存在
func (u *AuthUseCase) Signup(ctx context.Context, name, identity, password string) (domain.AccountView, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.AccountView{}, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return domain.AccountView{}, err
	}
	if len(password) < MinPasswordLength {
		return domain.AccountView{}, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}

	hash, err := u.hasher.Hash(password)
	if err != nil {
		return domain.AccountView{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := u.now()
	account := domain.NewAccount(id, name, hash, now)
	if err := u.directory.Create(ctx, account); err != nil {
		return domain.AccountView{}, err
	}
	u.logger.Info("Account created", zap.String("email", id))

	if u.notifier != nil {
		if err := u.notifier.Notify(context.WithoutCancel(ctx), domain.SignupNotification(*account, now)); err != nil {
			u.logger.Warn("Failed to dispatch signup notification", zap.String("email", id), zap.Error(err))
		}
	}
	return account.View(), nil
}

// Login 驗證密碼並簽發 token
// 帳號不存在回傳 ErrAccountNotFound，密碼錯誤回傳 ErrInvalidCredentials
func (u *AuthUseCase) Login(ctx context.Context, identity, password string) (LoginResult, error) {
	id, err := domain.NormalizeIdentity(identity)
	if err != nil {
		return LoginResult{}, err
	}
	account, err := u.directory.FindByIdentity(ctx, id)
	if err != nil {
		return LoginResult{}, err
	}
	if err := u.hasher.Compare(account.PasswordHash, password); err != nil {
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	token, err := u.tokens.Issue(account.Identity)
	if err != nil {
		return LoginResult{}, fmt.Errorf("failed to issue token: %w", err)
	}
	return LoginResult{Token: token, User: account.View()}, nil
}

// Authenticate 驗證 token 並回傳所屬 identity
func (u *AuthUseCase) Authenticate(token string) (string, error) {
	return u.tokens.Verify(token)
}

// Profile 取得登入者自己的帳戶
func (u *AuthUseCase) Profile(ctx context.Context, identity string) (domain.AccountView, error) {
	account, err := u.directory.FindByIdentity(ctx, identity)
	if err != nil {
		return domain.AccountView{}, err
	}
	return account.View(), nil
}
