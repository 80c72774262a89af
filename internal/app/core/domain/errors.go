package domain

import "errors"

var (
	// ErrValidation 請求欄位缺漏或格式錯誤 (金額非正數、未知類型...)
	ErrValidation = errors.New("validation failed")

	// ErrAmountMustBePositive 金額必須為正數
	ErrAmountMustBePositive = errors.New("amount must be positive")

	// ErrAmountOutOfRange 金額小數超過 4 位或整數超過 16 位
	ErrAmountOutOfRange = errors.New("amount must have at most 4 decimal places and 16 integer digits")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrEntryNotFound 找不到交易紀錄 (索引超出範圍)
	ErrEntryNotFound = errors.New("transaction not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrPersistenceConflict 寫入時版本不符，呼叫端應重新讀取後重試
	ErrPersistenceConflict = errors.New("account was modified concurrently")

	// ErrInvalidCredentials 帳號或密碼錯誤
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized 未登入或 token 無效
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorKind 錯誤分類，供 HTTP / gRPC 層對應狀態碼
type ErrorKind string

const (
	KindValidation          ErrorKind = "ValidationError"
	KindNotFound            ErrorKind = "NotFound"
	KindAlreadyExists       ErrorKind = "AlreadyExists"
	KindUnauthorized        ErrorKind = "Unauthorized"
	KindPersistenceConflict ErrorKind = "PersistenceConflict"
	KindUnexpected          ErrorKind = "UnexpectedError"
)

// KindOf 依照 sentinel error 判斷錯誤分類，無法辨識者一律視為 Unexpected
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrAmountMustBePositive), errors.Is(err, ErrAmountOutOfRange):
		return KindValidation
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrEntryNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccountAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrPersistenceConflict):
		return KindPersistenceConflict
	default:
		return KindUnexpected
	}
}
