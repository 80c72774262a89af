package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/domain"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
)

// AdminWindow 管理端異動後回傳最近幾筆交易
const AdminWindow = 5

// BalanceService 管理端用到的帳戶操作
type BalanceService interface {
	Deposit(ctx context.Context, identity string, amount decimal.Decimal) (usecase.MutationResult, error)
	Withdraw(ctx context.Context, identity string, amount decimal.Decimal, status domain.EntryStatus, reason string) (usecase.MutationResult, error)
	SetWithdrawalLimit(ctx context.Context, identity string, limit decimal.Decimal) (usecase.MutationResult, error)
	RemoveEntry(ctx context.Context, identity string, index int) (usecase.MutationResult, error)
	GetAccountView(ctx context.Context, identity string) (domain.AccountView, error)
}

// AuthService 註冊 / 登入
type AuthService interface {
	Signup(ctx context.Context, name, identity, password string) (domain.AccountView, error)
	Login(ctx context.Context, identity, password string) (usecase.LoginResult, error)
	Authenticate(token string) (string, error)
	Profile(ctx context.Context, identity string) (domain.AccountView, error)
}

// Handler HTTP handlers
type Handler struct {
	balance BalanceService
	auth    AuthService
	logger  *zap.Logger
}

func NewHandler(balance BalanceService, auth AuthService, logger *zap.Logger) *Handler {
	return &Handler{balance: balance, auth: auth, logger: logger}
}

type messageResponse struct {
	Message string `json:"message"`
}

type userResponse struct {
	Message string             `json:"message,omitempty"`
	User    domain.AccountView `json:"user"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateBalanceRequest struct {
	Email  string           `json:"email"`
	Amount *decimal.Decimal `json:"amount"`
	Type   string           `json:"type"`
	Status string           `json:"status"`
	Reason string           `json:"reason"`
}

type setLimitRequest struct {
	Email string           `json:"email"`
	Limit *decimal.Decimal `json:"limit"`
}

type removeEntryRequest struct {
	Email string `json:"email"`
	Index *int   `json:"index"`
}

type getUserRequest struct {
	Email string `json:"email"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeValidation(w, "invalid request body")
		return false
	}
	return true
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "pong"})
}

// Signup POST /api/auth/signup
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeValidation(w, "name, email and password are required")
		return
	}
	view, err := h.auth.Signup(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{Message: "User created successfully", User: view})
}

// Login POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeValidation(w, "email and password are required")
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Profile GET /api/user/profile
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(r.Context())
	if !ok {
		writeError(w, h.logger, r, domain.ErrUnauthorized)
		return
	}
	view, err := h.auth.Profile(r.Context(), identity)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: view})
}

// AdminTest GET /api/admin/test
func (h *Handler) AdminTest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Admin route is working"})
}

// UpdateBalance POST /api/admin/update-balance
func (h *Handler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req updateBalanceRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Amount == nil || req.Type == "" {
		writeValidation(w, "email, amount and type are required")
		return
	}

	var (
		res usecase.MutationResult
		err error
	)
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case "deposit":
		res, err = h.balance.Deposit(r.Context(), req.Email, *req.Amount)
	case "withdraw", "withdrawal":
		status, perr := domain.ParseEntryStatus(req.Status)
		if perr != nil {
			writeError(w, h.logger, r, perr)
			return
		}
		res, err = h.balance.Withdraw(r.Context(), req.Email, *req.Amount, status, req.Reason)
	default:
		writeValidation(w, "invalid transaction type")
		return
	}
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Message: "Balance updated successfully",
		User:    res.View.Window(AdminWindow),
	})
}

// SetWithdrawalLimit POST /api/admin/set-withdrawal-limit
func (h *Handler) SetWithdrawalLimit(w http.ResponseWriter, r *http.Request) {
	var req setLimitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Limit == nil {
		writeValidation(w, "email and limit are required")
		return
	}
	res, err := h.balance.SetWithdrawalLimit(r.Context(), req.Email, *req.Limit)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	msg := "Withdrawal limit removed"
	if res.View.WithdrawalLimit != nil {
		msg = fmt.Sprintf("Withdrawal limit set to ₦%s", res.View.WithdrawalLimit.String())
	}
	writeJSON(w, http.StatusOK, userResponse{Message: msg, User: res.View.Window(AdminWindow)})
}

// RemoveTransaction POST /api/admin/remove-transaction
func (h *Handler) RemoveTransaction(w http.ResponseWriter, r *http.Request) {
	var req removeEntryRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Index == nil {
		writeValidation(w, "email and index are required")
		return
	}
	res, err := h.balance.RemoveEntry(r.Context(), req.Email, *req.Index)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		Message: fmt.Sprintf("%s removed successfully", res.Entry.Kind),
		User:    res.View.Window(AdminWindow),
	})
}

// GetUser POST /api/admin/get-user (完整帳本)
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	var req getUserRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeValidation(w, "email is required")
		return
	}
	view, err := h.balance.GetAccountView(r.Context(), req.Email)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "User fetched successfully", User: view})
}
