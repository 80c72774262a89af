package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/adapter/out/security"
	"github.com/JoeShih716/go-balance-desk/internal/app/core/usecase"
)

const testAdminKey = "admin-secret"

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T, opts RouterOptions) *testServer {
	t.Helper()
	dir, err := memory.NewDirectory(nil)
	if err != nil {
		t.Fatalf("NewDirectory err=%v", err)
	}
	tokens, err := security.NewJWTIssuer("test-secret", "test", time.Hour)
	if err != nil {
		t.Fatalf("NewJWTIssuer err=%v", err)
	}
	logger := zap.NewNop()
	balance := usecase.NewBalanceUseCase(dir, nil, logger)
	auth := usecase.NewAuthUseCase(dir, security.NewBcryptHasher(bcrypt.MinCost), tokens, nil, logger)

	if opts.AdminKey == "" {
		opts.AdminKey = testAdminKey
	}
	return &testServer{handler: NewRouter(NewHandler(balance, auth, logger), opts, logger)}
}

// do 送出請求並解析 JSON 回應
func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("%s %s: response is not json: %q", method, path, rec.Body.String())
		}
	}
	return rec.Code, out
}

func (s *testServer) admin(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	return s.do(t, http.MethodPost, path, body, map[string]string{AdminKeyHeader: testAdminKey})
}

func (s *testServer) signup(t *testing.T, email string) {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": email, "password": "secret1",
	}, nil)
	if code != http.StatusCreated {
		t.Fatalf("signup code=%d body=%v", code, body)
	}
}

func user(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	u, ok := body["user"].(map[string]any)
	if !ok {
		t.Fatalf("response has no user: %v", body)
	}
	return u
}

func TestPing(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	code, body := s.do(t, http.MethodGet, "/ping", nil, nil)
	if code != http.StatusOK || body["message"] != "pong" {
		t.Fatalf("code=%d body=%v", code, body)
	}
}

func TestSignupLoginProfile(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.signup(t, "alice@example.com")

	// 重複註冊
	code, body := s.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "secret1",
	}, nil)
	if code != http.StatusConflict || body["kind"] != "AlreadyExists" {
		t.Fatalf("duplicate signup code=%d body=%v", code, body)
	}

	code, body = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	}, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("bad password code=%d", code)
	}
	code, _ = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "secret1",
	}, nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown user code=%d", code)
	}

	code, body = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "secret1",
	}, nil)
	if code != http.StatusOK {
		t.Fatalf("login code=%d body=%v", code, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %v", body)
	}

	code, _ = s.do(t, http.MethodGet, "/api/user/profile", nil, nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("profile without token code=%d", code)
	}
	code, body = s.do(t, http.MethodGet, "/api/user/profile", nil, map[string]string{"Authorization": "Bearer " + token})
	if code != http.StatusOK {
		t.Fatalf("profile code=%d body=%v", code, body)
	}
	u := user(t, body)
	if u["email"] != "alice@example.com" || u["withdrawalLimit"] != nil {
		t.Fatalf("profile user=%v", u)
	}
	if _, leaked := u["password"]; leaked {
		t.Fatalf("profile leaks credential")
	}
}

func TestAdminRequiresKey(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	code, body := s.do(t, http.MethodGet, "/api/admin/test", nil, nil)
	if code != http.StatusUnauthorized || body["kind"] != "Unauthorized" {
		t.Fatalf("code=%d body=%v", code, body)
	}
	code, _ = s.do(t, http.MethodGet, "/api/admin/test", nil, map[string]string{AdminKeyHeader: testAdminKey})
	if code != http.StatusOK {
		t.Fatalf("with key code=%d", code)
	}
}

func TestAdminBalanceFlow(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.signup(t, "alice@example.com")

	code, body := s.admin(t, "/api/admin/update-balance", map[string]any{
		"email": "alice@example.com", "amount": 100, "type": "deposit",
	})
	if code != http.StatusOK || user(t, body)["balance"] != "100" {
		t.Fatalf("deposit code=%d body=%v", code, body)
	}

	code, body = s.admin(t, "/api/admin/set-withdrawal-limit", map[string]any{
		"email": "alice@example.com", "limit": 30,
	})
	if code != http.StatusOK || user(t, body)["withdrawalLimit"] != "30" {
		t.Fatalf("set limit code=%d body=%v", code, body)
	}

	// 超過上限 -> Failed，不扣款
	code, body = s.admin(t, "/api/admin/update-balance", map[string]any{
		"email": "alice@example.com", "amount": 50, "type": "withdraw", "status": "completed",
	})
	if code != http.StatusOK {
		t.Fatalf("withdraw code=%d body=%v", code, body)
	}
	u := user(t, body)
	txs := u["transactions"].([]any)
	last := txs[len(txs)-1].(map[string]any)
	if u["balance"] != "100" || last["status"] != "Failed" || last["reason"] == nil {
		t.Fatalf("limit-exceeded withdrawal: %v", u)
	}

	// 移除存款 -> 回沖
	code, body = s.admin(t, "/api/admin/remove-transaction", map[string]any{
		"email": "alice@example.com", "index": 0,
	})
	if code != http.StatusOK || user(t, body)["balance"] != "0" || body["message"] != "Deposit removed successfully" {
		t.Fatalf("remove code=%d body=%v", code, body)
	}

	code, body = s.admin(t, "/api/admin/remove-transaction", map[string]any{
		"email": "alice@example.com", "index": 5,
	})
	if code != http.StatusNotFound || body["kind"] != "NotFound" {
		t.Fatalf("remove out of range code=%d body=%v", code, body)
	}
}

func TestAdminWindowAndGetUser(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.signup(t, "alice@example.com")

	var body map[string]any
	for i := 0; i < 7; i++ {
		_, body = s.admin(t, "/api/admin/update-balance", map[string]any{
			"email": "alice@example.com", "amount": "1.50", "type": "deposit",
		})
	}
	if n := len(user(t, body)["transactions"].([]any)); n != AdminWindow {
		t.Fatalf("mutation response has %d entries, want %d", n, AdminWindow)
	}

	code, body := s.admin(t, "/api/admin/get-user", map[string]any{"email": "alice@example.com"})
	if code != http.StatusOK {
		t.Fatalf("get-user code=%d", code)
	}
	u := user(t, body)
	if n := len(u["transactions"].([]any)); n != 7 {
		t.Fatalf("get-user has %d entries, want 7", n)
	}
	if u["balance"] != "10.5" {
		t.Fatalf("balance=%v want 10.5", u["balance"])
	}
}

func TestAdminValidation(t *testing.T) {
	s := newTestServer(t, RouterOptions{})
	s.signup(t, "alice@example.com")

	tests := []struct {
		name string
		path string
		body any
		want int
	}{
		{"missing amount", "/api/admin/update-balance", map[string]any{"email": "alice@example.com", "type": "deposit"}, http.StatusBadRequest},
		{"bad type", "/api/admin/update-balance", map[string]any{"email": "alice@example.com", "amount": 5, "type": "transfer"}, http.StatusBadRequest},
		{"negative amount", "/api/admin/update-balance", map[string]any{"email": "alice@example.com", "amount": -5, "type": "deposit"}, http.StatusBadRequest},
		{"bad status", "/api/admin/update-balance", map[string]any{"email": "alice@example.com", "amount": 5, "type": "withdraw", "status": "lost"}, http.StatusBadRequest},
		{"unknown user", "/api/admin/update-balance", map[string]any{"email": "bob@example.com", "amount": 5, "type": "deposit"}, http.StatusNotFound},
		{"negative limit", "/api/admin/set-withdrawal-limit", map[string]any{"email": "alice@example.com", "limit": -1}, http.StatusBadRequest},
		{"missing index", "/api/admin/remove-transaction", map[string]any{"email": "alice@example.com"}, http.StatusBadRequest},
		{"missing email", "/api/admin/get-user", map[string]any{}, http.StatusBadRequest},
		{"malformed body", "/api/admin/get-user", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := s.admin(t, tt.path, tt.body)
			if code != tt.want {
				t.Fatalf("code=%d want=%d body=%v", code, tt.want, body)
			}
		})
	}
}

type fakeCounter struct {
	hits map[string]int64
	err  error
}

func (c *fakeCounter) Hit(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if c.err != nil {
		return 0, 0, c.err
	}
	c.hits[key]++
	return c.hits[key], window, nil
}

func TestLoginRateLimit(t *testing.T) {
	counter := &fakeCounter{hits: map[string]int64{}}
	s := newTestServer(t, RouterOptions{LoginCounter: counter, LoginLimit: 2, LoginWindow: time.Minute})
	s.signup(t, "alice@example.com")

	login := map[string]string{"email": "alice@example.com", "password": "secret1"}
	for i := 0; i < 2; i++ {
		if code, _ := s.do(t, http.MethodPost, "/api/auth/login", login, nil); code != http.StatusOK {
			t.Fatalf("attempt %d code=%d", i+1, code)
		}
	}
	code, body := s.do(t, http.MethodPost, "/api/auth/login", login, nil)
	if code != http.StatusTooManyRequests || body["kind"] != string(KindRateLimited) {
		t.Fatalf("code=%d body=%v", code, body)
	}

	// 計數器壞掉 -> 放行
	counter.err = errors.New("redis down")
	if code, _ := s.do(t, http.MethodPost, "/api/auth/login", login, nil); code != http.StatusOK {
		t.Fatalf("fail-open code=%d", code)
	}
}

func TestUnexpectedErrorIsOpaque(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	writeError(rec, zap.NewNop(), req, errors.New("dial tcp 10.0.0.1:3306: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code=%d", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "internal server error" || body["kind"] != "UnexpectedError" {
		t.Fatalf("body=%v", body)
	}
}

func TestCORSCredentials(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		credentials string
	}{
		{"wildcard by default", nil, "https://evil.example", ""},
		{"explicit wildcard", []string{"*"}, "https://evil.example", ""},
		{"allow-listed origin", []string{"https://app.example"}, "https://app.example", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, RouterOptions{AllowedOrigins: tt.origins})
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.credentials {
				t.Fatalf("Allow-Credentials=%q want=%q", got, tt.credentials)
			}
		})
	}
}
