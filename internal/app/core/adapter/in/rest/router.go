package rest

import (
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions 路由設定
type RouterOptions struct {
	AllowedOrigins []string
	// AdminKey 空字串代表管理端不檢查金鑰
	AdminKey string
	// LoginCounter 為 nil 時不限流
	LoginCounter WindowCounter
	LoginLimit   int
	LoginWindow  time.Duration
}

// NewRouter 建立 HTTP 路由
func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", AdminKeyHeader},
		// 萬用來源不帶 credentials
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           300,
	}))

	r.Get("/ping", h.Ping)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.With(rateLimiter(opts.LoginCounter, opts.LoginLimit, opts.LoginWindow, "login", logger)).
			Post("/login", h.Login)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Use(bearerAuth(h.auth, logger))
		r.Get("/profile", h.Profile)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(adminKey(opts.AdminKey, logger))
		r.Get("/test", h.AdminTest)
		r.Post("/update-balance", h.UpdateBalance)
		r.Post("/set-withdrawal-limit", h.SetWithdrawalLimit)
		r.Post("/remove-transaction", h.RemoveTransaction)
		r.Post("/get-user", h.GetUser)
	})

	return r
}
