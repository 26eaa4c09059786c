package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/contactdesk/internal/middleware"
	"github.com/hitoshi/contactdesk/internal/session"
)

// formOverhead はアップロード画像以外のフォーム項目に許容するバイト数。
const formOverhead = 1 << 20

// Recorder はHTTPステータスとログイン結果を記録する。metrics.MetricsCollector が満たす。
type Recorder interface {
	middleware.StatusRecorder
	LoginRecorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionManager    *session.Manager
	CORSAllowedOrigin string
	CookieSecure      bool
	CookieDomain      string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視（nil可）
	Recorder       Recorder
	MetricsHandler http.Handler
	HealthChecker  HealthChecker

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// プロフィール
	ProfileService ProfileServiceInterface

	// 連絡先
	ContactService ContactServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → RequestSize
//	→ Session → RateLimit(General) → CSRF
//
// /health と /metrics はセッション以降のチェーンの外に配置する。
// /api/contacts と /api/profile 以下は RequireSession で保護する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var statusRecorder middleware.StatusRecorder
	var loginRecorder LoginRecorder
	if deps.Recorder != nil {
		statusRecorder = deps.Recorder
		loginRecorder = deps.Recorder
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, statusRecorder))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.CookieSecure))
	// CORS はプリフライトに応答するためルーティングより前に適用する
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	if deps.AuthConfig.MaxUploadSize > 0 {
		r.Use(chimw.RequestSize(deps.AuthConfig.MaxUploadSize + formOverhead))
	}

	// --- 監視用ルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.CookieSecure,
		CookieDomain: deps.CookieDomain,
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, loginRecorder)
	profileHandler := NewProfileHandler(deps.ProfileService, deps.AuthConfig.MaxUploadSize)
	contactHandler := NewContactHandler(deps.ContactService)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionManager))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		// --- 認証不要のルート ---
		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(deps.RateLimiter.AuthMiddleware())
				}
				r.Post("/login", authHandler.Login)
				r.Post("/register", authHandler.Register)
			})
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession)

			r.Get("/api/contacts", contactHandler.ListContacts)

			r.Route("/api/profile", func(r chi.Router) {
				r.Get("/", profileHandler.GetProfile)
				r.Put("/", profileHandler.UpdateProfile)
				r.Put("/image", profileHandler.UpdateProfileImage)
			})
		})
	})

	return r
}
