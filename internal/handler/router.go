package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/citecrawler/internal/metrics"
	"github.com/hitoshi/citecrawler/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 共通
	Logger        *slog.Logger
	HealthChecker HealthChecker

	// ミドルウェア依存
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFProtection    bool
	CSRFConfig        middleware.CSRFConfig
	HSTS              bool

	// メトリクス（nilの場合は収集せず/metricsも公開しない）
	Metrics         *metrics.Collector
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ブックマーク
	BookmarkService BookmarkServiceInterface

	// 検索
	SearchClient SearchClient
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF(任意)
//	→ SessionMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// OAuthフロー（/api/auth/login, /api/auth/callback, /api/auth/logout）はセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var collector metrics.MetricsCollector = metrics.Nop{}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		collector = deps.Metrics
		r.Use(deps.Metrics.Middleware())
	}
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig, collector)
	bookmarkHandler := NewBookmarkHandler(deps.BookmarkService, collector)
	searchHandler := NewSearchHandler(deps.SearchClient, collector)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/api", func(r chi.Router) {
		if deps.CSRFProtection {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		}

		// --- 認証不要のルート ---
		r.Get("/auth/login", authHandler.Login)
		r.Get("/auth/callback", authHandler.Callback)
		r.Post("/auth/logout", authHandler.Logout)
		r.Get("/auth/logout", authHandler.Logout)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Session → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.TokenVerifier))
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.GeneralMiddleware())
			}

			r.Get("/auth/me", authHandler.Me)
			r.Get("/search", searchHandler.Search)

			r.Route("/bookmarks", func(r chi.Router) {
				if deps.RateLimiter != nil {
					r.Use(deps.RateLimiter.BookmarkWriteMiddleware())
				}
				r.Get("/", bookmarkHandler.ListBookmarks)
				r.Post("/", bookmarkHandler.AddBookmark)
				r.Delete("/", bookmarkHandler.RemoveBookmark)
			})
		})
	})

	return r
}
