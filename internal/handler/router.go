package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bento/internal/gateway"
	"github.com/hitoshi/bento/internal/middleware"
	"github.com/hitoshi/bento/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	HSTS              bool
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	Sessions   SessionService
	AuthConfig AuthHandlerConfig

	// 運用
	Metrics  http.Handler
	Realtime ConnectionReporter

	// 商品
	Products   ProductService
	Sequencers *gateway.Sequencers

	// 在庫移動・ダッシュボード
	Stock     StockService
	Dashboard DashboardService

	// 在庫低下通知
	Notifications      NotificationService
	Hub                NotificationHub
	Recent             RecentNotifications
	NotificationConfig NotificationHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery
//	  /api/*: Session → RateLimit(General) → CSRF → Role
//	  POST /auth/logout: CSRF
//
// 認証ルート（/auth/*）とヘルスチェックはセッションを要求しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))

	authHandler := NewAuthHandler(deps.Sessions, deps.AuthConfig)
	productHandler := NewProductHandler(deps.Products, deps.Sequencers)
	inventoryHandler := NewInventoryHandler(deps.Stock, deps.Dashboard)
	notificationHandler := NewNotificationHandler(deps.Notifications, deps.Hub, deps.Recent, deps.NotificationConfig, logger)

	// --- セッション不要のルート ---

	r.Get("/health", NewHealthHandler(deps.Sessions, deps.Realtime))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", authHandler.Login)
		r.Get("/callback", authHandler.Callback)
		r.With(middleware.NewCSRFMiddleware(deps.CSRF)).Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
	})

	// --- セッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		writers := middleware.NewRoleMiddleware(deps.Sessions, session.RoleAdmin, session.RoleEmployee)
		admins := middleware.NewRoleMiddleware(deps.Sessions, session.RoleAdmin)
		writeLimit := deps.RateLimiter.WriteMiddleware()

		r.Route("/api/products", func(r chi.Router) {
			r.Get("/", productHandler.Search)
			r.With(writers, writeLimit).Post("/", productHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", productHandler.Get)
				r.With(writers, writeLimit).Put("/", productHandler.Update)
				r.With(admins, writeLimit).Delete("/", productHandler.Delete)
			})
		})

		r.Get("/api/stock-movements", inventoryHandler.ListStockMovements)

		r.Route("/api/notifications", func(r chi.Router) {
			r.With(writers).Get("/", notificationHandler.List)
			r.With(writers).Get("/feed", notificationHandler.Feed)
			r.Get("/stream", notificationHandler.Stream)
		})

		r.Route("/api/dashboard", func(r chi.Router) {
			r.Get("/stats", inventoryHandler.Stats)
			r.Get("/below-minimum-stock", inventoryHandler.BelowMinimumStock)
		})
	})

	return r
}
