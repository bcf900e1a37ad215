package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/bento/internal/auth"
	"github.com/hitoshi/bento/internal/config"
	"github.com/hitoshi/bento/internal/gateway"
	"github.com/hitoshi/bento/internal/handler"
	"github.com/hitoshi/bento/internal/logger"
	"github.com/hitoshi/bento/internal/metrics"
	"github.com/hitoshi/bento/internal/middleware"
	"github.com/hitoshi/bento/internal/realtime"
	"github.com/hitoshi/bento/internal/session"
)

// shutdownTimeout はグレースフルシャットダウンを待つ上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 設定ファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, configPath string) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.Log.Level))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	inv, err := ParseArgs(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if inv.Command == CommandHealthcheck {
		return runHealthcheck(healthcheckPort())
	}

	cfg, err := Init(w, inv.ConfigPath)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(inv.Command)),
		slog.String("port", cfg.Server.Port),
		slog.String("base_url", cfg.Server.BaseURL),
		slog.String("api_base_url", cfg.API.BaseURL),
		slog.Bool("realtime_enabled", cfg.Realtime.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runServe(ctx, cfg)
}

// services はrunServeが組み立てる依存関係一式。
type services struct {
	handler    http.Handler
	sessions   *session.Manager
	hub        *realtime.Hub
	recent     *realtime.Recent
	subscriber *realtime.Subscriber
	limiter    *middleware.RateLimiter
}

// close はバックグラウンドリソースを解放する。
func (s *services) close() {
	s.limiter.Stop()
	s.hub.Close()
}

// buildServices は全依存関係をワイヤリングする。
// 通知の購読など時間のかかる処理はここでは開始しない。
func buildServices(cfg *config.Config, log *slog.Logger) *services {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 2. 認証セッション
	provider := auth.NewOIDCProvider(auth.ProviderConfig{
		Issuer:       cfg.Identity.Issuer,
		ServerIssuer: cfg.Identity.ServerIssuer,
		ClientID:     cfg.Identity.ClientID,
		RedirectURL:  cfg.Identity.RedirectURL,
		Scopes:       cfg.Identity.Scopes,
	})
	sessions := session.NewManager(provider, collector, logger.Component(log, "session"), session.Config{
		RolesClient:    cfg.Identity.RolesClient,
		ExpiryLeeway:   cfg.Session.ExpiryLeeway,
		RefreshTimeout: cfg.Session.RefreshTimeout,
	})

	// 3. リソースAPIクライアント
	client := gateway.NewClient(gateway.Config{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
	}, sessions, nil, collector, logger.Component(log, "gateway"))

	// 4. プッシュ通知
	realtimeLog := logger.Component(log, "realtime")
	hub := realtime.NewHub(realtime.DefaultBufferSize, realtimeLog)
	recent := realtime.NewRecent(realtime.DefaultRecentCapacity)
	var subscriber *realtime.Subscriber
	var connection handler.ConnectionReporter
	if cfg.Realtime.Enabled {
		subscriber = realtime.NewSubscriber(realtime.SubscriberConfig{
			URL:          cfg.Realtime.URL,
			Topic:        cfg.Realtime.Topic,
			ReconnectMax: cfg.Realtime.ReconnectMax,
		}, sessions, hub, collector, realtimeLog)
		connection = subscriber
	}

	// 5. ルーター
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.Server.RateLimitPerMinute))
	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.Server.CORSAllowedOrigin,
		HSTS:              cfg.CookieSecure(),
		CSRF:              middleware.CSRFConfig{CookieSecure: cfg.CookieSecure()},
		RateLimiter:       limiter,
		Logger:            logger.Component(log, "http"),

		Sessions: sessions,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:      cfg.Server.BaseURL,
			CookieSecure: cfg.CookieSecure(),
		},

		Metrics:  metrics.Handler(registry),
		Realtime: connection,

		Products:   gateway.NewProductService(client),
		Sequencers: gateway.NewSequencers(),

		Stock:     gateway.NewStockService(client),
		Dashboard: gateway.NewDashboardService(client),

		Notifications: gateway.NewNotificationService(client),
		Hub:           hub,
		Recent:        recent,
		NotificationConfig: handler.NotificationHandlerConfig{
			Topic: cfg.Realtime.Topic,
		},
	})

	return &services{
		handler:    router,
		sessions:   sessions,
		hub:        hub,
		recent:     recent,
		subscriber: subscriber,
		limiter:    limiter,
	}
}

// runServe はBFFサーバーを起動する。
// 全依存関係をワイヤリングし、HTTPサーバーと通知の購読を並行して動かす。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	svc := buildServices(cfg, slog.Default())
	defer svc.close()

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           svc.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// 直近の通知を保持し、履歴と合わせて表示できるようにする
	g.Go(func() error {
		svc.recent.Follow(gctx, svc.hub.Subscribe(cfg.Realtime.Topic))
		return nil
	})

	if svc.subscriber != nil {
		g.Go(func() error {
			svc.subscriber.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("BFF server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down BFF server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		// サーバー停止後にセッションを破棄する。IdPへのログアウト通知は失敗しても続行する。
		svc.sessions.Logout(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("BFF server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// healthcheckPort はヘルスチェック先のポートを環境変数から決める。
func healthcheckPort() string {
	if port := os.Getenv("BENTO_SERVER__PORT"); port != "" {
		return port
	}
	return config.Default().Server.Port
}
