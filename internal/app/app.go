package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/citecrawler/internal/auth"
	"github.com/hitoshi/citecrawler/internal/bookmark"
	"github.com/hitoshi/citecrawler/internal/config"
	"github.com/hitoshi/citecrawler/internal/database"
	"github.com/hitoshi/citecrawler/internal/handler"
	"github.com/hitoshi/citecrawler/internal/logger"
	"github.com/hitoshi/citecrawler/internal/metrics"
	"github.com/hitoshi/citecrawler/internal/middleware"
	"github.com/hitoshi/citecrawler/internal/repository"
	"github.com/hitoshi/citecrawler/internal/search"
	"github.com/hitoshi/citecrawler/internal/user"
)

const storeConnectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openStore はDATABASE_URLのスキームに応じたストレージを開き、インデックス・スキーマを準備する。
// 戻り値のclose関数は必ず呼び出すこと。
func openStore(ctx context.Context, cfg *config.Config) (repository.UserStore, func(), error) {
	driver, err := database.DetectDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to detect database driver: %w", err)
	}

	switch driver {
	case database.DriverMongo:
		client, err := database.OpenMongo(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				slog.Error("failed to disconnect mongodb", slog.String("error", err.Error()))
			}
		}
		repo := repository.NewMongoUserRepo(client, cfg.MongoDatabase)
		if err := repo.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("failed to ensure indexes: %w", err)
		}
		slog.Info("mongodb connection established", slog.String("database", cfg.MongoDatabase))
		return repo, closeFn, nil

	case database.DriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database connection established")
		return repository.NewPostgresUserRepo(db), func() { db.Close() }, nil

	default:
		slog.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryUserRepo(), func() {}, nil
	}
}

// newRouter はストレージと設定から全依存関係をワイヤリングし、ルーターを構築する。
// 戻り値のstop関数はバックグラウンド処理を停止する。
func newRouter(cfg *config.Config, store repository.UserStore, reg *prometheus.Registry) (http.Handler, func()) {
	// 1. ドメインサービスの初期化
	oauthProvider := auth.NewGitHubOAuthProvider(auth.GitHubOAuthConfig{
		ClientID:     cfg.GitHubClientID,
		ClientSecret: cfg.GitHubClientSecret,
		RedirectURL:  cfg.GitHubRedirectURL,
	})
	tokens := auth.NewTokenService(cfg.SessionSecret, cfg.SessionTTL())
	directory := user.NewDirectory(store)
	authService := auth.NewService(oauthProvider, directory, tokens, auth.ServiceConfig{
		StrictState: cfg.OAuthStrictState,
	})
	bookmarkService := bookmark.NewService(store)
	searchClient := search.NewClient(search.ClientConfig{
		BaseURL:  cfg.SearchBackendURL,
		Timeout:  cfg.SearchTimeout,
		PageSize: cfg.SearchPageSize,
	})

	// 2. ミドルウェア依存の初期化
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralPerMinute:       cfg.RateLimitGeneral,
		BookmarkWritePerMinute: cfg.RateLimitBookmarkWrite,
		CleanupInterval:        5 * time.Minute,
	})

	// 3. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		HealthChecker:     store,
		TokenVerifier:     tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFProtection:    cfg.CSRFProtection,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HSTS:            cfg.CookieSecure,
		Metrics:         metrics.NewCollector(reg),
		MetricsGatherer: reg,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		BookmarkService: bookmarkService,
		SearchClient:    searchClient,
	}

	return handler.NewRouter(deps), rateLimiter.Stop
}

// newRegistry はプロセス・ランタイムメトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// runServe はAPIサーバーモードで起動する。
// ストレージを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. ストレージ接続
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	store, closeStore, err := openStore(ctx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer closeStore()

	// 2. ルーターの構築
	router, stopBackground := newRouter(cfg, store, newRegistry())
	defer stopBackground()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SearchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// PostgreSQLのみ対象とし、MongoDBのインデックスはserve起動時に作成する。
func runMigrate(cfg *config.Config) error {
	driver, err := database.DetectDriver(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to detect database driver: %w", err)
	}
	if driver != database.DriverPostgres {
		slog.Info("no migrations for driver", slog.String("driver", string(driver)))
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	u.RawQuery = ""
	return u.String()
}
