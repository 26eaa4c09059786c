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
	"golang.org/x/time/rate"

	"github.com/hitoshi/contactdesk/internal/auth"
	"github.com/hitoshi/contactdesk/internal/availability"
	"github.com/hitoshi/contactdesk/internal/config"
	"github.com/hitoshi/contactdesk/internal/contact"
	"github.com/hitoshi/contactdesk/internal/database"
	"github.com/hitoshi/contactdesk/internal/directory"
	"github.com/hitoshi/contactdesk/internal/handler"
	"github.com/hitoshi/contactdesk/internal/logger"
	"github.com/hitoshi/contactdesk/internal/metrics"
	"github.com/hitoshi/contactdesk/internal/middleware"
	"github.com/hitoshi/contactdesk/internal/profile"
	"github.com/hitoshi/contactdesk/internal/session"
	"github.com/hitoshi/contactdesk/internal/viewcache"
	"github.com/hitoshi/contactdesk/internal/worker/cleanup"
)

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

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}
	var action MigrateAction
	if cmd == CommandMigrate {
		if action, err = ParseMigrateAction(args); err != nil {
			return err
		}
	}

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
		slog.String("session_backend", cfg.SessionBackend),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, action)
	default:
		return runServe(cfg)
	}
}

// signalContext はSIGINTまたはSIGTERMでキャンセルされるコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// newRegistry はアプリケーションのメトリクスとランタイムメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig は req/min 単位の設定を req/sec のレートに変換する。
// バースト幅は1分間の許容量と同じにする。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitAuth > 0 {
		rlCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
		rlCfg.AuthBurst = cfg.RateLimitAuth
	}
	return rlCfg
}

// cookieOptions は設定からセッションCookieの属性を組み立てる。
func cookieOptions(cfg *config.Config) session.CookieOptions {
	opts := session.DefaultCookieOptions()
	if cfg.SessionMaxAge > 0 {
		opts.MaxAge = time.Duration(cfg.SessionMaxAge) * time.Second
	}
	opts.Secure = cfg.CookieSecure
	opts.Domain = cfg.CookieDomain
	return opts
}

// runServe はAPIサーバーモードで起動する。
// セッションの保存先を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signalContext()
	defer stop()

	log := slog.Default()

	// 1. セッションの保存先
	storage, err := openSessionStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	// 2. メトリクス
	reg, collector := newRegistry()

	// 3. ディレクトリAPIクライアント
	client := directory.NewClient(
		&http.Client{Timeout: cfg.DirectoryAPITimeout},
		cfg.DirectoryAPIURL,
		log,
	).WithRecorder(collector)

	// 4. 表示用キャッシュとセッション管理
	cache := viewcache.New(cfg.ContactsCacheTTL)
	stopJanitor := cache.StartJanitor(cfg.ContactsCacheTTL)
	defer stopJanitor()

	manager := session.NewManager(storage.Backend, cookieOptions(cfg), cache, log)

	// 5. ドメインサービス
	authService := auth.NewService(client, auth.ServiceConfig{StrictImageUpload: cfg.RegisterImageStrict}, log)
	profileService := profile.NewService(client, cache, log)
	contactService := contact.NewService(client, cache, availability.NewEvaluator(cfg.AvailabilityTZ), log)

	// 6. ルーター
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		SessionManager:    manager,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		RateLimiter:       rateLimiter,
		Logger:            log,

		Recorder:       collector,
		MetricsHandler: metrics.Handler(reg),
		HealthChecker:  storage.Health,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			MaxUploadSize: cfg.MaxUploadSize,
		},
		ProfileService: profileService,
		ContactService: contactService,
	})

	// 7. インメモリのセッションはこのプロセスで期限切れを削除する
	if cfg.SessionBackend == config.SessionBackendMemory && storage.Purger != nil && cfg.SessionCleanupInterval > 0 {
		job := cleanup.NewCleanupJob(storage.Purger, collector, log)
		go job.Start(ctx, cfg.SessionCleanupInterval)
	}

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はコンテキストがキャンセルされるまでサーバーを動かし、その後グレースフルに停止する。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除を行い、/metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	switch cfg.SessionBackend {
	case config.SessionBackendPostgres, config.SessionBackendRedis:
	default:
		return fmt.Errorf("worker requires SESSION_BACKEND=%s or %s, got %q",
			config.SessionBackendPostgres, config.SessionBackendRedis, cfg.SessionBackend)
	}

	ctx, stop := signalContext()
	defer stop()

	storage, err := openSessionStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	reg, collector := newRegistry()
	job := cleanup.NewCleanupJob(storage.Purger, collector, slog.Default())

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	go job.Start(ctx, cfg.SessionCleanupInterval)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serveUntilDone(ctx, server, "worker metrics server")
}

// runMigrate はデータベースマイグレーションを実行する。
// up はすべての未適用マイグレーションを適用し、down は直近の1つを戻す。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("action", string(action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case MigrateDown:
		if err := database.RollbackMigration(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
	case MigrateVersion:
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
