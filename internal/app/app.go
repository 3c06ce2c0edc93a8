package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/okane/internal/anomaly"
	"github.com/hitoshi/okane/internal/auth"
	"github.com/hitoshi/okane/internal/chat"
	"github.com/hitoshi/okane/internal/config"
	"github.com/hitoshi/okane/internal/database"
	"github.com/hitoshi/okane/internal/deal"
	"github.com/hitoshi/okane/internal/handler"
	"github.com/hitoshi/okane/internal/logger"
	"github.com/hitoshi/okane/internal/mailwatch"
	"github.com/hitoshi/okane/internal/metrics"
	"github.com/hitoshi/okane/internal/middleware"
	"github.com/hitoshi/okane/internal/notification"
	"github.com/hitoshi/okane/internal/onboarding"
	"github.com/hitoshi/okane/internal/payment"
	"github.com/hitoshi/okane/internal/profile"
	"github.com/hitoshi/okane/internal/repository"
	"github.com/hitoshi/okane/internal/schedule"
	"github.com/hitoshi/okane/internal/security"
	"github.com/hitoshi/okane/internal/user"
	"github.com/hitoshi/okane/internal/worker/cleanup"
	"github.com/hitoshi/okane/internal/worker/dealfetch"
	"github.com/hitoshi/okane/internal/worker/mailpoll"
)

// webhookMaxResponseSize は通知Webhookのレスポンスとして読み込む上限。
const webhookMaxResponseSize = 1 << 20

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と version は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandVersion {
		return runVersion(w)
	}
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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newRegistry はアプリケーションのメトリクスとGoランタイムのメトリクスを登録したレジストリを返す。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	cacheStore := repository.NewPostgresCacheStore(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	notificationRepo := repository.NewPostgresNotificationSettingRepo(db)
	dealSourceRepo := repository.NewPostgresDealSourceRepo(db)
	dealRepo := repository.NewPostgresDealRepo(db)
	mailRepo := repository.NewPostgresMailRepo(db)

	// 3. セキュリティ・メトリクス・スケジューラの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewTextSanitizer()
	reg, collector := newRegistry()
	sched := schedule.New()

	// 4. 通知
	permissionCache := notification.NewPermissionCache(cacheStore)
	gateway := notification.NewWebhookGateway(
		notificationRepo,
		ssrfGuard.NewSafeClient(cfg.NotificationTimeout, webhookMaxResponseSize),
		slog.Default(),
	)
	dispatcher := notification.NewDispatcher(
		gateway, permissionCache, sched, collector, slog.Default(), cfg.NotificationAutoDismiss,
	)
	settingsService := notification.NewSettingsService(notificationRepo, ssrfGuard)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	profileService := profile.NewService(profileRepo, cacheStore)
	chatService := chat.NewService(messageRepo, sanitizer)

	completer := onboarding.NewCompleter(
		profileService, gateway, permissionCache, dispatcher, chatService, collector,
	)
	onboardingManager := onboarding.NewManager(sched, completer, onboarding.ManagerConfig{
		CompleteDwell: cfg.OnboardingCompleteDwell,
		CallbackDwell: cfg.OnboardingCallbackDwell,
		Sanitize:      sanitizer.StripTags,
	})
	defer onboardingManager.Shutdown()

	paymentService := payment.NewService(
		profileService, anomaly.NewEngine(), dispatcher, chatService, sanitizer, collector,
	)
	simulator := payment.NewSimulator(paymentService, gateway, dispatcher)

	dealService := deal.NewService(dealSourceRepo, dealRepo, ssrfGuard, security.PlainTextSummary)

	mailService := mailwatch.NewService(mailRepo, paymentService, security.HTMLToText, collector, mailwatch.Config{
		SenderList: cfg.MailSenderList,
		ProjectID:  cfg.MailProjectID,
	})

	userService := user.NewService(userRepo, sessionRepo, user.Deps{
		Messages:      messageRepo,
		Profiles:      profileService,
		Permissions:   permissionCache,
		Notifications: notificationRepo,
		Onboarding:    onboardingManager,
	})

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitPayment),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		Logger: slog.Default(),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		OnboardingService: onboardingManager,
		ProfileService:    profileService,

		PaymentService:   paymentService,
		PaymentSimulator: simulator,

		NotificationSettingsService: settingsService,

		MessageService:    chatService,
		MessageReplyDelay: cfg.AIReplyDelay,
		DealService:       dealService,

		MailService: mailService,

		UserService: userService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 8. メール置き場からの取り込み（設定時のみ）
	pollCtx, pollCancel := context.WithCancel(context.Background())
	defer pollCancel()
	if cfg.MailSpoolDir != "" {
		poller := mailpoll.NewPoller(
			cfg.MailSpoolDir, mailService, slog.Default().With(slog.String("component", "mailpoll")),
		)
		go poller.Start(pollCtx, cfg.MailPollInterval)
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")
	pollCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// セール情報フィードを登録してフェッチスケジューラを起動し、
// 期限切れセッションと古い会話ログのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	messageRepo := repository.NewPostgresMessageRepo(db)
	dealSourceRepo := repository.NewPostgresDealSourceRepo(db)
	dealRepo := repository.NewPostgresDealRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	reg, collector := newRegistry()
	workerLogger := slog.Default().With(slog.String("component", "worker"))

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// 4. セール情報フィードの登録（店舗ページのURLはフィードURLに解決する）
	dealService := deal.NewService(dealSourceRepo, dealRepo, ssrfGuard, security.PlainTextSummary).
		WithResolver(deal.NewDetector(ssrfGuard, cfg.DealsFetchTimeout, cfg.DealsFetchMaxSize))
	registered, err := dealService.EnsureSources(ctx, cfg.DealsFeedURLs)
	if err != nil {
		return fmt.Errorf("failed to register deal sources: %w", err)
	}
	slog.Info("deal sources registered", slog.Int("count", registered))

	// 5. フェッチャーとスケジューラの初期化
	fetcher := dealfetch.NewFetcher(
		dealSourceRepo, dealService, ssrfGuard, collector, workerLogger,
		cfg.DealsFetchTimeout, cfg.DealsFetchMaxSize, cfg.DealsFetchInterval,
	)
	scheduler := dealfetch.NewScheduler(
		dealSourceRepo, fetcher, workerLogger, cfg.DealsMaxConcurrent,
	)

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, messageRepo, workerLogger)
	cleanupJob.RetentionDays = cfg.MessageRetentionDays

	// 7. メトリクスエンドポイント
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.DealsFetchInterval),
		slog.Int("max_concurrent", cfg.DealsMaxConcurrent),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	// クリーンアップジョブをバックグラウンド実行（起動直後に1回実行）
	go func() {
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		cleanupJob.Start(ctx, cfg.CleanupInterval)
	}()

	// フェッチスケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.DealsFetchInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
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

// runVersion はモジュールのバージョンとGoのバージョンを出力する。
func runVersion(w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	version, goVersion := "(devel)", runtime.Version()
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" {
			version = info.Main.Version
		}
		goVersion = info.GoVersion
	}
	_, err := fmt.Fprintf(w, "okane %s (%s)\n", version, goVersion)
	return err
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
