package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/okane/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 初期設定・プロフィール
	OnboardingService OnboardingServiceInterface
	ProfileService    ProfileServiceInterface

	// 支払い
	PaymentService   PaymentServiceInterface
	PaymentSimulator PaymentSimulatorInterface

	// 通知
	NotificationSettingsService NotificationSettingsServiceInterface

	// 会話・お得情報
	MessageService    MessageServiceInterface
	MessageReplyDelay time.Duration
	DealService       DealServiceInterface

	// メール監視
	MailService MailServiceInterface

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）、/health、/metricsはSession以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	onboardingHandler := NewOnboardingHandler(deps.OnboardingService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	paymentHandler := NewPaymentHandler(deps.PaymentService, deps.PaymentSimulator)
	notificationHandler := NewNotificationHandler(deps.NotificationSettingsService)
	messageHandler := NewMessageHandler(deps.MessageService, deps.MessageReplyDelay)
	dealHandler := NewDealHandler(deps.DealService)
	userHandler := NewUserHandler(deps.UserService)
	mailHandler := NewMailHandler(deps.MailService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 初期設定
		r.Route("/api/onboarding", func(r chi.Router) {
			r.Post("/", onboardingHandler.Start)
			r.Get("/", onboardingHandler.Current)
			r.Post("/answers", onboardingHandler.Answer)
		})

		// プロフィール・スコア
		r.Get("/api/profile", profileHandler.GetProfile)
		r.Get("/api/score", profileHandler.GetScore)

		// 支払い
		r.Route("/api/payments", func(r chi.Router) {
			// POST /api/payments - 支払い受付（支払い専用レート制限を追加）
			r.With(deps.RateLimiter.PaymentMiddleware()).Post("/", paymentHandler.CreatePayment)
			r.Post("/simulate", paymentHandler.Simulate)
		})

		// 会話
		r.Route("/api/messages", func(r chi.Router) {
			r.Get("/", messageHandler.ListMessages)
			r.Post("/", messageHandler.SendMessage)
		})

		// 通知
		r.Route("/api/notifications", func(r chi.Router) {
			r.Get("/settings", notificationHandler.GetSettings)
			r.Put("/settings", notificationHandler.UpdateSettings)
			r.Post("/test", paymentHandler.TestNotification)
		})

		// お得情報
		r.Get("/api/deals", dealHandler.ListDeals)

		// 支払い通知メールの監視
		r.Route("/api/emails", func(r chi.Router) {
			r.Post("/start-monitoring", mailHandler.StartMonitoring)
			r.Post("/stop-monitoring", mailHandler.StopMonitoring)
			r.Get("/status", mailHandler.Status)
			r.Get("/latest", mailHandler.Latest)
			r.Get("/config", mailHandler.Config)
			// POST /api/emails/inbound - メール受信（支払い専用レート制限を追加）
			r.With(deps.RateLimiter.PaymentMiddleware()).Post("/inbound", mailHandler.Inbound)
		})

		// ユーザー管理
		r.Route("/api/users", func(r chi.Router) {
			r.Delete("/me", userHandler.Withdraw)
		})
	})

	return r
}
