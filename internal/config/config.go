package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitPayment int

	// Onboarding
	OnboardingCompleteDwell time.Duration
	OnboardingCallbackDwell time.Duration
	AIReplyDelay            time.Duration // クライアントがAIの返信を表示するまでの待ち時間

	// Notification
	NotificationAutoDismiss time.Duration
	NotificationTimeout     time.Duration

	// Deals
	DealsFeedURLs      []string
	DealsFetchInterval time.Duration
	DealsFetchTimeout  time.Duration
	DealsFetchMaxSize  int64
	DealsMaxConcurrent int

	// Mail（支払い通知メールの監視）
	MailSenderList   []string // 受け付ける送信元アドレス。空の場合はすべて受け付ける
	MailProjectID    string
	MailSpoolDir     string // APIサーバーが取り込むメールの置き場所。空の場合は取り込まない
	MailPollInterval time.Duration

	// Housekeeping
	MessageRetentionDays int
	CleanupInterval      time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string // workerがメトリクスを公開するポート
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPayment = getEnvInt("RATE_LIMIT_PAYMENT", 30)
	cfg.OnboardingCompleteDwell = getEnvDuration("ONBOARDING_COMPLETE_DWELL", 2*time.Second)
	cfg.OnboardingCallbackDwell = getEnvDuration("ONBOARDING_CALLBACK_DWELL", 1500*time.Millisecond)
	cfg.AIReplyDelay = getEnvDuration("AI_REPLY_DELAY", time.Second)
	cfg.NotificationAutoDismiss = getEnvDuration("NOTIFICATION_AUTO_DISMISS", 5*time.Second)
	cfg.NotificationTimeout = getEnvDuration("NOTIFICATION_TIMEOUT", 10*time.Second)
	cfg.DealsFeedURLs = getEnvList("DEALS_FEED_URLS")
	cfg.DealsFetchInterval = getEnvDuration("DEALS_FETCH_INTERVAL", 30*time.Minute)
	cfg.DealsFetchTimeout = getEnvDuration("DEALS_FETCH_TIMEOUT", 10*time.Second)
	cfg.DealsFetchMaxSize = getEnvInt64("DEALS_FETCH_MAX_SIZE", 5242880)
	cfg.DealsMaxConcurrent = getEnvInt("DEALS_MAX_CONCURRENT", 4)
	cfg.MailSenderList = getEnvList("MAIL_SENDER_LIST")
	cfg.MailProjectID = getEnvString("MAIL_PROJECT_ID", "")
	cfg.MailSpoolDir = getEnvString("MAIL_SPOOL_DIR", "")
	cfg.MailPollInterval = getEnvDuration("MAIL_POLL_INTERVAL", 3*time.Second)
	cfg.MessageRetentionDays = getEnvInt("MESSAGE_RETENTION_DAYS", 90)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvList はカンマ区切りの環境変数を分割する。空要素は除く。
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
