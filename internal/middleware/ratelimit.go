package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/okane/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）
	GeneralBurst    int           // API全般のバーストサイズ
	PaymentRate     rate.Limit    // 支払い評価のレート（req/sec）
	PaymentBurst    int           // 支払い評価のバーストサイズ
	CleanupInterval time.Duration // 使われなくなったバケットの掃除間隔
}

// DefaultRateLimiterConfig は API全般 120 req/min/user、支払い評価 30 req/min/user の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return PerMinuteRateLimiterConfig(120, 30)
}

// PerMinuteRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
// バーストサイズは1分あたりの上限と同じにする。
func PerMinuteRateLimiterConfig(generalPerMin, paymentPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Every(time.Minute / time.Duration(max(generalPerMin, 1))),
		GeneralBurst:    generalPerMin,
		PaymentRate:     rate.Every(time.Minute / time.Duration(max(paymentPerMin, 1))),
		PaymentBurst:    paymentPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

// bucketSet はユーザーIDごとのトークンバケットを保持する。
type bucketSet struct {
	kind  string
	limit rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newBucketSet(kind string, limit rate.Limit, burst int) *bucketSet {
	return &bucketSet{
		kind:    kind,
		limit:   limit,
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

// reserve はuserIDのトークンを1つ消費する。
// 消費できなかった場合は次にトークンが補充されるまでの待ち時間を返す。
func (s *bucketSet) reserve(userID string, now time.Time) (bool, time.Duration) {
	s.mu.Lock()
	b, ok := s.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[userID] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// sweep はlastSeenがbeforeより古いバケットを削除し、削除数を返す。
func (s *bucketSet) sweep(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, b := range s.buckets {
		if b.lastSeen.Before(before) {
			delete(s.buckets, id)
			removed++
		}
	}
	return removed
}

func (s *bucketSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般と支払い評価の2系統を独立に持つ。
type RateLimiter struct {
	config  RateLimiterConfig
	general *bucketSet
	payment *bucketSet
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter はRateLimiterを生成し、バックグラウンドの掃除を開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newBucketSet("general", config.GeneralRate, config.GeneralBurst),
		payment: newBucketSet("payment", config.PaymentRate, config.PaymentBurst),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go rl.sweepLoop()
	}
	return rl
}

// Stop はバックグラウンドの掃除を停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.general)
}

// PaymentMiddleware は支払い評価専用のレート制限ミドルウェアを返す。
func (rl *RateLimiter) PaymentMiddleware() func(next http.Handler) http.Handler {
	return rl.middleware(rl.payment)
}

func (rl *RateLimiter) middleware(set *bucketSet) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			if ok, wait := set.reserve(userID, rl.now()); !ok {
				slog.Warn("rate limit exceeded",
					slog.String("user_id", userID),
					slog.String("limit_type", set.kind),
					slog.Duration("retry_after", wait),
				)
				writeRateLimitResponse(w, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は保持しているAPI全般バケットの数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int { return rl.general.len() }

// PaymentLimiterCount は保持している支払い評価バケットの数を返す。
func (rl *RateLimiter) PaymentLimiterCount() int { return rl.payment.len() }

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stopCh:
			return
		}
	}
}

// sweep はCleanupIntervalの2倍以上アクセスの無いバケットを削除する。
func (rl *RateLimiter) sweep() {
	before := rl.now().Add(-2 * rl.config.CleanupInterval)
	if n := rl.general.sweep(before) + rl.payment.sweep(before); n > 0 {
		slog.Debug("rate limiter buckets swept", slog.Int("removed", n))
	}
}

// writeRateLimitResponse は429を返す。Retry-Afterは秒単位で切り上げ、最低1秒とする。
func writeRateLimitResponse(w http.ResponseWriter, wait time.Duration) {
	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	WriteErrorResponse(w, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
