// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	// 支払い判定
	RecordVerdict(rule string)
	// 通知
	RecordNotificationSent(tag string)
	RecordNotificationSuppressed(tag string)
	// 初期設定
	RecordOnboardingCompleted()
	RecordScore(overall int)
	// セール情報フィードのフェッチ
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordParseFailure(sourceID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordDealsUpserted(count int)
	// 支払い通知メール
	RecordMailIngested(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	verdicts              *prometheus.CounterVec
	notificationsSent     *prometheus.CounterVec
	notificationsSuppress *prometheus.CounterVec
	onboardingCompleted   prometheus.Counter
	score                 prometheus.Histogram
	fetchSuccess          prometheus.Counter
	fetchFail             *prometheus.CounterVec
	parseFail             prometheus.Counter
	httpStatus            *prometheus.CounterVec
	fetchLatency          prometheus.Histogram
	dealsUpserted         prometheus.Counter
	mailIngested          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okane_payment_verdicts_total",
			Help: "一致したルール別の支払い判定数",
		}, []string{"rule"}),
		notificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okane_notifications_sent_total",
			Help: "送信した通知の合計数",
		}, []string{"tag"}),
		notificationsSuppress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okane_notifications_suppressed_total",
			Help: "通知許可が無いため送信しなかった通知の合計数",
		}, []string{"tag"}),
		onboardingCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okane_onboarding_completed_total",
			Help: "初期設定の完了数",
		}),
		score: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "okane_overall_score",
			Help:    "算出したお財布スコア（総合）の分布",
			Buckets: []float64{20, 40, 60, 80, 100, 120},
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okane_deal_fetch_success_total",
			Help: "セール情報フィードのフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okane_deal_fetch_fail_total",
			Help: "セール情報フィードのフェッチ失敗の合計数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okane_deal_parse_fail_total",
			Help: "セール情報フィードのパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okane_deal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "okane_deal_fetch_latency_seconds",
			Help:    "セール情報フィードのフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		dealsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "okane_deals_upserted_total",
			Help: "アップサートされたお得情報の合計数",
		}),
		mailIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "okane_mail_ingested_total",
			Help: "受信した支払い通知メールの処理結果別の件数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.verdicts,
		c.notificationsSent,
		c.notificationsSuppress,
		c.onboardingCompleted,
		c.score,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.dealsUpserted,
		c.mailIngested,
	)

	return c
}

// RecordVerdict は支払い判定の結果を記録する。
func (c *Collector) RecordVerdict(rule string) {
	c.verdicts.WithLabelValues(rule).Inc()
}

// RecordNotificationSent は通知の送信を記録する。
func (c *Collector) RecordNotificationSent(tag string) {
	c.notificationsSent.WithLabelValues(tag).Inc()
}

// RecordNotificationSuppressed は送信しなかった通知を記録する。
func (c *Collector) RecordNotificationSuppressed(tag string) {
	c.notificationsSuppress.WithLabelValues(tag).Inc()
}

// RecordOnboardingCompleted は初期設定の完了を記録する。
func (c *Collector) RecordOnboardingCompleted() {
	c.onboardingCompleted.Inc()
}

// RecordScore は総合スコアを記録する。
func (c *Collector) RecordScore(overall int) {
	c.score.Observe(float64(overall))
}

// RecordFetchSuccess はフェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess(sourceID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure(sourceID string, reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(sourceID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordDealsUpserted はアップサートされたお得情報の件数を記録する。
func (c *Collector) RecordDealsUpserted(count int) {
	c.dealsUpserted.Add(float64(count))
}

// RecordMailIngested は受信メールの処理結果（accepted, duplicate, filtered, stopped, invalid）を記録する。
func (c *Collector) RecordMailIngested(result string) {
	c.mailIngested.WithLabelValues(result).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス不要な構成で使う。
type Nop struct{}

func (Nop) RecordVerdict(string)                {}
func (Nop) RecordNotificationSent(string)       {}
func (Nop) RecordNotificationSuppressed(string) {}
func (Nop) RecordOnboardingCompleted()          {}
func (Nop) RecordScore(int)                     {}
func (Nop) RecordFetchSuccess(string)           {}
func (Nop) RecordFetchFailure(string, string)   {}
func (Nop) RecordParseFailure(string)           {}
func (Nop) RecordHTTPStatus(int)                {}
func (Nop) RecordFetchLatency(time.Duration)    {}
func (Nop) RecordDealsUpserted(int)             {}
func (Nop) RecordMailIngested(string)           {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
