package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取得する。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labeledCounter はラベル値ごとのカウンタ値をマップで返す。
func labeledCounter(mf *dto.MetricFamily) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		out[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	return out
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordVerdict_CountsByRule は判定ルール別にカウントされることを検証する。
func TestRecordVerdict_CountsByRule(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVerdict("over_budget")
	c.RecordVerdict("over_budget")
	c.RecordVerdict("gambling")

	got := labeledCounter(findMetricFamily(t, reg, "okane_payment_verdicts_total"))
	if got["over_budget"] != 2 || got["gambling"] != 1 {
		t.Errorf("verdicts = %v, want over_budget=2 gambling=1", got)
	}
}

// TestRecordNotifications は送信と抑止が別々に記録されることを検証する。
func TestRecordNotifications(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNotificationSent("payment-alert")
	c.RecordNotificationSuppressed("payment-alert")
	c.RecordNotificationSuppressed("payment-alert")

	sent := labeledCounter(findMetricFamily(t, reg, "okane_notifications_sent_total"))
	suppressed := labeledCounter(findMetricFamily(t, reg, "okane_notifications_suppressed_total"))
	if sent["payment-alert"] != 1 {
		t.Errorf("sent = %v, want 1", sent)
	}
	if suppressed["payment-alert"] != 2 {
		t.Errorf("suppressed = %v, want 2", suppressed)
	}
}

// TestRecordOnboardingAndScore は初期設定完了数とスコア分布が記録されることを検証する。
func TestRecordOnboardingAndScore(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordOnboardingCompleted()
	c.RecordScore(35)
	c.RecordScore(140)

	if v := findMetricFamily(t, reg, "okane_onboarding_completed_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("onboarding_completed_total = %v, want 1", v)
	}
	h := findMetricFamily(t, reg, "okane_overall_score").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 || h.GetSampleSum() != 175 {
		t.Errorf("score histogram count=%d sum=%v, want 2 and 175", h.GetSampleCount(), h.GetSampleSum())
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	got := labeledCounter(findMetricFamily(t, reg, "okane_deal_http_status_total"))
	if len(got) != 2 || got["200"] != 2 || got["404"] != 1 {
		t.Errorf("http_status_total = %v", got)
	}
}

// TestRecordFetchLatency_ObservesHistogram はフェッチレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordFetchLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency(100 * time.Millisecond)
	c.RecordFetchLatency(2 * time.Second)

	h := findMetricFamily(t, reg, "okane_deal_fetch_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordFetchCounters はフェッチ関連のカウンタが増加することを検証する。
func TestRecordFetchCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchSuccess("src-1")
	c.RecordFetchFailure("src-1", "timeout")
	c.RecordParseFailure("src-1")
	c.RecordDealsUpserted(10)
	c.RecordDealsUpserted(5)

	if v := findMetricFamily(t, reg, "okane_deal_fetch_success_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("fetch_success_total = %v, want 1", v)
	}
	if got := labeledCounter(findMetricFamily(t, reg, "okane_deal_fetch_fail_total")); got["timeout"] != 1 {
		t.Errorf("fetch_fail_total = %v, want timeout=1", got)
	}
	if v := findMetricFamily(t, reg, "okane_deal_parse_fail_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("parse_fail_total = %v, want 1", v)
	}
	if v := findMetricFamily(t, reg, "okane_deals_upserted_total").GetMetric()[0].GetCounter().GetValue(); v != 15 {
		t.Errorf("deals_upserted_total = %v, want 15", v)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordVerdict("none")
	c.RecordNotificationSent("welcome-notification")
	c.RecordOnboardingCompleted()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"okane_payment_verdicts_total",
		"okane_notifications_sent_total",
		"okane_onboarding_completed_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordOnboardingCompleted()
	c2.RecordOnboardingCompleted()
	c2.RecordOnboardingCompleted()

	v1 := findMetricFamily(t, reg1, "okane_onboarding_completed_total").GetMetric()[0].GetCounter().GetValue()
	v2 := findMetricFamily(t, reg2, "okane_onboarding_completed_total").GetMetric()[0].GetCounter().GetValue()
	if v1 != 1 || v2 != 2 {
		t.Errorf("reg1 = %v, reg2 = %v, want 1 and 2", v1, v2)
	}
}

// TestRecordMailIngested は受信メールが処理結果別にカウントされることを検証する。
func TestRecordMailIngested(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordMailIngested("accepted")
	c.RecordMailIngested("duplicate")
	c.RecordMailIngested("accepted")

	got := labeledCounter(findMetricFamily(t, reg, "okane_mail_ingested_total"))
	if got["accepted"] != 2 || got["duplicate"] != 1 {
		t.Errorf("mail_ingested = %v, want accepted=2 duplicate=1", got)
	}
}
