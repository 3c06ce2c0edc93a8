package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler_ServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordVerdict("gambling")
	c.RecordNotificationSent("payment-alert")

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	for _, want := range []string{
		`okane_payment_verdicts_total{rule="gambling"} 1`,
		`okane_notifications_sent_total{tag="payment-alert"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("response should contain %q", want)
		}
	}
}

// TestSetupMetricsRoute はworkerのメトリクスサーバーが/metricsのみを公開することを検証する。
func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordFetchSuccess("src-1")
	handler := SetupMetricsRoute(reg)

	t.Run("/metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		body, _ := io.ReadAll(w.Result().Body)
		if w.Code != http.StatusOK || !strings.Contains(string(body), "okane_deal_fetch_success_total") {
			t.Errorf("status = %d, body = %s", w.Code, body)
		}
	})

	t.Run("その他のパス", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
