package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/payment"
)

// PaymentServiceInterface は支払いハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	Handle(ctx context.Context, userID string, event model.PaymentEvent) (*payment.Result, error)
}

// PaymentSimulatorInterface はデモ用の支払いシミュレーションのインターフェース。
type PaymentSimulatorInterface interface {
	Simulate(ctx context.Context, userID string) (*payment.Result, error)
	TestNotification(ctx context.Context, userID string) (*payment.TestResult, error)
}

// PaymentHandler は支払い通知のHTTPハンドラー。
type PaymentHandler struct {
	service   PaymentServiceInterface
	simulator PaymentSimulatorInterface
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(service PaymentServiceInterface, simulator PaymentSimulatorInterface) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		simulator: simulator,
	}
}

type paymentRequest struct {
	Amount   int64  `json:"amount"`
	Merchant string `json:"merchant"`
	Category string `json:"category"`
}

// paymentResponse は支払い1件の判定結果。
// evaluatedがfalseの場合はプロフィールが無く判定を行っていない。
type paymentResponse struct {
	Payment   model.PaymentEvent   `json:"payment"`
	Evaluated bool                 `json:"evaluated"`
	Verdict   model.AnomalyVerdict `json:"verdict"`
	Notified  bool                 `json:"notified"`
	Message   *messageResponse     `json:"message,omitempty"`
}

type testNotificationResponse struct {
	PermissionGranted bool             `json:"permissionGranted"`
	TestSent          bool             `json:"testSent"`
	Payment           *paymentResponse `json:"payment"`
}

// CreatePayment は支払いを受け付けて判定する。
// POST /api/payments
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req paymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Handle(r.Context(), userID, model.PaymentEvent{
		Amount:   req.Amount,
		Merchant: req.Merchant,
		Category: req.Category,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(result))
}

// Simulate は定義済みの支払いから1件を選んで判定する。
// POST /api/payments/simulate
func (h *PaymentHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.simulator.Simulate(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(result))
}

// TestNotification は通知許可を求めてテスト通知を送り、支払いを1件シミュレーションする。
// POST /api/notifications/test
func (h *PaymentHandler) TestNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.simulator.TestNotification(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, testNotificationResponse{
		PermissionGranted: result.PermissionGranted,
		TestSent:          result.TestSent,
		Payment:           toPaymentResponsePtr(result.Payment),
	})
}

func toPaymentResponse(result *payment.Result) paymentResponse {
	resp := paymentResponse{
		Payment:   result.Payment,
		Evaluated: result.Evaluated,
		Verdict:   result.Verdict,
		Notified:  result.Notified,
	}
	if result.Message != nil {
		m := toMessageResponse(result.Message)
		resp.Message = &m
	}
	return resp
}

func toPaymentResponsePtr(result *payment.Result) *paymentResponse {
	if result == nil {
		return nil
	}
	resp := toPaymentResponse(result)
	return &resp
}
