package payment

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/notification"
)

// MockPayments はデモ用の支払い通知。
var MockPayments = []model.PaymentEvent{
	{Amount: 25000, Merchant: "イオンモール", Category: "食費"},
	{Amount: 15000, Merchant: "カラオケBIG ECHO", Category: "娯楽"},
	{Amount: 50000, Merchant: "ビックカメラ", Category: "家電"},
	{Amount: 8000, Merchant: "パチンコ店", Category: "娯楽"},
}

// testNotificationBody はテスト通知の本文。
const testNotificationBody = "これはテスト通知です。通知システムが正常に動作しています。"

// PermissionRequester は通知許可を求める。
type PermissionRequester interface {
	RequestPermission(ctx context.Context, userID string) (bool, error)
}

// DirectSender は許可を確認済みの通知を送る。
type DirectSender interface {
	Send(ctx context.Context, userID, title string, opts notification.Options) (bool, error)
}

// Simulator はデモ用の支払い通知を発生させる。
type Simulator struct {
	service     *Service
	permissions PermissionRequester
	sender      DirectSender
	pick        func(n int) int
}

// NewSimulator はSimulatorを生成する。
func NewSimulator(service *Service, permissions PermissionRequester, sender DirectSender) *Simulator {
	return &Simulator{
		service:     service,
		permissions: permissions,
		sender:      sender,
		pick:        rand.Intn,
	}
}

// WithPicker は支払いの選び方を差し替える。pickは[0, n)の値を返すこと。
func (s *Simulator) WithPicker(pick func(n int) int) *Simulator {
	s.pick = pick
	return s
}

// Simulate はMockPaymentsから1件を選んで処理する。
func (s *Simulator) Simulate(ctx context.Context, userID string) (*Result, error) {
	event := MockPayments[s.pick(len(MockPayments))]
	return s.service.Handle(ctx, userID, event)
}

// TestResult は通知テストの結果。
type TestResult struct {
	PermissionGranted bool    `json:"permissionGranted"`
	TestSent          bool    `json:"testSent"`
	Payment           *Result `json:"payment"`
}

// TestNotification は通知許可を求め、許可されていればテスト通知を送る。
// 続けて支払い通知を1件シミュレーションする。
func (s *Simulator) TestNotification(ctx context.Context, userID string) (*TestResult, error) {
	out := &TestResult{}

	granted, err := s.permissions.RequestPermission(ctx, userID)
	if err != nil {
		slog.Warn("通知許可の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		granted = false
	}
	out.PermissionGranted = granted

	if granted {
		sent, err := s.sender.Send(ctx, userID, notification.TitleTest, notification.Options{
			Body: testNotificationBody,
			Icon: notification.IconNormal,
			Tag:  notification.TagTest,
		})
		if err != nil {
			slog.Warn("テスト通知の送信に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		out.TestSent = sent
	}

	result, err := s.Simulate(ctx, userID)
	if err != nil {
		return nil, err
	}
	out.Payment = result
	return out, nil
}

// compile-time interface check
var _ DirectSender = (*notification.Dispatcher)(nil)
