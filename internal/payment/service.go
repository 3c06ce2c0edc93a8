// Package payment は支払い通知の判定とアラート送信を提供する。
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/okane/internal/metrics"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/notification"
)

// maxMerchantRunes は店舗名の最大文字数。
const maxMerchantRunes = 100

// ProfileLoader はユーザーのプロフィールを読み込む。
type ProfileLoader interface {
	Load(ctx context.Context, userID string) (*model.RawProfile, *model.StructuredProfile, error)
}

// Evaluator は支払い1件を判定する。
type Evaluator interface {
	Evaluate(ctx context.Context, payment model.PaymentEvent, p model.RawProfile) (model.AnomalyVerdict, error)
}

// AlertNotifier は判定結果に応じてアラート通知を送る。
type AlertNotifier interface {
	NotifyVerdict(ctx context.Context, userID string, verdict model.AnomalyVerdict) (bool, error)
}

// AlertWriter はアラートを会話ログに追記する。
type AlertWriter interface {
	AppendAlert(ctx context.Context, userID, name, reason string) (*model.ConversationMessage, error)
}

// Sanitizer は店舗名などの自由記述からHTMLを取り除く。
type Sanitizer interface {
	Sanitize(text string) string
}

// Result は支払い1件の処理結果。
type Result struct {
	Payment model.PaymentEvent `json:"payment"`
	// Evaluated はプロフィールがあり判定を行った場合にtrue。
	Evaluated bool                       `json:"evaluated"`
	Verdict   model.AnomalyVerdict       `json:"verdict"`
	Notified  bool                       `json:"notified"`
	Message   *model.ConversationMessage `json:"-"`
}

// Service は支払いを判定し、問題がある場合に通知と会話ログへのアラートを行う。
type Service struct {
	profiles  ProfileLoader
	evaluator Evaluator
	notifier  AlertNotifier
	alerts    AlertWriter
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profiles ProfileLoader,
	evaluator Evaluator,
	notifier AlertNotifier,
	alerts AlertWriter,
	sanitizer Sanitizer,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		profiles:  profiles,
		evaluator: evaluator,
		notifier:  notifier,
		alerts:    alerts,
		sanitizer: sanitizer,
		metrics:   collector,
		now:       time.Now,
	}
}

// Validate は支払いの内容を検証し、店舗名とカテゴリをサニタイズして返す。
// IDと日時が空の場合は採番する。
func (s *Service) Validate(event model.PaymentEvent) (model.PaymentEvent, error) {
	if event.Amount < 0 {
		return event, model.NewInvalidPaymentError("金額が負の値です")
	}
	if s.sanitizer != nil {
		event.Merchant = s.sanitizer.Sanitize(event.Merchant)
		event.Category = s.sanitizer.Sanitize(event.Category)
	}
	event.Merchant = strings.TrimSpace(event.Merchant)
	event.Category = strings.TrimSpace(event.Category)
	if event.Merchant == "" {
		return event, model.NewInvalidPaymentError("店舗名が空です")
	}
	if runes := []rune(event.Merchant); len(runes) > maxMerchantRunes {
		return event, model.NewInvalidPaymentError("店舗名が長すぎます")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	return event, nil
}

// Handle は支払い1件を判定する。
// プロフィールが無い（初期設定未完了）場合は何もせず、EvaluatedがfalseのResultを返す。
// 問題のある支払いは許可状態を確認して通知し、会話ログにアラートを追記する。
// 問題の無い支払いは画面上の変化を起こさない。
func (s *Service) Handle(ctx context.Context, userID string, event model.PaymentEvent) (*Result, error) {
	event, err := s.Validate(event)
	if err != nil {
		return nil, err
	}
	result := &Result{Payment: event}

	raw, _, err := s.profiles.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの読み込みに失敗しました: %w", err)
	}
	if raw == nil {
		slog.Info("プロフィールが無いため支払いを判定しません",
			slog.String("user_id", userID),
			slog.String("payment_id", event.ID),
		)
		return result, nil
	}

	verdict, err := s.evaluator.Evaluate(ctx, event, *raw)
	if err != nil {
		return nil, fmt.Errorf("支払いの判定に失敗しました: %w", err)
	}
	result.Evaluated = true
	result.Verdict = verdict
	s.metrics.RecordVerdict(string(verdict.Rule))

	if !verdict.IsProblematic {
		return result, nil
	}

	slog.Info("問題のある支払いを検出しました",
		slog.String("user_id", userID),
		slog.String("payment_id", event.ID),
		slog.Int64("amount", event.Amount),
		slog.String("rule", string(verdict.Rule)),
	)

	notified, err := s.notifier.NotifyVerdict(ctx, userID, verdict)
	if err != nil {
		slog.Warn("支出アラートの通知に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	result.Notified = notified

	msg, err := s.alerts.AppendAlert(ctx, userID, raw.Name, verdict.Reason)
	if err != nil {
		return nil, fmt.Errorf("支出アラートの保存に失敗しました: %w", err)
	}
	result.Message = msg
	return result, nil
}

// compile-time interface check
var _ AlertNotifier = (*notification.Dispatcher)(nil)
