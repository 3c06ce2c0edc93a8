// Package mailwatch はカード会社などからの支払い通知メールの監視を提供する。
//
// 監視はユーザーごとに開始・停止でき、監視中に受け取ったメールだけを保存する。
// メールはMessage-IDで重複を除き、ユーザーごとに新しい順でMaxLatest件まで保持する。
// 本文から金額と利用先を読み取れた場合は支払いとして判定に回す。
package mailwatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/okane/internal/metrics"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/payment"
	"github.com/hitoshi/okane/internal/repository"
)

// MaxLatest はユーザーごとに保持するメールの最大件数。
const MaxLatest = 50

// RefreshInterval は監視中にクライアントが最新メールを取り直す間隔。
const RefreshInterval = 3000 * time.Millisecond

// 受信結果。メトリクスのラベルにも使う。
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultFiltered  = "filtered"
	ResultStopped   = "stopped"
	ResultInvalid   = "invalid"
)

// PaymentHandler はメールから取り出した支払いを判定する。
type PaymentHandler interface {
	Handle(ctx context.Context, userID string, event model.PaymentEvent) (*payment.Result, error)
}

// Config はメール監視の設定。
type Config struct {
	// SenderList は受け付ける送信元アドレス。大文字小文字は区別しない。空の場合はすべて受け付ける。
	SenderList []string
	ProjectID  string
}

// IngestResult はメール1通の受信結果。
type IngestResult struct {
	Result  string
	Message *model.MailMessage
	// Payment は本文から支払いを読み取れた場合の判定結果。
	Payment *payment.Result
}

// Service はメール監視の開始・停止、受信、一覧を提供する。
type Service struct {
	repo       repository.MailRepository
	payments   PaymentHandler
	htmlToText func(string) string
	metrics    metrics.MetricsCollector
	cfg        Config
	senders    map[string]bool
	now        func() time.Time
}

// NewService はServiceを生成する。paymentsがnilの場合はメールを保存するだけで判定しない。
func NewService(
	repo repository.MailRepository,
	payments PaymentHandler,
	htmlToText func(string) string,
	collector metrics.MetricsCollector,
	cfg Config,
) *Service {
	senders := make(map[string]bool, len(cfg.SenderList))
	for _, s := range cfg.SenderList {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			senders[s] = true
		}
	}
	return &Service{
		repo:       repo,
		payments:   payments,
		htmlToText: htmlToText,
		metrics:    collector,
		cfg:        cfg,
		senders:    senders,
		now:        time.Now,
	}
}

// WithClock は受信日時の既定値に使う時計を差し替える。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Config は送信元の許可リストとプロジェクトIDを返す。
func (s *Service) Config() Config {
	return Config{
		SenderList: append([]string(nil), s.cfg.SenderList...),
		ProjectID:  s.cfg.ProjectID,
	}
}

// Start はユーザーのメール監視を開始する。開始済みの場合も成功する。
func (s *Service) Start(ctx context.Context, userID string) error {
	if err := s.repo.SetMonitoring(ctx, userID, true); err != nil {
		return err
	}
	slog.Info("メール監視を開始しました", slog.String("user_id", userID))
	return nil
}

// Stop はユーザーのメール監視を停止する。保存済みのメールは残す。
func (s *Service) Stop(ctx context.Context, userID string) error {
	if err := s.repo.SetMonitoring(ctx, userID, false); err != nil {
		return err
	}
	slog.Info("メール監視を停止しました", slog.String("user_id", userID))
	return nil
}

// Status はユーザーがメール監視中かを返す。
func (s *Service) Status(ctx context.Context, userID string) (bool, error) {
	return s.repo.IsMonitoring(ctx, userID)
}

// Latest は受信日時の新しい順に最大MaxLatest件のメールを返す。
func (s *Service) Latest(ctx context.Context, userID string, limit int) ([]*model.MailMessage, error) {
	if limit <= 0 || limit > MaxLatest {
		limit = MaxLatest
	}
	return s.repo.ListLatest(ctx, userID, limit)
}

// Accepts は送信元アドレスが許可リストに含まれるかを返す。
func (s *Service) Accepts(senderEmail string) bool {
	if len(s.senders) == 0 {
		return true
	}
	return s.senders[strings.ToLower(strings.TrimSpace(senderEmail))]
}

// Ingest はRFC 5322形式のメール1通を受け取る。
// 監視が停止中の場合はMAIL_MONITOR_STOPPEDエラーを返す。
// 許可されていない送信元や既に受け取ったMessage-IDのメールは保存せず、Resultで区別する。
// 保存したメールは本文から支払いを読み取り、読み取れた場合は判定に回す。
// 判定に失敗してもメールの受信は成功として扱う。
func (s *Service) Ingest(ctx context.Context, userID string, raw io.Reader) (*IngestResult, error) {
	monitoring, err := s.repo.IsMonitoring(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !monitoring {
		s.metrics.RecordMailIngested(ResultStopped)
		return nil, model.NewMailMonitorStoppedError()
	}

	msg, err := ParseMessage(raw, s.htmlToText, s.now())
	if err != nil {
		s.metrics.RecordMailIngested(ResultInvalid)
		if errors.Is(err, errTooLarge) {
			return nil, model.NewInvalidMailError(err.Error())
		}
		return nil, model.NewInvalidMailError("形式が正しくありません")
	}
	msg.UserID = userID

	if !s.Accepts(msg.SenderEmail) {
		s.metrics.RecordMailIngested(ResultFiltered)
		slog.Info("許可されていない送信元のメールを読み飛ばしました",
			slog.String("user_id", userID),
			slog.String("sender", msg.SenderEmail),
		)
		return &IngestResult{Result: ResultFiltered, Message: msg}, nil
	}

	msg.ID = uuid.New().String()
	msg.CreatedAt = s.now()
	inserted, err := s.repo.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.metrics.RecordMailIngested(ResultDuplicate)
		return &IngestResult{Result: ResultDuplicate, Message: msg}, nil
	}
	s.metrics.RecordMailIngested(ResultAccepted)

	if _, err := s.repo.TrimToLatest(ctx, userID, MaxLatest); err != nil {
		slog.Warn("古いメールの削除に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	result := &IngestResult{Result: ResultAccepted, Message: msg}
	if s.payments == nil {
		return result, nil
	}
	event, ok := ExtractPayment(msg)
	if !ok {
		slog.Debug("メールから支払いを読み取れませんでした",
			slog.String("user_id", userID),
			slog.String("message_id", msg.MessageID),
		)
		return result, nil
	}
	// メールは保存済みのため、判定の失敗は受信の失敗にしない
	paid, err := s.payments.Handle(ctx, userID, event)
	if err != nil {
		slog.Warn("メールの支払いの判定に失敗しました",
			slog.String("user_id", userID),
			slog.String("message_id", msg.MessageID),
			slog.String("error", err.Error()),
		)
		return result, nil
	}
	result.Payment = paid
	return result, nil
}
