package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/okane/internal/mailwatch"
	"github.com/hitoshi/okane/internal/model"
)

// maxInboundMailBytes は受信APIが読み込むリクエストボディの上限。
// メール自体の上限はmailwatchが判定する。
const maxInboundMailBytes = 4 << 20

// MailServiceInterface はメール監視ハンドラーが必要とするサービスインターフェース。
type MailServiceInterface interface {
	Start(ctx context.Context, userID string) error
	Stop(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (bool, error)
	Latest(ctx context.Context, userID string, limit int) ([]*model.MailMessage, error)
	Ingest(ctx context.Context, userID string, raw io.Reader) (*mailwatch.IngestResult, error)
	Config() mailwatch.Config
}

// MailHandler は支払い通知メールの監視のHTTPハンドラー。
type MailHandler struct {
	service MailServiceInterface
}

// NewMailHandler はMailHandlerを生成する。
func NewMailHandler(service MailServiceInterface) *MailHandler {
	return &MailHandler{service: service}
}

type mailStatusResponse struct {
	IsMonitoring      bool  `json:"isMonitoring"`
	RefreshIntervalMs int64 `json:"refreshIntervalMs,omitempty"`
}

type mailResponse struct {
	MessageID     string    `json:"messageId"`
	SenderRaw     string    `json:"senderRaw"`
	SenderEmail   string    `json:"senderEmail"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Timestamp     time.Time `json:"timestamp"`
	TimestampUnix int64     `json:"timestampUnix"`
}

type mailConfigResponse struct {
	SenderList []string `json:"senderList"`
	ProjectID  string   `json:"projectId"`
}

// inboundMailResponse はメール1通の受信結果。
// paymentは本文から支払いを読み取れた場合のみ返す。
type inboundMailResponse struct {
	Result    string           `json:"result"`
	MessageID string           `json:"messageId,omitempty"`
	Payment   *paymentResponse `json:"payment,omitempty"`
}

// StartMonitoring はメール監視を開始する。
// POST /api/emails/start-monitoring
func (h *MailHandler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Start(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mailStatusResponse{IsMonitoring: true})
}

// StopMonitoring はメール監視を停止する。
// POST /api/emails/stop-monitoring
func (h *MailHandler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.Stop(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mailStatusResponse{IsMonitoring: false})
}

// Status は監視中かどうかと、クライアントが最新メールを取り直す間隔を返す。
// GET /api/emails/status
func (h *MailHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	on, err := h.service.Status(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mailStatusResponse{
		IsMonitoring:      on,
		RefreshIntervalMs: mailwatch.RefreshInterval.Milliseconds(),
	})
}

// Latest は受信日時の新しい順にメールを返す。
// GET /api/emails/latest?limit=n
func (h *MailHandler) Latest(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	mails, err := h.service.Latest(r.Context(), userID, queryLimit(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]mailResponse, 0, len(mails))
	for _, m := range mails {
		resp = append(resp, mailResponse{
			MessageID:     m.MessageID,
			SenderRaw:     m.SenderRaw,
			SenderEmail:   m.SenderEmail,
			Subject:       m.Subject,
			Body:          m.Body,
			Timestamp:     m.ReceivedAt,
			TimestampUnix: m.ReceivedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"emails": resp})
}

// Config は送信元の許可リストとプロジェクトIDを返す。
// GET /api/emails/config
func (h *MailHandler) Config(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}
	cfg := h.service.Config()
	senders := cfg.SenderList
	if senders == nil {
		senders = []string{}
	}
	writeJSON(w, http.StatusOK, mailConfigResponse{SenderList: senders, ProjectID: cfg.ProjectID})
}

// Inbound はRFC 5322形式のメール1通をリクエストボディで受け取る。
// POST /api/emails/inbound
func (h *MailHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxInboundMailBytes)
	result, err := h.service.Ingest(r.Context(), userID, body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := inboundMailResponse{
		Result:  result.Result,
		Payment: toPaymentResponsePtr(result.Payment),
	}
	if result.Message != nil {
		resp.MessageID = result.Message.MessageID
	}
	writeJSON(w, http.StatusOK, resp)
}
