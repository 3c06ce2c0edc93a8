package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

// MessageServiceInterface は会話ハンドラーが必要とするサービスインターフェース。
type MessageServiceInterface interface {
	History(ctx context.Context, userID string, limit int) ([]*model.ConversationMessage, error)
	SendUserMessage(ctx context.Context, userID, text string) (userMsg, reply *model.ConversationMessage, err error)
	LatestEmotion(ctx context.Context, userID string) model.Emotion
}

// MessageHandler はAIアシスタントとの会話のHTTPハンドラー。
type MessageHandler struct {
	service    MessageServiceInterface
	replyDelay time.Duration
}

// NewMessageHandler はMessageHandlerを生成する。
// replyDelayはクライアントがAIの返信を表示するまで待つ時間としてレスポンスに含める。
func NewMessageHandler(service MessageServiceInterface, replyDelay time.Duration) *MessageHandler {
	return &MessageHandler{
		service:    service,
		replyDelay: replyDelay,
	}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type messageResponse struct {
	ID        string        `json:"id"`
	Sender    model.Sender  `json:"sender"`
	Text      string        `json:"text"`
	Emotion   model.Emotion `json:"emotion,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// messageListResponse は会話ログのレスポンス。avatarEmotionはアバターに表示する表情。
type messageListResponse struct {
	Messages      []messageResponse `json:"messages"`
	AvatarEmotion model.Emotion     `json:"avatarEmotion"`
}

type sendMessageResponse struct {
	Message      messageResponse  `json:"message"`
	Reply        *messageResponse `json:"reply"`
	ReplyDelayMs int64            `json:"replyDelayMs"`
}

// ListMessages は会話ログを古い順に返す。
// GET /api/messages?limit=n
func (h *MessageHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	msgs, err := h.service.History(r.Context(), userID, queryLimit(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := messageListResponse{
		Messages:      make([]messageResponse, 0, len(msgs)),
		AvatarEmotion: h.service.LatestEmotion(r.Context(), userID),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessage はユーザーのメッセージを送信し、AIの返信とあわせて返す。
// POST /api/messages
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req sendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userMsg, reply, err := h.service.SendUserMessage(r.Context(), userID, req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := sendMessageResponse{
		Message:      toMessageResponse(userMsg),
		ReplyDelayMs: h.replyDelay.Milliseconds(),
	}
	if reply != nil {
		rr := toMessageResponse(reply)
		resp.Reply = &rr
	}
	writeJSON(w, http.StatusCreated, resp)
}

func toMessageResponse(m *model.ConversationMessage) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Sender:    m.Sender,
		Text:      m.Text,
		Emotion:   m.Emotion,
		CreatedAt: m.CreatedAt,
	}
}
