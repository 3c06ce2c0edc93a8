package handler

import (
	"net/http"

	"github.com/hitoshi/okane/internal/onboarding"
)

// OnboardingServiceInterface は初期設定ハンドラーが必要とするサービスインターフェース。
type OnboardingServiceInterface interface {
	Start(userID string) onboarding.Snapshot
	Current(userID string) (onboarding.Snapshot, error)
	Submit(userID, answer string) (snap onboarding.Snapshot, accepted bool, err error)
}

// OnboardingHandler は初期設定フローのHTTPハンドラー。
type OnboardingHandler struct {
	service OnboardingServiceInterface
}

// NewOnboardingHandler はOnboardingHandlerを生成する。
func NewOnboardingHandler(service OnboardingServiceInterface) *OnboardingHandler {
	return &OnboardingHandler{service: service}
}

type answerRequest struct {
	Answer string `json:"answer"`
}

// answerResponse は回答送信のレスポンス。
// acceptedがfalseの場合、回答は無視され状態は変わっていない。
type answerResponse struct {
	onboarding.Snapshot
	Accepted bool `json:"accepted"`
}

// Start は初期設定フローを開始する。進行中のフローは破棄される。
// POST /api/onboarding
func (h *OnboardingHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusCreated, h.service.Start(userID))
}

// Current は進行中のフローの状態、問いかけ、進捗を返す。
// GET /api/onboarding
func (h *OnboardingHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	snap, err := h.service.Current(userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Answer は質問への回答を送信する。
// POST /api/onboarding/answers
func (h *OnboardingHandler) Answer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	snap, accepted, err := h.service.Submit(userID, req.Answer)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Snapshot: snap, Accepted: accepted})
}
