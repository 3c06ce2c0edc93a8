package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

// NotificationSettingsServiceInterface は通知設定ハンドラーが必要とするサービスインターフェース。
type NotificationSettingsServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.NotificationSetting, error)
	Update(ctx context.Context, userID, permission, endpoint string) (*model.NotificationSetting, error)
}

// NotificationHandler は通知設定のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationSettingsServiceInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationSettingsServiceInterface) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type notificationSettingsRequest struct {
	Permission string `json:"permission"`
	Endpoint   string `json:"endpoint"`
}

type notificationSettingsResponse struct {
	Permission model.PermissionState `json:"permission"`
	Endpoint   string                `json:"endpoint"`
	PromptedAt *time.Time            `json:"promptedAt,omitempty"`
}

// GetSettings は通知設定を返す。
// GET /api/notifications/settings
func (h *NotificationHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	setting, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationSettingsResponse(setting))
}

// UpdateSettings は通知の許可状態と配信先を更新する。
// PUT /api/notifications/settings
func (h *NotificationHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req notificationSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	setting, err := h.service.Update(r.Context(), userID, req.Permission, req.Endpoint)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotificationSettingsResponse(setting))
}

func toNotificationSettingsResponse(s *model.NotificationSetting) notificationSettingsResponse {
	return notificationSettingsResponse{
		Permission: s.Permission,
		Endpoint:   s.Endpoint,
		PromptedAt: s.PromptedAt,
	}
}
