package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// Gateway は通知の許可取得と配信の窓口。
type Gateway interface {
	// RequestPermission は通知許可を求める。grantedの場合のみtrueを返す。
	// 未回答（default）の場合は要求したことを記録し、falseを返す。
	RequestPermission(ctx context.Context, userID string) (bool, error)
	// Permission は現在の許可状態を返す。
	Permission(ctx context.Context, userID string) (model.PermissionState, error)
	// Send は通知を表示させる。許可が無い場合は何もしない。
	Send(ctx context.Context, userID, title string, opts Options) error
	// Close は指定タグの通知を閉じさせる。
	Close(ctx context.Context, userID, tag string) error
}

// webhookPayload はWebhookに送るJSON。
type webhookPayload struct {
	Action string `json:"action"`
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
	Icon   string `json:"icon,omitempty"`
	Tag    string `json:"tag,omitempty"`
}

// maxErrorBodySize はエラー時にログへ残すレスポンスボディの最大長。
const maxErrorBodySize = 512

// WebhookGateway はユーザーが登録したWebhookへJSONをPOSTして通知を配信するGateway。
// HTTPクライアントにはSSRF防止機能付きのものを渡す。
type WebhookGateway struct {
	settings   repository.NotificationSettingRepository
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookGateway はWebhookGatewayの新しいインスタンスを生成する。
func NewWebhookGateway(settings repository.NotificationSettingRepository, httpClient *http.Client, logger *slog.Logger) *WebhookGateway {
	return &WebhookGateway{
		settings:   settings,
		httpClient: httpClient,
		logger:     logger,
	}
}

// RequestPermission は通知許可を求める。
func (g *WebhookGateway) RequestPermission(ctx context.Context, userID string) (bool, error) {
	state, err := g.Permission(ctx, userID)
	if err != nil {
		return false, err
	}

	switch state {
	case model.PermissionGranted:
		return true, nil
	case model.PermissionDenied:
		return false, nil
	default:
		if err := g.settings.MarkPrompted(ctx, userID); err != nil {
			return false, fmt.Errorf("通知許可の要求に失敗しました: %w", err)
		}
		g.logger.Info("通知許可を要求しました（未回答）", slog.String("user_id", userID))
		return false, nil
	}
}

// Permission は現在の許可状態を返す。設定が無い場合はdefault。
func (g *WebhookGateway) Permission(ctx context.Context, userID string) (model.PermissionState, error) {
	setting, err := g.settings.FindByUserID(ctx, userID)
	if err != nil {
		return model.PermissionDefault, fmt.Errorf("通知許可状態の取得に失敗しました: %w", err)
	}
	if setting == nil {
		return model.PermissionDefault, nil
	}
	return setting.Permission, nil
}

// Send は通知をWebhookへ配信する。許可が無い場合や配信先が無い場合はログを残して何もしない。
func (g *WebhookGateway) Send(ctx context.Context, userID, title string, opts Options) error {
	return g.post(ctx, userID, webhookPayload{
		Action: "show",
		Title:  title,
		Body:   opts.Body,
		Icon:   opts.Icon,
		Tag:    opts.Tag,
	})
}

// Close は指定タグの通知を閉じるようWebhookへ依頼する。
func (g *WebhookGateway) Close(ctx context.Context, userID, tag string) error {
	return g.post(ctx, userID, webhookPayload{Action: "close", Tag: tag})
}

func (g *WebhookGateway) post(ctx context.Context, userID string, payload webhookPayload) error {
	setting, err := g.settings.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("通知設定の取得に失敗しました: %w", err)
	}
	if setting == nil || setting.Permission != model.PermissionGranted {
		g.logger.Info("通知許可がないため送信できません",
			slog.String("user_id", userID),
			slog.String("action", payload.Action),
			slog.String("tag", payload.Tag),
		)
		return nil
	}
	if setting.Endpoint == "" {
		g.logger.Info("通知の配信先が未登録のため送信しません",
			slog.String("user_id", userID),
			slog.String("tag", payload.Tag),
		)
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("通知のエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, setting.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Okane/1.0 Notifier")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("通知の配信に失敗しました",
			slog.String("user_id", userID),
			slog.String("tag", payload.Tag),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("通知の配信に失敗しました: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		g.logger.Error("通知の配信先がエラーステータスを返しました",
			slog.String("user_id", userID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("body", string(snippet)),
		)
		return fmt.Errorf("通知の配信先がステータス %d を返しました", resp.StatusCode)
	}

	return nil
}

// compile-time interface check
var _ Gateway = (*WebhookGateway)(nil)
