package notification

import (
	"context"
	"fmt"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// URLValidator は配信先URLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// SettingsService は通知設定（許可状態と配信先）の更新を提供する。
type SettingsService struct {
	repo      repository.NotificationSettingRepository
	validator URLValidator
}

// NewSettingsService はSettingsServiceを生成する。
func NewSettingsService(repo repository.NotificationSettingRepository, validator URLValidator) *SettingsService {
	return &SettingsService{repo: repo, validator: validator}
}

// Get は通知設定を返す。未登録の場合はdefault状態の設定を返す。
func (s *SettingsService) Get(ctx context.Context, userID string) (*model.NotificationSetting, error) {
	setting, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return &model.NotificationSetting{UserID: userID, Permission: model.PermissionDefault}, nil
	}
	return setting, nil
}

// Update は許可状態と配信先を更新する。
// permissionはdefault/granted/deniedのいずれか。endpointは空（配信しない）またはSSRF検証を通るURL。
func (s *SettingsService) Update(ctx context.Context, userID, permission, endpoint string) (*model.NotificationSetting, error) {
	state := model.PermissionState(permission)
	switch state {
	case model.PermissionDefault, model.PermissionGranted, model.PermissionDenied:
	default:
		return nil, model.NewInvalidPermissionError(permission)
	}

	if endpoint != "" {
		if err := s.validator.ValidateURL(endpoint); err != nil {
			return nil, model.NewInvalidEndpointError(err.Error())
		}
	}

	setting := &model.NotificationSetting{
		UserID:     userID,
		Permission: state,
		Endpoint:   endpoint,
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, fmt.Errorf("通知設定の更新に失敗しました: %w", err)
	}
	return s.Get(ctx, userID)
}
