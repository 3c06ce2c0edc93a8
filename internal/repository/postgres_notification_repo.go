package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/okane/internal/model"
)

// PostgresNotificationSettingRepo はPostgreSQLを使用した通知設定リポジトリ。
type PostgresNotificationSettingRepo struct {
	db *sql.DB
}

// NewPostgresNotificationSettingRepo はPostgresNotificationSettingRepoを生成する。
func NewPostgresNotificationSettingRepo(db *sql.DB) *PostgresNotificationSettingRepo {
	return &PostgresNotificationSettingRepo{db: db}
}

// FindByUserID はユーザーの通知設定を取得する。見つからない場合はnilを返す。
func (r *PostgresNotificationSettingRepo) FindByUserID(ctx context.Context, userID string) (*model.NotificationSetting, error) {
	s := &model.NotificationSetting{}
	var endpoint sql.NullString
	var promptedAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, permission, endpoint, prompted_at, updated_at
		 FROM notification_settings WHERE user_id = $1`,
		userID,
	).Scan(&s.UserID, &s.Permission, &endpoint, &promptedAt, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("通知設定の取得に失敗しました: %w", err)
	}

	s.Endpoint = nullStringValue(endpoint)
	if promptedAt.Valid {
		s.PromptedAt = &promptedAt.Time
	}
	return s, nil
}

// Upsert は通知設定を作成または上書きする。prompted_atは既存の値を維持する。
func (r *PostgresNotificationSettingRepo) Upsert(ctx context.Context, setting *model.NotificationSetting) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_settings (user_id, permission, endpoint, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     permission = EXCLUDED.permission,
		     endpoint = EXCLUDED.endpoint,
		     updated_at = EXCLUDED.updated_at`,
		setting.UserID, setting.Permission, nullString(setting.Endpoint),
	)
	if err != nil {
		return fmt.Errorf("通知設定の保存に失敗しました: %w", err)
	}
	return nil
}

// MarkPrompted は許可を求めた時刻を記録する。設定が無い場合はdefault状態で作成する。
func (r *PostgresNotificationSettingRepo) MarkPrompted(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notification_settings (user_id, permission, prompted_at, updated_at)
		 VALUES ($1, $2, now(), now())
		 ON CONFLICT (user_id) DO UPDATE SET
		     prompted_at = EXCLUDED.prompted_at,
		     updated_at = EXCLUDED.updated_at`,
		userID, model.PermissionDefault,
	)
	if err != nil {
		return fmt.Errorf("通知許可の要求時刻の記録に失敗しました: %w", err)
	}
	return nil
}

// DeleteByUserID はユーザーの通知設定を削除する。
func (r *PostgresNotificationSettingRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM notification_settings WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("通知設定の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NotificationSettingRepository = (*PostgresNotificationSettingRepo)(nil)
