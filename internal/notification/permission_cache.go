package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/okane/internal/repository"
)

// PermissionKey は通知許可フラグを保存するキャッシュキーを返す。
func PermissionKey(userID string) string {
	return "notification_permission:" + userID
}

// PermissionCache は初期設定完了時に取得した通知許可フラグを保持する。
type PermissionCache struct {
	store repository.CacheStore
}

// NewPermissionCache はPermissionCacheを生成する。
func NewPermissionCache(store repository.CacheStore) *PermissionCache {
	return &PermissionCache{store: store}
}

// Get はキャッシュ済みの許可フラグを返す。
// 未保存・取得失敗・"true"/"false"以外の値はすべてfalseとして扱う。
func (c *PermissionCache) Get(ctx context.Context, userID string) bool {
	v, ok, err := c.store.Get(ctx, PermissionKey(userID))
	if err != nil {
		slog.Warn("通知許可フラグの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok && string(v) == "true"
}

// Set は許可フラグを保存する。
func (c *PermissionCache) Set(ctx context.Context, userID string, granted bool) error {
	v := "false"
	if granted {
		v = "true"
	}
	if err := c.store.Put(ctx, PermissionKey(userID), []byte(v)); err != nil {
		return fmt.Errorf("通知許可フラグの保存に失敗しました: %w", err)
	}
	return nil
}

// Delete は許可フラグを削除する。
func (c *PermissionCache) Delete(ctx context.Context, userID string) error {
	return c.store.Delete(ctx, PermissionKey(userID))
}
