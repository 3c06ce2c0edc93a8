// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/okane/internal/model"
)

// ErrDuplicate は一意制約に違反した場合に返す。
var ErrDuplicate = errors.New("既に存在します")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	// メールアドレスが重複する場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// DeleteByID は指定IDのユーザーを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileRepository は構造化プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はユーザーの構造化プロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.StructuredProfile, error)

	// Upsert は構造化プロフィールを作成または上書きし、保存後の値を返す。
	Upsert(ctx context.Context, userID string, profile model.StructuredProfile) (*model.StructuredProfile, error)

	// DeleteByUserID はユーザーの構造化プロフィールを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// CacheStore はキーバリュー形式の永続キャッシュ。
// 自由記述プロフィールや通知許可フラグを再起動後も保持するために使う。
type CacheStore interface {
	// Get はキーの値を取得する。存在しない場合はokがfalseになる。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Put はキーに値を保存する。既存の値は上書きする。
	Put(ctx context.Context, key string, value []byte) error
	// Delete はキーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// MessageRepository は会話ログの永続化インターフェース。
// 追記のみで、既存メッセージの更新は提供しない。
type MessageRepository interface {
	// Append はメッセージを追記し、採番したSeqをmsgに設定する。
	Append(ctx context.Context, msg *model.ConversationMessage) error

	// ListByUserID はユーザーの会話ログをSeq昇順で最新limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.ConversationMessage, error)

	// LatestAIEmotion は最新のAIメッセージの表情を返す。AIメッセージが無い場合は空文字を返す。
	LatestAIEmotion(ctx context.Context, userID string) (model.Emotion, error)

	// DeleteByUserID はユーザーの会話ログを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// NotificationSettingRepository は通知許可と配信先の永続化インターフェース。
type NotificationSettingRepository interface {
	// FindByUserID はユーザーの通知設定を取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.NotificationSetting, error)

	// Upsert は通知設定を作成または上書きする。
	Upsert(ctx context.Context, setting *model.NotificationSetting) error

	// MarkPrompted は許可を求めた時刻を記録する。設定が無い場合はdefault状態で作成する。
	MarkPrompted(ctx context.Context, userID string) error

	// DeleteByUserID はユーザーの通知設定を削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// DealSourceRepository はセール情報フィードの永続化インターフェース。
type DealSourceRepository interface {
	// FindByFeedURL はフィードURLでソースを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.DealSource, error)

	// Create はソースを作成する。
	Create(ctx context.Context, source *model.DealSource) error

	// ListDueForFetch はnext_fetch_atが到来したアクティブなソースを取得する。
	ListDueForFetch(ctx context.Context) ([]*model.DealSource, error)

	// UpdateFetchState はフェッチ状態（ステータス、エラー、次回時刻、ETag等）を更新する。
	UpdateFetchState(ctx context.Context, source *model.DealSource) error
}

// DealRepository はお得情報の永続化インターフェース。
type DealRepository interface {
	// FindBySourceAndLink はソースIDとリンクでお得情報を検索する。見つからない場合はnilを返す。
	FindBySourceAndLink(ctx context.Context, sourceID, link string) (*model.Deal, error)

	// Create はお得情報を作成する。
	Create(ctx context.Context, deal *model.Deal) error

	// Update はお得情報を上書き更新する。
	Update(ctx context.Context, deal *model.Deal) error

	// ListLatest は公開日時の新しい順にlimit件返す。
	ListLatest(ctx context.Context, limit int) ([]*model.Deal, error)
}

// MailRepository は支払い通知メールの監視状態と受信メールの永続化インターフェース。
type MailRepository interface {
	// SetMonitoring はユーザーのメール監視状態を設定する。
	SetMonitoring(ctx context.Context, userID string, monitoring bool) error

	// IsMonitoring はユーザーがメール監視中かを返す。設定が無い場合はfalse。
	IsMonitoring(ctx context.Context, userID string) (bool, error)

	// Insert はメールを保存する。同じユーザーで同じMessageIDのメールが既にあれば何もせずfalseを返す。
	Insert(ctx context.Context, msg *model.MailMessage) (inserted bool, err error)

	// TrimToLatest は受信日時の新しい順にkeep件だけ残し、それより古いメールを削除する。
	TrimToLatest(ctx context.Context, userID string, keep int) (int64, error)

	// ListLatest は受信日時の新しい順にlimit件返す。
	ListLatest(ctx context.Context, userID string, limit int) ([]*model.MailMessage, error)
}
