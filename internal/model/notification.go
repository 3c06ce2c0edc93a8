package model

import "time"

// PermissionState は通知許可の状態。ブラウザのNotification.permissionと同じ3値を取る。
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// NotificationSetting はユーザーごとの通知許可と配信先。
type NotificationSetting struct {
	UserID     string
	Permission PermissionState
	Endpoint   string     // Webhook配信先URL。空の場合は配信しない
	PromptedAt *time.Time // 許可を求めた最終時刻
	UpdatedAt  time.Time
}
