// Package notification はユーザーへの通知の許可管理と配信を提供する。
//
// 通知はブラウザ通知のサーバー版として扱う。ユーザーごとに許可状態
// （default / granted / denied）と配信先Webhookを持ち、初期設定完了時に
// 取得した許可フラグをキャッシュする。送信の直前にはキャッシュ済みフラグと
// 現在の許可状態の両方を確認する。
package notification

import "github.com/hitoshi/okane/internal/model"

// 通知のタイトル・タグ・アイコン。
const (
	TitleWelcome = "🎉 初期設定完了"
	TitleAlert   = "⚠️ 支出アラート"
	TitleTest    = "🔔 テスト通知"

	TagWelcome = "welcome-notification"
	TagAlert   = "payment-alert"
	TagTest    = "test-notification"

	IconSmile  = "/assets/man_1_smile.png"
	IconMad    = "/assets/man_1_mad.png"
	IconNormal = "/assets/man_1_normal.png"
)

// Options は通知の本文と表示オプション。
type Options struct {
	Body string `json:"body,omitempty"`
	Icon string `json:"icon,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// ShouldNotify は判定結果を通知すべきかを返す。
// 問題のある支払いで、キャッシュ済みの許可フラグが立っていて、
// かつ現在の許可状態がgrantedの場合のみtrue。
func ShouldNotify(verdict model.AnomalyVerdict, cachedPermission bool, livePermission model.PermissionState) bool {
	return verdict.IsProblematic && cachedPermission && livePermission == model.PermissionGranted
}
