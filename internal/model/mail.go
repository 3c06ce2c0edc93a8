package model

import "time"

// MailMessage は監視中に受け取った支払い通知メール1件。
// 同じユーザーでMessageIDが重複するメールは保存しない。
type MailMessage struct {
	ID          string
	UserID      string
	MessageID   string
	SenderRaw   string // Fromヘッダーをデコードしたもの
	SenderEmail string // 小文字化したアドレス
	Subject     string
	Body        string // プレーンテキスト化済み
	ReceivedAt  time.Time
	CreatedAt   time.Time
}
