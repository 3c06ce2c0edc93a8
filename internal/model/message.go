package model

import "time"

// Sender はメッセージの送信者。
type Sender string

const (
	SenderAI   Sender = "ai"
	SenderUser Sender = "user"
)

// Emotion はAIアバターの表情。
type Emotion string

const (
	EmotionNormal Emotion = "normal"
	EmotionSmile  Emotion = "smile"
	EmotionCry    Emotion = "cry"
	EmotionMad    Emotion = "mad"
)

// ConversationMessage は会話ログの1メッセージ。
// 追記のみで、表情は作成時に確定し以後変更しない。ユーザーのメッセージは表情を持たない。
type ConversationMessage struct {
	ID        string
	UserID    string
	Seq       int64
	Sender    Sender
	Text      string
	Emotion   Emotion
	CreatedAt time.Time
}
