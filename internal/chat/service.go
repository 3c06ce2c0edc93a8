// Package chat はAIアシスタントとの会話ログを提供する。
//
// 会話ログはユーザーごとの追記のみの列で、AIメッセージの表情は作成時に
// 本文から決め、以後変更しない。アバターの表情は最新のAIメッセージの表情を使う。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/okane/internal/emotion"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// DefaultHistoryLimit は会話ログ取得時の既定の件数。
const DefaultHistoryLimit = 100

// maxHistoryLimit は会話ログ取得時の最大件数。
const maxHistoryLimit = 500

// maxMessageRunes はユーザーメッセージの最大文字数。
const maxMessageRunes = 1000

// Replies はユーザーのメッセージに対する定型の返信。
var Replies = []string{
	"ご質問ありがとうございます！関連情報を検索しますので、少々お待ちください。",
	"素晴らしい質問ですね！お役に立てるよう頑張ります。",
	"申し訳ございませんが、その情報は現在確認できません。",
	"警告：この操作には注意が必要です。よく確認してください。",
	"おめでとうございます！目標達成まであと少しです！",
}

// Sanitizer はユーザー入力からHTMLを取り除く。
type Sanitizer interface {
	Sanitize(text string) string
}

// Service は会話ログへの追記と取得を提供する。
type Service struct {
	repo      repository.MessageRepository
	sanitizer Sanitizer
	pick      func(n int) int
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.MessageRepository, sanitizer Sanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		pick:      rand.Intn,
		now:       time.Now,
	}
}

// WithPicker は定型返信の選び方を差し替える。pickは[0, n)の値を返すこと。
func (s *Service) WithPicker(pick func(n int) int) *Service {
	s.pick = pick
	return s
}

// SendUserMessage はユーザーのメッセージを追記し、定型返信の中から1つ選んでAIの返信として追記する。
// 空白のみのメッセージはエラーを返す。
func (s *Service) SendUserMessage(ctx context.Context, userID, text string) (userMsg, reply *model.ConversationMessage, err error) {
	if s.sanitizer != nil {
		text = s.sanitizer.Sanitize(text)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil, model.NewEmptyMessageError()
	}
	if runes := []rune(text); len(runes) > maxMessageRunes {
		text = string(runes[:maxMessageRunes])
	}

	userMsg = &model.ConversationMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		Sender:    model.SenderUser,
		Text:      text,
		CreatedAt: s.now(),
	}
	if err := s.repo.Append(ctx, userMsg); err != nil {
		return nil, nil, fmt.Errorf("メッセージの保存に失敗しました: %w", err)
	}

	replyText := Replies[s.pick(len(Replies))]
	reply, err = s.appendAI(ctx, userID, replyText, emotion.Classify(replyText))
	if err != nil {
		return userMsg, nil, err
	}
	return userMsg, reply, nil
}

// AppendAlert は支出アラートのメッセージを怒った表情で追記する。
func (s *Service) AppendAlert(ctx context.Context, userID, name, reason string) (*model.ConversationMessage, error) {
	text := fmt.Sprintf("%sさん、支出アラートです！%s", name, reason)
	return s.appendAI(ctx, userID, text, model.EmotionMad)
}

// AppendWelcome は初期設定完了後の最初のメッセージを追記する。
// 通知が許可された場合は笑顔、それ以外は通常の表情になる。
func (s *Service) AppendWelcome(ctx context.Context, userID string, p model.RawProfile, granted bool, live model.PermissionState) (*model.ConversationMessage, error) {
	emo := model.EmotionNormal
	if granted {
		emo = model.EmotionSmile
	}
	return s.appendAI(ctx, userID, WelcomeText(p, granted, live), emo)
}

// WelcomeText は初期設定完了後の最初のメッセージ本文を返す。
func WelcomeText(p model.RawProfile, granted bool, live model.PermissionState) string {
	status := "❌ 無効"
	guide := "ブラウザ通知は無効です。右上の「通知テスト」ボタンで確認してください。"
	if granted {
		status = "✅ 有効"
		guide = "ブラウザ通知も有効になりました。"
	}

	return fmt.Sprintf(`%sさん、初期設定ありがとうございました！年収%s、純資産%sの%sの情報を元に、最適な財務アドバイスをいたします。

🔔 通知状態: %s
ブラウザ許可: %s

%s

今月は食費が少し予算を超えていますね。近くのスーパーでお得なセール情報を集めておきました！確認しますか？`,
		p.Name, p.AnnualIncome, p.NetWorth, p.FamilySize, status, live, guide)
}

// History は会話ログを古い順に最新limit件返す。limitが0以下の場合は既定値を使う。
func (s *Service) History(ctx context.Context, userID string, limit int) ([]*model.ConversationMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	msgs, err := s.repo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("会話ログの取得に失敗しました: %w", err)
	}
	if msgs == nil {
		msgs = []*model.ConversationMessage{}
	}
	return msgs, nil
}

// LatestEmotion はアバターの表情として最新のAIメッセージの表情を返す。
// AIメッセージが無い場合や取得に失敗した場合はnormalを返す。
func (s *Service) LatestEmotion(ctx context.Context, userID string) model.Emotion {
	emo, err := s.repo.LatestAIEmotion(ctx, userID)
	if err != nil {
		slog.Warn("アバターの表情の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return model.EmotionNormal
	}
	if emo == "" {
		return model.EmotionNormal
	}
	return emo
}

func (s *Service) appendAI(ctx context.Context, userID, text string, emo model.Emotion) (*model.ConversationMessage, error) {
	msg := &model.ConversationMessage{
		ID:        uuid.New().String(),
		UserID:    userID,
		Sender:    model.SenderAI,
		Text:      text,
		Emotion:   emo,
		CreatedAt: s.now(),
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("AIメッセージの保存に失敗しました: %w", err)
	}
	return msg, nil
}
