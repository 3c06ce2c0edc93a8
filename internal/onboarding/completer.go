package onboarding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/okane/internal/metrics"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/notification"
	"github.com/hitoshi/okane/internal/score"
)

// ProfileSaver は完了したプロフィールを保存する。
type ProfileSaver interface {
	Save(ctx context.Context, userID string, raw model.RawProfile) error
}

// PermissionRequester は通知許可を求め、現在の許可状態を返す。
type PermissionRequester interface {
	RequestPermission(ctx context.Context, userID string) (bool, error)
	Permission(ctx context.Context, userID string) (model.PermissionState, error)
}

// PermissionFlagStore は取得した通知許可フラグを保持する。
type PermissionFlagStore interface {
	Set(ctx context.Context, userID string, granted bool) error
}

// Notifier は許可状態を確認したうえで通知を送る。
type Notifier interface {
	Notify(ctx context.Context, userID, title string, opts notification.Options) (bool, error)
}

// WelcomeWriter は初期設定完了後の最初のメッセージを会話ログに追記する。
type WelcomeWriter interface {
	AppendWelcome(ctx context.Context, userID string, p model.RawProfile, granted bool, live model.PermissionState) (*model.ConversationMessage, error)
}

// Completer は初期設定の完了時に、プロフィールの保存、通知許可の取得、
// ウェルカム通知とウェルカムメッセージの送信を順に行う。
type Completer struct {
	profiles    ProfileSaver
	permissions PermissionRequester
	flags       PermissionFlagStore
	notifier    Notifier
	welcome     WelcomeWriter
	metrics     metrics.MetricsCollector
}

// NewCompleter はCompleterを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewCompleter(
	profiles ProfileSaver,
	permissions PermissionRequester,
	flags PermissionFlagStore,
	notifier Notifier,
	welcome WelcomeWriter,
	collector metrics.MetricsCollector,
) *Completer {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Completer{
		profiles:    profiles,
		permissions: permissions,
		flags:       flags,
		notifier:    notifier,
		welcome:     welcome,
		metrics:     collector,
	}
}

// Complete は初期設定の完了処理を行う。
// プロフィールの保存に失敗した場合は以降の処理を行わずエラーを返す。
// 通知に関する失敗はログに記録し、許可なしとして処理を続ける。
func (c *Completer) Complete(ctx context.Context, userID string, p model.RawProfile) error {
	if err := c.profiles.Save(ctx, userID, p); err != nil {
		return fmt.Errorf("プロフィールの保存に失敗しました: %w", err)
	}

	granted, err := c.permissions.RequestPermission(ctx, userID)
	if err != nil {
		slog.Warn("通知許可の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		granted = false
	}
	if err := c.flags.Set(ctx, userID, granted); err != nil {
		slog.Warn("通知許可フラグの保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if granted {
		_, err := c.notifier.Notify(ctx, userID, notification.TitleWelcome, notification.Options{
			Body: fmt.Sprintf("%sさん、セットアップが完了しました！財務アドバイスの準備ができました。", p.Name),
			Icon: notification.IconSmile,
			Tag:  notification.TagWelcome,
		})
		if err != nil {
			slog.Warn("ウェルカム通知の送信に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	live, err := c.permissions.Permission(ctx, userID)
	if err != nil {
		live = model.PermissionDefault
	}
	if _, err := c.welcome.AppendWelcome(ctx, userID, p, granted, live); err != nil {
		return fmt.Errorf("ウェルカムメッセージの保存に失敗しました: %w", err)
	}

	c.metrics.RecordOnboardingCompleted()
	c.metrics.RecordScore(score.Compute(&p).OverallScore)

	slog.Info("初期設定の完了処理が終わりました",
		slog.String("user_id", userID),
		slog.Bool("notification_granted", granted),
	)
	return nil
}

// compile-time interface check
var _ CompletionHandler = (*Completer)(nil)
