package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/okane/internal/metrics"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/schedule"
)

// DefaultAutoDismiss は通知を自動で閉じるまでの時間。
const DefaultAutoDismiss = 5000 * time.Millisecond

// closeTimeout は自動クローズのリクエストのタイムアウト。
const closeTimeout = 10 * time.Second

// Dispatcher は許可状態を確認してから通知を送り、一定時間後に自動で閉じる。
type Dispatcher struct {
	gateway     Gateway
	cache       *PermissionCache
	sched       schedule.Scheduler
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	autoDismiss time.Duration
}

// NewDispatcher はDispatcherを生成する。autoDismissが0以下の場合は既定値を使う。
func NewDispatcher(
	gateway Gateway,
	cache *PermissionCache,
	sched schedule.Scheduler,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	autoDismiss time.Duration,
) *Dispatcher {
	if autoDismiss <= 0 {
		autoDismiss = DefaultAutoDismiss
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Dispatcher{
		gateway:     gateway,
		cache:       cache,
		sched:       sched,
		metrics:     collector,
		logger:      logger,
		autoDismiss: autoDismiss,
	}
}

// Notify はキャッシュ済みの許可フラグと現在の許可状態の両方が許可の場合のみ通知を送る。
// 送信した場合はtrueを返し、autoDismiss後に通知を閉じる。
func (d *Dispatcher) Notify(ctx context.Context, userID, title string, opts Options) (bool, error) {
	cached, live := d.permissions(ctx, userID)
	if !cached || live != model.PermissionGranted {
		d.suppressed(userID, opts.Tag, cached, live)
		return false, nil
	}
	return d.send(ctx, userID, title, opts)
}

// NotifyVerdict は支払い判定の結果をShouldNotifyで判定し、該当する場合にアラート通知を送る。
func (d *Dispatcher) NotifyVerdict(ctx context.Context, userID string, verdict model.AnomalyVerdict) (bool, error) {
	if !verdict.IsProblematic {
		return false, nil
	}

	cached, live := d.permissions(ctx, userID)
	if !ShouldNotify(verdict, cached, live) {
		d.suppressed(userID, TagAlert, cached, live)
		return false, nil
	}
	return d.send(ctx, userID, TitleAlert, Options{
		Body: verdict.Reason,
		Icon: IconMad,
		Tag:  TagAlert,
	})
}

// Send は許可状態を確認済みの呼び出し元のために、キャッシュ済みフラグを見ずに通知を送る。
// 自動クローズはNotifyと同じく行う。
func (d *Dispatcher) Send(ctx context.Context, userID, title string, opts Options) (bool, error) {
	return d.send(ctx, userID, title, opts)
}

func (d *Dispatcher) permissions(ctx context.Context, userID string) (bool, model.PermissionState) {
	cached := d.cache.Get(ctx, userID)
	live, err := d.gateway.Permission(ctx, userID)
	if err != nil {
		d.logger.Warn("通知許可状態の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return cached, model.PermissionDefault
	}
	return cached, live
}

func (d *Dispatcher) suppressed(userID, tag string, cached bool, live model.PermissionState) {
	d.metrics.RecordNotificationSuppressed(tag)
	d.logger.Info("通知許可がないため送信できません",
		slog.String("user_id", userID),
		slog.String("tag", tag),
		slog.Bool("cached_permission", cached),
		slog.String("permission", string(live)),
	)
}

func (d *Dispatcher) send(ctx context.Context, userID, title string, opts Options) (bool, error) {
	if err := d.gateway.Send(ctx, userID, title, opts); err != nil {
		return false, err
	}
	d.metrics.RecordNotificationSent(opts.Tag)

	tag := opts.Tag
	d.sched.AfterFunc(d.autoDismiss, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := d.gateway.Close(closeCtx, userID, tag); err != nil {
			d.logger.Warn("通知の自動クローズに失敗しました",
				slog.String("user_id", userID),
				slog.String("tag", tag),
				slog.String("error", err.Error()),
			)
		}
	})
	return true, nil
}
