package dealfetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/okane/internal/metrics"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// DealUpserter はお得情報の保存処理のインターフェース。
type DealUpserter interface {
	UpsertDeals(ctx context.Context, sourceID string, parsed []model.ParsedDeal) (inserted, updated int, err error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Fetcher はセール情報フィード1件のHTTPフェッチとパースを行う。
// ETag/Last-Modifiedによる条件付きGETを行い、gofeedでパースした項目を保存する。
type Fetcher struct {
	sourceRepo  repository.DealSourceRepository
	upserter    DealUpserter
	ssrfGuard   SSRFValidator
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	interval    time.Duration
	now         func() time.Time
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// intervalは成功時に次回フェッチまで空ける時間。
func NewFetcher(
	sourceRepo repository.DealSourceRepository,
	upserter DealUpserter,
	ssrfGuard SSRFValidator,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	interval time.Duration,
) *Fetcher {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Fetcher{
		sourceRepo:  sourceRepo,
		upserter:    upserter,
		ssrfGuard:   ssrfGuard,
		metrics:     collector,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		interval:    interval,
		now:         time.Now,
	}
}

// Fetch はソースをフェッチし、結果に応じてソースの状態を更新する。
func (f *Fetcher) Fetch(ctx context.Context, src *model.DealSource) error {
	start := time.Now()

	if err := f.ssrfGuard.ValidateURL(src.FeedURL); err != nil {
		f.logger.Error("SSRF検証に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "ssrf")
		ApplyStop(src, fmt.Sprintf("SSRF検証失敗: %s", err.Error()), f.now())
		f.saveState(ctx, src)
		return fmt.Errorf("SSRF検証に失敗: %w", err)
	}

	client := f.ssrfGuard.NewSafeClient(f.timeout, f.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "Okane/1.0 DealFetcher")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := client.Do(req)
	if err != nil {
		f.logger.Error("HTTPリクエストに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "network")
		ApplyBackoff(src, fmt.Sprintf("HTTPリクエスト失敗: %s", err.Error()), f.now())
		f.saveState(ctx, src)
		return fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordHTTPStatus(resp.StatusCode)
	f.metrics.RecordFetchLatency(time.Since(start))

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		f.logger.Info("セール情報フィードは未変更です（304）",
			slog.String("source_id", src.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchSuccess(src.ID)
		ApplySuccess(src, f.interval, f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultStop:
		reason := fmt.Sprintf("HTTPステータス %d によりフェッチを停止しました", resp.StatusCode)
		f.logger.Warn("セール情報フィードのフェッチを停止します",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchFailure(src.ID, "http_stop")
		ApplyStop(src, reason, f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultBackoff:
		f.logger.Warn("セール情報フィードのフェッチにバックオフを適用します",
			slog.String("source_id", src.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", src.ConsecutiveErrors+1),
		)
		f.metrics.RecordFetchFailure(src.ID, "http_backoff")
		ApplyBackoff(src, fmt.Sprintf("HTTPステータス %d によりバックオフを適用しました", resp.StatusCode), f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)

	case FetchResultOK:
	default:
		f.logger.Warn("予期しないHTTPステータスコード",
			slog.String("source_id", src.ID),
			slog.Int("http_status", resp.StatusCode),
		)
		f.metrics.RecordFetchFailure(src.ID, "http_unexpected")
		ApplyBackoff(src, fmt.Sprintf("予期しないHTTPステータス: %d", resp.StatusCode), f.now())
		return f.sourceRepo.UpdateFetchState(ctx, src)
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		src.ETag = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		src.LastModified = lastMod
	}

	// レスポンスサイズの上限はSafeClient側で強制される
	parsedFeed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		f.logger.Error("セール情報フィードのパースに失敗しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", src.FeedURL),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordParseFailure(src.ID)
		ApplyParseFailure(src, err.Error(), f.interval, f.now())
		f.saveState(ctx, src)
		return nil
	}

	if parsedFeed.Title != "" {
		src.Title = parsedFeed.Title
	}

	parsed := convertGofeedItems(parsedFeed.Items)
	inserted, updated, err := f.upserter.UpsertDeals(ctx, src.ID, parsed)
	if err != nil {
		f.logger.Error("お得情報の保存に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.ID, "upsert")
		ApplyBackoff(src, fmt.Sprintf("お得情報の保存失敗: %s", err.Error()), f.now())
		f.saveState(ctx, src)
		return nil
	}

	f.metrics.RecordFetchSuccess(src.ID)
	f.metrics.RecordDealsUpserted(inserted + updated)
	ApplySuccess(src, f.interval, f.now())
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("ソース状態の更新に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		return err
	}

	f.logger.Info("セール情報フィードのフェッチが完了しました",
		slog.String("source_id", src.ID),
		slog.String("feed_url", src.FeedURL),
		slog.Int("deals_inserted", inserted),
		slog.Int("deals_updated", updated),
		slog.Int("deals_total", len(parsed)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (f *Fetcher) saveState(ctx context.Context, src *model.DealSource) {
	if err := f.sourceRepo.UpdateFetchState(ctx, src); err != nil {
		f.logger.Error("ソース状態の更新に失敗しました",
			slog.String("source_id", src.ID),
			slog.String("error", err.Error()),
		)
	}
}

// convertGofeedItems はgofeedの項目をmodel.ParsedDealに変換する。
// 説明文が無い場合は本文を使い、リンクが無くGUIDがURLの場合はGUIDをリンクとする。
func convertGofeedItems(items []*gofeed.Item) []model.ParsedDeal {
	out := make([]model.ParsedDeal, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		d := model.ParsedDeal{
			Title:   item.Title,
			Link:    item.Link,
			Summary: item.Description,
		}
		if d.Summary == "" {
			d.Summary = item.Content
		}
		if d.Link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			d.Link = item.GUID
		}

		if item.PublishedParsed != nil {
			t := *item.PublishedParsed
			d.PublishedAt = &t
		} else if item.UpdatedParsed != nil {
			t := *item.UpdatedParsed
			d.PublishedAt = &t
		}
		out = append(out, d)
	}
	return out
}
