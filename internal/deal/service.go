// Package deal は近隣スーパーのセール情報（お得情報）の管理を提供する。
//
// セール情報はRSS/Atomフィードから取り込み、(ソース, リンク)の組で同一性を判定して
// 上書き保存する。要約はHTMLを取り除いたプレーンテキストで保持する。
package deal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// DefaultListLimit はお得情報一覧の既定の件数。
const DefaultListLimit = 20

// maxListLimit はお得情報一覧の最大件数。
const maxListLimit = 100

// maxTitleRunes はタイトルの最大文字数（deals.titleの列長）。
const maxTitleRunes = 1000

// URLValidator はフィードURLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Service はセール情報フィードの登録とお得情報の保存・一覧を提供する。
type Service struct {
	sources   repository.DealSourceRepository
	deals     repository.DealRepository
	validator URLValidator
	summarize func(string) string
	resolver  FeedResolver
	now       func() time.Time
}

// FeedResolver は店舗ページのURLからフィードURLを求める。
type FeedResolver interface {
	ResolveFeedURL(ctx context.Context, pageURL string) (string, error)
}

// NewService はServiceの新しいインスタンスを生成する。
// summarizeはフィードの説明文（HTML）を要約テキストにする関数。
func NewService(
	sources repository.DealSourceRepository,
	deals repository.DealRepository,
	validator URLValidator,
	summarize func(string) string,
) *Service {
	return &Service{
		sources:   sources,
		deals:     deals,
		validator: validator,
		summarize: summarize,
		now:       time.Now,
	}
}

// WithResolver は登録前にURLをフィードURLへ解決するresolverを設定する。
// 未設定の場合は設定値をそのままフィードURLとして扱う。
func (s *Service) WithResolver(r FeedResolver) *Service {
	s.resolver = r
	return s
}

// EnsureSources は設定されたフィードURLをソースとして登録する。
// 登録済みのURLはそのままにし、SSRF検証やフィード検出に失敗したURLはログに記録して読み飛ばす。
// 登録済みまたは新規登録したソース数を返す。
func (s *Service) EnsureSources(ctx context.Context, feedURLs []string) (int, error) {
	count := 0
	for _, raw := range feedURLs {
		feedURL := strings.TrimSpace(raw)
		if feedURL == "" {
			continue
		}
		if err := s.validator.ValidateURL(feedURL); err != nil {
			slog.Warn("セール情報フィードのURLが不正なため登録しません",
				slog.String("feed_url", feedURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		if s.resolver != nil {
			resolved, err := s.resolver.ResolveFeedURL(ctx, feedURL)
			if err != nil {
				slog.Warn("セール情報フィードを検出できないため登録しません",
					slog.String("page_url", feedURL),
					slog.String("error", err.Error()),
				)
				continue
			}
			feedURL = resolved
		}

		existing, err := s.sources.FindByFeedURL(ctx, feedURL)
		if err != nil {
			return count, fmt.Errorf("セール情報フィードの検索に失敗しました: %w", err)
		}
		if existing != nil {
			count++
			continue
		}

		now := s.now()
		src := &model.DealSource{
			ID:          uuid.New().String(),
			FeedURL:     feedURL,
			FetchStatus: model.FetchStatusActive,
			NextFetchAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.sources.Create(ctx, src); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				count++
				continue
			}
			return count, fmt.Errorf("セール情報フィードの登録に失敗しました: %w", err)
		}
		slog.Info("セール情報フィードを登録しました",
			slog.String("source_id", src.ID),
			slog.String("feed_url", feedURL),
		)
		count++
	}
	return count, nil
}

// UpsertDeals はフィードから取得したお得情報を保存する。
// 同じソースで同じリンクのお得情報は上書き更新する。リンクの無いものは保存しない。
// 戻り値は挿入数と更新数。
func (s *Service) UpsertDeals(ctx context.Context, sourceID string, parsed []model.ParsedDeal) (inserted, updated int, err error) {
	now := s.now()

	for _, p := range parsed {
		link := strings.TrimSpace(p.Link)
		if link == "" {
			continue
		}
		title := truncateRunes(strings.TrimSpace(p.Title), maxTitleRunes)
		summary := p.Summary
		if s.summarize != nil {
			summary = s.summarize(p.Summary)
		}

		existing, err := s.deals.FindBySourceAndLink(ctx, sourceID, link)
		if err != nil {
			return inserted, updated, fmt.Errorf("お得情報の検索に失敗しました: %w", err)
		}

		if existing != nil {
			existing.Title = title
			existing.Summary = summary
			if p.PublishedAt != nil {
				existing.PublishedAt = p.PublishedAt
			}
			existing.UpdatedAt = now
			if err := s.deals.Update(ctx, existing); err != nil {
				return inserted, updated, fmt.Errorf("お得情報の更新に失敗しました: %w", err)
			}
			updated++
			continue
		}

		d := &model.Deal{
			ID:          uuid.New().String(),
			SourceID:    sourceID,
			Title:       title,
			Link:        link,
			Summary:     summary,
			PublishedAt: p.PublishedAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.deals.Create(ctx, d); err != nil {
			return inserted, updated, fmt.Errorf("お得情報の保存に失敗しました: %w", err)
		}
		inserted++
	}
	return inserted, updated, nil
}

// Latest は新しい順にお得情報を返す。limitが0以下の場合は既定値を使う。
func (s *Service) Latest(ctx context.Context, limit int) ([]*model.Deal, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	deals, err := s.deals.ListLatest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("お得情報の取得に失敗しました: %w", err)
	}
	if deals == nil {
		deals = []*model.Deal{}
	}
	return deals, nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
