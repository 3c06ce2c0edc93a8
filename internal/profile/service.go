package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// RawProfileKey は自由記述プロフィールを保存するキャッシュキーを返す。
func RawProfileKey(userID string) string {
	return "raw_profile:" + userID
}

// Service はプロフィールの保存・読み込みを提供する。
// 自由記述のRawProfileはキャッシュに、構造化プロフィールはリポジトリに保存する。
// 表示に使う自由記述はキャッシュの値を正とする。
type Service struct {
	repo  repository.ProfileRepository
	cache repository.CacheStore
	now   func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ProfileRepository, cache repository.CacheStore) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// WithClock は生年月日の計算に使う時計を差し替える。
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Save は自由記述プロフィールをキャッシュに、構造化プロフィールをリポジトリに保存する。
// どちらか一方の失敗はログに記録して処理を続ける。両方に失敗した場合のみエラーを返す。
func (s *Service) Save(ctx context.Context, userID string, raw model.RawProfile) error {
	var cacheErr, repoErr error

	data, err := json.Marshal(raw)
	if err != nil {
		cacheErr = fmt.Errorf("プロフィールのエンコードに失敗しました: %w", err)
	} else if err := s.cache.Put(ctx, RawProfileKey(userID), data); err != nil {
		cacheErr = err
	}
	if cacheErr != nil {
		slog.Warn("プロフィールのキャッシュ保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", cacheErr.Error()),
		)
	}

	structured := ToStructured(userID, raw, s.now())
	if _, err := s.repo.Upsert(ctx, userID, structured); err != nil {
		repoErr = err
		slog.Warn("構造化プロフィールの保存に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	if cacheErr != nil && repoErr != nil {
		return fmt.Errorf("プロフィールの保存に失敗しました: %w", errors.Join(cacheErr, repoErr))
	}
	return nil
}

// Load はユーザーのプロフィールを読み込む。
// 自由記述はキャッシュの値だけを返す。キャッシュが無い（または壊れている）場合は
// 構造化プロフィールがあっても raw は nil になる。年収と純資産は構造化プロフィールに
// 残らないため、復元した値で支払い判定やスコア計算をしてはならない。
// 表示用の復元は呼び出し側で ToRaw を使う。
// リポジトリの障害はログに記録し、キャッシュの値で処理を続ける。
// どちらにも無い場合は (nil, nil, nil) を返す（初期設定未完了）。
func (s *Service) Load(ctx context.Context, userID string) (*model.RawProfile, *model.StructuredProfile, error) {
	raw := s.loadCached(ctx, userID)

	structured, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		slog.Warn("構造化プロフィールの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		structured = nil
	}

	switch {
	case raw != nil && structured == nil:
		sp := ToStructured(userID, *raw, s.now())
		return raw, &sp, nil
	default:
		return raw, structured, nil
	}
}

// loadCached はキャッシュから自由記述プロフィールを取得する。
// 取得失敗・未保存・デコード不能はいずれも「無い」として扱う。
func (s *Service) loadCached(ctx context.Context, userID string) *model.RawProfile {
	data, ok, err := s.cache.Get(ctx, RawProfileKey(userID))
	if err != nil {
		slog.Warn("プロフィールキャッシュの取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if !ok {
		return nil
	}

	var raw model.RawProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("プロフィールキャッシュが壊れています",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &raw
}

// Delete はユーザーのプロフィールをキャッシュとリポジトリの両方から削除する。
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, RawProfileKey(userID)); err != nil {
		return fmt.Errorf("プロフィールキャッシュの削除に失敗しました: %w", err)
	}
	if err := s.repo.DeleteByUserID(ctx, userID); err != nil {
		return err
	}
	return nil
}
