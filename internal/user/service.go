// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/repository"
)

// UserDataDeleter はユーザー単位のデータ一括削除インターフェース。
type UserDataDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) error
}

// ProfileDeleter はプロフィール（キャッシュと構造化データ）の削除インターフェース。
type ProfileDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// PermissionFlagDeleter はキャッシュ済み通知許可フラグの削除インターフェース。
type PermissionFlagDeleter interface {
	Delete(ctx context.Context, userID string) error
}

// OnboardingDiscarder は進行中の初期設定セッションを破棄するインターフェース。
type OnboardingDiscarder interface {
	Discard(userID string)
}

// Deps は退会処理で削除する各データの担当。nilの項目はスキップする。
type Deps struct {
	Messages      UserDataDeleter
	Profiles      ProfileDeleter
	Permissions   PermissionFlagDeleter
	Notifications UserDataDeleter
	Onboarding    OnboardingDiscarder
}

// Service はユーザー管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	deps        Deps
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	deps Deps,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		deps:        deps,
	}
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: 初期設定セッション → 会話ログ → 通知許可フラグ → 通知設定 → プロフィール → sessions → user
// セール情報は全ユーザー共有のため残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.deps.Onboarding != nil {
		s.deps.Onboarding.Discard(userID)
	}

	if s.deps.Messages != nil {
		if err := s.deps.Messages.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("会話ログの削除に失敗しました: %w", err)
		}
	}

	if s.deps.Permissions != nil {
		if err := s.deps.Permissions.Delete(ctx, userID); err != nil {
			return fmt.Errorf("通知許可フラグの削除に失敗しました: %w", err)
		}
	}

	if s.deps.Notifications != nil {
		if err := s.deps.Notifications.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("通知設定の削除に失敗しました: %w", err)
		}
	}

	if s.deps.Profiles != nil {
		if err := s.deps.Profiles.Delete(ctx, userID); err != nil {
			return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
		}
	}

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
