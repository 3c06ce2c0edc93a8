package onboarding

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/schedule"
)

// completionTimeout は完了処理（保存・通知・ウェルカムメッセージ）全体のタイムアウト。
const completionTimeout = 30 * time.Second

// CompletionHandler は初期設定の完了時に呼ばれる処理。
type CompletionHandler interface {
	Complete(ctx context.Context, userID string, p model.RawProfile) error
}

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	CompleteDwell time.Duration
	CallbackDwell time.Duration
	// Sanitize は回答を保存する前に適用する。nilの場合はそのまま保存する。
	// 回答は入力どおりに保存するため、エンティティを元の文字に戻す関数を渡してはならない。
	Sanitize func(string) string
}

// Manager はユーザーごとに1つの初期設定セッションを保持する。
type Manager struct {
	sched     schedule.Scheduler
	completer CompletionHandler
	cfg       ManagerConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager はManagerを生成する。待ち時間が0以下の場合は既定値を使う。
func NewManager(sched schedule.Scheduler, completer CompletionHandler, cfg ManagerConfig) *Manager {
	if cfg.CompleteDwell <= 0 {
		cfg.CompleteDwell = DefaultCompleteDwell
	}
	if cfg.CallbackDwell <= 0 {
		cfg.CallbackDwell = DefaultCallbackDwell
	}
	return &Manager{
		sched:     sched,
		completer: completer,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
	}
}

// Start は新しいセッションを開始する。進行中のセッションがあれば破棄して置き換える。
func (m *Manager) Start(userID string) Snapshot {
	session := NewSession(uuid.New().String(), m.sched, m.cfg.CompleteDwell, m.cfg.CallbackDwell, nil)
	session.onComplete = func(p model.RawProfile) {
		m.complete(userID, session.ID(), p)
	}

	m.mu.Lock()
	prev := m.sessions[userID]
	m.sessions[userID] = session
	m.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	slog.Info("初期設定を開始しました",
		slog.String("user_id", userID),
		slog.String("session_id", session.ID()),
	)
	return session.Snapshot()
}

// Current は進行中のセッションの状態を返す。セッションが無い場合はエラーを返す。
func (m *Manager) Current(userID string) (Snapshot, error) {
	session := m.get(userID)
	if session == nil {
		return Snapshot{}, model.NewOnboardingNotStartedError()
	}
	return session.Snapshot(), nil
}

// Submit は回答をセッションに適用する。
// 空白のみの回答や入力を受け付けない状態での回答はacceptedがfalseになり、状態は変わらない。
func (m *Manager) Submit(userID, answer string) (snap Snapshot, accepted bool, err error) {
	session := m.get(userID)
	if session == nil {
		return Snapshot{}, false, model.NewOnboardingNotStartedError()
	}

	if m.cfg.Sanitize != nil {
		answer = m.cfg.Sanitize(answer)
	}
	snap, accepted = session.Submit(answer)
	return snap, accepted, nil
}

// Discard はユーザーのセッションを破棄する。
func (m *Manager) Discard(userID string) {
	m.mu.Lock()
	session := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if session != nil {
		session.Cancel()
	}
}

// Shutdown は全セッションを破棄し、未実行の待ち時間を取り消す。
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
}

func (m *Manager) get(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[userID]
}

// complete はセッションの完了コールバック。置き換え済みのセッションからの呼び出しは無視する。
func (m *Manager) complete(userID, sessionID string, p model.RawProfile) {
	current := m.get(userID)
	if current == nil || current.ID() != sessionID {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()

	if err := m.completer.Complete(ctx, userID, p); err != nil {
		slog.Error("初期設定の完了処理に失敗しました",
			slog.String("user_id", userID),
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return
	}

	slog.Info("初期設定が完了しました",
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
	)
}
