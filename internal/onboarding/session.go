package onboarding

import (
	"sync"
	"time"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/schedule"
)

// 家族構成の回答後の演出用の待ち時間の既定値。
const (
	DefaultCompleteDwell = 2000 * time.Millisecond
	DefaultCallbackDwell = 1500 * time.Millisecond
)

// Snapshot はセッションのある時点の状態。
type Snapshot struct {
	SessionID string           `json:"sessionId"`
	State     State            `json:"state"`
	Profile   model.RawProfile `json:"profile"`
	Prompt    Prompt           `json:"prompt"`
	Progress  int              `json:"progress"`
	Total     int              `json:"total"`
	// Finished は完了コールバックが呼び出し済みかを表す。
	Finished bool `json:"finished"`
}

// Session は1ユーザー分の初期設定フロー。
// 家族構成の回答を受け付けると、completeDwell後にcompleteへ進み、
// さらにcallbackDwell後にonCompleteを1度だけ呼び出す。
type Session struct {
	id            string
	sched         schedule.Scheduler
	completeDwell time.Duration
	callbackDwell time.Duration
	onComplete    func(model.RawProfile)

	mu        sync.Mutex
	state     State
	profile   model.RawProfile
	timer     schedule.Timer
	finished  bool
	cancelled bool
}

// NewSession はwelcome状態のSessionを生成する。
func NewSession(id string, sched schedule.Scheduler, completeDwell, callbackDwell time.Duration, onComplete func(model.RawProfile)) *Session {
	return &Session{
		id:            id,
		sched:         sched,
		completeDwell: completeDwell,
		callbackDwell: callbackDwell,
		onComplete:    onComplete,
		state:         StateWelcome,
	}
}

// ID はセッションIDを返す。
func (s *Session) ID() string {
	return s.id
}

// Snapshot は現在の状態を返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: s.id,
		State:     s.state,
		Profile:   s.profile,
		Prompt:    PromptFor(s.state, s.profile),
		Progress:  Progress(s.state),
		Total:     TotalSteps,
		Finished:  s.finished,
	}
}

// Submit は回答を1件適用する。拒否された場合はokがfalseで状態は変わらない。
func (s *Session) Submit(input string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled {
		return s.snapshotLocked(), false
	}

	next, updated, ok := Reduce(s.state, s.profile, input)
	if !ok {
		return s.snapshotLocked(), false
	}
	s.state = next
	s.profile = updated

	if next == StateFamily {
		s.timer = s.sched.AfterFunc(s.completeDwell, s.enterComplete)
	}
	return s.snapshotLocked(), true
}

// enterComplete は1回目の待ち時間の後に呼ばれ、completeへ進めて2回目の待ち時間を発行する。
func (s *Session) enterComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelled || s.state != StateFamily {
		return
	}
	s.state = StateComplete
	s.timer = s.sched.AfterFunc(s.callbackDwell, s.fireComplete)
}

// fireComplete は2回目の待ち時間の後に完了コールバックを1度だけ呼び出す。
// コールバックはロックを解放してから呼ぶ。
func (s *Session) fireComplete() {
	s.mu.Lock()
	if s.cancelled || s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.timer = nil
	profile := s.profile
	s.mu.Unlock()

	if s.onComplete != nil {
		s.onComplete(profile)
	}
}

// Cancel はセッションを破棄し、未実行の待ち時間を取り消す。
// 取り消し後は回答を受け付けず、完了コールバックも呼ばれない。
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelled = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
