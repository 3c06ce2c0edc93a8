// Package schedule は遅延実行と現在時刻の取得を抽象化する。
// 初期設定の演出用ディレイや通知の自動クローズなど、時間経過で起きる処理は
// すべてScheduler経由で発行し、テストでは実時間を待たずに進められるようにする。
package schedule

import "time"

// Timer はスケジュール済みの処理を表す。
type Timer interface {
	// Stop は未実行の処理を取り消す。既に実行済み・取り消し済みの場合はfalseを返す。
	Stop() bool
}

// Scheduler は遅延実行と時計のインターフェース。
type Scheduler interface {
	// AfterFunc はdの経過後にfを別goroutineで実行する。
	AfterFunc(d time.Duration, f func()) Timer
	// Now は現在時刻を返す。
	Now() time.Time
}

// realScheduler はtime.AfterFuncによる本番用の実装。
type realScheduler struct{}

// New は実時間で動作するSchedulerを返す。
func New() Scheduler {
	return realScheduler{}
}

// AfterFunc はtime.AfterFuncに委譲する。
func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Now は現在時刻を返す。
func (realScheduler) Now() time.Time {
	return time.Now()
}
