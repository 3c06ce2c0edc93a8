package dealfetch

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

type mockSourceFetcher struct {
	mu       sync.Mutex
	fetched  []string
	inflight int32
	maxSeen  int32
	delay    time.Duration
	err      error
}

func (m *mockSourceFetcher) Fetch(ctx context.Context, src *model.DealSource) error {
	cur := atomic.AddInt32(&m.inflight, 1)
	defer atomic.AddInt32(&m.inflight, -1)
	for {
		prev := atomic.LoadInt32(&m.maxSeen)
		if cur <= prev || atomic.CompareAndSwapInt32(&m.maxSeen, prev, cur) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	m.fetched = append(m.fetched, src.ID)
	m.mu.Unlock()
	return m.err
}

func dueSources(n int) []*model.DealSource {
	out := make([]*model.DealSource, n)
	for i := range out {
		out[i] = &model.DealSource{ID: string(rune('a' + i)), FeedURL: "https://sale.example.com/rss"}
	}
	return out
}

func TestNewScheduler_DefaultConcurrency(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockSourceRepo{}, &mockSourceFetcher{}, newTestLogger(&buf), 0)
	if s.maxConcurrency != 4 {
		t.Errorf("maxConcurrency = %d, want 4", s.maxConcurrency)
	}
}

func TestScheduler_RunOnce_FetchesAllDueSources(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockSourceFetcher{delay: 10 * time.Millisecond}
	s := NewScheduler(&mockSourceRepo{due: dueSources(8)}, fetcher, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.fetched) != 8 {
		t.Errorf("fetched = %d, want 8", len(fetcher.fetched))
	}
	if max := atomic.LoadInt32(&fetcher.maxSeen); max > 2 {
		t.Errorf("同時実行数は上限を超えない: %d", max)
	}
}

func TestScheduler_RunOnce_NoSources(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockSourceFetcher{}
	s := NewScheduler(&mockSourceRepo{}, fetcher, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fetcher.fetched) != 0 {
		t.Error("対象が無い場合はフェッチしない")
	}
}

func TestScheduler_RunOnce_ListError(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockSourceRepo{listErr: errors.New("db down")}, &mockSourceFetcher{}, newTestLogger(&buf), 2)
	if err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestScheduler_RunOnce_FetchErrorDoesNotStopCycle(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockSourceFetcher{err: errors.New("timeout")}
	s := NewScheduler(&mockSourceRepo{due: dueSources(3)}, fetcher, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("個別のフェッチ失敗はサイクルのエラーにしない: %v", err)
	}
	if len(fetcher.fetched) != 3 {
		t.Errorf("fetched = %d, want 3", len(fetcher.fetched))
	}
	if !bytes.Contains(buf.Bytes(), []byte("セール情報フィードのフェッチに失敗しました")) {
		t.Error("失敗はログに記録する")
	}
}

func TestScheduler_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &mockSourceFetcher{}
	s := NewScheduler(&mockSourceRepo{due: dueSources(1)}, fetcher, newTestLogger(&buf), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		fetcher.mu.Lock()
		n := len(fetcher.fetched)
		fetcher.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("起動直後に1回実行するべき")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に停止するべき")
	}
}
