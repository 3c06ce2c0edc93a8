package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type mockSessionPruner struct {
	called  bool
	deleted int64
	err     error
}

func (m *mockSessionPruner) DeleteExpired(ctx context.Context) (int64, error) {
	m.called = true
	return m.deleted, m.err
}

type mockMessagePruner struct {
	called  bool
	before  time.Time
	deleted int64
	err     error
}

func (m *mockMessagePruner) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	m.called = true
	m.before = before
	return m.deleted, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestJob(buf *bytes.Buffer, sessions *mockSessionPruner, messages *mockMessagePruner) *CleanupJob {
	job := NewCleanupJob(sessions, messages, newTestLogger(buf))
	job.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return job
}

// findLogValue はJSONログの各行からkeyの値を探す。
func findLogValue(t *testing.T, buf *bytes.Buffer, key string) (interface{}, bool) {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewCleanupJob(&mockSessionPruner{}, &mockMessagePruner{}, newTestLogger(&buf))

	if job.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d, want 90", job.RetentionDays)
	}
}

func TestCleanupJob_Run_DeletesSessionsAndMessages(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionPruner{deleted: 3}
	messages := &mockMessagePruner{deleted: 42}
	job := newTestJob(&buf, sessions, messages)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !sessions.called || !messages.called {
		t.Fatal("セッションと会話ログの両方を削除するべき")
	}

	want := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	if !messages.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", messages.before, want)
	}

	if v, ok := findLogValue(t, &buf, "deleted_count"); !ok || v != float64(42) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if v, ok := findLogValue(t, &buf, "deleted_sessions"); !ok || v != float64(3) {
		t.Errorf("ログに deleted_sessions=3 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogValue(t, &buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_CustomRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	messages := &mockMessagePruner{}
	job := newTestJob(&buf, &mockSessionPruner{}, messages)
	job.RetentionDays = 30

	_ = job.Run(context.Background())

	want := time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC)
	if !messages.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", messages.before, want)
	}
	if v, ok := findLogValue(t, &buf, "retention_days"); !ok || v != float64(30) {
		t.Errorf("ログに retention_days=30 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_SessionFailureStopsRun(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionPruner{err: sql.ErrConnDone}
	messages := &mockMessagePruner{}
	job := newTestJob(&buf, sessions, messages)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if messages.called {
		t.Error("セッション削除に失敗した場合は会話ログの削除を行わない")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_MessageFailure(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&buf, &mockSessionPruner{}, &mockMessagePruner{err: sql.ErrConnDone})

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("会話ログ削除の失敗はエラーを返すべき")
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&buf, &mockSessionPruner{}, &mockMessagePruner{})

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if v, ok := findLogValue(t, &buf, "deleted_count"); !ok || v != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&buf, &mockSessionPruner{}, &mockMessagePruner{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後に停止するべき")
	}
}
