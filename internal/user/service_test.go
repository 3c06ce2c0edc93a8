package user

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hitoshi/okane/internal/model"
)

// --- モック ---

// callLog は削除の呼び出し順を記録する。
type callLog struct {
	calls []string
}

func (l *callLog) add(name string) { l.calls = append(l.calls, name) }

type mockUserRepo struct {
	log          *callLog
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return &model.User{ID: id}, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error { return nil }
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	m.log.add("user")
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

type mockSessionRepo struct {
	log *callLog
	err error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error { return nil }
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error { return nil }
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	m.log.add("sessions")
	return m.err
}

type mockUserDataDeleter struct {
	log  *callLog
	name string
	err  error
}

func (m *mockUserDataDeleter) DeleteByUserID(ctx context.Context, userID string) error {
	m.log.add(m.name)
	return m.err
}

type mockDeleter struct {
	log  *callLog
	name string
	err  error
}

func (m *mockDeleter) Delete(ctx context.Context, userID string) error {
	m.log.add(m.name)
	return m.err
}

type mockDiscarder struct {
	log *callLog
}

func (m *mockDiscarder) Discard(userID string) { m.log.add("onboarding") }

type testDeps struct {
	log           *callLog
	users         *mockUserRepo
	sessions      *mockSessionRepo
	messages      *mockUserDataDeleter
	notifications *mockUserDataDeleter
	profiles      *mockDeleter
	permissions   *mockDeleter
}

func newTestService() (*Service, *testDeps) {
	log := &callLog{}
	d := &testDeps{
		log:           log,
		users:         &mockUserRepo{log: log},
		sessions:      &mockSessionRepo{log: log},
		messages:      &mockUserDataDeleter{log: log, name: "messages"},
		notifications: &mockUserDataDeleter{log: log, name: "notifications"},
		profiles:      &mockDeleter{log: log, name: "profile"},
		permissions:   &mockDeleter{log: log, name: "permission_flag"},
	}
	svc := NewService(d.users, d.sessions, Deps{
		Messages:      d.messages,
		Profiles:      d.profiles,
		Permissions:   d.permissions,
		Notifications: d.notifications,
		Onboarding:    &mockDiscarder{log: log},
	})
	return svc, d
}

// --- テスト ---

func TestWithdraw_DeletesAllUserDataInOrder(t *testing.T) {
	svc, d := newTestService()

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}

	want := []string{"onboarding", "messages", "permission_flag", "notifications", "profile", "sessions", "user"}
	if !reflect.DeepEqual(d.log.calls, want) {
		t.Errorf("削除順序 = %v, want %v", d.log.calls, want)
	}
}

func TestWithdraw_UserNotFound(t *testing.T) {
	svc, d := newTestService()
	d.users.findByIDFn = func(ctx context.Context, id string) (*model.User, error) {
		return nil, nil
	}

	err := svc.Withdraw(context.Background(), "ghost")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeUserNotFound {
		t.Fatalf("error = %v, want USER_NOT_FOUND", err)
	}
	if len(d.log.calls) != 0 {
		t.Errorf("存在しないユーザーでは何も削除しない: %v", d.log.calls)
	}
}

func TestWithdraw_StopsOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		breakDeps func(d *testDeps)
		wantLast  string
	}{
		{"会話ログ削除失敗", func(d *testDeps) { d.messages.err = errors.New("db error") }, "messages"},
		{"プロフィール削除失敗", func(d *testDeps) { d.profiles.err = errors.New("db error") }, "profile"},
		{"セッション削除失敗", func(d *testDeps) { d.sessions.err = errors.New("db error") }, "sessions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newTestService()
			tt.breakDeps(d)

			if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
				t.Fatal("expected error")
			}
			last := d.log.calls[len(d.log.calls)-1]
			if last != tt.wantLast {
				t.Errorf("最後の呼び出し = %q, want %q (calls=%v)", last, tt.wantLast, d.log.calls)
			}
		})
	}
}

func TestWithdraw_NilDepsAreSkipped(t *testing.T) {
	log := &callLog{}
	svc := NewService(&mockUserRepo{log: log}, nil, Deps{})

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw() error = %v", err)
	}
	if !reflect.DeepEqual(log.calls, []string{"user"}) {
		t.Errorf("calls = %v", log.calls)
	}
}
