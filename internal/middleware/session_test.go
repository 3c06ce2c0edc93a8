package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/okane/internal/model"
)

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// sessionStore はIDからセッションを引く固定のモック。
func sessionStore(sessions ...*model.Session) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			for _, s := range sessions {
				if s.ID == id {
					return s, nil
				}
			}
			return nil, nil
		},
	}
}

func TestSessionMiddleware_CookieSession_InjectsUserID(t *testing.T) {
	repo := sessionStore(&model.Session{ID: "valid-session-id", UserID: "user-123", ExpiresAt: time.Now().Add(time.Hour)})

	var gotUserID string
	handler := NewSessionMiddleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		if gotUserID, err = UserIDFromContext(r.Context()); err != nil {
			t.Errorf("UserIDFromContext() error = %v", err)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session-id"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUserID != "user-123" {
		t.Errorf("userID = %q, want %q", gotUserID, "user-123")
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	failing := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, context.DeadlineExceeded
		},
	}

	tests := []struct {
		name   string
		repo   SessionFinder
		cookie *http.Cookie
		auth   string
	}{
		{"Cookie無し", sessionStore(), nil, ""},
		{"空のCookie", sessionStore(), &http.Cookie{Name: "session_id", Value: ""}, ""},
		// 期限切れのセッションはリポジトリがnilを返す
		{"期限切れまたは不明なセッション", sessionStore(), &http.Cookie{Name: "session_id", Value: "expired"}, ""},
		{"リポジトリエラー", failing, &http.Cookie{Name: "session_id", Value: "some-session"}, ""},
		{"空のBearer", sessionStore(), nil, "Bearer "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(tt.repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID in context")
	}
	if _, err := UserIDFromContext(ContextWithUserID(context.Background(), "")); err == nil {
		t.Error("expected error for empty user ID")
	}

	userID, err := UserIDFromContext(ContextWithUserID(context.Background(), "user-456"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if userID != "user-456" {
		t.Errorf("userID = %q, want %q", userID, "user-456")
	}
}

func TestSessionMiddleware_BearerToken_InjectsUserAndSessionID(t *testing.T) {
	mw := NewSessionMiddleware(sessionStore(&model.Session{ID: "bearer-token", UserID: "user-bearer"}))

	var capturedUserID, capturedSessionID string
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedUserID, _ = UserIDFromContext(r.Context())
		capturedSessionID = SessionIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Bearer bearer-token")
	// Bearerヘッダーが優先される
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "cookie-token"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-bearer" || capturedSessionID != "bearer-token" {
		t.Errorf("user = %q, session = %q", capturedUserID, capturedSessionID)
	}
}

func TestSessionMiddleware_Unauthorized_ReturnsUnifiedError(t *testing.T) {
	mw := NewSessionMiddleware(&mockSessionRepository{})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req.Header.Set("Authorization", "Basic abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != "UNAUTHORIZED" || body.Category != "auth" {
		t.Errorf("body = %+v", body)
	}
}

func TestSessionTokenFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		cookie     string
		wantToken  string
		wantBearer bool
	}{
		{"Bearer", "Bearer abc", "", "abc", true},
		{"Cookie", "", "def", "def", false},
		{"Bearer優先", "Bearer abc", "def", "abc", true},
		{"Bearer以外のスキームはCookieにフォールバック", "Basic xyz", "def", "def", false},
		{"どちらも無い", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "session_id", Value: tt.cookie})
			}
			token, bearer := SessionTokenFromRequest(req)
			if token != tt.wantToken || bearer != tt.wantBearer {
				t.Errorf("got (%q, %v), want (%q, %v)", token, bearer, tt.wantToken, tt.wantBearer)
			}
		})
	}
}
