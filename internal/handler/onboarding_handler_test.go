package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/onboarding"
)

func TestOnboardingHandler_Start(t *testing.T) {
	var gotUser string
	svc := &mockOnboardingService{
		startFn: func(userID string) onboarding.Snapshot {
			gotUser = userID
			return onboarding.Snapshot{
				SessionID: "s-1",
				State:     onboarding.StateWelcome,
				Prompt:    onboarding.PromptFor(onboarding.StateWelcome, model.RawProfile{}),
				Progress:  1,
				Total:     onboarding.TotalSteps,
			}
		},
	}
	h := NewOnboardingHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/onboarding", nil), "user-1")
	w := httptest.NewRecorder()
	h.Start(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if gotUser != "user-1" {
		t.Errorf("userID = %q, want user-1", gotUser)
	}

	var snap onboarding.Snapshot
	decodeBody(t, w, &snap)
	if snap.State != onboarding.StateWelcome || snap.Progress != 1 || snap.Total != 6 {
		t.Errorf("snapshot = %+v", snap)
	}
	if !snap.Prompt.ShowInput || snap.Prompt.Emotion != model.EmotionSmile {
		t.Errorf("prompt = %+v", snap.Prompt)
	}
}

func TestOnboardingHandler_Current_NotStarted(t *testing.T) {
	h := NewOnboardingHandler(&mockOnboardingService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/onboarding", nil), "user-1")
	w := httptest.NewRecorder()
	h.Current(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
	if got := parseAPIErrorResponse(t, w).Code; got != model.ErrCodeOnboardingNotStarted {
		t.Errorf("code = %q, want %q", got, model.ErrCodeOnboardingNotStarted)
	}
}

func TestOnboardingHandler_Answer(t *testing.T) {
	tests := []struct {
		name         string
		answer       string
		accepted     bool
		wantState    onboarding.State
		wantAccepted bool
	}{
		{"名前を受け付ける", "花子", true, onboarding.StateName, true},
		{"空白のみは無視", "   ", false, onboarding.StateWelcome, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAnswer string
			svc := &mockOnboardingService{
				submitFn: func(userID, answer string) (onboarding.Snapshot, bool, error) {
					gotAnswer = answer
					return onboarding.Snapshot{State: tt.wantState}, tt.accepted, nil
				},
			}
			h := NewOnboardingHandler(svc)

			req := withUserID(jsonRequest(t, http.MethodPost, "/api/onboarding/answers", answerRequest{Answer: tt.answer}), "user-1")
			w := httptest.NewRecorder()
			h.Answer(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if gotAnswer != tt.answer {
				t.Errorf("answer = %q, want %q", gotAnswer, tt.answer)
			}
			var resp answerResponse
			decodeBody(t, w, &resp)
			if resp.Accepted != tt.wantAccepted || resp.State != tt.wantState {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestOnboardingHandler_Answer_InvalidJSON(t *testing.T) {
	h := NewOnboardingHandler(&mockOnboardingService{})

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/onboarding/answers", strings.NewReader("not json")), "user-1")
	w := httptest.NewRecorder()
	h.Answer(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestOnboardingHandler_NoUserID_ReturnsUnauthorized(t *testing.T) {
	h := NewOnboardingHandler(&mockOnboardingService{})

	handlers := map[string]http.HandlerFunc{
		"Start":   h.Start,
		"Current": h.Current,
		"Answer":  h.Answer,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/onboarding", nil)
			w := httptest.NewRecorder()
			fn(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}
