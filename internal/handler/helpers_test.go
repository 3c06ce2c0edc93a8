package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/okane/internal/mailwatch"
	"github.com/hitoshi/okane/internal/middleware"
	"github.com/hitoshi/okane/internal/model"
	"github.com/hitoshi/okane/internal/onboarding"
	"github.com/hitoshi/okane/internal/payment"
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// jsonRequest はJSONボディ付きのリクエストを生成する。
func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

// decodeBody はレスポンスボディをdstにデコードする。
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v\nbody: %s", err, w.Body.String())
	}
}

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, name, email, password string) (*model.User, error)
	loginFn          func(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, name, email, password)
	}
	return &model.User{ID: "user-1", Name: name, Email: email}, nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return &model.Session{ID: "token-1", UserID: "user-1"}, &model.User{ID: "user-1", Email: email}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, model.NewUserNotFoundError()
}

// mockOnboardingService はOnboardingServiceInterfaceのモック実装。
type mockOnboardingService struct {
	startFn   func(userID string) onboarding.Snapshot
	currentFn func(userID string) (onboarding.Snapshot, error)
	submitFn  func(userID, answer string) (onboarding.Snapshot, bool, error)
}

func (m *mockOnboardingService) Start(userID string) onboarding.Snapshot {
	if m.startFn != nil {
		return m.startFn(userID)
	}
	return onboarding.Snapshot{State: onboarding.StateWelcome, Progress: 1, Total: onboarding.TotalSteps}
}

func (m *mockOnboardingService) Current(userID string) (onboarding.Snapshot, error) {
	if m.currentFn != nil {
		return m.currentFn(userID)
	}
	return onboarding.Snapshot{}, model.NewOnboardingNotStartedError()
}

func (m *mockOnboardingService) Submit(userID, answer string) (onboarding.Snapshot, bool, error) {
	if m.submitFn != nil {
		return m.submitFn(userID, answer)
	}
	return onboarding.Snapshot{}, false, model.NewOnboardingNotStartedError()
}

// mockProfileService はProfileServiceInterfaceのモック実装。
type mockProfileService struct {
	loadFn func(ctx context.Context, userID string) (*model.RawProfile, *model.StructuredProfile, error)
}

func (m *mockProfileService) Load(ctx context.Context, userID string) (*model.RawProfile, *model.StructuredProfile, error) {
	if m.loadFn != nil {
		return m.loadFn(ctx, userID)
	}
	return nil, nil, nil
}

// mockPaymentService はPaymentServiceInterfaceのモック実装。
type mockPaymentService struct {
	handleFn func(ctx context.Context, userID string, event model.PaymentEvent) (*payment.Result, error)
}

func (m *mockPaymentService) Handle(ctx context.Context, userID string, event model.PaymentEvent) (*payment.Result, error) {
	if m.handleFn != nil {
		return m.handleFn(ctx, userID, event)
	}
	return &payment.Result{Payment: event}, nil
}

// mockPaymentSimulator はPaymentSimulatorInterfaceのモック実装。
type mockPaymentSimulator struct {
	simulateFn         func(ctx context.Context, userID string) (*payment.Result, error)
	testNotificationFn func(ctx context.Context, userID string) (*payment.TestResult, error)
}

func (m *mockPaymentSimulator) Simulate(ctx context.Context, userID string) (*payment.Result, error) {
	if m.simulateFn != nil {
		return m.simulateFn(ctx, userID)
	}
	return &payment.Result{}, nil
}

func (m *mockPaymentSimulator) TestNotification(ctx context.Context, userID string) (*payment.TestResult, error) {
	if m.testNotificationFn != nil {
		return m.testNotificationFn(ctx, userID)
	}
	return &payment.TestResult{}, nil
}

// mockNotificationSettingsService はNotificationSettingsServiceInterfaceのモック実装。
type mockNotificationSettingsService struct {
	getFn    func(ctx context.Context, userID string) (*model.NotificationSetting, error)
	updateFn func(ctx context.Context, userID, permission, endpoint string) (*model.NotificationSetting, error)
}

func (m *mockNotificationSettingsService) Get(ctx context.Context, userID string) (*model.NotificationSetting, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID)
	}
	return &model.NotificationSetting{UserID: userID, Permission: model.PermissionDefault}, nil
}

func (m *mockNotificationSettingsService) Update(ctx context.Context, userID, permission, endpoint string) (*model.NotificationSetting, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, permission, endpoint)
	}
	return &model.NotificationSetting{UserID: userID, Permission: model.PermissionState(permission), Endpoint: endpoint}, nil
}

// mockMessageService はMessageServiceInterfaceのモック実装。
type mockMessageService struct {
	historyFn func(ctx context.Context, userID string, limit int) ([]*model.ConversationMessage, error)
	sendFn    func(ctx context.Context, userID, text string) (*model.ConversationMessage, *model.ConversationMessage, error)
	emotion   model.Emotion
}

func (m *mockMessageService) History(ctx context.Context, userID string, limit int) ([]*model.ConversationMessage, error) {
	if m.historyFn != nil {
		return m.historyFn(ctx, userID, limit)
	}
	return []*model.ConversationMessage{}, nil
}

func (m *mockMessageService) SendUserMessage(ctx context.Context, userID, text string) (*model.ConversationMessage, *model.ConversationMessage, error) {
	if m.sendFn != nil {
		return m.sendFn(ctx, userID, text)
	}
	return &model.ConversationMessage{ID: "m-1", Sender: model.SenderUser, Text: text}, nil, nil
}

func (m *mockMessageService) LatestEmotion(ctx context.Context, userID string) model.Emotion {
	if m.emotion == "" {
		return model.EmotionNormal
	}
	return m.emotion
}

// mockDealService はDealServiceInterfaceのモック実装。
type mockDealService struct {
	latestFn func(ctx context.Context, limit int) ([]*model.Deal, error)
}

func (m *mockDealService) Latest(ctx context.Context, limit int) ([]*model.Deal, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, limit)
	}
	return []*model.Deal{}, nil
}

// mockUserService はUserServiceInterfaceのモック実装。
type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// mockMailService はMailServiceInterfaceのモック実装。
type mockMailService struct {
	startFn  func(ctx context.Context, userID string) error
	stopFn   func(ctx context.Context, userID string) error
	statusFn func(ctx context.Context, userID string) (bool, error)
	latestFn func(ctx context.Context, userID string, limit int) ([]*model.MailMessage, error)
	ingestFn func(ctx context.Context, userID string, raw io.Reader) (*mailwatch.IngestResult, error)
	cfg      mailwatch.Config
}

func (m *mockMailService) Start(ctx context.Context, userID string) error {
	if m.startFn != nil {
		return m.startFn(ctx, userID)
	}
	return nil
}

func (m *mockMailService) Stop(ctx context.Context, userID string) error {
	if m.stopFn != nil {
		return m.stopFn(ctx, userID)
	}
	return nil
}

func (m *mockMailService) Status(ctx context.Context, userID string) (bool, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, userID)
	}
	return false, nil
}

func (m *mockMailService) Latest(ctx context.Context, userID string, limit int) ([]*model.MailMessage, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx, userID, limit)
	}
	return []*model.MailMessage{}, nil
}

func (m *mockMailService) Ingest(ctx context.Context, userID string, raw io.Reader) (*mailwatch.IngestResult, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, userID, raw)
	}
	return nil, model.NewMailMonitorStoppedError()
}

func (m *mockMailService) Config() mailwatch.Config {
	return m.cfg
}
