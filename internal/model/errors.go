// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, onboarding, payment, notification, mail, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeEmailTaken           = "EMAIL_TAKEN"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeOnboardingNotStarted = "ONBOARDING_NOT_STARTED"
	ErrCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrCodeInvalidPayment       = "INVALID_PAYMENT"
	ErrCodeEmptyMessage         = "EMPTY_MESSAGE"
	ErrCodeInvalidPermission    = "INVALID_PERMISSION"
	ErrCodeInvalidEndpoint      = "INVALID_ENDPOINT"
	ErrCodeInvalidRegistration  = "INVALID_REGISTRATION"
	ErrCodeMailMonitorStopped   = "MAIL_MONITOR_STOPPED"
	ErrCodeInvalidMail          = "INVALID_MAIL"
)

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して、もう一度ログインしてください。",
	}
}

// NewEmailTakenError はメールアドレス重複エラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewInvalidRegistrationError は登録内容の不備エラーを生成する。
func NewInvalidRegistrationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRegistration,
		Message:  fmt.Sprintf("登録内容に不備があります: %s", reason),
		Category: "validation",
		Action:   "名前・メールアドレス・パスワード（8文字以上）を入力してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewOnboardingNotStartedError は初期設定が開始されていない場合のエラーを生成する。
func NewOnboardingNotStartedError() *APIError {
	return &APIError{
		Code:     ErrCodeOnboardingNotStarted,
		Message:  "初期設定が開始されていません。",
		Category: "onboarding",
		Action:   "初期設定を開始してから回答を送信してください。",
	}
}

// NewProfileNotFoundError は初期設定未完了でプロフィールが無い場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "プロフィールが登録されていません。",
		Category: "onboarding",
		Action:   "初期設定を完了してください。",
	}
}

// NewInvalidPaymentError は支払い情報が不正な場合のエラーを生成する。
func NewInvalidPaymentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayment,
		Message:  fmt.Sprintf("支払い情報が不正です: %s", reason),
		Category: "validation",
		Action:   "金額（0以上の整数）と店舗名を指定してください。",
	}
}

// NewEmptyMessageError は空メッセージ送信エラーを生成する。
func NewEmptyMessageError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyMessage,
		Message:  "メッセージが空です。",
		Category: "validation",
		Action:   "メッセージを入力してから送信してください。",
	}
}

// NewInvalidPermissionError は通知許可の値が不正な場合のエラーを生成する。
func NewInvalidPermissionError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPermission,
		Message:  fmt.Sprintf("無効な通知許可の値です: %s", value),
		Category: "validation",
		Action:   "permissionには default、granted、denied のいずれかを指定してください。",
	}
}

// NewInvalidEndpointError は通知配信先URLが不正な場合のエラーを生成する。
func NewInvalidEndpointError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEndpoint,
		Message:  fmt.Sprintf("通知の配信先URLが不正です: %s", reason),
		Category: "notification",
		Action:   "公開されているhttpsのURLを指定してください。",
	}
}

// NewMailMonitorStoppedError はメール監視が停止中に受信した場合のエラーを生成する。
func NewMailMonitorStoppedError() *APIError {
	return &APIError{
		Code:     ErrCodeMailMonitorStopped,
		Message:  "メール監視が開始されていません。",
		Category: "mail",
		Action:   "メール監視を開始してから、もう一度お試しください。",
	}
}

// NewInvalidMailError はメールを読み取れない場合のエラーを生成する。
func NewInvalidMailError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMail,
		Message:  fmt.Sprintf("メールを読み取れませんでした: %s", reason),
		Category: "validation",
		Action:   "RFC 5322形式のメールをそのまま送信してください。",
	}
}
