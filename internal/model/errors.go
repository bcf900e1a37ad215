// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"net/http"
)

// セッションとリソース呼び出しで使う定義済みエラー。
var (
	// ErrUnauthenticated はセッションが存在しないことを示す。
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrAuthExpired はCredentialが有効期限を過ぎていることを示す。リフレッシュで回復可能。
	ErrAuthExpired = errors.New("access token expired")
	// ErrAuthRefreshFailed はリフレッシュ交換に失敗したことを示す。再ログインが必要。
	ErrAuthRefreshFailed = errors.New("token refresh failed")
	// ErrDecodeFailed はアクセストークンのデコードに失敗したことを示す。ロールなしとして扱う。
	ErrDecodeFailed = errors.New("access token could not be decoded")
	// ErrInvalidFilter はQueryFilterの値が不正であることを示す。
	ErrInvalidFilter = errors.New("invalid query filter")
	// ErrLoginStateMismatch はOAuthコールバックのstateが開始時と一致しないことを示す。
	ErrLoginStateMismatch = errors.New("login state mismatch")
)

// RequestFailedError はリソースAPI呼び出しの失敗を表す唯一のエラー種別。
// ネットワーク失敗、非2xxレスポンス、JSONパース失敗はすべてこの型に集約される。
// Statusが0の場合はHTTPレスポンスを受け取れなかったことを示す。
type RequestFailedError struct {
	Status  int
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *RequestFailedError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("request failed: %s", e.Message)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *RequestFailedError) Unwrap() error {
	return e.Err
}

// NewRequestFailedError はRequestFailedErrorを生成する。
// messageが空の場合はステータスに基づく汎用メッセージを使用する。
func NewRequestFailedError(status int, message string, cause error) *RequestFailedError {
	if message == "" {
		message = FallbackMessage(status)
	}
	return &RequestFailedError{Status: status, Message: message, Err: cause}
}

// FallbackMessage はサーバーがメッセージを返さなかった場合の汎用メッセージを返す。
func FallbackMessage(status int) string {
	if status == 0 {
		return "the server could not be reached"
	}
	return fmt.Sprintf("HTTP error! status: %d", status)
}

// AsRequestFailed はerrがRequestFailedErrorを含む場合にそれを返す。
func AsRequestFailed(err error) (*RequestFailedError, bool) {
	var rf *RequestFailedError
	if errors.As(err, &rf) {
		return rf, true
	}
	return nil, false
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, inventory, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
	ErrCodeSessionExpired    = "SESSION_EXPIRED"
	ErrCodeForbidden         = "FORBIDDEN"
	ErrCodeInvalidFilter     = "INVALID_FILTER"
	ErrCodeInvalidPayload    = "INVALID_PAYLOAD"
	ErrCodeRequestFailed     = "REQUEST_FAILED"
	ErrCodeUpstreamFailed    = "UPSTREAM_FAILED"
	ErrCodeLoginStateInvalid = "LOGIN_STATE_INVALID"
)

// NewUnauthenticatedError は未ログインエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はリフレッシュ失敗によるセッション終了エラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewForbiddenError は必要なロールを持たない場合のエラーを生成する。
func NewForbiddenError(roles []string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作には次のいずれかのロールが必要です: %v", roles),
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewInvalidFilterError は無効な検索条件エラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効な検索条件です: %s", reason),
		Category: "validation",
		Action:   "ページ番号は0以上、ページサイズは1以上、最小価格は最大価格以下で指定してください。",
	}
}

// NewInvalidPayloadError はリクエストボディを解釈できない場合のエラーを生成する。
func NewInvalidPayloadError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  "リクエストボディを解析できませんでした。",
		Category: "validation",
		Action:   "JSON形式で送信してください。",
	}
}

// NewLoginStateInvalidError はOAuthのstate検証失敗エラーを生成する。
func NewLoginStateInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginStateInvalid,
		Message:  "ログイン要求を検証できませんでした。",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewRequestFailedAPIError はリソースAPIの失敗をUI向けエラーに変換する。
// サーバーが返したメッセージをそのまま表示用メッセージとして使う。
func NewRequestFailedAPIError(rf *RequestFailedError) *APIError {
	if rf.Status >= http.StatusInternalServerError || rf.Status == 0 {
		return &APIError{
			Code:     ErrCodeUpstreamFailed,
			Message:  rf.Message,
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
	return &APIError{
		Code:     ErrCodeRequestFailed,
		Message:  rf.Message,
		Category: "inventory",
		Action:   "入力内容を確認してください。",
	}
}
