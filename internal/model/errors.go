// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, bookmark, search, system
	Action   string // ユーザー向け対処方法
	Details  string // 詳細（空の場合はレスポンスに含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingParameter    = "MISSING_PARAMETER"
	ErrCodeInvalidState        = "INVALID_STATE"
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeUpstreamAuthFailure = "UPSTREAM_AUTH_FAILURE"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeAlreadyBookmarked   = "ALREADY_BOOKMARKED"
	ErrCodeStorageFailure      = "STORAGE_FAILURE"
	ErrCodeSearchFailed        = "SEARCH_FAILED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewMissingParameterError は必須パラメータ欠落エラーを生成する。
func NewMissingParameterError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingParameter,
		Message:  message,
		Category: "validation",
		Action:   "必須パラメータを指定してください。",
	}
}

// NewInvalidStateError はOAuthのstate不一致エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "Invalid state parameter",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewUnauthenticatedError は未認証エラーを生成する。
// 期限切れと改ざんは区別しない。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Unauthorized",
		Category: "auth",
		Action:   "再度サインインしてください。",
	}
}

// NewUpstreamAuthFailureError はIdPとのトークン交換失敗エラーを生成する。
func NewUpstreamAuthFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamAuthFailure,
		Message:  "Failed to fetch GitHub token",
		Category: "auth",
		Action:   "しばらく待ってから再度ログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewAlreadyBookmarkedError は登録済みの論文を再度ブックマークしようとした場合のエラーを生成する。
func NewAlreadyBookmarkedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyBookmarked,
		Message:  "Paper already bookmarked",
		Category: "bookmark",
		Action:   "ブックマーク一覧から該当の論文を確認してください。",
	}
}

// NewStorageFailureError はストレージ操作の失敗エラーを生成する。
// 詳細はログのみに記録し、クライアントには汎用メッセージを返す。
func NewStorageFailureError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailure,
		Message:  message,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewSearchFailedError は検索バックエンド呼び出しの失敗エラーを生成する。
func NewSearchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSearchFailed,
		Message:  "Search backend request failed",
		Category: "search",
		Action:   "検索条件を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は予期しないエラーを生成する。
// detailsはOAuthコールバックのようにクライアントへ原因を返す経路でのみ使用する。
func NewInternalError(details string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Details:  details,
	}
}

// レート制限・CSRFのエラーコード
const (
	ErrCodeRateLimited          = "RATE_LIMITED"
	ErrCodeCSRFValidationFailed = "CSRF_VALIDATION_FAILED"
)

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewCSRFValidationError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFValidationError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFValidationFailed,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
