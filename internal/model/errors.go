// Package model はドメインモデルを定義する。
package model

import "fmt"

// ErrorKind はエラーの種別を表す。
// ハンドラーはKindからHTTPステータスコードを決定するため、
// メッセージの文字列マッチングに依存しない。
type ErrorKind string

const (
	// KindNotFound は対象リソースが存在しないエラー。
	KindNotFound ErrorKind = "not_found"
	// KindValidation は入力値の欠落・不正によるエラー。
	KindValidation ErrorKind = "validation"
	// KindConflict は一意性制約違反など状態の衝突によるエラー。
	KindConflict ErrorKind = "conflict"
	// KindUnauthorized は認証・認可の失敗によるエラー。
	KindUnauthorized ErrorKind = "unauthorized"
	// KindUpstream は永続化層・ブロブストアなど外部コラボレーターのエラー。
	KindUpstream ErrorKind = "upstream"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Kind     ErrorKind // エラー種別（HTTPステータス決定に使用）
	Code     string    // エラーコード
	Message  string    // エラーメッセージ
	Category string    // カテゴリ: auth, validation, blog, newsletter, system
	Action   string    // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeAdminRequired     = "ADMIN_REQUIRED"
	ErrCodeInvalidRequest    = "INVALID_REQUEST"
	ErrCodeMissingFields     = "MISSING_FIELDS"
	ErrCodeInvalidCategory   = "INVALID_CATEGORY"
	ErrCodeInvalidFrequency  = "INVALID_FREQUENCY"
	ErrCodeInvalidEmail      = "INVALID_EMAIL"
	ErrCodeCommentTooShort   = "COMMENT_TOO_SHORT"
	ErrCodePostNotFound      = "POST_NOT_FOUND"
	ErrCodeCommentNotFound   = "COMMENT_NOT_FOUND"
	ErrCodeDuplicateTitle    = "DUPLICATE_TITLE"
	ErrCodeAlreadySubscribed = "ALREADY_SUBSCRIBED"
	ErrCodeNotSubscribed     = "NOT_SUBSCRIBED"
	ErrCodeAlreadyInactive   = "ALREADY_UNSUBSCRIBED"
	ErrCodeImageUploadFailed = "IMAGE_UPLOAD_FAILED"
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAdminRequiredError は管理者権限が必要な操作に対するエラーを生成する。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Kind:     KindUnauthorized,
		Code:     ErrCodeAdminRequired,
		Message:  "この操作には管理者権限が必要です。",
		Category: "auth",
		Action:   "管理者アカウントでログインしてください。",
	}
}

// NewMissingFieldsError は必須フィールド欠落エラーを生成する。
func NewMissingFieldsError(fields ...string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeMissingFields,
		Message:  fmt.Sprintf("必須フィールドが不足しています: %v", fields),
		Category: "validation",
		Action:   "すべての必須フィールドを入力してください。",
	}
}

// NewInvalidCategoryError はカテゴリが許可リスト外の場合のエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "カテゴリには tech、startup、vacancy、finance、news のいずれかを指定してください。",
	}
}

// NewInvalidFrequencyError は配信頻度が許可リスト外の場合のエラーを生成する。
func NewInvalidFrequencyError(frequency string) *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidFrequency,
		Message:  fmt.Sprintf("無効な配信頻度です: %s", frequency),
		Category: "validation",
		Action:   "配信頻度には daily、weekly、monthly のいずれかを指定してください。",
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeInvalidEmail,
		Message:  "有効なメールアドレスを入力してください。",
		Category: "validation",
		Action:   "メールアドレスの形式を確認してください。",
	}
}

// NewCommentTooShortError はコメント本文が短すぎる場合のエラーを生成する。
func NewCommentTooShortError() *APIError {
	return &APIError{
		Kind:     KindValidation,
		Code:     ErrCodeCommentTooShort,
		Message:  fmt.Sprintf("コメントは%d文字以上で入力してください。", MinCommentLength),
		Category: "validation",
		Action:   "コメント本文を確認してください。",
	}
}

// NewPostNotFoundError は記事未検出エラーを生成する。
func NewPostNotFoundError(slug string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", slug),
		Category: "blog",
		Action:   "記事のスラッグを確認してください。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "blog",
		Action:   "コメントIDを確認してください。",
	}
}

// NewDuplicateTitleError はスラッグの一意性制約違反を表すエラーを生成する。
// 同一タイトルから導出されたスラッグが既に存在する場合に返される。
func NewDuplicateTitleError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeDuplicateTitle,
		Message:  "このタイトルの記事は既に存在します。",
		Category: "blog",
		Action:   "別のタイトルを指定してください。",
	}
}

// NewAlreadySubscribedError は購読済みメールアドレスの再登録エラーを生成する。
func NewAlreadySubscribedError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeAlreadySubscribed,
		Message:  "このメールアドレスは既に購読されています。",
		Category: "newsletter",
		Action:   "購読解除する場合は配信メールのリンクから手続きしてください。",
	}
}

// NewNotSubscribedError は未登録メールアドレスの購読解除エラーを生成する。
func NewNotSubscribedError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeNotSubscribed,
		Message:  "このメールアドレスは購読リストに登録されていません。",
		Category: "newsletter",
		Action:   "メールアドレスを確認してください。",
	}
}

// NewAlreadyInactiveError は解除済みメールアドレスの再解除エラーを生成する。
func NewAlreadyInactiveError() *APIError {
	return &APIError{
		Kind:     KindConflict,
		Code:     ErrCodeAlreadyInactive,
		Message:  "このメールアドレスは既に購読解除されています。",
		Category: "newsletter",
		Action:   "再購読する場合は購読フォームから登録してください。",
	}
}

// NewImageUploadFailedError は画像アップロード失敗エラーを生成する。
// ブロブストアの失敗はバリデーションエラーと区別して報告する。
func NewImageUploadFailedError() *APIError {
	return &APIError{
		Kind:     KindUpstream,
		Code:     ErrCodeImageUploadFailed,
		Message:  "画像のアップロードに失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Kind:     KindNotFound,
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
