// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, profile, contacts, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// ErrorKind はワークフローエラーの種別。
type ErrorKind string

const (
	// KindAuth はログイン・登録の失敗を表す。
	KindAuth ErrorKind = "auth"
	// KindProfile はプロフィール更新の失敗を表す。
	KindProfile ErrorKind = "profile"
	// KindFetch は連絡先一覧取得の失敗を表す。呼び出し側で空リストに縮退する。
	KindFetch ErrorKind = "fetch"
)

// ErrorReason はワークフローエラーの原因。
type ErrorReason string

const (
	ReasonNotAuthenticated ErrorReason = "not_authenticated"
	ReasonRejected         ErrorReason = "rejected"
	ReasonMalformed        ErrorReason = "malformed"
	ReasonNetwork          ErrorReason = "network"
	ReasonInvalidInput     ErrorReason = "invalid_input"
	ReasonImageUpload      ErrorReason = "image_upload"
)

// ユーザー向けの汎用メッセージ。
const (
	MsgInvalidCredentials  = "Invalid credentials"
	MsgRegistrationFailed  = "Registration failed"
	MsgUpdateFailed        = "Failed to update profile"
	MsgImageUpdateFailed   = "Failed to update profile image"
	MsgFetchContactsFailed = "Failed to fetch contacts"
	MsgNotAuthenticated    = "Not authenticated"
	MsgUnexpected          = "An unexpected error occurred"
)

// WorkflowError はワークフロー境界で返される型付きエラー。
// Messageはそのままユーザーに表示してよい文言、Errは内部ログ用の原因。
type WorkflowError struct {
	Kind    ErrorKind
	Reason  ErrorReason
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Reason, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewAuthError は認証ワークフローのエラーを生成する。
func NewAuthError(reason ErrorReason, message string, err error) *WorkflowError {
	return &WorkflowError{Kind: KindAuth, Reason: reason, Message: message, Err: err}
}

// NewProfileError はプロフィールワークフローのエラーを生成する。
func NewProfileError(reason ErrorReason, message string, err error) *WorkflowError {
	return &WorkflowError{Kind: KindProfile, Reason: reason, Message: message, Err: err}
}

// NewFetchError は連絡先取得のエラーを生成する。
func NewFetchError(reason ErrorReason, message string, err error) *WorkflowError {
	return &WorkflowError{Kind: KindFetch, Reason: reason, Message: message, Err: err}
}

// AsWorkflowError はerrからWorkflowErrorを取り出す。
func AsWorkflowError(err error) (*WorkflowError, bool) {
	var wfErr *WorkflowError
	if errors.As(err, &wfErr) {
		return wfErr, true
	}
	return nil, false
}

// IsKind はerrが指定種別・原因のWorkflowErrorかどうかを判定する。
// reasonが空の場合は種別のみで判定する。
func IsKind(err error, kind ErrorKind, reason ErrorReason) bool {
	wfErr, ok := AsWorkflowError(err)
	if !ok || wfErr.Kind != kind {
		return false
	}
	return reason == "" || wfErr.Reason == reason
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeRegisterFailed  = "REGISTER_FAILED"
	ErrCodeProfileFailed   = "PROFILE_UPDATE_FAILED"
	ErrCodeInvalidTime     = "INVALID_TIME"
	ErrCodeUpstreamFailure = "UPSTREAM_FAILURE"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  MsgNotAuthenticated,
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewPayloadTooLargeError はアップロードサイズ超過エラーを生成する。
func NewPayloadTooLargeError(limit int64) *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  fmt.Sprintf("アップロードできるファイルサイズの上限（%dバイト）を超えています。", limit),
		Category: "validation",
		Action:   "より小さい画像を選択してください。",
	}
}

// ToAPIError はWorkflowErrorを統一エラーフォーマットに変換する。
// ユーザーに返すメッセージはWorkflowError.Messageのみで、内部原因は含めない。
func ToAPIError(e *WorkflowError) *APIError {
	switch e.Kind {
	case KindAuth:
		if e.Reason == ReasonImageUpload {
			return &APIError{
				Code:     ErrCodeRegisterFailed,
				Message:  e.Message,
				Category: "auth",
				Action:   "アカウントは作成されました。プロフィール画面から画像を再度アップロードしてください。",
			}
		}
		return &APIError{
			Code:     ErrCodeAuthFailed,
			Message:  e.Message,
			Category: "auth",
			Action:   "入力内容を確認して再度お試しください。",
		}
	case KindProfile:
		switch e.Reason {
		case ReasonNotAuthenticated:
			return NewUnauthorizedError()
		case ReasonInvalidInput:
			return &APIError{
				Code:     ErrCodeInvalidTime,
				Message:  e.Message,
				Category: "validation",
				Action:   "時刻は HH:MM（24時間表記）で入力してください。",
			}
		}
		return &APIError{
			Code:     ErrCodeProfileFailed,
			Message:  e.Message,
			Category: "profile",
			Action:   "しばらく待ってから再度お試しください。",
		}
	default:
		return &APIError{
			Code:     ErrCodeUpstreamFailure,
			Message:  e.Message,
			Category: "contacts",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
}
