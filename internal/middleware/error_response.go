package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/contactdesk/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorを統一フォーマットで書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	writeJSONBody(w, statusCode, ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

func writeJSONBody(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  model.MsgUnexpected,
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteForbidden はCSRF検証失敗などの403レスポンスを書き込む。
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, &model.APIError{
		Code:     "FORBIDDEN",
		Message:  message,
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	})
}

// WriteWorkflowError はワークフローエラーを統一フォーマットに変換して書き込む。
// ステータスコードは種別と原因から決める。
func WriteWorkflowError(w http.ResponseWriter, wfErr *model.WorkflowError) {
	WriteErrorResponse(w, StatusForWorkflowError(wfErr), model.ToAPIError(wfErr))
}

// StatusForWorkflowError はワークフローエラーに対応するHTTPステータスコードを返す。
func StatusForWorkflowError(wfErr *model.WorkflowError) int {
	switch wfErr.Reason {
	case model.ReasonNotAuthenticated:
		return http.StatusUnauthorized
	case model.ReasonInvalidInput:
		return http.StatusBadRequest
	case model.ReasonNetwork, model.ReasonMalformed:
		return http.StatusBadGateway
	}

	switch wfErr.Kind {
	case model.KindAuth:
		if wfErr.Reason == model.ReasonImageUpload {
			return http.StatusBadGateway
		}
		return http.StatusUnauthorized
	case model.KindProfile:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}
