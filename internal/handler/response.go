package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/contactdesk/internal/middleware"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// userResponse はログイン中ユーザーのAPIレスポンス。トークンは含めない。
type userResponse struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage,omitempty"`
}

func toUserResponse(s *model.Session) userResponse {
	return userResponse{
		ID:           s.SubjectID,
		FullName:     s.DisplayName,
		Email:        s.Email,
		ProfileImage: s.AvatarRef,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// WorkflowError以外は内部エラーとしてログに記録し、汎用メッセージを返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if wfErr, ok := model.AsWorkflowError(err); ok {
		middleware.WriteWorkflowError(w, wfErr)
		return
	}

	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// storeFromRequest はセッションミドルウェアが格納したStoreを取り出す。
// 見つからない場合はルーター構成の誤りなので500を返す。
func storeFromRequest(w http.ResponseWriter, r *http.Request) (session.Store, bool) {
	store, ok := session.FromContext(r.Context())
	if !ok {
		slog.Error("session store is not configured for route", slog.String("path", r.URL.Path))
		middleware.WriteInternalServerError(w)
		return nil, false
	}
	return store, true
}

// writeFormError はフォーム解析のエラーを413または400として書き込む。
func writeFormError(w http.ResponseWriter, err error, limit int64) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(limit))
		return
	}
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("フォームを解析できません"))
}
