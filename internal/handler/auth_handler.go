// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/hitoshi/contactdesk/internal/middleware"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// multipartMemory はmultipartフォームをメモリに保持する上限。超えた分は一時ファイルに置かれる。
const multipartMemory = 1 << 20

// registrationFields はRegistrationFormの固定項目。これ以外のテキスト項目はExtraとして転送する。
var registrationFields = map[string]bool{
	"fullName":       true,
	"email":          true,
	"phoneNumber":    true,
	"whatsappNumber": true,
	"password":       true,
	"profileImage":   true,
	"csrf_token":     true,
}

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, store session.Store, email, password string) error
	Register(ctx context.Context, form model.RegistrationForm, image *model.Upload) error
	Logout(ctx context.Context, store session.Store) error
	CurrentUser(ctx context.Context, store session.Store) (*model.Session, bool)
}

// LoginRecorder はログイン結果を記録する。metrics.MetricsCollector が満たす。
type LoginRecorder interface {
	RecordLogin(success bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string // ログアウト後のリダイレクト先
	MaxUploadSize int64  // 登録時のプロフィール画像の上限（バイト）
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	config   AuthHandlerConfig
	recorder LoginRecorder
}

// NewAuthHandler はAuthHandlerを生成する。recorderはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig, recorder LoginRecorder) *AuthHandler {
	if config.BaseURL == "" {
		config.BaseURL = "/"
	}
	return &AuthHandler{
		service:  service,
		config:   config,
		recorder: recorder,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login は資格情報を検証してセッションを発行する。
// POST /auth/login （JSONまたはフォーム）
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONを解析できません"))
			return
		}
	} else {
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("email と password は必須です"))
		return
	}

	err := h.service.Login(r.Context(), store, req.Email, req.Password)
	if h.recorder != nil {
		h.recorder.RecordLogin(err == nil)
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	sess, ok := h.service.CurrentUser(r.Context(), store)
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(sess))
}

// Register はアカウントを作成する。自動ログインはしない。
// POST /auth/register （multipartフォーム、画像は profileImage）
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		writeFormError(w, err, h.config.MaxUploadSize)
		return
	}

	form := model.RegistrationForm{
		FullName:       strings.TrimSpace(r.PostFormValue("fullName")),
		Email:          strings.TrimSpace(r.PostFormValue("email")),
		PhoneNumber:    strings.TrimSpace(r.PostFormValue("phoneNumber")),
		WhatsappNumber: strings.TrimSpace(r.PostFormValue("whatsappNumber")),
		Password:       r.PostFormValue("password"),
		Extra:          map[string]string{},
	}
	for key, values := range r.PostForm {
		if !registrationFields[key] && len(values) > 0 {
			form.Extra[key] = values[0]
		}
	}

	if form.Email == "" || form.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("email と password は必須です"))
		return
	}

	var image *model.Upload
	if r.MultipartForm != nil {
		upload, file, err := formUpload(r, "profileImage", h.config.MaxUploadSize)
		if errors.Is(err, errUploadTooLarge) {
			middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.config.MaxUploadSize))
			return
		}
		if err != nil {
			writeFormError(w, err, h.config.MaxUploadSize)
			return
		}
		if file != nil {
			defer file.Close()
		}
		image = upload
	}

	if err := h.service.Register(r.Context(), form, image); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "Registration successful"})
}

// Logout はセッションを破棄してトップページへリダイレクトする。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.Logout(r.Context(), store); err != nil {
		// 失敗してもCookieは破棄済みのためリダイレクトする
		slog.Error("ログアウトに失敗しました", slog.String("error", err.Error()))
	}

	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	sess, ok := h.service.CurrentUser(r.Context(), store)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(sess))
}

// isJSON はリクエストボディがJSONかどうかを判定する。
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

// parseForm はmultipartまたはURLエンコードのフォームを解析する。
func parseForm(r *http.Request) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemory)
	}
	return r.ParseForm()
}
