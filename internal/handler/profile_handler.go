package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/contactdesk/internal/middleware"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/profile"
	"github.com/hitoshi/contactdesk/internal/session"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	GetProfile(ctx context.Context, store session.Store) (*profile.View, error)
	UpdateProfile(ctx context.Context, store session.Store, form model.ProfileForm) (*model.ProfileSnapshot, error)
	UpdateProfileImage(ctx context.Context, store session.Store, upload *model.Upload) (*model.ProfileSnapshot, error)
}

// ProfileHandler はプロフィール編集のHTTPハンドラー。
type ProfileHandler struct {
	service       ProfileServiceInterface
	maxUploadSize int64
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface, maxUploadSize int64) *ProfileHandler {
	return &ProfileHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// GetProfile は編集画面の初期値を返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetProfile(r.Context(), store)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// UpdateProfile はプロフィール項目を更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	var form model.ProfileForm
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("JSONを解析できません"))
			return
		}
	} else {
		if err := parseForm(r); err != nil {
			writeFormError(w, err, h.maxUploadSize)
			return
		}
		form = model.ProfileForm{
			FullName:       r.PostFormValue("fullName"),
			Email:          r.PostFormValue("email"),
			PhoneNumber:    r.PostFormValue("phoneNumber"),
			WhatsappNumber: r.PostFormValue("whatsappNumber"),
			AvailableFrom:  r.PostFormValue("availableFrom"),
			AvailableTo:    r.PostFormValue("availableTo"),
		}
	}

	snapshot, err := h.service.UpdateProfile(r.Context(), store, form)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// UpdateProfileImage はプロフィール画像を更新する。
// PUT /api/profile/image （multipartフォーム、項目名 profileImage）
func (h *ProfileHandler) UpdateProfileImage(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeFormError(w, err, h.maxUploadSize)
		return
	}

	upload, file, err := formUpload(r, "profileImage", h.maxUploadSize)
	if errors.Is(err, errUploadTooLarge) {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge, model.NewPayloadTooLargeError(h.maxUploadSize))
		return
	}
	if err != nil {
		writeFormError(w, err, h.maxUploadSize)
		return
	}
	if file != nil {
		defer file.Close()
	}

	snapshot, err := h.service.UpdateProfileImage(r.Context(), store, upload)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}
