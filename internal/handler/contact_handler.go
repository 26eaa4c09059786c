package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// ContactServiceInterface は連絡先ハンドラーが必要とするサービスインターフェース。
type ContactServiceInterface interface {
	// ListNow は現在時刻で連絡可否を評価したカード一覧を返す。失敗時は空リスト。
	ListNow(ctx context.Context, store session.Store) []model.ContactCard
}

// ContactHandler は連絡先一覧のHTTPハンドラー。
type ContactHandler struct {
	service ContactServiceInterface
}

// NewContactHandler はContactHandlerを生成する。
func NewContactHandler(service ContactServiceInterface) *ContactHandler {
	return &ContactHandler{service: service}
}

// ListContacts は連絡先カードの一覧を返す。
// GET /api/contacts
func (h *ContactHandler) ListContacts(w http.ResponseWriter, r *http.Request) {
	store, ok := storeFromRequest(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, h.service.ListNow(r.Context(), store))
}
