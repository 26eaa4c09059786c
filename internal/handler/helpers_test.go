package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// --- テストヘルパー ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func testManager() *session.Manager {
	opts := session.DefaultCookieOptions()
	opts.Secure = false
	return session.NewManager(session.NewRecordBackend(session.NewMemoryRepository()), opts, nil, quietLogger())
}

func testSession() model.Session {
	return model.Session{
		SubjectID:       "user-123",
		DisplayName:     "Ada Lovelace",
		Email:           "ada@example.com",
		AvatarRef:       "/uploads/ada.png",
		CredentialToken: "tok-123",
	}
}

// withStore はリクエストにセッションStoreを注入する。loggedInがtrueならセッションを作成しておく。
func withStore(t *testing.T, w http.ResponseWriter, r *http.Request, loggedIn bool) (*http.Request, session.Store) {
	t.Helper()
	store := testManager().ForRequest(w, r)
	if loggedIn {
		if err := store.Create(context.Background(), testSession()); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	return r.WithContext(session.NewContext(r.Context(), store)), store
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// multipartBody はテキスト項目と任意のファイルからmultipartボディを生成する。
func multipartBody(t *testing.T, fields map[string]string, fileField, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField failed: %v", err)
		}
	}
	if fileField != "" {
		part, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return &buf, mw.FormDataContentType()
}
