package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/contactdesk/internal/directory"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// --- モック定義 ---

type mockDirectoryClient struct {
	loginFn    func(ctx context.Context, email, password string) (*directory.LoginResult, error)
	registerFn func(ctx context.Context, fields map[string]string) (*directory.RegisterResult, error)
	uploadFn   func(ctx context.Context, token, userID string, upload *model.Upload) (*model.ProfileSnapshot, error)

	uploadCalls int
}

func (m *mockDirectoryClient) Login(ctx context.Context, email, password string) (*directory.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, errors.New("not implemented")
}

func (m *mockDirectoryClient) Register(ctx context.Context, fields map[string]string) (*directory.RegisterResult, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, fields)
	}
	return &directory.RegisterResult{}, nil
}

func (m *mockDirectoryClient) UploadProfileImage(ctx context.Context, token, userID string, upload *model.Upload) (*model.ProfileSnapshot, error) {
	m.uploadCalls++
	if m.uploadFn != nil {
		return m.uploadFn(ctx, token, userID, upload)
	}
	return &model.ProfileSnapshot{ID: userID}, nil
}

// --- ヘルパー ---

func newTestStore() session.Store {
	m := session.NewManager(
		session.NewRecordBackend(session.NewMemoryRepository()),
		session.DefaultCookieOptions(), nil, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)),
	)
	return m.ForRequest(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
}

func newTestService(client DirectoryClient, cfg ServiceConfig) (*Service, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewService(client, cfg, slog.New(slog.NewJSONHandler(&buf, nil))), &buf
}

func testImage() *model.Upload {
	return &model.Upload{Filename: "me.png", ContentType: "image/png", Size: 4, Content: strings.NewReader("\x89PNG")}
}

func assertWorkflowError(t *testing.T, err error, kind model.ErrorKind, reason model.ErrorReason, msg string) {
	t.Helper()
	wfErr, ok := model.AsWorkflowError(err)
	if !ok {
		t.Fatalf("expected WorkflowError, got %v", err)
	}
	if wfErr.Kind != kind || wfErr.Reason != reason {
		t.Errorf("got %s/%s, want %s/%s", wfErr.Kind, wfErr.Reason, kind, reason)
	}
	if wfErr.Message != msg {
		t.Errorf("Message = %q, want %q", wfErr.Message, msg)
	}
}

// --- Login ---

func TestLogin_Success_CreatesSession(t *testing.T) {
	client := &mockDirectoryClient{
		loginFn: func(_ context.Context, email, password string) (*directory.LoginResult, error) {
			if email != "ada@example.com" || password != "secret" {
				t.Errorf("unexpected credentials %q / %q", email, password)
			}
			return &directory.LoginResult{
				Token: "T",
				User:  directory.UserRecord{ID: "u1", FullName: "Ada", Email: "ada@example.com", ProfileImage: "/img/a.png"},
			}, nil
		},
	}
	svc, _ := newTestService(client, ServiceConfig{})
	store := newTestStore()

	if err := svc.Login(context.Background(), store, "ada@example.com", "secret"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	got, ok := svc.CurrentUser(context.Background(), store)
	if !ok {
		t.Fatal("expected session after login")
	}
	want := model.Session{SubjectID: "u1", DisplayName: "Ada", Email: "ada@example.com", AvatarRef: "/img/a.png", CredentialToken: "T"}
	if *got != want {
		t.Errorf("session = %+v, want %+v", *got, want)
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantReason model.ErrorReason
		wantMsg    string
	}{
		{
			name:       "APIのmessageをそのまま返す",
			err:        &directory.StatusError{StatusCode: 401, Message: "Wrong password"},
			wantReason: model.ReasonRejected,
			wantMsg:    "Wrong password",
		},
		{
			name:       "messageなしは既定文言",
			err:        &directory.StatusError{StatusCode: 401},
			wantReason: model.ReasonRejected,
			wantMsg:    model.MsgInvalidCredentials,
		},
		{
			name:       "token欠落は不正なレスポンス",
			err:        fmt.Errorf("login response without token: %w", directory.ErrMalformedResponse),
			wantReason: model.ReasonMalformed,
			wantMsg:    model.MsgUnexpected,
		},
		{
			name:       "通信エラー",
			err:        errors.New("dial tcp: connection refused"),
			wantReason: model.ReasonNetwork,
			wantMsg:    model.MsgUnexpected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockDirectoryClient{
				loginFn: func(context.Context, string, string) (*directory.LoginResult, error) {
					return nil, tt.err
				},
			}
			svc, _ := newTestService(client, ServiceConfig{})
			store := newTestStore()

			err := svc.Login(context.Background(), store, "a@example.com", "pw")
			assertWorkflowError(t, err, model.KindAuth, tt.wantReason, tt.wantMsg)

			if _, ok := store.Read(context.Background()); ok {
				t.Error("session must not be created on failure")
			}
		})
	}
}

// --- Register ---

func TestRegister_WithoutImage_DoesNotUpload(t *testing.T) {
	var sent map[string]string
	client := &mockDirectoryClient{
		registerFn: func(_ context.Context, fields map[string]string) (*directory.RegisterResult, error) {
			sent = fields
			return &directory.RegisterResult{Token: "T", User: directory.UserRecord{ID: "u9"}}, nil
		},
	}
	svc, _ := newTestService(client, ServiceConfig{})

	form := model.RegistrationForm{
		FullName: "Grace", Email: "g@example.com", Password: "pw",
		Extra: map[string]string{"department": "Navy"},
	}
	if err := svc.Register(context.Background(), form, nil); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if client.uploadCalls != 0 {
		t.Errorf("upload calls = %d, want 0", client.uploadCalls)
	}
	if sent["fullName"] != "Grace" || sent["password"] != "pw" || sent["department"] != "Navy" {
		t.Errorf("fields = %v", sent)
	}
}

func TestRegister_WithImage_UploadsWithIssuedToken(t *testing.T) {
	client := &mockDirectoryClient{
		registerFn: func(context.Context, map[string]string) (*directory.RegisterResult, error) {
			return &directory.RegisterResult{Token: "T", User: directory.UserRecord{ID: "u9"}}, nil
		},
		uploadFn: func(_ context.Context, token, userID string, upload *model.Upload) (*model.ProfileSnapshot, error) {
			if token != "T" || userID != "u9" {
				t.Errorf("upload with token=%q user=%q", token, userID)
			}
			if upload.Filename != "me.png" {
				t.Errorf("filename = %q", upload.Filename)
			}
			return &model.ProfileSnapshot{ID: userID, ProfileImage: "/img/9.png"}, nil
		},
	}
	svc, _ := newTestService(client, ServiceConfig{})

	if err := svc.Register(context.Background(), model.RegistrationForm{Email: "g@example.com"}, testImage()); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if client.uploadCalls != 1 {
		t.Errorf("upload calls = %d, want 1", client.uploadCalls)
	}
}

func TestRegister_EmptyImage_IsSkipped(t *testing.T) {
	client := &mockDirectoryClient{}
	svc, _ := newTestService(client, ServiceConfig{})

	empty := &model.Upload{Filename: "empty.png", Size: 0, Content: strings.NewReader("")}
	if err := svc.Register(context.Background(), model.RegistrationForm{}, empty); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if client.uploadCalls != 0 {
		t.Errorf("upload calls = %d, want 0", client.uploadCalls)
	}
}

func TestRegister_ImageFailure_BestEffortByDefault(t *testing.T) {
	client := &mockDirectoryClient{
		registerFn: func(context.Context, map[string]string) (*directory.RegisterResult, error) {
			return &directory.RegisterResult{Token: "T", User: directory.UserRecord{ID: "u9"}}, nil
		},
		uploadFn: func(context.Context, string, string, *model.Upload) (*model.ProfileSnapshot, error) {
			return nil, &directory.StatusError{StatusCode: 500}
		},
	}
	svc, logs := newTestService(client, ServiceConfig{})

	if err := svc.Register(context.Background(), model.RegistrationForm{}, testImage()); err != nil {
		t.Fatalf("image failure should not surface by default: %v", err)
	}
	if !strings.Contains(logs.String(), "登録時のプロフィール画像アップロードに失敗しました") {
		t.Errorf("expected image failure to be logged, got %s", logs.String())
	}
}

func TestRegister_ImageFailure_StrictMode(t *testing.T) {
	client := &mockDirectoryClient{
		registerFn: func(context.Context, map[string]string) (*directory.RegisterResult, error) {
			return &directory.RegisterResult{Token: "T", User: directory.UserRecord{ID: "u9"}}, nil
		},
		uploadFn: func(context.Context, string, string, *model.Upload) (*model.ProfileSnapshot, error) {
			return nil, &directory.StatusError{StatusCode: 413}
		},
	}
	svc, _ := newTestService(client, ServiceConfig{StrictImageUpload: true})

	err := svc.Register(context.Background(), model.RegistrationForm{}, testImage())
	assertWorkflowError(t, err, model.KindAuth, model.ReasonImageUpload, model.MsgImageUpdateFailed)
}

func TestRegister_StrictMode_MissingTokenIsReported(t *testing.T) {
	client := &mockDirectoryClient{
		registerFn: func(context.Context, map[string]string) (*directory.RegisterResult, error) {
			return &directory.RegisterResult{}, nil
		},
	}
	svc, _ := newTestService(client, ServiceConfig{StrictImageUpload: true})

	err := svc.Register(context.Background(), model.RegistrationForm{}, testImage())
	assertWorkflowError(t, err, model.KindAuth, model.ReasonImageUpload, model.MsgImageUpdateFailed)
	if client.uploadCalls != 0 {
		t.Error("upload must not be attempted without token")
	}
}

func TestRegister_Failure(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"APIのmessage", &directory.StatusError{StatusCode: 409, Message: "Email already in use"}, "Email already in use"},
		{"既定文言", &directory.StatusError{StatusCode: 400}, model.MsgRegistrationFailed},
		{"通信エラー", errors.New("timeout"), model.MsgUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockDirectoryClient{
				registerFn: func(context.Context, map[string]string) (*directory.RegisterResult, error) {
					return nil, tt.err
				},
			}
			svc, _ := newTestService(client, ServiceConfig{})

			err := svc.Register(context.Background(), model.RegistrationForm{}, testImage())
			wfErr, ok := model.AsWorkflowError(err)
			if !ok || wfErr.Kind != model.KindAuth {
				t.Fatalf("expected auth error, got %v", err)
			}
			if wfErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", wfErr.Message, tt.wantMsg)
			}
			if client.uploadCalls != 0 {
				t.Error("upload must not be attempted after registration failure")
			}
		})
	}
}

// --- Logout / CurrentUser ---

func TestLogout_DestroysSession(t *testing.T) {
	svc, _ := newTestService(&mockDirectoryClient{}, ServiceConfig{})
	store := newTestStore()
	ctx := context.Background()

	if err := store.Create(ctx, model.Session{SubjectID: "u1", CredentialToken: "T"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.Logout(ctx, store); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if _, ok := svc.CurrentUser(ctx, store); ok {
		t.Error("session should be absent after logout")
	}

	// 2回目も成功する
	if err := svc.Logout(ctx, store); err != nil {
		t.Errorf("second Logout returned error: %v", err)
	}
}

func TestCurrentUser_Anonymous(t *testing.T) {
	svc, _ := newTestService(&mockDirectoryClient{}, ServiceConfig{})

	if got, ok := svc.CurrentUser(context.Background(), newTestStore()); ok || got != nil {
		t.Errorf("CurrentUser() = %v, %v; want nil, false", got, ok)
	}
}
