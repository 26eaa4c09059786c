// Package directory はリモートのディレクトリAPI（認証・ユーザー・連絡先）のクライアントを提供する。
// レスポンスは {data: ...} / {message: ...} のエンベロープとして境界で検証する。
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/contactdesk/internal/model"
)

const (
	// maxResponseSize はAPIレスポンスボディの読み取り上限。
	maxResponseSize = 1 << 20
	// profileImageField はプロフィール画像のマルチパートフィールド名。
	profileImageField = "profileImage"
	userAgent         = "Contactdesk/1.0"
)

// ErrMalformedResponse は成功ステータスだが期待した形式でないレスポンスを表す。
var ErrMalformedResponse = errors.New("malformed directory API response")

// StatusError はAPIが非2xxステータスを返したことを表す。
// MessageにはAPIが返したmessageが入る（無い場合は空）。
type StatusError struct {
	StatusCode int
	Message    string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("directory API returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("directory API returned status %d", e.StatusCode)
}

// APIMessage はerrがStatusErrorでmessageを持つ場合にその文言を返す。
func APIMessage(err error) (string, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message, true
	}
	return "", false
}

// IsStatusError はerrがAPIの非2xx応答に起因するかを返す。
func IsStatusError(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr)
}

// Recorder は上流API呼び出しの計測インターフェース。
// metrics.Collectorが実装する。
type Recorder interface {
	RecordUpstreamCall(endpoint string, statusCode int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpstreamCall(string, int, time.Duration) {}

// UserRecord はログインレスポンスに含まれるユーザー情報。
type UserRecord struct {
	ID           string `json:"id"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// LoginResult はログイン成功時のレスポンス。
type LoginResult struct {
	Token string     `json:"token"`
	User  UserRecord `json:"user"`
}

// RegisterResult はユーザー登録成功時のレスポンス。
type RegisterResult struct {
	Token string     `json:"token"`
	User  UserRecord `json:"user"`
}

// envelope はディレクトリAPIの共通レスポンス形式。
type envelope[T any] struct {
	Data    *T     `json:"data"`
	Message string `json:"message"`
}

// Client はディレクトリAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	recorder   Recorder
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾スラッシュなし（例: "http://localhost:5000/api"）。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recorder:   nopRecorder{},
	}
}

// WithRecorder は計測用のRecorderを設定したClientを返す。
func (c *Client) WithRecorder(r Recorder) *Client {
	if r != nil {
		c.recorder = r
	}
	return c
}

// Login は認証情報をPOST /auth/loginに送信する。
// レスポンスにtokenまたはuser.idが含まれない場合はErrMalformedResponseを返す。
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("ログインリクエストのエンコードに失敗しました: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	result, err := doJSON[LoginResult](c, req, "auth_login")
	if err != nil {
		return nil, err
	}
	if result.Token == "" || result.User.ID == "" {
		return nil, fmt.Errorf("login response without token or user id: %w", ErrMalformedResponse)
	}
	return result, nil
}

// Register は画像以外のサインアップ項目をJSONでPOST /auth/registerに送信する。
func (c *Client) Register(ctx context.Context, fields map[string]string) (*RegisterResult, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("登録リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/register", "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	// tokenとuser.idは画像アップロード時にのみ必要なため、ここでは検証しない
	return doJSON[RegisterResult](c, req, "auth_register")
}

// UpdateUser はプロフィール項目をPUT /users/{id}に送信し、正規化済みのユーザー情報を返す。
func (c *Client) UpdateUser(ctx context.Context, token, userID string, form model.ProfileForm) (*model.ProfileSnapshot, error) {
	body, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("プロフィールのエンコードに失敗しました: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, "/users/"+url.PathEscape(userID), token, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return doJSON[model.ProfileSnapshot](c, req, "users_update")
}

// UploadProfileImage は画像をマルチパート（フィールド名 profileImage）で
// PUT /users/{id}/profile-image に送信する。
func (c *Client) UploadProfileImage(ctx context.Context, token, userID string, upload *model.Upload) (*model.ProfileSnapshot, error) {
	if upload.Empty() {
		return nil, errors.New("profile image is empty")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, profileImageField, filenameOrDefault(upload.Filename)))
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("マルチパートの作成に失敗しました: %w", err)
	}
	if _, err := io.Copy(part, upload.Content); err != nil {
		return nil, fmt.Errorf("画像の読み取りに失敗しました: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("マルチパートの終端に失敗しました: %w", err)
	}

	path := "/users/" + url.PathEscape(userID) + "/profile-image"
	req, err := c.newRequest(ctx, http.MethodPut, path, token, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return doJSON[model.ProfileSnapshot](c, req, "users_profile_image")
}

// ListContacts はGET /contactsで連絡先一覧を取得する。dataが無い場合は空リストを返す。
func (c *Client) ListContacts(ctx context.Context, token string) ([]model.Contact, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/contacts", token, nil)
	if err != nil {
		return nil, err
	}

	contacts, err := doJSON[[]model.Contact](c, req, "contacts_list")
	if err != nil {
		if errors.Is(err, errNoData) {
			return []model.Contact{}, nil
		}
		return nil, err
	}
	return *contacts, nil
}

// errNoData は成功レスポンスにdataが含まれないことを表す。
var errNoData = fmt.Errorf("response without data: %w", ErrMalformedResponse)

// newRequest はベースURLからのパスでリクエストを生成する。tokenが空でなければBearer認証を付与する。
func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// doJSON はリクエストを実行し、エンベロープのdataをTとしてデコードする。
// 非2xxはStatusError、2xxでdataが無い・JSONが壊れている場合はErrMalformedResponseを返す。
func doJSON[T any](c *Client, req *http.Request, endpoint string) (*T, error) {
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordUpstreamCall(endpoint, 0, time.Since(start))
		c.logger.Error("ディレクトリAPIの呼び出しに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("directory API request %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.recorder.RecordUpstreamCall(endpoint, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.logger.Error("レスポンスボディの読み取りに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	var env envelope[T]
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("ディレクトリAPIがエラーステータスを返しました",
			slog.String("endpoint", endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			statusErr.Message = env.Message
		}
		return nil, statusErr
	}

	if decodeErr != nil {
		c.logger.Error("ディレクトリAPIのレスポンスのパースに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", decodeErr.Error()),
		)
		return nil, fmt.Errorf("decoding %s response: %v: %w", endpoint, decodeErr, ErrMalformedResponse)
	}
	if env.Data == nil {
		return nil, errNoData
	}

	return env.Data, nil
}

func filenameOrDefault(name string) string {
	if name == "" {
		return "profile-image"
	}
	return name
}
