// Package session はクライアントに紐づく認証済みセッションの保存・読み出しを提供する。
//
// セッションはリクエストごとに生成されるStoreハンドル経由で操作し、
// グローバルな「現在のセッション」は持たない。保存先はBackendで差し替えられる
// （Cookie内に署名・暗号化して保持、またはPostgreSQL / Redis / メモリのレコード）。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/contactdesk/internal/model"
)

// DefaultCookieName はセッションCookieの名前。
const DefaultCookieName = "session"

// DefaultMaxAge はセッションの既定有効期間（7日）。
const DefaultMaxAge = 7 * 24 * time.Hour

// ErrNoSession はセッションが存在しない状態でPatchを呼んだ場合のエラー。
var ErrNoSession = errors.New("session: no active session")

// ErrInvalidSession は必須フィールド（id, token）を欠いたセッションを保存しようとした場合のエラー。
var ErrInvalidSession = errors.New("session: subject id and credential token are required")

// Store はリクエストに紐づくセッションストア。
type Store interface {
	// Create はセッションを保存する。有効期限は作成時点からMaxAge。
	Create(ctx context.Context, s model.Session) error
	// Read は保存されているセッションを返す。存在しない・期限切れ・壊れている場合は false。
	Read(ctx context.Context) (*model.Session, bool)
	// Patch は表示用フィールドを更新し、有効期限を更新して保存し直す。
	Patch(ctx context.Context, p model.SessionPatch) error
	// Destroy はセッションを削除する。存在しない場合も成功扱い。
	Destroy(ctx context.Context) error
}

// Invalidator はセッション由来のキャッシュ済みビューを無効化する。
type Invalidator interface {
	Invalidate(subjectID string)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(string) {}

// CookieOptions はセッションCookieの属性。HttpOnlyは常に有効。
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	MaxAge   time.Duration
	Secure   bool
	SameSite http.SameSite
}

// DefaultCookieOptions は既定のCookie属性を返す。
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Name:     DefaultCookieName,
		Path:     "/",
		MaxAge:   DefaultMaxAge,
		SameSite: http.SameSiteLaxMode,
	}
}

// Manager はBackendとCookie属性を束ね、リクエストごとのStoreを生成する。
type Manager struct {
	backend     Backend
	opts        CookieOptions
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager はManagerを生成する。invalidatorはnilでもよい。
func NewManager(backend Backend, opts CookieOptions, invalidator Invalidator, logger *slog.Logger) *Manager {
	if opts.Name == "" {
		opts.Name = DefaultCookieName
	}
	if opts.Path == "" {
		opts.Path = "/"
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:     backend,
		opts:        opts,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// CookieName はセッションCookieの名前を返す。
func (m *Manager) CookieName() string {
	return m.opts.Name
}

// ForRequest はリクエストに紐づくStoreを返す。
// Create / Patch / Destroy はwにSet-Cookieを書き込むため、レスポンスボディの書き込み前に呼ぶこと。
func (m *Manager) ForRequest(w http.ResponseWriter, r *http.Request) Store {
	return &requestStore{m: m, w: w, r: r}
}

// requestStore は1リクエスト分のStore実装。
// 同一リクエスト内でCreate後にReadした場合に新しい値が見えるよう、結果をキャッシュする。
type requestStore struct {
	m *Manager
	w http.ResponseWriter
	r *http.Request

	loaded  bool
	value   string
	current *model.Session
}

func (s *requestStore) cookieValue() string {
	c, err := s.r.Cookie(s.m.opts.Name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *requestStore) load(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	s.value = s.cookieValue()
	if s.value == "" {
		return
	}

	sess, err := s.m.backend.Decode(ctx, s.value)
	if err != nil {
		// 壊れた・改ざんされた・期限切れの値は未認証として扱う
		s.m.logger.Debug("session cookie rejected", slog.String("error", err.Error()))
		return
	}
	if !sess.Valid() {
		return
	}
	s.current = sess
}

// Read は保存されているセッションのコピーを返す。
func (s *requestStore) Read(ctx context.Context) (*model.Session, bool) {
	s.load(ctx)
	if s.current == nil {
		return nil, false
	}
	cp := *s.current
	return &cp, true
}

// Create はセッションを新規に保存する。既存のサーバー側レコードは破棄する。
func (s *requestStore) Create(ctx context.Context, sess model.Session) error {
	if !sess.Valid() {
		return ErrInvalidSession
	}
	s.load(ctx)

	if s.value != "" {
		if err := s.m.backend.Discard(ctx, s.value); err != nil {
			s.m.logger.Warn("failed to discard previous session",
				slog.String("error", err.Error()),
			)
		}
	}

	value, err := s.m.backend.Encode(ctx, "", sess, s.m.now().Add(s.m.opts.MaxAge))
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	s.setCookie(value, int(s.m.opts.MaxAge/time.Second))
	s.value = value
	s.current = &sess

	s.m.invalidator.Invalidate(sess.SubjectID)
	return nil
}

// Patch は表示用フィールドをマージして保存し直す。
func (s *requestStore) Patch(ctx context.Context, p model.SessionPatch) error {
	s.load(ctx)
	if s.current == nil {
		return ErrNoSession
	}

	updated := p.Apply(*s.current)
	value, err := s.m.backend.Encode(ctx, s.value, updated, s.m.now().Add(s.m.opts.MaxAge))
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	s.setCookie(value, int(s.m.opts.MaxAge/time.Second))
	s.value = value
	s.current = &updated

	s.m.invalidator.Invalidate(updated.SubjectID)
	return nil
}

// Destroy はセッションを削除する。Cookieは必ずクリアする。
func (s *requestStore) Destroy(ctx context.Context) error {
	s.load(ctx)

	if s.value != "" {
		if err := s.m.backend.Discard(ctx, s.value); err != nil {
			// 削除に失敗してもCookieはクリアする
			s.m.logger.Error("failed to discard session",
				slog.String("error", err.Error()),
			)
		}
	}

	if s.current != nil {
		s.m.invalidator.Invalidate(s.current.SubjectID)
	}

	s.setCookie("", -1)
	s.value = ""
	s.current = nil
	return nil
}

func (s *requestStore) setCookie(value string, maxAge int) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     s.m.opts.Name,
		Value:    value,
		Path:     s.m.opts.Path,
		Domain:   s.m.opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.m.opts.Secure,
		SameSite: s.m.opts.SameSite,
	})
}

type storeContextKey struct{}

// NewContext はStoreを格納したコンテキストを返す。
// ミドルウェアで解決したStoreをハンドラーに引き渡すために使う。
func NewContext(ctx context.Context, store Store) context.Context {
	return context.WithValue(ctx, storeContextKey{}, store)
}

// FromContext はコンテキストに格納されたStoreを返す。
func FromContext(ctx context.Context) (Store, bool) {
	store, ok := ctx.Value(storeContextKey{}).(Store)
	return store, ok
}
