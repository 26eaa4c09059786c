package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/contactdesk/internal/model"
)

// Backend はセッションとCookie値の相互変換と、サーバー側状態の管理を担う。
type Backend interface {
	// Encode はセッションを保存し、Cookieに書き込む値を返す。
	// currentが空でなければ同じレコードを更新してよい（Patch時）。
	Encode(ctx context.Context, current string, s model.Session, expiresAt time.Time) (string, error)
	// Decode はCookie値からセッションを復元する。
	Decode(ctx context.Context, value string) (*model.Session, error)
	// Discard はCookie値に対応するサーバー側の状態を削除する。
	Discard(ctx context.Context, value string) error
}

// CookieBackend はセッション全体をCodecでCookie値に詰めるBackend。
// サーバー側の状態は持たない。
type CookieBackend struct {
	codec Codec
	now   func() time.Time
}

// NewCookieBackend はCookieBackendを生成する。
func NewCookieBackend(codec Codec) *CookieBackend {
	return &CookieBackend{codec: codec, now: time.Now}
}

// Encode はセッションをエンコードする。
func (b *CookieBackend) Encode(_ context.Context, _ string, s model.Session, expiresAt time.Time) (string, error) {
	return b.codec.Encode(s, expiresAt)
}

// Decode はCookie値をデコードし、有効期限を検証する。
func (b *CookieBackend) Decode(_ context.Context, value string) (*model.Session, error) {
	return b.codec.Decode(value, b.now())
}

// Discard は何もしない。Cookieのクリアのみで削除が完了する。
func (b *CookieBackend) Discard(context.Context, string) error {
	return nil
}

// RecordRepository はセッションレコードの永続化インターフェース。
// PostgreSQL・Redis・メモリの実装がある。
type RecordRepository interface {
	// Put はレコードを作成または上書きする。
	Put(ctx context.Context, id string, data []byte, expiresAt time.Time) error
	// Get はレコードを取得する。存在しない・期限切れの場合は nil, nil を返す。
	Get(ctx context.Context, id string) ([]byte, error)
	// Delete はレコードを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error
}

// errRecordNotFound はCookieが指すレコードが存在しないことを表す。
var errRecordNotFound = errors.New("session record not found")

// sessionIDLength はレコードIDのバイト長（hexで64文字）。
const sessionIDLength = 32

// RecordBackend はCookieに不透明なIDだけを持たせ、セッション本体をリポジトリに保存するBackend。
type RecordBackend struct {
	repo RecordRepository
}

// NewRecordBackend はRecordBackendを生成する。
func NewRecordBackend(repo RecordRepository) *RecordBackend {
	return &RecordBackend{repo: repo}
}

// Encode はセッションをJSONで保存する。currentが空の場合は新しいIDを発行する。
func (b *RecordBackend) Encode(ctx context.Context, current string, s model.Session, expiresAt time.Time) (string, error) {
	id := current
	if !validRecordID(id) {
		var err error
		id, err = generateSessionID()
		if err != nil {
			return "", fmt.Errorf("failed to generate session ID: %w", err)
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := b.repo.Put(ctx, id, data, expiresAt); err != nil {
		return "", err
	}
	return id, nil
}

// Decode はIDに対応するレコードを読み出す。
func (b *RecordBackend) Decode(ctx context.Context, value string) (*model.Session, error) {
	if !validRecordID(value) {
		return nil, fmt.Errorf("malformed session id: %w", errMalformedValue)
	}

	data, err := b.repo.Get(ctx, value)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errRecordNotFound
	}

	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &s, nil
}

// Discard はレコードを削除する。
func (b *RecordBackend) Discard(ctx context.Context, value string) error {
	if !validRecordID(value) {
		return nil
	}
	return b.repo.Delete(ctx, value)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, sessionIDLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func validRecordID(id string) bool {
	if len(id) != sessionIDLength*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
