package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/hitoshi/contactdesk/internal/model"
)

// hkdfInfo は鍵導出のコンテキスト文字列。変更すると既存Cookieはすべて無効になる。
const hkdfInfo = "contactdesk session cookie v1"

// EncryptedCodec はセッションJSONをXChaCha20-Poly1305で暗号化してCookieに格納する。
// 鍵はアプリケーションシークレットからHKDF-SHA256で導出する。
type EncryptedCodec struct {
	aead cipher.AEAD
	ad   []byte
}

// NewEncryptedCodec はEncryptedCodecを生成する。
func NewEncryptedCodec(secret []byte) (*EncryptedCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is required for encrypted cookies")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving session key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD: %w", err)
	}

	return &EncryptedCodec{aead: aead, ad: []byte(DefaultCookieName)}, nil
}

// Encode はセッションを暗号化する。nonceは暗号文の先頭に付与する。
func (c *EncryptedCodec) Encode(s model.Session, expiresAt time.Time) (string, error) {
	plaintext, err := marshalPayload(s, expiresAt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	// [nonce][ciphertext+tag]
	sealed := c.aead.Seal(nonce, nonce, plaintext, c.ad)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode は復号して有効期限を検証する。
func (c *EncryptedCodec) Decode(value string, now time.Time) (*model.Session, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedValue, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize+c.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", errMalformedValue)
	}

	nonce, ct := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ct, c.ad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedValue, err)
	}

	return unmarshalPayload(plaintext, now)
}
