package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/contactdesk/internal/model"
)

const jwtIssuer = "contactdesk"

// sessionClaims は署名付きCookieのクレーム。セッションのJSON項目をそのまま持つ。
type sessionClaims struct {
	SubjectID       string `json:"id"`
	DisplayName     string `json:"fullName"`
	Email           string `json:"email"`
	AvatarRef       string `json:"profileImage,omitempty"`
	CredentialToken string `json:"token"`
	jwt.RegisteredClaims
}

// SignedCodec はセッションをHS256署名付きJWTとしてCookieに格納する。
// 内容はクライアントから読めるが、改ざんは検出される。
type SignedCodec struct {
	secret []byte
}

// NewSignedCodec はSignedCodecを生成する。
func NewSignedCodec(secret []byte) (*SignedCodec, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret is required for signed cookies")
	}
	return &SignedCodec{secret: secret}, nil
}

// Encode はセッションに署名する。
func (c *SignedCodec) Encode(s model.Session, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		SubjectID:       s.SubjectID,
		DisplayName:     s.DisplayName,
		Email:           s.Email,
		AvatarRef:       s.AvatarRef,
		CredentialToken: s.CredentialToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtIssuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Decode は署名と有効期限を検証してセッションを返す。
func (c *SignedCodec) Decode(value string, now time.Time) (*model.Session, error) {
	claims := &sessionClaims{}

	token, err := jwt.ParseWithClaims(value, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(jwtIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedValue, err)
	}
	if !token.Valid {
		return nil, errMalformedValue
	}

	return &model.Session{
		SubjectID:       claims.SubjectID,
		DisplayName:     claims.DisplayName,
		Email:           claims.Email,
		AvatarRef:       claims.AvatarRef,
		CredentialToken: claims.CredentialToken,
	}, nil
}
