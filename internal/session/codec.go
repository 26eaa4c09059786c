package session

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/contactdesk/internal/model"
)

// errMalformedValue はCookie値が解釈できないことを表す。
var errMalformedValue = errors.New("malformed session value")

// errExpired はCookie値の有効期限切れを表す。
var errExpired = errors.New("session expired")

// Codec はセッションとCookie値の相互変換。
type Codec interface {
	Encode(s model.Session, expiresAt time.Time) (string, error)
	// Decode はnowの時点で期限切れの値をエラーとする。
	Decode(value string, now time.Time) (*model.Session, error)
}

// payload はplain / encrypted コーデックで使うJSON本体。
type payload struct {
	model.Session
	ExpiresAt int64 `json:"exp"`
}

func marshalPayload(s model.Session, expiresAt time.Time) ([]byte, error) {
	data, err := json.Marshal(payload{Session: s, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return data, nil
}

func unmarshalPayload(data []byte, now time.Time) (*model.Session, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedValue, err)
	}
	if p.ExpiresAt == 0 || !now.Before(time.Unix(p.ExpiresAt, 0)) {
		return nil, errExpired
	}
	s := p.Session
	return &s, nil
}

// PlainCodec はセッションJSONをbase64urlでそのまま格納する。
// 署名がないため改ざんを検出できない。開発環境専用。
type PlainCodec struct{}

// NewPlainCodec はPlainCodecを生成する。
func NewPlainCodec() PlainCodec {
	return PlainCodec{}
}

// Encode はJSONをbase64urlエンコードする。
func (PlainCodec) Encode(s model.Session, expiresAt time.Time) (string, error) {
	data, err := marshalPayload(s, expiresAt)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode はbase64urlをデコードしてJSONを解釈する。
func (PlainCodec) Decode(value string, now time.Time) (*model.Session, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedValue, err)
	}
	return unmarshalPayload(data, now)
}
