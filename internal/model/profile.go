package model

import "io"

// 利用可能時間帯が不明な場合の既定値。
const (
	DefaultAvailableFrom = "10:00"
	DefaultAvailableTo   = "17:00"
)

// ProfileForm はプロフィール編集フォームの入力内容。リクエスト外には永続化しない。
// AvailableFrom / AvailableTo は HH:MM（24時間表記）。前後関係は検証しない。
type ProfileForm struct {
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber"`
	WhatsappNumber string `json:"whatsappNumber"`
	AvailableFrom  string `json:"availableFrom"`
	AvailableTo    string `json:"availableTo"`
}

// ProfileSnapshot はディレクトリAPIが返す正規化済みのユーザー情報。
type ProfileSnapshot struct {
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	WhatsappNumber string `json:"whatsappNumber,omitempty"`
	ProfileImage   string `json:"profileImage,omitempty"`
	AvailableFrom  string `json:"availableFrom,omitempty"`
	AvailableTo    string `json:"availableTo,omitempty"`
}

// RegistrationForm はサインアップフォームの内容。
// Extraにはフォームに含まれたその他のテキスト項目をそのまま保持し、APIへ転送する。
type RegistrationForm struct {
	FullName       string
	Email          string
	PhoneNumber    string
	WhatsappNumber string
	Password       string
	Extra          map[string]string
}

// Fields はAPIへ送るJSONボディのフィールドを返す。画像は含まない。
func (f RegistrationForm) Fields() map[string]string {
	fields := make(map[string]string, len(f.Extra)+5)
	for k, v := range f.Extra {
		fields[k] = v
	}
	fields["fullName"] = f.FullName
	fields["email"] = f.Email
	fields["phoneNumber"] = f.PhoneNumber
	fields["whatsappNumber"] = f.WhatsappNumber
	fields["password"] = f.Password
	return fields
}

// Upload はアップロードされた画像ファイル。
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Empty はファイルが未指定または0バイトかを返す。
func (u *Upload) Empty() bool {
	return u == nil || u.Content == nil || u.Size <= 0
}
