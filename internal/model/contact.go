package model

// AvatarPlaceholder はプロフィール画像がない連絡先に表示する画像のパス。
const AvatarPlaceholder = "/placeholder.svg?height=64&width=64"

// Contact はディレクトリAPIが返す他ユーザーの読み取り専用の写し。
type Contact struct {
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber"`
	WhatsappNumber string `json:"whatsappNumber"`
	ProfileImage   string `json:"profileImage,omitempty"`
	AvailableFrom  string `json:"availableFrom"`
	AvailableTo    string `json:"availableTo"`
}

// ContactCard は連絡先一覧画面に表示する1件分のカード。
// CallURL / WhatsappURL は連絡可能な時間帯のみ設定される。
type ContactCard struct {
	Contact
	Initials    string `json:"initials"`
	AvatarURL   string `json:"avatarUrl"`
	Available   bool   `json:"available"`
	CallURL     string `json:"callUrl,omitempty"`
	WhatsappURL string `json:"whatsappUrl,omitempty"`
}
