package model

// Session は認証済みクライアントのキャッシュされた身元情報とベアラートークン。
// 正となるデータはディレクトリAPI側にあり、ここでは表示用の写しのみを持つ。
type Session struct {
	SubjectID       string `json:"id"`
	DisplayName     string `json:"fullName"`
	Email           string `json:"email"`
	AvatarRef       string `json:"profileImage,omitempty"`
	CredentialToken string `json:"token"`
}

// Valid はセッションとして最低限必要なフィールドが揃っているかを返す。
func (s *Session) Valid() bool {
	return s != nil && s.SubjectID != "" && s.CredentialToken != ""
}

// SessionPatch はセッションの表示用フィールドの部分更新を表す。
// nilのフィールドは変更しない。SubjectIDとCredentialTokenは更新対象に含めない。
type SessionPatch struct {
	DisplayName *string
	Email       *string
	AvatarRef   *string
}

// Apply はパッチをセッションのコピーに適用して返す。
func (p SessionPatch) Apply(s Session) Session {
	if p.DisplayName != nil {
		s.DisplayName = *p.DisplayName
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.AvatarRef != nil {
		s.AvatarRef = *p.AvatarRef
	}
	return s
}

// Empty はパッチが何も変更しないかを返す。
func (p SessionPatch) Empty() bool {
	return p.DisplayName == nil && p.Email == nil && p.AvatarRef == nil
}

// StringPtr は文字列のポインタを返す。パッチ生成用。
func StringPtr(s string) *string {
	return &s
}
