// Package profile はログイン中ユーザーのプロフィール更新と、編集画面の初期値の生成を提供する。
package profile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/contactdesk/internal/availability"
	"github.com/hitoshi/contactdesk/internal/directory"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
	"github.com/hitoshi/contactdesk/internal/viewcache"
)

// DirectoryClient はプロフィールワークフローが使うディレクトリAPIの操作。
type DirectoryClient interface {
	UpdateUser(ctx context.Context, token, userID string, form model.ProfileForm) (*model.ProfileSnapshot, error)
	UploadProfileImage(ctx context.Context, token, userID string, upload *model.Upload) (*model.ProfileSnapshot, error)
}

// View はプロフィール編集画面の初期値。
type View struct {
	ID             string `json:"id"`
	FullName       string `json:"fullName"`
	Email          string `json:"email"`
	PhoneNumber    string `json:"phoneNumber"`
	WhatsappNumber string `json:"whatsappNumber"`
	ProfileImage   string `json:"profileImage,omitempty"`
	AvailableFrom  string `json:"availableFrom"`
	AvailableTo    string `json:"availableTo"`
}

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	client DirectoryClient
	cache  *viewcache.Cache
	logger *slog.Logger
}

// NewService はServiceを生成する。cacheはnilでもよい。
func NewService(client DirectoryClient, cache *viewcache.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, cache: cache, logger: logger}
}

// UpdateProfile はプロフィール項目をAPIに送信し、成功時にセッションの表示名とメールを更新する。
// セッションがない場合や時刻が HH:MM でない場合はAPIを呼ばずにエラーを返す。
func (s *Service) UpdateProfile(ctx context.Context, store session.Store, form model.ProfileForm) (*model.ProfileSnapshot, error) {
	sess, ok := store.Read(ctx)
	if !ok {
		return nil, model.NewProfileError(model.ReasonNotAuthenticated, model.MsgNotAuthenticated, nil)
	}

	if err := validateForm(form); err != nil {
		return nil, err
	}

	snapshot, err := s.client.UpdateUser(ctx, sess.CredentialToken, sess.SubjectID, form)
	if err != nil {
		s.logger.Warn("プロフィールの更新に失敗しました",
			slog.String("user_id", sess.SubjectID),
			slog.String("reason", string(directory.Reason(err))),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProfileError(directory.Reason(err), directory.UserMessage(err, model.MsgUpdateFailed), err)
	}

	patch := model.SessionPatch{
		DisplayName: model.StringPtr(snapshot.FullName),
		Email:       model.StringPtr(snapshot.Email),
	}
	if err := store.Patch(ctx, patch); err != nil {
		return nil, s.patchFailed(sess.SubjectID, err)
	}

	// 直前に送信した時間帯を編集画面の初期値として保持する
	s.remember(sess.SubjectID, snapshot, form)

	return snapshot, nil
}

// UpdateProfileImage は画像をアップロードし、成功時にセッションのアバター参照を更新する。
func (s *Service) UpdateProfileImage(ctx context.Context, store session.Store, upload *model.Upload) (*model.ProfileSnapshot, error) {
	sess, ok := store.Read(ctx)
	if !ok {
		return nil, model.NewProfileError(model.ReasonNotAuthenticated, model.MsgNotAuthenticated, nil)
	}

	if upload.Empty() {
		return nil, model.NewProfileError(model.ReasonInvalidInput, model.MsgImageUpdateFailed, nil)
	}

	snapshot, err := s.client.UploadProfileImage(ctx, sess.CredentialToken, sess.SubjectID, upload)
	if err != nil {
		s.logger.Warn("プロフィール画像の更新に失敗しました",
			slog.String("user_id", sess.SubjectID),
			slog.String("reason", string(directory.Reason(err))),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProfileError(directory.Reason(err), directory.UserMessage(err, model.MsgImageUpdateFailed), err)
	}

	if err := store.Patch(ctx, model.SessionPatch{AvatarRef: model.StringPtr(snapshot.ProfileImage)}); err != nil {
		return nil, s.patchFailed(sess.SubjectID, err)
	}

	return snapshot, nil
}

// GetProfile は編集画面の初期値を返す。時間帯が不明な場合は 10:00〜17:00 とする。
func (s *Service) GetProfile(ctx context.Context, store session.Store) (*View, error) {
	sess, ok := store.Read(ctx)
	if !ok {
		return nil, model.NewProfileError(model.ReasonNotAuthenticated, model.MsgNotAuthenticated, nil)
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(sess.SubjectID, viewcache.ViewProfile); ok {
			if view, ok := v.(View); ok {
				return &view, nil
			}
		}
	}

	view := View{
		ID:            sess.SubjectID,
		FullName:      sess.DisplayName,
		Email:         sess.Email,
		ProfileImage:  sess.AvatarRef,
		AvailableFrom: model.DefaultAvailableFrom,
		AvailableTo:   model.DefaultAvailableTo,
	}
	if s.cache != nil {
		s.cache.Set(sess.SubjectID, viewcache.ViewProfile, view)
	}
	return &view, nil
}

// remember は更新後の値で編集画面のキャッシュを置き換える。
// セッションのPatchでキャッシュは無効化済みのため、ここで最新値を入れ直す。
func (s *Service) remember(subjectID string, snapshot *model.ProfileSnapshot, form model.ProfileForm) {
	if s.cache == nil {
		return
	}

	view := View{
		ID:             subjectID,
		FullName:       snapshot.FullName,
		Email:          snapshot.Email,
		PhoneNumber:    firstNonEmpty(snapshot.PhoneNumber, form.PhoneNumber),
		WhatsappNumber: firstNonEmpty(snapshot.WhatsappNumber, form.WhatsappNumber),
		ProfileImage:   snapshot.ProfileImage,
		AvailableFrom:  firstNonEmpty(snapshot.AvailableFrom, form.AvailableFrom),
		AvailableTo:    firstNonEmpty(snapshot.AvailableTo, form.AvailableTo),
	}
	s.cache.Set(subjectID, viewcache.ViewProfile, view)
}

func (s *Service) patchFailed(subjectID string, err error) error {
	s.logger.Error("セッションの更新に失敗しました",
		slog.String("user_id", subjectID),
		slog.String("error", err.Error()),
	)
	return model.NewProfileError(model.ReasonNetwork, model.MsgUnexpected, err)
}

// validateForm は時刻項目が HH:MM 形式かを検証する。前後関係は検証しない。
func validateForm(form model.ProfileForm) error {
	for _, f := range []struct {
		name, value string
	}{
		{"availableFrom", form.AvailableFrom},
		{"availableTo", form.AvailableTo},
	} {
		if _, err := availability.ParseClock(f.value); err != nil {
			return model.NewProfileError(model.ReasonInvalidInput,
				fmt.Sprintf("%s must be a time of day in HH:MM format", f.name), err)
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
