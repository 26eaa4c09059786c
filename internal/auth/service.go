// Package auth はログイン・ユーザー登録・ログアウト・現在のユーザー取得を提供する。
// 資格情報の検証はディレクトリAPIに委譲し、成功時にセッションを発行する。
package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/contactdesk/internal/directory"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
)

// DirectoryClient は認証ワークフローが使うディレクトリAPIの操作。
type DirectoryClient interface {
	Login(ctx context.Context, email, password string) (*directory.LoginResult, error)
	Register(ctx context.Context, fields map[string]string) (*directory.RegisterResult, error)
	UploadProfileImage(ctx context.Context, token, userID string, upload *model.Upload) (*model.ProfileSnapshot, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// StrictImageUpload がtrueの場合、登録直後の画像アップロード失敗をエラーとして返す。
	// falseの場合はログに記録するのみで登録は成功扱い。
	StrictImageUpload bool
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	client DirectoryClient
	config ServiceConfig
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(client DirectoryClient, config ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: client,
		config: config,
		logger: logger,
	}
}

// Login は資格情報をAPIで検証し、成功した場合にセッションを作成する。
// 失敗時はKindAuthのWorkflowErrorを返し、セッションには触れない。
func (s *Service) Login(ctx context.Context, store session.Store, email, password string) error {
	result, err := s.client.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn("ログインに失敗しました",
			slog.String("reason", string(directory.Reason(err))),
			slog.String("error", err.Error()),
		)
		return model.NewAuthError(directory.Reason(err), directory.UserMessage(err, model.MsgInvalidCredentials), err)
	}

	sess := model.Session{
		SubjectID:       result.User.ID,
		DisplayName:     result.User.FullName,
		Email:           result.User.Email,
		AvatarRef:       result.User.ProfileImage,
		CredentialToken: result.Token,
	}
	if err := store.Create(ctx, sess); err != nil {
		s.logger.Error("セッションの作成に失敗しました",
			slog.String("user_id", sess.SubjectID),
			slog.String("error", err.Error()),
		)
		return model.NewAuthError(model.ReasonNetwork, model.MsgUnexpected, err)
	}

	s.logger.Info("ログインしました", slog.String("user_id", sess.SubjectID))
	return nil
}

// Register はアカウントを作成する。画像が指定されていれば発行されたトークンでアップロードする。
// 登録後に自動ログインはしない。
func (s *Service) Register(ctx context.Context, form model.RegistrationForm, image *model.Upload) error {
	result, err := s.client.Register(ctx, form.Fields())
	if err != nil {
		s.logger.Warn("ユーザー登録に失敗しました",
			slog.String("reason", string(directory.Reason(err))),
			slog.String("error", err.Error()),
		)
		return model.NewAuthError(directory.Reason(err), directory.UserMessage(err, model.MsgRegistrationFailed), err)
	}

	if image.Empty() {
		return nil
	}

	if result.Token == "" || result.User.ID == "" {
		s.logger.Error("登録レスポンスにトークンまたはユーザーIDがないため画像をアップロードできません")
		if s.config.StrictImageUpload {
			return model.NewAuthError(model.ReasonImageUpload, model.MsgImageUpdateFailed, directory.ErrMalformedResponse)
		}
		return nil
	}

	if _, err := s.client.UploadProfileImage(ctx, result.Token, result.User.ID, image); err != nil {
		s.logger.Warn("登録時のプロフィール画像アップロードに失敗しました",
			slog.String("user_id", result.User.ID),
			slog.Bool("strict", s.config.StrictImageUpload),
			slog.String("error", err.Error()),
		)
		if s.config.StrictImageUpload {
			return model.NewAuthError(model.ReasonImageUpload, directory.UserMessage(err, model.MsgImageUpdateFailed), err)
		}
	}

	return nil
}

// Logout はセッションを破棄する。セッションがなくても成功する。
func (s *Service) Logout(ctx context.Context, store session.Store) error {
	var userID string
	if sess, ok := store.Read(ctx); ok {
		userID = sess.SubjectID
	}

	if err := store.Destroy(ctx); err != nil {
		return err
	}

	if userID != "" {
		s.logger.Info("ログアウトしました", slog.String("user_id", userID))
	}
	return nil
}

// CurrentUser は現在のセッションを返す。未認証の場合は false。
func (s *Service) CurrentUser(ctx context.Context, store session.Store) (*model.Session, bool) {
	return store.Read(ctx)
}
