// Package contact は連絡先一覧の取得と、画面表示用のカードへの変換を提供する。
//
// 一覧の取得に失敗した場合はFetchErrorを記録して空リストに縮退する。
// 連絡可否は時刻に依存するため、キャッシュするのはAPIから取得した連絡先のみで、
// カードはリクエストごとに組み立てる。
package contact

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/contactdesk/internal/availability"
	"github.com/hitoshi/contactdesk/internal/directory"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/security"
	"github.com/hitoshi/contactdesk/internal/session"
	"github.com/hitoshi/contactdesk/internal/viewcache"
)

// initialsFallback は氏名が空の場合のイニシャル。
const initialsFallback = "U"

// DirectoryClient は連絡先一覧の取得に使うディレクトリAPIの操作。
type DirectoryClient interface {
	ListContacts(ctx context.Context, token string) ([]model.Contact, error)
}

// Service は連絡先一覧に関するビジネスロジックを提供する。
type Service struct {
	client    DirectoryClient
	cache     *viewcache.Cache
	evaluator *availability.Evaluator
	sanitizer security.DisplaySanitizer
	logger    *slog.Logger
}

// NewService はServiceを生成する。cacheはnilでもよい。evaluatorがnilの場合はサーバーのローカル時刻を使う。
func NewService(client DirectoryClient, cache *viewcache.Cache, evaluator *availability.Evaluator, logger *slog.Logger) *Service {
	if evaluator == nil {
		evaluator = availability.NewEvaluator(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client:    client,
		cache:     cache,
		evaluator: evaluator,
		sanitizer: security.NewDisplaySanitizer(),
		logger:    logger,
	}
}

// Fetch は連絡先を取得する。セッションがない場合はAPIを呼ばずに空リストを返す。
// 失敗時はKindFetchのWorkflowErrorを返す。
func (s *Service) Fetch(ctx context.Context, store session.Store) ([]model.Contact, error) {
	sess, ok := store.Read(ctx)
	if !ok {
		return []model.Contact{}, nil
	}

	if s.cache != nil {
		if v, ok := s.cache.Get(sess.SubjectID, viewcache.ViewContacts); ok {
			if contacts, ok := v.([]model.Contact); ok {
				return contacts, nil
			}
		}
	}

	contacts, err := s.client.ListContacts(ctx, sess.CredentialToken)
	if err != nil {
		return nil, model.NewFetchError(directory.Reason(err), model.MsgFetchContactsFailed, err)
	}

	cleaned := make([]model.Contact, 0, len(contacts))
	for _, c := range contacts {
		cleaned = append(cleaned, s.sanitize(c))
	}

	if s.cache != nil {
		s.cache.Set(sess.SubjectID, viewcache.ViewContacts, cleaned)
	}
	return cleaned, nil
}

// List は連絡先カードの一覧を返す。取得に失敗した場合はログに記録して空リストを返す。
func (s *Service) List(ctx context.Context, store session.Store, now time.Time) []model.ContactCard {
	contacts, err := s.Fetch(ctx, store)
	if err != nil {
		s.logger.Error("連絡先一覧の取得に失敗しました",
			slog.String("reason", string(directory.Reason(err))),
			slog.String("error", err.Error()),
		)
		return []model.ContactCard{}
	}

	cards := make([]model.ContactCard, 0, len(contacts))
	for _, c := range contacts {
		cards = append(cards, BuildCard(c, now))
	}
	return cards
}

// ListNow は設定されたタイムゾーンの現在時刻でListを評価する。
func (s *Service) ListNow(ctx context.Context, store session.Store) []model.ContactCard {
	return s.List(ctx, store, s.evaluator.Now())
}

// BuildCard は連絡先を表示用カードに変換する。
// 発信・WhatsAppのリンクは時間帯内の場合のみ設定する。
func BuildCard(c model.Contact, now time.Time) model.ContactCard {
	card := model.ContactCard{
		Contact:   c,
		Initials:  Initials(c.FullName),
		AvatarURL: c.ProfileImage,
		Available: availability.IsAvailable(c.AvailableFrom, c.AvailableTo, now),
	}
	if card.AvatarURL == "" {
		card.AvatarURL = model.AvatarPlaceholder
	}

	if card.Available {
		if phone := strings.TrimSpace(c.PhoneNumber); phone != "" {
			card.CallURL = "tel:" + phone
		}
		if digits := DigitsOnly(c.WhatsappNumber); digits != "" {
			card.WhatsappURL = "https://wa.me/" + digits
		}
	}
	return card
}

// Initials は氏名の先頭2文字を大文字にして返す。
func Initials(fullName string) string {
	name := []rune(strings.TrimSpace(fullName))
	if len(name) == 0 {
		return initialsFallback
	}
	if len(name) > 2 {
		name = name[:2]
	}
	return strings.ToUpper(string(name))
}

// DigitsOnly は数字以外の文字をすべて取り除く。
func DigitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func (s *Service) sanitize(c model.Contact) model.Contact {
	c.FullName = s.sanitizer.Text(c.FullName)
	c.Email = s.sanitizer.Text(c.Email)
	c.PhoneNumber = s.sanitizer.Text(c.PhoneNumber)
	c.WhatsappNumber = s.sanitizer.Text(c.WhatsappNumber)
	c.ProfileImage = s.sanitizer.ImageURL(c.ProfileImage)
	return c
}
