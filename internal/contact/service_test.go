package contact

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/contactdesk/internal/directory"
	"github.com/hitoshi/contactdesk/internal/model"
	"github.com/hitoshi/contactdesk/internal/session"
	"github.com/hitoshi/contactdesk/internal/viewcache"
)

type mockDirectoryClient struct {
	listFn func(ctx context.Context, token string) ([]model.Contact, error)
	calls  int
}

func (m *mockDirectoryClient) ListContacts(ctx context.Context, token string) ([]model.Contact, error) {
	m.calls++
	if m.listFn != nil {
		return m.listFn(ctx, token)
	}
	return []model.Contact{}, nil
}

func newStore(t *testing.T, cache *viewcache.Cache, loggedIn bool) session.Store {
	t.Helper()
	var inv session.Invalidator
	if cache != nil {
		inv = cache
	}
	m := session.NewManager(session.NewCookieBackend(session.NewPlainCodec()), session.DefaultCookieOptions(), inv,
		slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	store := m.ForRequest(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/contacts", nil))
	if loggedIn {
		sess := model.Session{SubjectID: "u1", DisplayName: "Me", CredentialToken: "T"}
		if err := store.Create(context.Background(), sess); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	return store
}

func at(hh, mm int) time.Time {
	return time.Date(2026, 3, 2, hh, mm, 0, 0, time.UTC)
}

func sampleContacts() []model.Contact {
	return []model.Contact{
		{
			ID: "c1", FullName: "grace hopper", Email: "g@example.com",
			PhoneNumber: "+1 555 0100", WhatsappNumber: "+1 (555) 010-1",
			AvailableFrom: "09:00", AvailableTo: "17:00",
		},
		{
			ID: "c2", FullName: "Alan", Email: "a@example.com",
			PhoneNumber: "020 7946 0000", WhatsappNumber: "447946000000",
			ProfileImage: "/uploads/alan.png",
			AvailableFrom: "22:00", AvailableTo: "06:00",
		},
	}
}

func newTestService(client DirectoryClient, cache *viewcache.Cache) (*Service, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewService(client, cache, nil, slog.New(slog.NewJSONHandler(&buf, nil))), &buf
}

func TestBuildCard_AvailableHasActionLinks(t *testing.T) {
	card := BuildCard(sampleContacts()[0], at(9, 0))

	if !card.Available {
		t.Fatal("09:00 should be inside 09:00-17:00")
	}
	if card.CallURL != "tel:+1 555 0100" {
		t.Errorf("CallURL = %q", card.CallURL)
	}
	if card.WhatsappURL != "https://wa.me/15550101" {
		t.Errorf("WhatsappURL = %q", card.WhatsappURL)
	}
	if card.Initials != "GR" {
		t.Errorf("Initials = %q, want GR", card.Initials)
	}
	if card.AvatarURL != model.AvatarPlaceholder {
		t.Errorf("AvatarURL = %q, want placeholder", card.AvatarURL)
	}
}

func TestBuildCard_UnavailableHasNoLinks(t *testing.T) {
	card := BuildCard(sampleContacts()[0], at(17, 1))

	if card.Available {
		t.Fatal("17:01 should be outside 09:00-17:00")
	}
	if card.CallURL != "" || card.WhatsappURL != "" {
		t.Errorf("links should be empty: call=%q wa=%q", card.CallURL, card.WhatsappURL)
	}
}

func TestBuildCard_InvertedWindowNeverAvailable(t *testing.T) {
	for _, now := range []time.Time{at(23, 0), at(3, 0), at(12, 0)} {
		if BuildCard(sampleContacts()[1], now).Available {
			t.Errorf("inverted window should never be available at %s", now.Format("15:04"))
		}
	}
}

func TestBuildCard_UsesProfileImage(t *testing.T) {
	card := BuildCard(sampleContacts()[1], at(12, 0))
	if card.AvatarURL != "/uploads/alan.png" {
		t.Errorf("AvatarURL = %q", card.AvatarURL)
	}
}

func TestInitials(t *testing.T) {
	tests := map[string]string{
		"grace hopper": "GR",
		"A":            "A",
		"山田太郎":         "山田",
		"":             "U",
		"  ada":        "AD",
	}
	for in, want := range tests {
		if got := Initials(in); got != want {
			t.Errorf("Initials(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("+1 (555) 010-1 ext."); got != "15550101" {
		t.Errorf("DigitsOnly = %q", got)
	}
	if got := DigitsOnly("n/a"); got != "" {
		t.Errorf("DigitsOnly = %q, want empty", got)
	}
}

func TestList_NoSession_ReturnsEmptyWithoutCall(t *testing.T) {
	client := &mockDirectoryClient{}
	svc, _ := newTestService(client, nil)

	cards := svc.List(context.Background(), newStore(t, nil, false), at(10, 0))
	if cards == nil || len(cards) != 0 {
		t.Errorf("cards = %v, want empty slice", cards)
	}
	if client.calls != 0 {
		t.Errorf("calls = %d, want 0", client.calls)
	}
}

func TestList_APIFailure_DegradesToEmpty(t *testing.T) {
	client := &mockDirectoryClient{
		listFn: func(context.Context, string) ([]model.Contact, error) {
			return nil, &directory.StatusError{StatusCode: 500}
		},
	}
	svc, logs := newTestService(client, nil)

	cards := svc.List(context.Background(), newStore(t, nil, true), at(10, 0))
	if cards == nil || len(cards) != 0 {
		t.Errorf("cards = %v, want empty slice", cards)
	}
	if !strings.Contains(logs.String(), "連絡先一覧の取得に失敗しました") {
		t.Errorf("failure should be logged, got %s", logs.String())
	}
}

func TestFetch_ReturnsFetchError(t *testing.T) {
	client := &mockDirectoryClient{
		listFn: func(context.Context, string) ([]model.Contact, error) {
			return nil, errors.New("connection reset")
		},
	}
	svc, _ := newTestService(client, nil)

	_, err := svc.Fetch(context.Background(), newStore(t, nil, true))
	if !model.IsKind(err, model.KindFetch, model.ReasonNetwork) {
		t.Errorf("expected fetch/network error, got %v", err)
	}
}

func TestList_SendsBearerAndBuildsCards(t *testing.T) {
	client := &mockDirectoryClient{
		listFn: func(_ context.Context, token string) ([]model.Contact, error) {
			if token != "T" {
				t.Errorf("token = %q, want T", token)
			}
			return sampleContacts(), nil
		},
	}
	svc, _ := newTestService(client, nil)

	cards := svc.List(context.Background(), newStore(t, nil, true), at(10, 0))
	if len(cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(cards))
	}
	if !cards[0].Available || cards[1].Available {
		t.Errorf("availability = %v/%v, want true/false", cards[0].Available, cards[1].Available)
	}
}

func TestList_SanitizesDisplayText(t *testing.T) {
	client := &mockDirectoryClient{
		listFn: func(context.Context, string) ([]model.Contact, error) {
			return []model.Contact{{
				ID: "c1", FullName: "<b>Eve</b><script>x()</script>",
				ProfileImage: "javascript:alert(1)",
				AvailableFrom: "00:00", AvailableTo: "23:59",
			}}, nil
		},
	}
	svc, _ := newTestService(client, nil)

	cards := svc.List(context.Background(), newStore(t, nil, true), at(10, 0))
	if cards[0].FullName != "Eve" {
		t.Errorf("FullName = %q, want Eve", cards[0].FullName)
	}
	if cards[0].AvatarURL != model.AvatarPlaceholder {
		t.Errorf("unsafe image should fall back to placeholder, got %q", cards[0].AvatarURL)
	}
}

func TestList_CachesContactsButRecomputesAvailability(t *testing.T) {
	client := &mockDirectoryClient{
		listFn: func(context.Context, string) ([]model.Contact, error) {
			return sampleContacts(), nil
		},
	}
	cache := viewcache.New(time.Minute)
	svc, _ := newTestService(client, cache)
	store := newStore(t, cache, true)
	ctx := context.Background()

	first := svc.List(ctx, store, at(10, 0))
	second := svc.List(ctx, store, at(18, 0))

	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (second list should hit cache)", client.calls)
	}
	if !first[0].Available || second[0].Available {
		t.Error("availability must be evaluated per request")
	}
}

func TestList_CacheInvalidatedBySessionChange(t *testing.T) {
	client := &mockDirectoryClient{
		listFn: func(context.Context, string) ([]model.Contact, error) {
			return sampleContacts(), nil
		},
	}
	cache := viewcache.New(time.Minute)
	svc, _ := newTestService(client, cache)
	store := newStore(t, cache, true)
	ctx := context.Background()

	svc.List(ctx, store, at(10, 0))
	if err := store.Patch(ctx, model.SessionPatch{DisplayName: model.StringPtr("New")}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	svc.List(ctx, store, at(10, 0))

	if client.calls != 2 {
		t.Errorf("calls = %d, want 2 (patch should invalidate)", client.calls)
	}
}

func TestList_FailureIsNotCached(t *testing.T) {
	fail := true
	client := &mockDirectoryClient{
		listFn: func(context.Context, string) ([]model.Contact, error) {
			if fail {
				return nil, &directory.StatusError{StatusCode: 503}
			}
			return sampleContacts(), nil
		},
	}
	cache := viewcache.New(time.Minute)
	svc, _ := newTestService(client, cache)
	store := newStore(t, cache, true)

	if cards := svc.List(context.Background(), store, at(10, 0)); len(cards) != 0 {
		t.Fatalf("expected empty on failure")
	}
	fail = false
	if cards := svc.List(context.Background(), store, at(10, 0)); len(cards) != 2 {
		t.Errorf("expected fresh fetch after failure, got %d cards", len(cards))
	}
}
