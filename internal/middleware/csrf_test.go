package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func csrfCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethodsSkipVerification(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(method, "/api/contacts", nil))

			if !called {
				t.Fatalf("%s /api/contacts should reach the handler without a token", method)
			}
			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want 200", w.Code)
			}
		})
	}
}

func TestCSRFMiddleware_MutatingRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		cookie     string
		header     string
		wantStatus int
	}{
		{"login without cookie", http.MethodPost, "/auth/login", "", "tok", http.StatusForbidden},
		{"login without header", http.MethodPost, "/auth/login", "tok", "", http.StatusForbidden},
		{"profile update with mismatched token", http.MethodPut, "/api/profile", "tok", "other", http.StatusForbidden},
		{"profile update with matching token", http.MethodPut, "/api/profile", "tok", "tok", http.StatusOK},
		{"logout with matching token", http.MethodPost, "/auth/logout", "tok", "tok", http.StatusOK},
		{"patch without anything", http.MethodPatch, "/api/profile", "", "", http.StatusForbidden},
		{"delete without anything", http.MethodDelete, "/api/profile", "", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set(csrfHeaderName, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handler called = %v, want %v", called, tt.wantStatus == http.StatusOK)
			}
		})
	}
}

func TestCSRFMiddleware_LoginFormFieldToken(t *testing.T) {
	var email string
	h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email = r.PostFormValue("email")
	}))

	form := url.Values{"email": {"ada@example.com"}, "password": {"pw"}, csrfFormField: {"form-token"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "form-token"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if email != "ada@example.com" {
		t.Errorf("form should stay readable by the login handler, got %q", email)
	}
}

func TestCSRFMiddleware_JSONBodyTokenIsIgnored(t *testing.T) {
	h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"ada@example.com","csrf_token":"tok"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "FORBIDDEN" || body.Category != "auth" {
		t.Errorf("body = %+v, want FORBIDDEN/auth", body)
	}
}

func TestCSRFMiddleware_IssuesCookieOnFirstVisit(t *testing.T) {
	var seen string
	h := NewCSRFMiddleware(CSRFConfig{CookieDomain: "contacts.example.com", CookieSecure: true, TokenTTL: time.Hour})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = cookieToken(r)
		}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

	c := csrfCookieFrom(w.Result())
	if c == nil || c.Value == "" {
		t.Fatal("expected a csrf cookie on first GET")
	}
	if c.HttpOnly {
		t.Error("csrf cookie must be readable by the frontend")
	}
	if !c.Secure || c.SameSite != http.SameSiteLaxMode || c.Path != "/" {
		t.Errorf("cookie attributes = secure:%v samesite:%v path:%q", c.Secure, c.SameSite, c.Path)
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
	}
	if seen != c.Value {
		t.Errorf("handler saw %q, cookie is %q", seen, c.Value)
	}
}

func TestCSRFMiddleware_KeepsExistingCookie(t *testing.T) {
	h := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if c := csrfCookieFrom(w.Result()); c != nil {
		t.Errorf("existing token should not be replaced, got %q", c.Value)
	}
}

func TestCSRFTokenHandler(t *testing.T) {
	t.Run("new token", func(t *testing.T) {
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body struct{ Token string }
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		c := csrfCookieFrom(w.Result())
		if body.Token == "" || c == nil || c.Value != body.Token {
			t.Errorf("response token %q should match cookie %v", body.Token, c)
		}
		if c != nil && c.MaxAge != int(defaultCSRFTokenTTL.Seconds()) {
			t.Errorf("MaxAge = %d, want default", c.MaxAge)
		}
	})

	t.Run("existing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing"})
		w := httptest.NewRecorder()
		NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, req)

		var body struct{ Token string }
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Token != "existing" {
			t.Errorf("token = %q, want existing", body.Token)
		}
		if csrfCookieFrom(w.Result()) != nil {
			t.Error("no new cookie should be set")
		}
	})
}

func TestGenerateCSRFToken_Unique(t *testing.T) {
	a, err := generateCSRFToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := generateCSRFToken()
	if a == b || len(a) != csrfTokenBytes*2 {
		t.Errorf("tokens %q / %q should be distinct %d-char hex", a, b, csrfTokenBytes*2)
	}
}
