package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/bento/internal/model"
	"github.com/hitoshi/bento/internal/session"
)

func newTestAuthHandler(sessions SessionService) *AuthHandler {
	return NewAuthHandler(sessions, AuthHandlerConfig{BaseURL: "http://localhost:3000/"})
}

func stateCookieFrom(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == oauthStateCookie {
			return c
		}
	}
	return nil
}

func callbackRequest(query, cookieState string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: cookieState})
	}
	return req
}

func TestAuthHandler_Login_RedirectsToIdPWithStateCookie(t *testing.T) {
	h := newTestAuthHandler(&mockSessionService{
		beginLoginFn: func() (*session.LoginRequest, error) {
			return &session.LoginRequest{URL: "https://idp.example.com/auth?state=abc", State: "abc"}, nil
		},
	})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if loc := w.Header().Get("Location"); loc != "https://idp.example.com/auth?state=abc" {
		t.Errorf("Location = %q", loc)
	}
	c := stateCookieFrom(w.Result())
	if c == nil || c.Value != "abc" {
		t.Fatalf("state cookie = %+v", c)
	}
	if !c.HttpOnly || c.MaxAge != oauthStateMaxAge {
		t.Errorf("state cookie attributes = %+v", c)
	}
}

func TestAuthHandler_Login_BeginFails_Returns500(t *testing.T) {
	h := newTestAuthHandler(&mockSessionService{
		beginLoginFn: func() (*session.LoginRequest, error) { return nil, errors.New("entropy exhausted") },
	})

	w := httptest.NewRecorder()
	h.Login(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestAuthHandler_Callback_Success_CompletesLoginAndRedirects(t *testing.T) {
	var gotState, gotCode string
	h := newTestAuthHandler(&mockSessionService{
		completeLoginFn: func(ctx context.Context, state, code string) error {
			gotState, gotCode = state, code
			return nil
		},
	})

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("state=abc&code=xyz", "abc"))

	if w.Code != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTemporaryRedirect)
	}
	if loc := w.Header().Get("Location"); loc != "http://localhost:3000/" {
		t.Errorf("Location = %q", loc)
	}
	if gotState != "abc" || gotCode != "xyz" {
		t.Errorf("CompleteLogin(%q, %q)", gotState, gotCode)
	}
	if c := stateCookieFrom(w.Result()); c == nil || c.MaxAge >= 0 {
		t.Errorf("state cookie should be cleared, got %+v", c)
	}
}

func TestAuthHandler_Callback_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		cookie      string
		completeErr error
		wantStatus  int
		wantCode    string
		wantCalled  bool
		wantAborted string
	}{
		{"missing cookie", "state=abc&code=xyz", "", nil, http.StatusBadRequest, model.ErrCodeLoginStateInvalid, false, ""},
		{"cookie mismatch", "state=abc&code=xyz", "other", nil, http.StatusBadRequest, model.ErrCodeLoginStateInvalid, false, ""},
		{"idp error", "state=abc&error=access_denied", "abc", nil, http.StatusUnauthorized, model.ErrCodeUnauthenticated, false, "abc"},
		{"missing code", "state=abc", "abc", nil, http.StatusBadRequest, model.ErrCodeInvalidPayload, false, "abc"},
		{"pending state mismatch", "state=abc&code=xyz", "abc", model.ErrLoginStateMismatch, http.StatusBadRequest, model.ErrCodeLoginStateInvalid, true, ""},
		{"exchange failure", "state=abc&code=xyz", "abc", errors.New("invalid_grant"), http.StatusBadGateway, model.ErrCodeUpstreamFailed, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			aborted := ""
			h := newTestAuthHandler(&mockSessionService{
				completeLoginFn: func(ctx context.Context, state, code string) error {
					called = true
					return tt.completeErr
				},
				abortLoginFn: func(state string) { aborted = state },
			})

			w := httptest.NewRecorder()
			h.Callback(w, callbackRequest(tt.query, tt.cookie))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(w.Body).Decode(&body)
			if body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
			if called != tt.wantCalled {
				t.Errorf("CompleteLogin called = %v, want %v", called, tt.wantCalled)
			}
			if aborted != tt.wantAborted {
				t.Errorf("AbortLogin state = %q, want %q", aborted, tt.wantAborted)
			}
		})
	}
}

func TestAuthHandler_Callback_Denied_ReturnsManagerToUnauthenticated(t *testing.T) {
	m := session.NewManager(&stubProvider{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), session.Config{})
	h := newTestAuthHandler(m)

	req, err := m.BeginLogin()
	if err != nil {
		t.Fatalf("BeginLogin: %v", err)
	}
	if m.State() != session.Authenticating {
		t.Fatalf("State() = %v, want Authenticating", m.State())
	}

	w := httptest.NewRecorder()
	h.Callback(w, callbackRequest("error=access_denied&state="+req.State, req.State))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if m.State() != session.Unauthenticated {
		t.Errorf("State() = %v, want Unauthenticated", m.State())
	}
}

func TestAuthHandler_Logout_ClearsSessionAndRedirectsToLogin(t *testing.T) {
	loggedOut := false
	h := newTestAuthHandler(&mockSessionService{
		logoutFn: func(ctx context.Context) { loggedOut = true },
	})

	w := httptest.NewRecorder()
	h.Logout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	if !loggedOut {
		t.Error("Logout should be called")
	}
	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); loc != "http://localhost:3000/login" {
		t.Errorf("Location = %q", loc)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	t.Run("unauthenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestAuthHandler(&mockSessionService{}).Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestAuthHandler(loggedIn("alice", "admin")).Me(w, httptest.NewRequest(http.MethodGet, "/auth/me", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var body meResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Username != "alice" || len(body.Roles) != 1 || body.Roles[0] != "admin" {
			t.Errorf("body = %+v", body)
		}
		if body.State != "authenticated" || body.ExpiresAt.IsZero() {
			t.Errorf("body = %+v", body)
		}
	})
}
