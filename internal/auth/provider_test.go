package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func newTestProvider(serverURL string) *OIDCProvider {
	return NewOIDCProvider(ProviderConfig{
		Issuer:       "http://id.example.com/realms/ims",
		ServerIssuer: serverURL + "/realms/ims",
		ClientID:     "ims",
		RedirectURL:  "http://localhost:3000/auth/callback",
	})
}

func TestOIDCProvider_AuthCodeURL_ContainsRequiredParams(t *testing.T) {
	p := newTestProvider("http://internal:8080")

	raw := p.AuthCodeURL("test-state-value", "test-challenge")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	// ブラウザ向けURLは公開issuerを使う
	if u.Host != "id.example.com" || u.Path != "/realms/ims/protocol/openid-connect/auth" {
		t.Errorf("auth endpoint = %s%s, want public issuer", u.Host, u.Path)
	}

	q := u.Query()
	want := map[string]string{
		"client_id":             "ims",
		"redirect_uri":          "http://localhost:3000/auth/callback",
		"response_type":         "code",
		"scope":                 "openid profile email",
		"state":                 "test-state-value",
		"code_challenge":        "test-challenge",
		"code_challenge_method": "S256",
	}
	for k, v := range want {
		if q.Get(k) != v {
			t.Errorf("%s = %q, want %q", k, q.Get(k), v)
		}
	}
}

func TestOIDCProvider_ExchangeCode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realms/ims/protocol/openid-connect/token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.PostForm.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("code") != "auth-code" {
			t.Errorf("code = %q", r.PostForm.Get("code"))
		}
		if r.PostForm.Get("code_verifier") != "verifier" {
			t.Errorf("code_verifier = %q", r.PostForm.Get("code_verifier"))
		}
		if r.PostForm.Get("client_secret") != "" {
			t.Error("public client must not send client_secret")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access",
			"refresh_token": "refresh",
			"expires_in":    300,
		})
	}))
	defer server.Close()

	p := newTestProvider(server.URL)

	tokens, err := p.ExchangeCode(context.Background(), "auth-code", "verifier")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.AccessToken != "access" || tokens.RefreshToken != "refresh" {
		t.Errorf("tokens = %+v", tokens)
	}
	if tokens.ExpiresIn != 300*time.Second {
		t.Errorf("ExpiresIn = %v, want 300s", tokens.ExpiresIn)
	}
}

func TestOIDCProvider_Refresh_MissingExpiresIn_DefaultsTo3600(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("refresh_token") != "old-refresh" {
			t.Errorf("refresh_token = %q", r.PostForm.Get("refresh_token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh"}`))
	}))
	defer server.Close()

	tokens, err := newTestProvider(server.URL).Refresh(context.Background(), "old-refresh")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens.ExpiresIn != DefaultExpiresIn {
		t.Errorf("ExpiresIn = %v, want %v", tokens.ExpiresIn, DefaultExpiresIn)
	}
}

func TestOIDCProvider_Refresh_ErrorStatus_ReturnsTokenError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Token is not active"}`))
	}))
	defer server.Close()

	_, err := newTestProvider(server.URL).Refresh(context.Background(), "stale")

	var te *TokenError
	if !errors.As(err, &te) {
		t.Fatalf("error = %v, want TokenError", err)
	}
	if te.Status != http.StatusBadRequest || te.Code != "invalid_grant" {
		t.Errorf("TokenError = %+v", te)
	}
}

func TestOIDCProvider_Refresh_MalformedBody_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	if _, err := newTestProvider(server.URL).Refresh(context.Background(), "r"); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestOIDCProvider_Refresh_EmptyAccessToken_ReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"refresh_token":"r"}`))
	}))
	defer server.Close()

	if _, err := newTestProvider(server.URL).Refresh(context.Background(), "r"); err == nil {
		t.Fatal("expected error for empty access token")
	}
}

func TestOIDCProvider_Logout_SendsRefreshToken(t *testing.T) {
	var got url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/protocol/openid-connect/logout") {
			t.Errorf("path = %q", r.URL.Path)
		}
		r.ParseForm()
		got = r.PostForm
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestProvider(server.URL).Logout(context.Background(), "refresh"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Get("client_id") != "ims" || got.Get("refresh_token") != "refresh" {
		t.Errorf("form = %v", got)
	}
}

func TestOIDCProvider_Logout_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := newTestProvider(server.URL).Logout(context.Background(), "refresh"); err == nil {
		t.Fatal("expected error")
	}
}

func TestOIDCProvider_UserInfo_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewEncoder(w).Encode(map[string]string{
			"sub":                "user-1",
			"preferred_username": "alice",
		})
	}))
	defer server.Close()

	info, err := newTestProvider(server.URL).UserInfo(context.Background(), "access")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.PreferredUsername != "alice" || info.Subject != "user-1" {
		t.Errorf("info = %+v", info)
	}
}
