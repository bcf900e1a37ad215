// Package auth はアイデンティティプロバイダーとのOIDC通信とアクセストークンの解析を提供する。
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultExpiresIn はトークンレスポンスにexpires_inが無い場合に仮定する有効期間。
const DefaultExpiresIn = 3600 * time.Second

// ProviderConfig はOIDCプロバイダーの設定。
type ProviderConfig struct {
	// Issuer はブラウザをリダイレクトする認可エンドポイントの基点。
	Issuer string
	// ServerIssuer はトークン交換やログアウト通知に使う基点。空の場合はIssuerを使う。
	ServerIssuer string
	ClientID     string
	RedirectURL  string
	Scopes       string

	// HTTPClient はバックチャネル通信に使うクライアント。nilの場合はタイムアウト付きの既定クライアントを使う。
	HTTPClient *http.Client
}

// TokenSet はトークンエンドポイントが返すトークンの組。
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// UserInfo はuserinfoエンドポイントのレスポンス。
type UserInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	Name              string `json:"name"`
}

// TokenError はトークンエンドポイントが非2xxを返したことを表す。
type TokenError struct {
	Status      int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint returned status %d: %s (%s)", e.Status, e.Code, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("token endpoint returned status %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("token endpoint returned status %d", e.Status)
}

// OIDCProvider は認可コード + PKCEによるOIDC公開クライアント。
// エンドポイントは {issuer}/protocol/openid-connect/ 以下に置かれる。
type OIDCProvider struct {
	config ProviderConfig
	client *http.Client
}

// NewOIDCProvider はOIDCProviderを生成する。
func NewOIDCProvider(config ProviderConfig) *OIDCProvider {
	config.Issuer = strings.TrimRight(config.Issuer, "/")
	if config.ServerIssuer == "" {
		config.ServerIssuer = config.Issuer
	}
	config.ServerIssuer = strings.TrimRight(config.ServerIssuer, "/")
	if config.Scopes == "" {
		config.Scopes = "openid profile email"
	}
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCProvider{config: config, client: client}
}

func (p *OIDCProvider) endpoint(base, name string) string {
	return base + "/protocol/openid-connect/" + name
}

// AuthCodeURL は認可エンドポイントへのリダイレクトURLを生成する。
// challengeはverifierのS256ハッシュ。
func (p *OIDCProvider) AuthCodeURL(state, challenge string) string {
	params := url.Values{
		"client_id":             {p.config.ClientID},
		"redirect_uri":          {p.config.RedirectURL},
		"response_type":         {"code"},
		"scope":                 {p.config.Scopes},
		"state":                 {state},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	return p.endpoint(p.config.Issuer, "auth") + "?" + params.Encode()
}

// ExchangeCode は認可コードをトークンに交換する。
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {p.config.ClientID},
		"code":          {code},
		"redirect_uri":  {p.config.RedirectURL},
		"code_verifier": {verifier},
	}
	tokens, err := p.requestToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tokens, nil
}

// Refresh はリフレッシュトークンを新しいトークンの組に交換する。
func (p *OIDCProvider) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {p.config.ClientID},
		"refresh_token": {refreshToken},
	}
	tokens, err := p.requestToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}
	return tokens, nil
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (p *OIDCProvider) requestToken(ctx context.Context, data url.Values) (*TokenSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.config.ServerIssuer, "token"), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	var tr tokenResponse
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = json.Unmarshal(body, &tr)
		return nil, &TokenError{Status: resp.StatusCode, Code: tr.Error, Description: tr.ErrorDescription}
	}

	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	expiresIn := time.Duration(tr.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = DefaultExpiresIn
	}
	return &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

// Logout はプロバイダーにセッション終了を通知する。
// 呼び出し側はエラーをログに残すだけでローカルのセッション破棄を続行する。
func (p *OIDCProvider) Logout(ctx context.Context, refreshToken string) error {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.config.ServerIssuer, "logout"), strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create logout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("logout failed with status %d", resp.StatusCode)
	}
	return nil
}

// UserInfo はアクセストークンでユーザー情報を取得する。
func (p *OIDCProvider) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.config.ServerIssuer, "userinfo"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info fetch failed with status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	return &info, nil
}
