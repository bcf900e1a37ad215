package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix は設定を上書きする環境変数のプレフィックス。
// BENTO_IDENTITY__CLIENT_ID は identity.client_id に対応する。
const envPrefix = "BENTO_"

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Identity IdentityConfig `koanf:"identity"`
	API      APIConfig      `koanf:"api"`
	Realtime RealtimeConfig `koanf:"realtime"`
	Session  SessionConfig  `koanf:"session"`
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
}

// IdentityConfig はアイデンティティプロバイダー(OIDC)の設定。
type IdentityConfig struct {
	// Issuer はブラウザのリダイレクトに使う公開issuer URL。
	Issuer string `koanf:"issuer"`
	// ServerIssuer はトークン交換などバックチャネル通信に使うissuer URL。
	// 未指定の場合はIssuerを使う。
	ServerIssuer string `koanf:"server_issuer"`
	ClientID     string `koanf:"client_id"`
	RedirectURL  string `koanf:"redirect_url"`
	Scopes       string `koanf:"scopes"`
	// RolesClient はresource_accessからロールを読み出すクライアント名。
	// 未指定の場合はClientIDを使う。
	RolesClient string `koanf:"roles_client"`
}

// APIConfig は在庫リソースAPIの設定。
type APIConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	RateLimitRPS   float64       `koanf:"rate_limit_rps"`
	RateLimitBurst int           `koanf:"rate_limit_burst"`
}

// RealtimeConfig は在庫低下通知のプッシュチャネル設定。
type RealtimeConfig struct {
	URL          string        `koanf:"url"`
	Topic        string        `koanf:"topic"`
	Enabled      bool          `koanf:"enabled"`
	ReconnectMax time.Duration `koanf:"reconnect_max"`
}

// SessionConfig はセッション管理の設定。
type SessionConfig struct {
	ExpiryLeeway   time.Duration `koanf:"expiry_leeway"`
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`
}

// ServerConfig はBFF HTTPサーバーの設定。
type ServerConfig struct {
	Port               string `koanf:"port"`
	BaseURL            string `koanf:"base_url"`
	CORSAllowedOrigin  string `koanf:"cors_allowed_origin"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
}

// LogConfig はログ出力の設定。
type LogConfig struct {
	Level string `koanf:"level"`
}

// CookieSecure はセッション関連Cookieにsecure属性を付けるべきかを返す。
func (c *Config) CookieSecure() bool {
	return strings.HasPrefix(c.Server.BaseURL, "https://")
}

// Default はデフォルト値を設定したConfigを返す。
func Default() Config {
	return Config{
		Identity: IdentityConfig{
			ClientID: "ims",
			Scopes:   "openid profile email",
		},
		API: APIConfig{
			BaseURL:        "http://localhost:8080/api/v1",
			Timeout:        10 * time.Second,
			RateLimitBurst: 10,
		},
		Realtime: RealtimeConfig{
			URL:          "ws://localhost:8080/ws",
			Topic:        "/topic/low-stock",
			Enabled:      true,
			ReconnectMax: time.Minute,
		},
		Session: SessionConfig{
			RefreshTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Port:               "3000",
			BaseURL:            "http://localhost:3000",
			CORSAllowedOrigin:  "http://localhost:3000",
			RateLimitPerMinute: 120,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load はYAMLファイルと環境変数からConfigを読み込む。
// pathが空の場合は環境変数のみを読む。環境変数はファイルの値を上書きする。
// 必須項目が未設定の場合はまとめてエラーを返す。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// BENTO_API__RATE_LIMIT_RPS -> api.rate_limit_rps
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, envPrefix)
		key = strings.ToLower(key)
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は必須項目と値の妥当性を検証し、省略された派生値を補完する。
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Identity.Issuer) == "" {
		missing = append(missing, "identity.issuer")
	}
	if strings.TrimSpace(c.Identity.RedirectURL) == "" {
		missing = append(missing, "identity.redirect_url")
	}
	if strings.TrimSpace(c.Identity.ClientID) == "" {
		missing = append(missing, "identity.client_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration is not set: %v", missing)
	}

	c.Identity.Issuer = strings.TrimRight(strings.TrimSpace(c.Identity.Issuer), "/")
	if c.Identity.ServerIssuer == "" {
		c.Identity.ServerIssuer = c.Identity.Issuer
	}
	c.Identity.ServerIssuer = strings.TrimRight(c.Identity.ServerIssuer, "/")
	if c.Identity.RolesClient == "" {
		c.Identity.RolesClient = c.Identity.ClientID
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")

	httpURLs := []struct {
		name  string
		value string
	}{
		{"identity.issuer", c.Identity.Issuer},
		{"identity.server_issuer", c.Identity.ServerIssuer},
		{"identity.redirect_url", c.Identity.RedirectURL},
		{"api.base_url", c.API.BaseURL},
		{"server.base_url", c.Server.BaseURL},
	}
	for _, f := range httpURLs {
		if err := validateURL(f.name, f.value, "http", "https"); err != nil {
			return err
		}
	}
	if c.Realtime.Enabled {
		if err := validateURL("realtime.url", c.Realtime.URL, "ws", "wss"); err != nil {
			return err
		}
		if !strings.HasPrefix(c.Realtime.Topic, "/") {
			return fmt.Errorf("invalid realtime.topic %q: must start with '/'", c.Realtime.Topic)
		}
		if c.Realtime.ReconnectMax <= 0 {
			return fmt.Errorf("invalid realtime.reconnect_max %v: must be greater than 0", c.Realtime.ReconnectMax)
		}
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("invalid api.timeout %v: must be greater than 0", c.API.Timeout)
	}
	if c.API.RateLimitRPS < 0 {
		return fmt.Errorf("invalid api.rate_limit_rps %v: must not be negative", c.API.RateLimitRPS)
	}
	if c.API.RateLimitRPS > 0 && c.API.RateLimitBurst <= 0 {
		return fmt.Errorf("invalid api.rate_limit_burst %d: must be positive when rate limiting is enabled", c.API.RateLimitBurst)
	}
	if c.Session.ExpiryLeeway < 0 {
		return fmt.Errorf("invalid session.expiry_leeway %v: must not be negative", c.Session.ExpiryLeeway)
	}
	if c.Session.RefreshTimeout <= 0 {
		return fmt.Errorf("invalid session.refresh_timeout %v: must be greater than 0", c.Session.RefreshTimeout)
	}
	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("invalid server.rate_limit_per_minute %d: must be positive", c.Server.RateLimitPerMinute)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Log.Level = level
	default:
		return fmt.Errorf("invalid log.level %q: must be one of %q, %q, %q, %q", c.Log.Level, "debug", "info", "warn", "error")
	}

	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be an absolute %s URL", name, raw, strings.Join(schemes, "/"))
}
