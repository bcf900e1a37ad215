package session

import (
	"slices"
	"time"
)

// Credential は1つの認証済みセッションを表すトークンとロールの組。
// AccessTokenが空のCredentialはセッションが無いことと同じ意味を持つ。
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// Roles はNormalizeRole済みのロール集合。
	Roles    []string
	Username string
}

// NewCredential はロールを正規化してCredentialを組み立てる。
func NewCredential(accessToken, refreshToken string, expiresAt time.Time, username string, roles []string) Credential {
	return Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Roles:        normalizeRoles(roles),
		Username:     username,
	}
}

// IsAuthenticated はCredentialが利用可能なセッションを表すかを返す。
func (c Credential) IsAuthenticated() bool {
	return c.AccessToken != ""
}

// ExpiredAt は時刻nowにおいて期限切れかを返す。
// leewayだけ早めに期限切れとみなす。
func (c Credential) ExpiredAt(now time.Time, leeway time.Duration) bool {
	return now.After(c.ExpiresAt.Add(-leeway))
}

// HasRole はroleを持つかを返す。比較は両辺を正規化して行う。
// 未認証の場合は常にfalse。
func (c Credential) HasRole(role string) bool {
	if !c.IsAuthenticated() {
		return false
	}
	want := NormalizeRole(role)
	if want == "" {
		return false
	}
	for _, r := range c.Roles {
		if NormalizeRole(r) == want {
			return true
		}
	}
	return false
}

// HasAnyRole はrolesのいずれかを持つかを返す。
func (c Credential) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

func (c Credential) clone() Credential {
	c.Roles = slices.Clone(c.Roles)
	return c
}
