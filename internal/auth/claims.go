package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/bento/internal/model"
)

// Claims はアクセストークンから読み出した認可情報。
type Claims struct {
	Subject  string
	Username string
	Roles    []string
}

// DecodeClaims はアクセストークンを署名検証せずにデコードし、ユーザー名とロールを取り出す。
// ロールは resource_access.<rolesClient>.roles と realm_access.roles の和集合。
// 署名検証はトークンを受け取るリソースAPIの責務で、ここでは表示と画面制御のためにのみ読む。
// デコードに失敗した場合はmodel.ErrDecodeFailedを返す。
func DecodeClaims(token, rolesClient string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", model.ErrDecodeFailed, err)
	}

	var c Claims
	c.Subject, _ = mc["sub"].(string)
	c.Username, _ = mc["preferred_username"].(string)

	seen := make(map[string]struct{})
	add := func(roles []string) {
		for _, r := range roles {
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			c.Roles = append(c.Roles, r)
		}
	}

	if ra, ok := mc["resource_access"].(map[string]interface{}); ok {
		if client, ok := ra[rolesClient].(map[string]interface{}); ok {
			add(stringSlice(client["roles"]))
		}
	}
	if realm, ok := mc["realm_access"].(map[string]interface{}); ok {
		add(stringSlice(realm["roles"]))
	}

	return c, nil
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
