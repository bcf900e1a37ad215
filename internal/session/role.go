package session

import "strings"

// rolePrefix はIdPがロール名に付ける慣習的な接頭辞。
const rolePrefix = "role_"

// 画面制御で使うロール名。正規化済みの形で持つ。
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// NormalizeRole はロール名を比較用の正規形に変換する。
// 前後の空白を除き、小文字化し、先頭の "role_" を1つだけ取り除く。
// "admin"、"role_admin"、"ROLE_ADMIN" はすべて "admin" になる。
func NormalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	return strings.TrimPrefix(r, rolePrefix)
}

// normalizeRoles はロール集合を正規化し、空文字と重複を取り除く。
func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		n := NormalizeRole(r)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
