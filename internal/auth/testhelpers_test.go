package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

// signToken はテスト用にHS256で署名したアクセストークンを生成する。
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}
