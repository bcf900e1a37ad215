// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/bento/internal/model"
	"github.com/hitoshi/bento/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// usernameContextKey はリクエストコンテキストにログイン中のユーザー名を格納するためのキー。
var usernameContextKey = contextKey("username")

// usernameHolderContextKey はロギングミドルウェアがユーザー名を受け取るためのキー。
var usernameHolderContextKey = contextKey("username_holder")

// usernameHolder はセッションミドルウェアで判明したユーザー名を外側のミドルウェアへ渡す。
type usernameHolder struct {
	username string
}

func contextWithUsernameHolder(ctx context.Context, h *usernameHolder) context.Context {
	return context.WithValue(ctx, usernameHolderContextKey, h)
}

// SessionChecker はセッションの検証に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionChecker interface {
	Credential() (session.Credential, bool)
	HasAnyRole(roles ...string) bool
}

// NewSessionMiddleware はBFFが保持するセッションの有無を検証するミドルウェアを返す。
// ログイン中のユーザー名をリクエストコンテキストに注入する。
// 期限切れのCredentialはここでは拒否せず、リソースAPI呼び出し時のリフレッシュに任せる。
// セッションが無いリクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(checker SessionChecker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cred, ok := checker.Credential()
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			if h, ok := r.Context().Value(usernameHolderContextKey).(*usernameHolder); ok {
				h.username = cred.Username
			}
			ctx := ContextWithUsername(r.Context(), cred.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRoleMiddleware はrolesのいずれかを持つセッションだけを通すミドルウェアを返す。
// 判定は現在のCredentialに対して行い、リフレッシュはしない。
// 該当ロールが無い場合は403 Forbiddenを返す。
func NewRoleMiddleware(checker SessionChecker, roles ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !checker.HasAnyRole(roles...) {
				slog.Warn("必要なロールを持たないためリクエストを拒否しました",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("required_roles", roles),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError(roles))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UsernameFromContext はリクエストコンテキストからユーザー名を取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func UsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(usernameContextKey).(string)
	if !ok || username == "" {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}

// ContextWithUsername はコンテキストにユーザー名を注入する。
func ContextWithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}
