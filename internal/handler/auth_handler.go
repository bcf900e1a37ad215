// Package handler はBFFのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/bento/internal/middleware"
	"github.com/hitoshi/bento/internal/model"
	"github.com/hitoshi/bento/internal/session"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600 // 10分
)

// SessionService は認証ハンドラーが必要とするセッション操作。
// session.Managerが実装する。
type SessionService interface {
	BeginLogin() (*session.LoginRequest, error)
	CompleteLogin(ctx context.Context, state, code string) error
	AbortLogin(state string)
	Logout(ctx context.Context)
	Credential() (session.Credential, bool)
	HasAnyRole(roles ...string) bool
	State() session.State
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// BaseURL はログイン完了後に戻すフロントエンドのURL。
	BaseURL      string
	CookieSecure bool
}

// AuthHandler はOIDC認可コードフロー関連のHTTPハンドラー。
type AuthHandler struct {
	sessions SessionService
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(sessions SessionService, config AuthHandlerConfig) *AuthHandler {
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &AuthHandler{sessions: sessions, config: config}
}

// meResponse はログイン中のユーザー情報。
type meResponse struct {
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	ExpiresAt time.Time `json:"expires_at"`
	State     string    `json:"state"`
}

// Login は認可コード + PKCEフローを開始する。
// GET /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := h.sessions.BeginLogin()
	if err != nil {
		slog.Error("ログイン要求の生成に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieにも保存し、コールバックを開始したブラウザと照合する
	h.setStateCookie(w, req.State, oauthStateMaxAge)
	http.Redirect(w, r, req.URL, http.StatusTemporaryRedirect)
}

// Callback はIdPからのリダイレクトを処理する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != state {
		slog.Warn("OAuthのstateが一致しません")
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewLoginStateInvalidError())
		return
	}
	h.setStateCookie(w, "", -1)

	if idpErr := q.Get("error"); idpErr != "" {
		slog.Warn("IdPが認可を拒否しました",
			slog.String("idp_error", idpErr),
			slog.String("description", q.Get("error_description")),
		)
		h.sessions.AbortLogin(state)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     model.ErrCodeUnauthenticated,
			Message:  "ログインが完了しませんでした。",
			Category: "auth",
			Action:   "もう一度ログインしてください。",
		})
		return
	}

	code := q.Get("code")
	if code == "" {
		h.sessions.AbortLogin(state)
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}

	if err := h.sessions.CompleteLogin(r.Context(), state, code); err != nil {
		if errors.Is(err, model.ErrLoginStateMismatch) {
			middleware.WriteError(w, err)
			return
		}
		slog.Error("ログインの完了に失敗しました", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     model.ErrCodeUpstreamFailed,
			Message:  "認証サーバーとのトークン交換に失敗しました。",
			Category: "auth",
			Action:   "しばらく待ってから再度ログインしてください。",
		})
		return
	}

	http.Redirect(w, r, h.config.BaseURL+"/", http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄し、ログイン画面へ戻す。IdPへの通知は失敗しても続行する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(r.Context())
	http.Redirect(w, r, h.config.BaseURL+"/login", http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。リフレッシュは行わない。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.sessions.Credential()
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	roles := cred.Roles
	if roles == nil {
		roles = []string{}
	}
	writeJSON(w, http.StatusOK, meResponse{
		Username:  cred.Username,
		Roles:     roles,
		ExpiresAt: cred.ExpiresAt,
		State:     h.sessions.State().String(),
	})
}

func (h *AuthHandler) setStateCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
