// Package session は認証セッションのライフサイクルを管理する。
// ログイン、期限切れの検出、リフレッシュ、ログアウト、ロールによる認可判定を担う。
package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/bento/internal/auth"
	"github.com/hitoshi/bento/internal/metrics"
	"github.com/hitoshi/bento/internal/model"
)

// State はセッションの状態。
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Refreshing
	Expired
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IdentityProvider はSession Managerが依存するアイデンティティプロバイダーの操作。
type IdentityProvider interface {
	AuthCodeURL(state, challenge string) string
	ExchangeCode(ctx context.Context, code, verifier string) (*auth.TokenSet, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
	UserInfo(ctx context.Context, accessToken string) (*auth.UserInfo, error)
}

// Config はManagerの設定。
type Config struct {
	// RolesClient はアクセストークンのresource_accessから読むクライアント名。
	RolesClient string
	// ExpiryLeeway は期限切れ判定を前倒しする幅。
	ExpiryLeeway time.Duration
	// RefreshTimeout はリフレッシュ交換1回あたりの上限時間。
	RefreshTimeout time.Duration
	// Now は現在時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// LoginRequest はログイン開始時にブラウザへ渡す情報。
type LoginRequest struct {
	URL   string
	State string
}

type pendingLogin struct {
	state    string
	verifier string
}

const refreshKey = "refresh"

// Manager は1つの認証セッションを所有する。
// Credentialは単一ライター・複数リーダーの値として扱い、読み手には常にスナップショットを渡す。
type Manager struct {
	provider IdentityProvider
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	config   Config

	mu         sync.RWMutex
	cred       Credential
	pending    *pendingLogin
	refreshing bool
	// generation はCredentialが置き換わるたびに増える。
	// ログアウト後に完了したリフレッシュ結果を捨てるために使う。
	generation uint64

	group singleflight.Group
}

// NewManager はManagerを生成する。
func NewManager(provider IdentityProvider, collector metrics.MetricsCollector, logger *slog.Logger, config Config) *Manager {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.RefreshTimeout <= 0 {
		config.RefreshTimeout = 10 * time.Second
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		metrics:  collector,
		logger:   logger,
		config:   config,
	}
}

// State は現在の状態を返す。期限切れは呼び出し時点の時刻で評価する。
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	if !m.cred.IsAuthenticated() {
		if m.pending != nil {
			return Authenticating
		}
		return Unauthenticated
	}
	if m.refreshing {
		return Refreshing
	}
	if m.cred.ExpiredAt(m.config.Now(), m.config.ExpiryLeeway) {
		return Expired
	}
	return Authenticated
}

// BeginLogin は認可コード + PKCEフローを開始し、リダイレクト先URLを返す。
// 未完了のログイン要求があれば新しいもので置き換える。
func (m *Manager) BeginLogin() (*LoginRequest, error) {
	state, err := auth.GenerateState()
	if err != nil {
		return nil, err
	}
	verifier, err := auth.GenerateVerifier()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.pending = &pendingLogin{state: state, verifier: verifier}
	m.mu.Unlock()

	return &LoginRequest{
		URL:   m.provider.AuthCodeURL(state, auth.Challenge(verifier)),
		State: state,
	}, nil
}

// CompleteLogin はコールバックで受け取った認可コードをトークンに交換してセッションを確立する。
// stateが開始時のものと一致しない場合はmodel.ErrLoginStateMismatchを返す。
// ロールを取り出せないトークンはロールなしとして受け入れる。
func (m *Manager) CompleteLogin(ctx context.Context, state, code string) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	if pending == nil || state == "" || subtle.ConstantTimeCompare([]byte(pending.state), []byte(state)) != 1 {
		m.metrics.RecordLogin(false)
		return model.ErrLoginStateMismatch
	}

	tokens, err := m.provider.ExchangeCode(ctx, code, pending.verifier)
	if err != nil {
		m.metrics.RecordLogin(false)
		m.logger.Warn("認可コードの交換に失敗しました", slog.String("error", err.Error()))
		return fmt.Errorf("failed to complete login: %w", err)
	}

	cred := m.buildCredential(ctx, tokens, "")

	m.mu.Lock()
	m.cred = cred
	m.generation++
	m.mu.Unlock()

	m.metrics.RecordLogin(true)
	m.logger.Info("セッションを確立しました",
		slog.String("username", cred.Username),
		slog.Any("roles", cred.Roles),
		slog.Time("expires_at", cred.ExpiresAt),
	)
	return nil
}

// AbortLogin はIdPが認可を拒否した場合などに未完了のログイン要求を破棄する。
// stateが開始時のものと一致しない場合は何もしない。
func (m *Manager) AbortLogin(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil || state == "" || subtle.ConstantTimeCompare([]byte(m.pending.state), []byte(state)) != 1 {
		return
	}
	m.pending = nil
	m.metrics.RecordLogin(false)
	m.logger.Info("ログイン要求を破棄しました")
}

// buildCredential はトークンの組からCredentialを組み立てる。
// ユーザー名がトークンに無ければfallbackを使い、それも無ければuserinfoを問い合わせる。
func (m *Manager) buildCredential(ctx context.Context, tokens *auth.TokenSet, fallbackUsername string) Credential {
	claims, err := auth.DecodeClaims(tokens.AccessToken, m.config.RolesClient)
	if err != nil {
		m.logger.Warn("アクセストークンをデコードできないためロールなしで続行します",
			slog.String("error", err.Error()),
		)
	}

	username := claims.Username
	if username == "" {
		username = fallbackUsername
	}
	if username == "" {
		if info, err := m.provider.UserInfo(ctx, tokens.AccessToken); err != nil {
			m.logger.Warn("ユーザー情報の取得に失敗しました", slog.String("error", err.Error()))
		} else {
			username = info.PreferredUsername
		}
	}

	return NewCredential(
		tokens.AccessToken,
		tokens.RefreshToken,
		m.config.Now().Add(tokens.ExpiresIn),
		username,
		claims.Roles,
	)
}

// Credential は現在のCredentialのスナップショットを返す。リフレッシュは行わない。
// セッションが無い場合はfalseを返す。
func (m *Manager) Credential() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.cred.IsAuthenticated() {
		return Credential{}, false
	}
	return m.cred.clone(), true
}

// IsAuthenticated はセッションが存在するかを返す。
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.IsAuthenticated()
}

// HasRole は現在のCredentialがroleを持つかを返す。リフレッシュは行わない。
func (m *Manager) HasRole(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.HasRole(role)
}

// HasAnyRole は現在のCredentialがrolesのいずれかを持つかを返す。リフレッシュは行わない。
func (m *Manager) HasAnyRole(roles ...string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cred.HasAnyRole(roles...)
}

// Token は利用可能なアクセストークンを返す。
// 期限切れを検出した場合はリフレッシュしてから返す。同時に期限切れを検出した呼び出しは
// 1回のリフレッシュ交換の結果を共有する。
// セッションが無い場合はmodel.ErrUnauthenticated、リフレッシュに失敗した場合は
// model.ErrAuthRefreshFailedを返す。後者の場合セッションは破棄済み。
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	cred := m.cred
	m.mu.RUnlock()

	if !cred.IsAuthenticated() {
		return "", model.ErrUnauthenticated
	}
	if !cred.ExpiredAt(m.config.Now(), m.config.ExpiryLeeway) {
		return cred.AccessToken, nil
	}

	ch := m.group.DoChan(refreshKey, func() (interface{}, error) {
		return m.refresh(ctx)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh はリフレッシュ交換を1回行う。singleflight内からのみ呼ばれる。
func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	if !m.cred.IsAuthenticated() {
		m.mu.Unlock()
		return "", model.ErrUnauthenticated
	}
	// 先行するリフレッシュがすでに新しいCredentialを設定している場合
	if !m.cred.ExpiredAt(m.config.Now(), m.config.ExpiryLeeway) {
		token := m.cred.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	refreshToken := m.cred.RefreshToken
	username := m.cred.Username
	gen := m.generation
	m.refreshing = true
	m.mu.Unlock()

	// 呼び出し元のキャンセルで共有中のリフレッシュを中断しない
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.RefreshTimeout)
	defer cancel()

	var (
		tokens *auth.TokenSet
		err    error
	)
	if refreshToken == "" {
		err = errors.New("no refresh token")
	} else {
		tokens, err = m.provider.Refresh(rctx, refreshToken)
	}

	var cred Credential
	if err == nil {
		cred = m.buildCredential(rctx, tokens, username)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshing = false

	if m.generation != gen {
		// リフレッシュ中にログアウトまたは再ログインされた
		if m.cred.IsAuthenticated() {
			return m.cred.AccessToken, nil
		}
		return "", model.ErrUnauthenticated
	}

	if err != nil {
		m.cred = Credential{}
		m.pending = nil
		m.generation++
		m.metrics.RecordRefresh(false)
		m.logger.Warn("トークンのリフレッシュに失敗したためセッションを破棄しました", slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", model.ErrAuthRefreshFailed, err)
	}

	m.cred = cred
	m.generation++
	m.metrics.RecordRefresh(true)
	m.logger.Info("セッションをリフレッシュしました",
		slog.String("username", cred.Username),
		slog.Time("expires_at", cred.ExpiresAt),
	)
	return cred.AccessToken, nil
}

// Logout はローカルのセッションを破棄し、IdPへベストエフォートで通知する。
// 通知の失敗はログに残すだけで、ローカルの破棄は常に完了する。
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	refreshToken := m.cred.RefreshToken
	username := m.cred.Username
	m.cred = Credential{}
	m.pending = nil
	m.refreshing = false
	m.generation++
	m.mu.Unlock()

	m.logger.Info("セッションを破棄しました", slog.String("username", username))

	if refreshToken == "" {
		return
	}
	if err := m.provider.Logout(ctx, refreshToken); err != nil {
		m.logger.Warn("IdPへのログアウト通知に失敗しました", slog.String("error", err.Error()))
	}
}
