package handler

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/bento/internal/auth"
	"github.com/hitoshi/bento/internal/model"
	"github.com/hitoshi/bento/internal/session"
)

// --- モック定義 ---

// stubProvider は実際のsession.Managerを動かすためのIdP。トークン交換は常に失敗する。
type stubProvider struct{}

func (stubProvider) AuthCodeURL(state, challenge string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (stubProvider) ExchangeCode(ctx context.Context, code, verifier string) (*auth.TokenSet, error) {
	return nil, errors.New("exchange not available")
}

func (stubProvider) Refresh(ctx context.Context, refreshToken string) (*auth.TokenSet, error) {
	return nil, errors.New("refresh not available")
}

func (stubProvider) Logout(ctx context.Context, refreshToken string) error { return nil }

func (stubProvider) UserInfo(ctx context.Context, accessToken string) (*auth.UserInfo, error) {
	return nil, errors.New("userinfo not available")
}

type mockSessionService struct {
	beginLoginFn    func() (*session.LoginRequest, error)
	completeLoginFn func(ctx context.Context, state, code string) error
	abortLoginFn    func(state string)
	logoutFn        func(ctx context.Context)
	credentialFn    func() (session.Credential, bool)
	stateFn         func() session.State
}

func (m *mockSessionService) BeginLogin() (*session.LoginRequest, error) {
	if m.beginLoginFn != nil {
		return m.beginLoginFn()
	}
	return &session.LoginRequest{URL: "https://idp.example.com/auth", State: "state-1"}, nil
}

func (m *mockSessionService) CompleteLogin(ctx context.Context, state, code string) error {
	if m.completeLoginFn != nil {
		return m.completeLoginFn(ctx, state, code)
	}
	return nil
}

func (m *mockSessionService) AbortLogin(state string) {
	if m.abortLoginFn != nil {
		m.abortLoginFn(state)
	}
}

func (m *mockSessionService) Logout(ctx context.Context) {
	if m.logoutFn != nil {
		m.logoutFn(ctx)
	}
}

func (m *mockSessionService) Credential() (session.Credential, bool) {
	if m.credentialFn != nil {
		return m.credentialFn()
	}
	return session.Credential{}, false
}

func (m *mockSessionService) HasAnyRole(roles ...string) bool {
	cred, ok := m.Credential()
	return ok && cred.HasAnyRole(roles...)
}

func (m *mockSessionService) State() session.State {
	if m.stateFn != nil {
		return m.stateFn()
	}
	if _, ok := m.Credential(); ok {
		return session.Authenticated
	}
	return session.Unauthenticated
}

// loggedIn はrolesを持つユーザーとしてログイン済みのセッションを返す。
func loggedIn(username string, roles ...string) *mockSessionService {
	cred := session.NewCredential("access", "refresh", time.Now().Add(time.Hour), username, roles)
	return &mockSessionService{
		credentialFn: func() (session.Credential, bool) { return cred, true },
	}
}

type mockProductService struct {
	searchFn func(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error)
	getFn    func(ctx context.Context, id string) (*model.Product, error)
	createFn func(ctx context.Context, p model.Product) (*model.Product, error)
	updateFn func(ctx context.Context, id string, p model.Product) (*model.Product, error)
	deleteFn func(ctx context.Context, id string) error
}

func (m *mockProductService) Search(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, filter)
	}
	return &model.Page[model.Product]{Content: []model.Product{}}, nil
}

func (m *mockProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &model.Product{ID: id}, nil
}

func (m *mockProductService) Create(ctx context.Context, p model.Product) (*model.Product, error) {
	if m.createFn != nil {
		return m.createFn(ctx, p)
	}
	p.ID = "new-id"
	return &p, nil
}

func (m *mockProductService) Update(ctx context.Context, id string, p model.Product) (*model.Product, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, p)
	}
	p.ID = id
	return &p, nil
}

func (m *mockProductService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

type mockStockService struct {
	listFn func(ctx context.Context, filter model.QueryFilter) (*model.Page[model.StockMovement], error)
}

func (m *mockStockService) List(ctx context.Context, filter model.QueryFilter) (*model.Page[model.StockMovement], error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &model.Page[model.StockMovement]{Content: []model.StockMovement{}}, nil
}

type mockDashboardService struct {
	statsFn func(ctx context.Context) (*model.StatsData, error)
	belowFn func(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error)
}

func (m *mockDashboardService) Stats(ctx context.Context) (*model.StatsData, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &model.StatsData{}, nil
}

func (m *mockDashboardService) BelowMinimumStock(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error) {
	if m.belowFn != nil {
		return m.belowFn(ctx, filter)
	}
	return &model.Page[model.Product]{Content: []model.Product{}}, nil
}

type mockNotificationService struct {
	listFn func(ctx context.Context, filter model.QueryFilter) (*model.Page[model.LowStockNotification], error)
}

func (m *mockNotificationService) List(ctx context.Context, filter model.QueryFilter) (*model.Page[model.LowStockNotification], error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return &model.Page[model.LowStockNotification]{Content: []model.LowStockNotification{}}, nil
}

type staticRecent []model.LowStockNotification

func (s staticRecent) Snapshot() []model.LowStockNotification { return s }

type staticConnection bool

func (s staticConnection) Connected() bool { return bool(s) }

func notification(productID, date string) model.LowStockNotification {
	return model.LowStockNotification{
		Date:         date,
		Product:      model.ProductName{ProductID: productID, Name: "product " + productID},
		CurrentStock: 1,
		MinimumStock: 5,
	}
}
