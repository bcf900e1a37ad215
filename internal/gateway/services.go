package gateway

import (
	"context"
	"net/url"

	"github.com/hitoshi/bento/internal/model"
)

// ProductService は商品リソースの操作。
type ProductService struct {
	client *Client
}

// NewProductService はProductServiceを生成する。
func NewProductService(c *Client) *ProductService {
	return &ProductService{client: c}
}

// Search は名前、カテゴリ、価格帯で商品を検索する。
func (s *ProductService) Search(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error) {
	return FetchPage[model.Product](ctx, s.client, ResourceProducts, "/products/search", filter)
}

// Get は商品の詳細を取得する。
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	return Get[model.Product](ctx, s.client, ResourceProducts, "/products/"+url.PathEscape(id)+"/details", nil)
}

// Create は商品を登録する。現在庫は初期在庫数で初期化して送る。
func (s *ProductService) Create(ctx context.Context, p model.Product) (*model.Product, error) {
	p.ID = ""
	p.Stock = p.InitialStock
	return Create(ctx, s.client, ResourceProducts, "/products", p)
}

// Update は商品を更新する。
func (s *ProductService) Update(ctx context.Context, id string, p model.Product) (*model.Product, error) {
	p.ID = id
	return Update(ctx, s.client, ResourceProducts, "/products/"+url.PathEscape(id), p)
}

// Delete は商品を削除する。
func (s *ProductService) Delete(ctx context.Context, id string) error {
	return Delete(ctx, s.client, ResourceProducts, "/products/"+url.PathEscape(id))
}

// StockService は在庫移動履歴の参照。
type StockService struct {
	client *Client
}

// NewStockService はStockServiceを生成する。
func NewStockService(c *Client) *StockService {
	return &StockService{client: c}
}

// List は在庫移動履歴を新しい順に1ページ取得する。ページング以外の条件は送らない。
func (s *StockService) List(ctx context.Context, filter model.QueryFilter) (*model.Page[model.StockMovement], error) {
	return FetchPage[model.StockMovement](ctx, s.client, ResourceStockMovements, "/stock-movements/", model.Pagination(filter.Page, filter.Size))
}

// NotificationService は在庫低下通知の履歴参照。
type NotificationService struct {
	client *Client
}

// NewNotificationService はNotificationServiceを生成する。
func NewNotificationService(c *Client) *NotificationService {
	return &NotificationService{client: c}
}

// List は在庫低下通知の履歴を1ページ取得する。
func (s *NotificationService) List(ctx context.Context, filter model.QueryFilter) (*model.Page[model.LowStockNotification], error) {
	return FetchPage[model.LowStockNotification](ctx, s.client, ResourceNotifications, "/low-stock-notifications", model.Pagination(filter.Page, filter.Size))
}

// DashboardService はダッシュボード集計の参照。
type DashboardService struct {
	client *Client
}

// NewDashboardService はDashboardServiceを生成する。
func NewDashboardService(c *Client) *DashboardService {
	return &DashboardService{client: c}
}

// Stats は集計統計を取得する。
func (s *DashboardService) Stats(ctx context.Context) (*model.StatsData, error) {
	return Get[model.StatsData](ctx, s.client, ResourceDashboard, "/dashboard/stats", nil)
}

// BelowMinimumStock は最小在庫数を下回っている商品を1ページ取得する。
func (s *DashboardService) BelowMinimumStock(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error) {
	return FetchPage[model.Product](ctx, s.client, ResourceDashboard, "/dashboard/bellow-minimum-stock", model.Pagination(filter.Page, filter.Size))
}
