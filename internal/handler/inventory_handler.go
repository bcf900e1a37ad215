package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bento/internal/middleware"
	"github.com/hitoshi/bento/internal/model"
)

// StockService は在庫移動履歴の参照に必要なサービスインターフェース。
type StockService interface {
	List(ctx context.Context, filter model.QueryFilter) (*model.Page[model.StockMovement], error)
}

// DashboardService はダッシュボードの集計に必要なサービスインターフェース。
type DashboardService interface {
	Stats(ctx context.Context) (*model.StatsData, error)
	BelowMinimumStock(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error)
}

// InventoryHandler は在庫移動履歴とダッシュボードのHTTPハンドラー。
type InventoryHandler struct {
	stock     StockService
	dashboard DashboardService
}

// NewInventoryHandler はInventoryHandlerを生成する。
func NewInventoryHandler(stock StockService, dashboard DashboardService) *InventoryHandler {
	return &InventoryHandler{stock: stock, dashboard: dashboard}
}

// ListStockMovements は在庫移動履歴を1ページ返す。
// GET /api/stock-movements?page=0&size=10
func (h *InventoryHandler) ListStockMovements(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePagination(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	page, err := h.stock.List(r.Context(), filter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Stats はダッシュボードの集計統計を返す。
// GET /api/dashboard/stats
func (h *InventoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Stats(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// BelowMinimumStock は最小在庫数を下回っている商品を1ページ返す。
// GET /api/dashboard/below-minimum-stock?page=0&size=10
func (h *InventoryHandler) BelowMinimumStock(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePagination(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	page, err := h.dashboard.BelowMinimumStock(r.Context(), filter)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
