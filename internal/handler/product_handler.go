package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/bento/internal/gateway"
	"github.com/hitoshi/bento/internal/middleware"
	"github.com/hitoshi/bento/internal/model"
)

const (
	// viewHeader はブラウザ側の表示単位を識別するヘッダー。同じビューの検索は後勝ちになる。
	viewHeader = "X-View"
	// supersededHeader は後続の検索に追い越された結果であることを示すヘッダー。
	supersededHeader = "X-Superseded"
	// fetchSeqHeader は検索に割り当てた通し番号を返すヘッダー。
	fetchSeqHeader = "X-Fetch-Seq"

	defaultProductView = "products"
)

// ProductService は商品ハンドラーが必要とするサービスインターフェース。
type ProductService interface {
	Search(ctx context.Context, filter model.QueryFilter) (*model.Page[model.Product], error)
	Get(ctx context.Context, id string) (*model.Product, error)
	Create(ctx context.Context, p model.Product) (*model.Product, error)
	Update(ctx context.Context, id string, p model.Product) (*model.Product, error)
	Delete(ctx context.Context, id string) error
}

// ProductHandler は商品のHTTPハンドラー。
type ProductHandler struct {
	service    ProductService
	sequencers *gateway.Sequencers
}

// NewProductHandler はProductHandlerを生成する。
func NewProductHandler(service ProductService, sequencers *gateway.Sequencers) *ProductHandler {
	if sequencers == nil {
		sequencers = gateway.NewSequencers()
	}
	return &ProductHandler{service: service, sequencers: sequencers}
}

// Search は条件に合う商品を1ページ返す。
// 同じビューで後から検索が発行されていた場合、結果にX-Superseded: trueを付ける。
// GET /api/products?page=0&size=10&name=x&categories=FOOD&minPrice=1&maxPrice=9
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	view := strings.TrimSpace(r.Header.Get(viewHeader))
	if view == "" {
		view = defaultProductView
	}
	ticket := h.sequencers.For(view).Begin()

	page, err := h.service.Search(r.Context(), filter)
	w.Header().Set(fetchSeqHeader, strconv.FormatUint(ticket.Seq(), 10))
	if !ticket.Current() {
		w.Header().Set(supersededHeader, "true")
	}
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get は商品の詳細を返す。
// GET /api/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Create は商品を登録する。入力値の検証はリソースAPIに任せる。
// POST /api/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := decodeJSON(r, &p); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}
	created, err := h.service.Create(r.Context(), p)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update は商品を更新する。
// PUT /api/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := decodeJSON(r, &p); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidPayloadError())
		return
	}
	updated, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete は商品を削除する。
// DELETE /api/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
