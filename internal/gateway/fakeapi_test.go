package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/hitoshi/bento/internal/model"
)

// fakeAPI はテスト用の在庫APIサーバー。商品検索とCRUDの最小限を実装する。
type fakeAPI struct {
	mu       sync.Mutex
	products []model.Product
	requests []*http.Request
	bodies   [][]byte
}

func newFakeAPI(products []model.Product) (*fakeAPI, *httptest.Server) {
	f := &fakeAPI{products: products}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /products/search", f.search)
	mux.HandleFunc("POST /products", f.create)
	mux.HandleFunc("DELETE /products/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r, nil)
		w.WriteHeader(http.StatusNoContent)
	})
	return f, httptest.NewServer(mux)
}

func (f *fakeAPI) record(r *http.Request, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Clone(context.Background()))
	f.bodies = append(f.bodies, body)
}

func (f *fakeAPI) lastRequest() *http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) search(w http.ResponseWriter, r *http.Request) {
	f.record(r, nil)
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = 10
	}

	var matched []model.Product
	for _, p := range f.products {
		if v := q.Get("minPrice"); v != "" {
			min, _ := strconv.ParseFloat(v, 64)
			if p.Price < min {
				continue
			}
		}
		if v := q.Get("maxPrice"); v != "" {
			max, _ := strconv.ParseFloat(v, 64)
			if p.Price > max {
				continue
			}
		}
		matched = append(matched, p)
	}

	total := len(matched)
	totalPages := (total + size - 1) / size
	start := page * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	content := matched[start:end]
	if content == nil {
		content = []model.Product{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.Page[model.Product]{
		Content:          content,
		Pageable:         model.Pageable{PageNumber: page, PageSize: size, Paged: true},
		TotalPages:       totalPages,
		TotalElements:    int64(total),
		Number:           page,
		Size:             size,
		NumberOfElements: len(content),
		First:            page == 0,
		Last:             page >= totalPages-1,
		Empty:            len(content) == 0,
	})
}

func (f *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b, _ := json.Marshal(p)
	f.record(r, b)
	f.mu.Lock()
	p.ID = fmt.Sprintf("p-%d", len(f.products)+1)
	f.products = append(f.products, p)
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(p)
}

// inventoryOf25 は25件の商品を生成する。価格が10以上100以下の商品はちょうど3件。
func inventoryOf25() []model.Product {
	products := make([]model.Product, 0, 25)
	for i := 0; i < 25; i++ {
		var price float64
		switch {
		case i < 10:
			price = 5
		case i < 22:
			price = 150
		case i == 22:
			price = 10
		case i == 23:
			price = 55.5
		default:
			price = 100
		}
		products = append(products, model.Product{
			ID:       fmt.Sprintf("p-%d", i+1),
			Name:     fmt.Sprintf("product %02d", i+1),
			Price:    price,
			Category: model.CategoryElectronics,
		})
	}
	return products
}

// staticTokens は固定のトークン(またはエラー)を返すTokenSource。
type staticTokens struct {
	token string
	err   error
	calls int
	mu    sync.Mutex
}

func (s *staticTokens) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.token, s.err
}
