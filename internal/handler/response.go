package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/bento/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("レスポンスの書き込みに失敗しました", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをvにデコードする。
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// parseFilter はクエリパラメータからQueryFilterを組み立てる。
// categoriesは繰り返し指定できる。数値として解釈できない値はErrInvalidFilterにする。
func parseFilter(r *http.Request) (model.QueryFilter, error) {
	q := r.URL.Query()
	f, err := parsePagination(r)
	if err != nil {
		return f, err
	}
	f.Name = q.Get("name")
	for _, c := range q["categories"] {
		if c != "" {
			f.Categories = append(f.Categories, c)
		}
	}
	if f.MinPrice, err = optionalFloat(q.Get("minPrice"), "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optionalFloat(q.Get("maxPrice"), "maxPrice"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

// parsePagination はpageとsizeだけを読み取る。
func parsePagination(r *http.Request) (model.QueryFilter, error) {
	q := r.URL.Query()
	var f model.QueryFilter
	var err error
	if f.Page, err = optionalInt(q.Get("page"), "page"); err != nil {
		return f, err
	}
	if f.Size, err = optionalInt(q.Get("size"), "size"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func optionalInt(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", model.ErrInvalidFilter, name)
	}
	return n, nil
}

func optionalFloat(raw, name string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", model.ErrInvalidFilter, name)
	}
	return &v, nil
}
