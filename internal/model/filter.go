package model

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
)

const (
	// DefaultPageSize はページサイズ未指定時に使用する件数。
	DefaultPageSize = 10
)

// QueryFilter は1ページ分のリソース取得条件を表す。
// フェッチごとに新しく構築し、永続化しない。
// Sizeが0の場合はDefaultPageSizeとして扱う。
type QueryFilter struct {
	Page       int
	Size       int
	Name       string
	Categories []string
	MinPrice   *float64
	MaxPrice   *float64
}

// Pagination はページ番号とサイズのみを持つQueryFilterを返す。
func Pagination(page, size int) QueryFilter {
	return QueryFilter{Page: page, Size: size}
}

// PageSize は実際に送信するページサイズを返す。
func (f QueryFilter) PageSize() int {
	if f.Size == 0 {
		return DefaultPageSize
	}
	return f.Size
}

// Validate はページングと価格範囲の制約を検証する。
func (f QueryFilter) Validate() error {
	if f.Page < 0 {
		return fmt.Errorf("%w: page must be >= 0, got %d", ErrInvalidFilter, f.Page)
	}
	if f.Size < 0 {
		return fmt.Errorf("%w: size must be > 0, got %d", ErrInvalidFilter, f.Size)
	}
	for _, p := range []struct {
		name  string
		value *float64
	}{{"minPrice", f.MinPrice}, {"maxPrice", f.MaxPrice}} {
		if p.value != nil && (math.IsNaN(*p.value) || math.IsInf(*p.value, 0)) {
			return fmt.Errorf("%w: %s must be a finite number, got %v", ErrInvalidFilter, p.name, *p.value)
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return fmt.Errorf("%w: minPrice %v is greater than maxPrice %v", ErrInvalidFilter, *f.MinPrice, *f.MaxPrice)
	}
	return nil
}

// Values はQueryFilterをリクエストパラメータに変換する。
// 指定されていない任意項目はパラメータ自体を含めない。
func (f QueryFilter) Values() url.Values {
	v := url.Values{}
	if f.Name != "" {
		v.Set("name", f.Name)
	}
	for _, c := range f.Categories {
		if c == "" {
			continue
		}
		v.Add("categories", c)
	}
	if f.MinPrice != nil {
		v.Set("minPrice", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		v.Set("maxPrice", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	v.Set("page", strconv.Itoa(f.Page))
	v.Set("size", strconv.Itoa(f.PageSize()))
	return v
}
