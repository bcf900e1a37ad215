package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/hitoshi/bento/internal/model"
)

// FetchPage はフィルタ条件で1ページ分のリソースを取得する。
// 204 No Content は空のページとして扱う。ページ情報はAPIが返した値をそのまま返す。
func FetchPage[T any](ctx context.Context, c *Client, resource Resource, path string, filter model.QueryFilter) (*model.Page[T], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var page model.Page[T]
	if err := c.Do(ctx, http.MethodGet, resource, path, filter.Values(), nil, &page); err != nil {
		return nil, err
	}
	if page.Content == nil {
		page.Content = []T{}
		if page.Size == 0 {
			page.Size = filter.PageSize()
			page.Number = filter.Page
			page.Empty = true
		}
	}
	return &page, nil
}

// Get は1件のリソースを取得する。
func Get[T any](ctx context.Context, c *Client, resource Resource, path string, query url.Values) (*T, error) {
	var out T
	if err := c.Do(ctx, http.MethodGet, resource, path, query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create はリソースを作成し、APIが返した作成結果を返す。
func Create[T any](ctx context.Context, c *Client, resource Resource, path string, payload T) (*T, error) {
	var out T
	if err := c.Do(ctx, http.MethodPost, resource, path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update はリソースを更新し、APIが返した更新結果を返す。
func Update[T any](ctx context.Context, c *Client, resource Resource, path string, payload T) (*T, error) {
	var out T
	if err := c.Do(ctx, http.MethodPut, resource, path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete はリソースを削除する。ボディは読まない。
func Delete(ctx context.Context, c *Client, resource Resource, path string) error {
	return c.Do(ctx, http.MethodDelete, resource, path, nil, nil, nil)
}
