// Package gateway はリソースAPIへの統一された呼び出し口を提供する。
// セッションの資格情報の付与と、失敗のRequestFailedErrorへの正規化を担う。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bento/internal/metrics"
	"github.com/hitoshi/bento/internal/model"
)

const (
	// maxErrorBodySize はエラーメッセージ抽出のために読むレスポンスボディの上限。
	maxErrorBodySize = 64 << 10
	// maxResponseSize は成功レスポンスとして受け付けるボディの上限。
	maxResponseSize = 16 << 20
	// sessionExpiredMessage はリフレッシュ失敗時に利用者へ表示するメッセージ。
	sessionExpiredMessage = "your session has expired, please sign in again"
)

// Resource はリソースの種類。メトリクスとログのラベルに使う。
type Resource string

const (
	ResourceProducts       Resource = "products"
	ResourceStockMovements Resource = "stock-movements"
	ResourceNotifications  Resource = "low-stock-notifications"
	ResourceDashboard      Resource = "dashboard"
)

// TokenSource は呼び出しごとに利用可能なアクセストークンを返す。
// セッションが無い場合はmodel.ErrUnauthenticatedを返す。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Config はClientの設定。
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RateLimitRPS はリソースAPIへの送信レートの上限。0以下は無制限。
	RateLimitRPS   float64
	RateLimitBurst int
}

// Client はリソースAPIのHTTPクライアント。
// キャッシュもリトライも持たず、各呼び出しは1回だけ送信される。
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *rate.Limiter
	sanitizer  *bluemonday.Policy
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
}

// NewClient はClientを生成する。httpClientがnilの場合はConfig.Timeoutを持つクライアントを使う。
func NewClient(cfg Config, tokens TokenSource, httpClient *http.Client, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		tokens:     tokens,
		limiter:    limiter,
		sanitizer:  bluemonday.StrictPolicy(),
		metrics:    collector,
		logger:     logger,
	}
}

// Do はリクエストを1回送信し、成功レスポンスをoutにデコードする。
// 204 No Content、outがnilの場合はボディを読まない。
// 失敗はすべて*model.RequestFailedErrorとして返る。
func (c *Client) Do(ctx context.Context, method string, resource Resource, path string, query url.Values, body, out any) error {
	start := time.Now()
	status, err := c.do(ctx, method, path, query, body, out)
	elapsed := time.Since(start)

	c.metrics.RecordGatewayRequest(string(resource), method, status, elapsed)
	if err != nil {
		c.logger.Warn("リソースAPIの呼び出しに失敗しました",
			slog.String("resource", string(resource)),
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", status),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		return err
	}
	c.logger.Debug("リソースAPIの呼び出しが完了しました",
		slog.String("resource", string(resource)),
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("http_status", status),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	token, err := c.tokens.Token(ctx)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrUnauthenticated):
		// セッションが無ければ資格情報なしで送信し、判断はAPIに任せる
		token = ""
	case errors.Is(err, model.ErrAuthRefreshFailed):
		return http.StatusUnauthorized, model.NewRequestFailedError(http.StatusUnauthorized, sessionExpiredMessage, err)
	default:
		return 0, model.NewRequestFailedError(0, "", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, model.NewRequestFailedError(0, "", fmt.Errorf("rate limit wait: %w", err))
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, model.NewRequestFailedError(0, "the request could not be encoded", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, model.NewRequestFailedError(0, "", fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, model.NewRequestFailedError(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return resp.StatusCode, model.NewRequestFailedError(resp.StatusCode, c.errorMessage(raw), nil)
	}

	if resp.StatusCode == http.StatusNoContent || out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, model.NewRequestFailedError(resp.StatusCode, "the response could not be read", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp.StatusCode, model.NewRequestFailedError(resp.StatusCode, "the server returned an invalid response", err)
	}
	return resp.StatusCode, nil
}

// errorMessage はエラーレスポンスのJSONからmessageを取り出し、表示可能な文字列にする。
// 取り出せない場合は空文字を返し、ステータスに基づく汎用メッセージに任せる。
func (c *Client) errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	msg := html.UnescapeString(c.sanitizer.Sanitize(body.Message))
	return strings.TrimSpace(msg)
}
