// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ゲートウェイ、セッション、リアルタイム購読から利用する。
type MetricsCollector interface {
	RecordGatewayRequest(resource, method string, status int, duration time.Duration)
	RecordRefresh(success bool)
	RecordLogin(success bool)
	RecordRealtimeEvent()
	RecordRealtimeReconnect()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gatewayRequests   *prometheus.CounterVec
	gatewayDuration   *prometheus.HistogramVec
	sessionRefresh    *prometheus.CounterVec
	sessionLogin      *prometheus.CounterVec
	realtimeEvents    prometheus.Counter
	realtimeReconnect prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bento_gateway_requests_total",
			Help: "リソースAPI呼び出しの合計数",
		}, []string{"resource", "method", "status"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bento_gateway_request_duration_seconds",
			Help:    "リソースAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource"}),
		sessionRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bento_session_refresh_total",
			Help: "トークンリフレッシュ交換の合計数",
		}, []string{"outcome"}),
		sessionLogin: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bento_session_login_total",
			Help: "ログイン完了処理の合計数",
		}, []string{"outcome"}),
		realtimeEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bento_realtime_events_total",
			Help: "受信した在庫低下通知の合計数",
		}),
		realtimeReconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bento_realtime_reconnects_total",
			Help: "プッシュチャネル再接続の合計数",
		}),
	}

	reg.MustRegister(
		c.gatewayRequests,
		c.gatewayDuration,
		c.sessionRefresh,
		c.sessionLogin,
		c.realtimeEvents,
		c.realtimeReconnect,
	)

	return c
}

// RecordGatewayRequest はリソースAPI呼び出しの結果を記録する。
// statusが0の場合はレスポンスを受け取れなかったことを示す。
func (c *Collector) RecordGatewayRequest(resource, method string, status int, duration time.Duration) {
	c.gatewayRequests.WithLabelValues(resource, method, strconv.Itoa(status)).Inc()
	c.gatewayDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordRefresh はリフレッシュ交換の結果を記録する。
func (c *Collector) RecordRefresh(success bool) {
	c.sessionRefresh.WithLabelValues(outcome(success)).Inc()
}

// RecordLogin はログイン完了処理の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.sessionLogin.WithLabelValues(outcome(success)).Inc()
}

// RecordRealtimeEvent は通知の受信を記録する。
func (c *Collector) RecordRealtimeEvent() {
	c.realtimeEvents.Inc()
}

// RecordRealtimeReconnect は再接続を記録する。
func (c *Collector) RecordRealtimeReconnect() {
	c.realtimeReconnect.Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordGatewayRequest(string, string, int, time.Duration) {}
func (Nop) RecordRefresh(bool)                                      {}
func (Nop) RecordLogin(bool)                                        {}
func (Nop) RecordRealtimeEvent()                                    {}
func (Nop) RecordRealtimeReconnect()                                {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
