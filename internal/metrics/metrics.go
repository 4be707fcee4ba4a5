// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する。
// 認証サービス、解答サービス、HTTPミドルウェア、クリーンアップジョブから利用する。
type Collector struct {
	authEvents      *prometheus.CounterVec
	solveTotal      *prometheus.CounterVec
	providerLatency prometheus.Histogram
	httpStatus      *prometheus.CounterVec
	sessionsDeleted prometheus.Counter
}

// NewCollector はCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapsolve_auth_events_total",
			Help: "認証イベント数（種別・結果別）",
		}, []string{"event", "outcome"}),
		solveTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapsolve_solve_total",
			Help: "解答リクエスト数（結果別）",
		}, []string{"outcome"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snapsolve_provider_latency_seconds",
			Help:    "AIプロバイダー呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snapsolve_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snapsolve_sessions_deleted_total",
			Help: "期限切れで削除されたセッション数",
		}),
	}

	reg.MustRegister(
		c.authEvents,
		c.solveTotal,
		c.providerLatency,
		c.httpStatus,
		c.sessionsDeleted,
	)

	return c
}

// RecordAuthEvent は認証イベントを記録する。
func (c *Collector) RecordAuthEvent(event, outcome string) {
	c.authEvents.WithLabelValues(event, outcome).Inc()
}

// RecordSolve は解答結果とプロバイダーの所要時間を記録する。
func (c *Collector) RecordSolve(outcome string, duration time.Duration) {
	c.solveTotal.WithLabelValues(outcome).Inc()
	c.providerLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsDeleted は削除したセッション数を記録する。
func (c *Collector) RecordSessionsDeleted(count int64) {
	c.sessionsDeleted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
