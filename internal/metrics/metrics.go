// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値
const (
	LoginSuccess         = "success"
	LoginInvalidRequest  = "invalid_request"
	LoginUpstreamFailure = "upstream_failure"
	LoginError           = "error"
)

// ブックマーク操作のラベル値
const (
	OpList   = "list"
	OpAdd    = "add"
	OpRemove = "remove"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー層から利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordBookmarkOperation(operation, result string)
	RecordSearch(success bool, results int, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins        *prometheus.CounterVec
	bookmarkOps   *prometheus.CounterVec
	searches      *prometheus.CounterVec
	searchLatency prometheus.Histogram
	searchResults prometheus.Histogram
	httpStatus    *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecrawler_login_total",
			Help: "OAuthコールバックの結果別の件数",
		}, []string{"result"}),
		bookmarkOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecrawler_bookmark_operations_total",
			Help: "ブックマーク操作の種類・結果別の件数",
		}, []string{"operation", "result"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecrawler_search_requests_total",
			Help: "検索バックエンド呼び出しの結果別の件数",
		}, []string{"result"}),
		searchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "citecrawler_search_latency_seconds",
			Help:    "検索バックエンド呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "citecrawler_search_results",
			Help:    "1回の検索で返された件数",
			Buckets: []float64{0, 1, 5, 10, 20, 50},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "citecrawler_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "citecrawler_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.logins,
		c.bookmarkOps,
		c.searches,
		c.searchLatency,
		c.searchResults,
		c.httpStatus,
		c.httpDuration,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordBookmarkOperation はブックマーク操作の結果を記録する。
// resultには"ok"またはエラーコードを渡す。
func (c *Collector) RecordBookmarkOperation(operation, result string) {
	c.bookmarkOps.WithLabelValues(operation, result).Inc()
}

// RecordSearch は検索バックエンド呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordSearch(success bool, results int, duration time.Duration) {
	result := "failure"
	if success {
		result = "success"
		c.searchResults.Observe(float64(results))
	}
	c.searches.WithLabelValues(result).Inc()
	c.searchLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// statusWriter はレスポンスのステータスコードを記録する。
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Middleware はレスポンスのステータスコードと処理時間を記録するミドルウェアを返す。
func (c *Collector) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			if sw.status == 0 {
				sw.status = http.StatusOK
			}
			c.RecordHTTPStatus(sw.status)
			c.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)

// Nop は何も記録しないMetricsCollector。メトリクスを無効にする場合とテストで使用する。
type Nop struct{}

func (Nop) RecordLogin(string) {}
func (Nop) RecordBookmarkOperation(string, string) {}
func (Nop) RecordSearch(bool, int, time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

var _ MetricsCollector = Nop{}
