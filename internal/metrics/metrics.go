// Package metrics 汇率刷新、价格抓取与HTTP请求的 prometheus 指标
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 所有采集器；通过 New 注册到指定 Registerer，测试可用独立 Registry
type Metrics struct {
	FXRefreshAttempted prometheus.Counter
	FXRefreshFailed    prometheus.Counter
	FXFailureRatio     prometheus.Gauge
	RateResolved       *prometheus.CounterVec // provider
	PriceFetchTotal    *prometheus.CounterVec // retailer, result
	ImportRows         *prometheus.CounterVec // stage, result

	httpReqs     *prometheus.CounterVec
	httpLat      *prometheus.HistogramVec
	httpInflight prometheus.Gauge
}

// New 创建并注册采集器；reg 为 nil 时只创建不注册
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FXRefreshAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_refresh_attempted_total",
			Help: "Currency pairs attempted by scheduled FX refresh.",
		}),
		FXRefreshFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fx_refresh_failed_total",
			Help: "Currency pairs that failed during scheduled FX refresh.",
		}),
		FXFailureRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fx_refresh_failure_ratio",
			Help: "Failure ratio of the last FX refresh run.",
		}),
		RateResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fx_rate_resolved_total",
			Help: "Exchange rates resolved by provider.",
		}, []string{"provider"}),
		PriceFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_fetch_total",
			Help: "Retailer price fetches by retailer and result.",
		}, []string{"retailer", "result"}),
		ImportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Imported CSV rows by stage and result.",
		}, []string{"stage", "result"}),
		httpReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FXRefreshAttempted, m.FXRefreshFailed, m.FXFailureRatio, m.RateResolved,
			m.PriceFetchTotal, m.ImportRows, m.httpReqs, m.httpLat, m.httpInflight,
		)
	}
	return m
}

// ObserveFXRefresh 记录一轮汇率刷新结果
func (m *Metrics) ObserveFXRefresh(attempted, failed int) {
	if m == nil {
		return
	}
	m.FXRefreshAttempted.Add(float64(attempted))
	m.FXRefreshFailed.Add(float64(failed))
	ratio := 0.0
	if attempted > 0 {
		ratio = float64(failed) / float64(attempted)
	}
	m.FXFailureRatio.Set(ratio)
}

func (m *Metrics) ObserveRate(provider string) {
	if m == nil {
		return
	}
	m.RateResolved.WithLabelValues(provider).Inc()
}

// ObservePriceFetch result: ok/empty/error
func (m *Metrics) ObservePriceFetch(retailer, result string) {
	if m == nil {
		return
	}
	m.PriceFetchTotal.WithLabelValues(retailer, result).Inc()
}

// ObserveImport result: imported/skipped/failed
func (m *Metrics) ObserveImport(stage, result string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ImportRows.WithLabelValues(stage, result).Add(float64(n))
}

// GinMiddleware 按注册路由记录请求数、耗时与并发数（未匹配路由退回原始路径）
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.httpInflight.Inc()
		defer m.httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		m.httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
