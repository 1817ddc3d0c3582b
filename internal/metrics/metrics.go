// Package metrics 进程内 Prometheus 指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry 应用自有的指标注册表，/metrics 只暴露这里的指标
	Registry = prometheus.NewRegistry()

	visitsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanpai",
			Subsystem: "recorder",
			Name:      "visits_total",
			Help:      "Visits committed, by kind.",
		},
		[]string{"kind"},
	)

	visitsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanpai",
			Subsystem: "recorder",
			Name:      "rejections_total",
			Help:      "Visits rejected before commit, by reason.",
		},
		[]string{"reason"},
	)

	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sanpai",
			Subsystem: "progression",
			Name:      "level_ups_total",
			Help:      "Level-up transitions applied to users.",
		},
	)

	harvestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanpai",
			Subsystem: "harvester",
			Name:      "runs_total",
			Help:      "Harvest runs, by period kind and outcome.",
		},
		[]string{"period", "result"},
	)

	titlesGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanpai",
			Subsystem: "harvester",
			Name:      "titles_granted_total",
			Help:      "Title grants upserted, by period kind.",
		},
		[]string{"period"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sanpai",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sanpai",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms ~ 5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		visitsRecorded,
		visitsRejected,
		levelUps,
		harvestRuns,
		titlesGranted,
		httpRequests,
		httpDuration,
	)
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordVisit 记录一次成功参拜
func RecordVisit(kind string) {
	visitsRecorded.WithLabelValues(kind).Inc()
}

// RecordRejection 记录一次被拒绝的参拜
func RecordRejection(reason string) {
	visitsRejected.WithLabelValues(reason).Inc()
}

// RecordLevelUp 记录升级
func RecordLevelUp() {
	levelUps.Inc()
}

// RecordHarvest 记录一次收割及其发放的称号数
func RecordHarvest(period, result string, grants int) {
	harvestRuns.WithLabelValues(period, result).Inc()
	if grants > 0 {
		titlesGranted.WithLabelValues(period).Add(float64(grants))
	}
}

// ObserveHTTP 记录一次 HTTP 请求
func ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
