package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps Prometheus collectors for Bur metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	compilesTotal       *prometheus.CounterVec
	executesTotal       *prometheus.CounterVec
	importsTotal        *prometheus.CounterVec
	uncaughtThrowsTotal *prometheus.CounterVec

	compileDuration *prometheus.HistogramVec
	executeDuration *prometheus.HistogramVec

	uptime          prometheus.GaugeFunc
	liveObjects     prometheus.Gauge
	freeListDepth   prometheus.Gauge
	internedStrings prometheus.Gauge
}

var defaultBuckets = []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000}

var promMetrics *PrometheusMetrics

// InitPrometheus registers the Bur Prometheus collectors under namespace.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		compilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "compiles_total",
				Help:      "Total number of compiler.Compile calls",
			},
			[]string{"module", "status"},
		),

		executesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executes_total",
				Help:      "Total number of vm.Execute calls",
			},
			[]string{"module", "status"},
		),

		importsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imports_total",
				Help:      "Total number of resolved import statements",
			},
			[]string{"module", "status"},
		),

		uncaughtThrowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uncaught_throws_total",
				Help:      "Total number of guest exceptions that unwound past a module's init function",
			},
			[]string{"module"},
		),

		compileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "compile_duration_milliseconds",
				Help:      "Duration of compiler.Compile calls in milliseconds",
				Buckets:   buckets,
			},
			[]string{"module"},
		),

		executeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execute_duration_milliseconds",
				Help:      "Duration of vm.Execute calls in milliseconds",
				Buckets:   buckets,
			},
			[]string{"module"},
		),

		liveObjects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_objects",
				Help:      "Number of live slots in the object pool",
			},
		),

		freeListDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "free_list_depth",
				Help:      "Number of reclaimed slots awaiting reuse in the object pool",
			},
		),

		internedStrings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "interned_strings",
				Help:      "Number of entries in the string pool",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the metrics subsystem was initialized",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.compilesTotal,
		pm.executesTotal,
		pm.importsTotal,
		pm.uncaughtThrowsTotal,
		pm.compileDuration,
		pm.executeDuration,
		pm.uptime,
		pm.liveObjects,
		pm.freeListDepth,
		pm.internedStrings,
	)

	promMetrics = pm
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordPrometheusCompile records one compiler.Compile call.
func RecordPrometheusCompile(module string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	promMetrics.compilesTotal.WithLabelValues(module, statusLabel(success)).Inc()
	promMetrics.compileDuration.WithLabelValues(module).Observe(float64(durationMs))
}

// RecordPrometheusExecute records one vm.Execute call.
func RecordPrometheusExecute(module string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}
	promMetrics.executesTotal.WithLabelValues(module, statusLabel(success)).Inc()
	promMetrics.executeDuration.WithLabelValues(module).Observe(float64(durationMs))
}

// RecordPrometheusImport records one resolved import statement.
func RecordPrometheusImport(module string, success bool) {
	if promMetrics == nil {
		return
	}
	promMetrics.importsTotal.WithLabelValues(module, statusLabel(success)).Inc()
}

// RecordPrometheusUncaughtThrow records an uncaught guest exception.
func RecordPrometheusUncaughtThrow(module string) {
	if promMetrics == nil {
		return
	}
	promMetrics.uncaughtThrowsTotal.WithLabelValues(module).Inc()
}

func setPoolGauges(liveObjects, freeListDepth, internedStrings int) {
	if promMetrics == nil {
		return
	}
	promMetrics.liveObjects.Set(float64(liveObjects))
	promMetrics.freeListDepth.Set(float64(freeListDepth))
	promMetrics.internedStrings.Set(float64(internedStrings))
}

// PrometheusHandler returns an HTTP handler for Prometheus scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the registry, for registering custom collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
