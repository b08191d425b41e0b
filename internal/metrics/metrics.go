// Package metrics collects and exposes Bur runtime observability data.
//
// Two metric stores coexist, mirroring oriys-nova/internal/metrics:
//
//  1. The in-process Metrics struct (per-module counters + time
//     series) for a lightweight JSON endpoint.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems.
//
// RecordCompile/RecordExecute are called on every compiler.Compile and
// vm.Execute invocation and must be fast: atomic increments for global
// counters, a buffered channel for the time-series worker so the hot
// path never blocks on a lock.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Operations   int64
	Errors       int64
	TotalLatency int64
	Count        int64
}

// Metrics collects and exposes Bur runtime metrics.
type Metrics struct {
	TotalCompiles  atomic.Int64
	CompileErrors  atomic.Int64
	TotalExecutes  atomic.Int64
	ExecuteErrors  atomic.Int64
	TotalImports   atomic.Int64
	ImportErrors   atomic.Int64
	UncaughtThrows atomic.Int64

	CompileLatencyMs atomic.Int64
	ExecuteLatencyMs atomic.Int64
	MinLatencyMs     atomic.Int64
	MaxLatencyMs     atomic.Int64

	moduleMetrics sync.Map // path -> *ModuleMetrics

	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// ModuleMetrics tracks metrics for a single module path.
type ModuleMetrics struct {
	Compiles atomic.Int64
	Executes atomic.Int64
	Errors   atomic.Int64
	TotalMs  atomic.Int64
	MinMs    atomic.Int64
	MaxMs    atomic.Int64
}

var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1))
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance.
func Global() *Metrics { return global }

// StartTime returns when the metrics subsystem was initialized.
func StartTime() time.Time { return global.startTime }

// Init registers the Prometheus collectors under namespace and wires
// the default histogram buckets. Called once at process start;
// RecordCompile/RecordExecute are safe to call before Init, they just
// skip the Prometheus bridge until it runs.
func Init(namespace string) {
	InitPrometheus(namespace, nil)
}

// Handler exposes the Prometheus registry for scraping.
func Handler() http.Handler { return PrometheusHandler() }

// RecordCompile records one compiler.Compile call for path.
func (m *Metrics) RecordCompile(path string, durationMs int64, success bool) {
	m.TotalCompiles.Add(1)
	if !success {
		m.CompileErrors.Add(1)
	}
	m.CompileLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	mm := m.getModuleMetrics(path)
	mm.Compiles.Add(1)
	if !success {
		mm.Errors.Add(1)
	}
	mm.TotalMs.Add(durationMs)
	updateMin(&mm.MinMs, durationMs)
	updateMax(&mm.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)
	RecordPrometheusCompile(path, durationMs, success)
}

// RecordExecute records one vm.Execute call for path.
func (m *Metrics) RecordExecute(path string, durationMs int64, success bool) {
	m.TotalExecutes.Add(1)
	if !success {
		m.ExecuteErrors.Add(1)
	}
	m.ExecuteLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	mm := m.getModuleMetrics(path)
	mm.Executes.Add(1)
	if !success {
		mm.Errors.Add(1)
	}
	mm.TotalMs.Add(durationMs)
	updateMin(&mm.MinMs, durationMs)
	updateMax(&mm.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)
	RecordPrometheusExecute(path, durationMs, success)
}

// RecordImport records one resolved `import` statement.
func (m *Metrics) RecordImport(path string, success bool) {
	m.TotalImports.Add(1)
	if !success {
		m.ImportErrors.Add(1)
	}
	RecordPrometheusImport(path, success)
}

// RecordUncaughtThrow records a guest exception that unwound past the
// top-level init function of a vm.Execute call.
func (m *Metrics) RecordUncaughtThrow(path string) {
	m.UncaughtThrows.Add(1)
	RecordPrometheusUncaughtThrow(path)
}

func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Operations++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// RecordPoolStats publishes the Runtime's live object-pool depth,
// free-list depth, and string-pool size as Prometheus gauges. A host
// calls this periodically (e.g. from the same ticker that drives
// Runtime.CollectGarbage) since neither pool pushes its own events.
func RecordPoolStats(liveObjects, freeListDepth, internedStrings int) {
	setPoolGauges(liveObjects, freeListDepth, internedStrings)
}

func (m *Metrics) getModuleMetrics(path string) *ModuleMetrics {
	if v, ok := m.moduleMetrics.Load(path); ok {
		return v.(*ModuleMetrics)
	}
	mm := &ModuleMetrics{}
	mm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.moduleMetrics.LoadOrStore(path, mm)
	return actual.(*ModuleMetrics)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	return map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"compiles": map[string]interface{}{
			"total":  m.TotalCompiles.Load(),
			"errors": m.CompileErrors.Load(),
		},
		"executes": map[string]interface{}{
			"total":  m.TotalExecutes.Load(),
			"errors": m.ExecuteErrors.Load(),
		},
		"imports": map[string]interface{}{
			"total":  m.TotalImports.Load(),
			"errors": m.ImportErrors.Load(),
		},
		"uncaught_throws": m.UncaughtThrows.Load(),
		"latency_ms": map[string]interface{}{
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"ts_dropped_events": m.tsDroppedEvents.Load(),
	}
}

// ModuleStats returns per-module-path metrics.
func (m *Metrics) ModuleStats() map[string]interface{} {
	result := make(map[string]interface{})
	m.moduleMetrics.Range(func(key, value interface{}) bool {
		path := key.(string)
		mm := value.(*ModuleMetrics)

		total := mm.Compiles.Load() + mm.Executes.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(mm.TotalMs.Load()) / float64(total)
		}
		minMs := mm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[path] = map[string]interface{}{
			"compiles": mm.Compiles.Load(),
			"executes": mm.Executes.Load(),
			"errors":   mm.Errors.Load(),
			"avg_ms":   avgMs,
			"min_ms":   minMs,
			"max_ms":   mm.MaxMs.Load(),
		}
		return true
	})
	return result
}

// JSONHandler exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["modules"] = m.ModuleStats()
		_ = json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"operations":   bucket.Operations,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
