package diag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// 进程级指标（私有 registry，不暴露 HTTP 端点；运行结束可落盘为 textfile）：
// - jdextract_op_total{comp,stage,result}
// - jdextract_error_total{comp,code}
// - jdextract_op_duration_ms{comp,stage}
// - jdextract_rows_total{result}
// - jdextract_attempts_total{outcome}
var (
	metricsOnce sync.Once
	registry    *prometheus.Registry

	opTotal    *prometheus.CounterVec
	errTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	rowsTotal  *prometheus.CounterVec
	attempts   *prometheus.CounterVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()
		opTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jdextract_op_total",
			Help: "Operations by component, stage and result.",
		}, []string{"comp", "stage", "result"})
		errTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jdextract_error_total",
			Help: "Errors by component and classification code.",
		}, []string{"comp", "code"})
		opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jdextract_op_duration_ms",
			Help:    "Stage duration in milliseconds.",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000, 15000, 60000, 120000},
		}, []string{"comp", "stage"})
		rowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jdextract_rows_total",
			Help: "Processed rows by result (ok|error).",
		}, []string{"result"})
		attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jdextract_attempts_total",
			Help: "Oracle attempts by outcome.",
		}, []string{"outcome"})
		registry.MustRegister(opTotal, errTotal, opDuration, rowsTotal, attempts)
	})
}

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	initMetrics()
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	initMetrics()
	errTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	initMetrics()
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// IncRow 记录一行的最终结果。
func IncRow(ok bool) {
	initMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	rowsTotal.WithLabelValues(result).Inc()
}

// IncAttempt 记录一次调用尝试（outcome=ok|transport|parse|cancel）。
func IncAttempt(outcome string) {
	initMetrics()
	attempts.WithLabelValues(outcome).Inc()
}

// Gatherer 暴露私有 registry（测试与 textfile 导出使用）。
func Gatherer() prometheus.Gatherer {
	initMetrics()
	return registry
}

// WriteTextfile 以 node_exporter textfile 格式落盘全部指标；path 为空时 no-op。
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	initMetrics()
	return prometheus.WriteToTextfile(path, registry)
}
