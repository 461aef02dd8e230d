package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lookup_bench"

// Exporter はレポートをPrometheusのコレクタへ反映する
type Exporter struct {
	latency     *prometheus.GaugeVec
	completions *prometheus.CounterVec
	reports     prometheus.Counter
}

// NewExporter は新しいExporterを作成してregに登録する
func NewExporter(reg prometheus.Registerer) *Exporter {
	e := &Exporter{
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_microseconds",
			Help:      "Latency percentile of the last report per client thread.",
		}, []string{"worker", "class", "quantile"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completed requests by client thread and request class.",
		}, []string{"worker", "class"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Latency reports emitted by all client threads.",
		}),
	}
	reg.MustRegister(e.latency, e.completions, e.reports)
	return e
}

// Observe はレポート1件を反映する
func (e *Exporter) Observe(workerID string, s Sample) {
	e.reports.Inc()
	e.completions.WithLabelValues(workerID, "point").Add(float64(s.PointCount))
	e.completions.WithLabelValues(workerID, "range").Add(float64(s.RangeCount))

	if s.HasPoint {
		e.latency.WithLabelValues(workerID, "point", "0.5").Set(s.PointP50)
		e.latency.WithLabelValues(workerID, "point", "0.99").Set(s.PointP99)
	}
	if s.HasRange {
		e.latency.WithLabelValues(workerID, "range", "0.9").Set(s.RangeP90)
	}
}

// RegisterServerStats はサーバ側カウンタを読み出すコレクタを登録する
func RegisterServerStats(reg prometheus.Registerer, points, ranges, mismatches func() uint64) {
	counter := func(name, help string, fn func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}
	reg.MustRegister(
		counter("point_lookups_total", "Point lookups served.", points),
		counter("range_scans_total", "Range scans served.", ranges),
		counter("rejected_requests_total", "Requests dropped for a malformed payload.", mismatches),
	)
}
