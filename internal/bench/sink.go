package bench

import (
	"lookup-bench/internal/client"
	"lookup-bench/internal/events"
	"lookup-bench/internal/metrics"
)

// reportSink はレポートをイベントバスとメトリクスへ配る
type reportSink struct {
	bus      *events.Bus
	metrics  *metrics.Metrics
	exporter *metrics.Exporter
}

// Report implements client.Reporter.
func (s reportSink) Report(r client.Report) {
	sample := toSample(r)
	if s.metrics != nil {
		s.metrics.RecordReport(r.WorkerID, sample)
	}
	if s.exporter != nil {
		s.exporter.Observe(r.WorkerID, sample)
	}
	publish(s.bus, events.NewLatencyReportEvent(r.WorkerID, r.Time, events.LatencyData{
		Completions: r.Completions,
		PointCount:  r.PointCount,
		RangeCount:  r.RangeCount,
		PointP50:    r.PointP50,
		PointP99:    r.PointP99,
		RangeP90:    r.RangeP90,
	}))
}

func toSample(r client.Report) metrics.Sample {
	return metrics.Sample{
		Completions: r.Completions,
		PointCount:  r.PointCount,
		RangeCount:  r.RangeCount,
		HasPoint:    r.HasPoint,
		PointP50:    r.PointP50,
		PointP99:    r.PointP99,
		HasRange:    r.HasRange,
		RangeP90:    r.RangeP90,
		At:          r.Time,
	}
}
