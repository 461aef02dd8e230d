package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherValues(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			}
		}
	}
	return out
}

func TestExporterObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewExporter(reg)

	exp.Observe("client-0", Sample{
		Completions: 100, PointCount: 99, RangeCount: 1,
		HasPoint: true, PointP50: 2.5, PointP99: 11,
		HasRange: true, RangeP90: 800,
	})
	exp.Observe("client-0", Sample{Completions: 100, PointCount: 100, HasPoint: true, PointP50: 2.7, PointP99: 12})

	v := gatherValues(t, reg)
	assert.Equal(t, 2.0, v["lookup_bench_reports_total"])
	assert.Equal(t, 199.0, v["lookup_bench_completions_total,class=point,worker=client-0"])
	assert.Equal(t, 1.0, v["lookup_bench_completions_total,class=range,worker=client-0"])
	assert.Equal(t, 2.7, v["lookup_bench_latency_microseconds,class=point,quantile=0.5,worker=client-0"])
	assert.Equal(t, 12.0, v["lookup_bench_latency_microseconds,class=point,quantile=0.99,worker=client-0"])
	// レンジが無いレポートでは前回値が残る
	assert.Equal(t, 800.0, v["lookup_bench_latency_microseconds,class=range,quantile=0.9,worker=client-0"])
}

func TestExporterDoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewExporter(reg)
	assert.Panics(t, func() { NewExporter(reg) })
}

func TestRegisterServerStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	var points, ranges uint64 = 42, 3
	RegisterServerStats(reg,
		func() uint64 { return points },
		func() uint64 { return ranges },
		func() uint64 { return 0 },
	)

	v := gatherValues(t, reg)
	assert.Equal(t, 42.0, v["lookup_bench_server_point_lookups_total"])
	assert.Equal(t, 3.0, v["lookup_bench_server_range_scans_total"])

	points = 50
	v = gatherValues(t, reg)
	assert.Equal(t, 50.0, v["lookup_bench_server_point_lookups_total"])
}
