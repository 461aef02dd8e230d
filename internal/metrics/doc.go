// Package metrics aggregates client latency reports into process-wide
// throughput statistics and exports them to Prometheus.
//
// Client threads never touch this package on their hot path. They hand it one
// Sample per periodic report, so the counters here advance in steps of the
// report interval.
//
// # Basic Usage
//
//	m := metrics.New()
//	m.RecordReport("client-0", metrics.Sample{Completions: 1_000_000, ...})
//
//	snap := m.Snapshot()
//	fmt.Printf("Total: %d, RPS: %.2f\n", snap.TotalCompletions, snap.OverallRPS)
//
// # Prometheus
//
// Exporter mirrors the same samples as Prometheus collectors:
//
//	exp := metrics.NewExporter(prometheus.DefaultRegisterer)
//	exp.Observe("client-0", sample)
//	http.Handle("/metrics", promhttp.Handler())
//
// # Thread Safety
//
// All operations are safe for concurrent access.
package metrics
