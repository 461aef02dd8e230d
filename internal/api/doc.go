// Package api serves the optional HTTP status surface of a benchmark process.
//
// Routes:
//
//	GET /api/status   role, uptime, aggregate throughput, server counters
//	GET /api/reports  latest latency report per client thread
//	GET /metrics      Prometheus exposition
//	    /ws           WebSocket push of every event published on the bus
package api
