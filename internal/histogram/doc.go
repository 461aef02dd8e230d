// Package histogram provides a fixed-precision latency histogram.
//
// Values are unsigned integers in caller-chosen units. Values below 1000 are
// kept exactly; each following decade is kept with three significant digits
// (steps of 10, 100 and 1000); values of one million or more share a single
// overflow bucket whose percentile is reported as the largest value seen.
//
// A Histogram is owned by one worker and is not safe for concurrent use.
//
//	h := histogram.New()
//	h.Record(uint64(usec * 10))
//	if p99, ok := h.Perc(0.99); ok {
//	    fmt.Printf("p99 = %.1f us\n", float64(p99)/10)
//	}
package histogram
