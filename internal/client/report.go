package client

import (
	"fmt"
	"time"

	"lookup-bench/internal/logger"
)

// ProtocolError はトランスポート契約違反を表す
type ProtocolError struct {
	WorkerID string
	Slot     int
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: protocol violation on slot %d: %s", e.WorkerID, e.Slot, e.Reason)
}

// Report は定期的に出力されるレイテンシレポート
type Report struct {
	ThreadID    int       `json:"thread_id"`
	WorkerID    string    `json:"worker_id"`
	Time        time.Time `json:"time"`
	Completions uint64    `json:"completions"`
	Total       uint64    `json:"total"`
	PointCount  uint64    `json:"point_count"`
	RangeCount  uint64    `json:"range_count"`
	HasPoint    bool      `json:"has_point"`
	PointP50    float64   `json:"point_p50_us"`
	PointP99    float64   `json:"point_p99_us"`
	HasRange    bool      `json:"has_range"`
	RangeP90    float64   `json:"range_p90_us"`
}

func (r Report) String() string {
	point := "n/a"
	if r.HasPoint {
		point = fmt.Sprintf("{%.2f 50, %.2f 99}", r.PointP50, r.PointP99)
	}
	rng := "n/a"
	if r.HasRange {
		rng = fmt.Sprintf("%.2f 90", r.RangeP90)
	}
	return fmt.Sprintf("Client %d. Point latency (us) = %s. Range latency (us) = %s.",
		r.ThreadID, point, rng)
}

// Reporter はレポートの出力先
type Reporter interface {
	Report(r Report)
}

// ReporterFunc は関数をReporterとして使うためのアダプタ
type ReporterFunc func(r Report)

// Report implements Reporter.
func (f ReporterFunc) Report(r Report) {
	f(r)
}

// LogReporter はレポートをロガーへ出力する
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(r Report) {
	logger.Info(r.WorkerID, "%s", r)
}

// MultiReporter は複数の出力先へ順に渡す
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(r Report) {
	for _, rep := range m {
		rep.Report(r)
	}
}
