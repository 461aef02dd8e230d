package metrics

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Sample はクライアント1スレッドの1レポート分の値
type Sample struct {
	Completions uint64    `json:"completions"`
	PointCount  uint64    `json:"point_count"`
	RangeCount  uint64    `json:"range_count"`
	HasPoint    bool      `json:"has_point"`
	PointP50    float64   `json:"point_p50_us"`
	PointP99    float64   `json:"point_p99_us"`
	HasRange    bool      `json:"has_range"`
	RangeP90    float64   `json:"range_p90_us"`
	At          time.Time `json:"at"`
}

// Metrics はレポートを集計する
type Metrics struct {
	totalCompletions atomic.Uint64
	pointCompletions atomic.Uint64
	rangeCompletions atomic.Uint64
	reports          atomic.Uint64

	mu                sync.RWMutex
	now               func() time.Time
	startTime         time.Time
	lastResetTime     time.Time
	windowCompletions uint64
	latest            map[string]Sample
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *Metrics {
	t := now()
	return &Metrics{
		now:           now,
		startTime:     t,
		lastResetTime: t,
		latest:        make(map[string]Sample),
	}
}

// RecordReport はワーカーのレポートを記録する
func (m *Metrics) RecordReport(workerID string, s Sample) {
	m.totalCompletions.Add(s.Completions)
	m.pointCompletions.Add(s.PointCount)
	m.rangeCompletions.Add(s.RangeCount)
	m.reports.Add(1)

	m.mu.Lock()
	m.windowCompletions += s.Completions
	m.latest[workerID] = s
	m.mu.Unlock()
}

// TotalCompletions は総完了数を返す
func (m *Metrics) TotalCompletions() uint64 {
	return m.totalCompletions.Load()
}

// PointCompletions はポイント検索の完了数を返す
func (m *Metrics) PointCompletions() uint64 {
	return m.pointCompletions.Load()
}

// RangeCompletions はレンジ検索の完了数を返す
func (m *Metrics) RangeCompletions() uint64 {
	return m.rangeCompletions.Load()
}

// Reports は受け取ったレポート数を返す
func (m *Metrics) Reports() uint64 {
	return m.reports.Load()
}

// RPS は直近ウィンドウの完了数/秒を返す
func (m *Metrics) RPS() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	elapsed := m.now().Sub(m.lastResetTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.windowCompletions) / elapsed
}

// OverallRPS は開始からの平均完了数/秒を返す
func (m *Metrics) OverallRPS() float64 {
	m.mu.RLock()
	elapsed := m.now().Sub(m.startTime).Seconds()
	m.mu.RUnlock()

	if elapsed <= 0 {
		return 0
	}
	return float64(m.totalCompletions.Load()) / elapsed
}

// RangeFraction は完了のうちレンジ検索の割合を返す（0.0〜1.0）
func (m *Metrics) RangeFraction() float64 {
	total := m.totalCompletions.Load()
	if total == 0 {
		return 0
	}
	return float64(m.rangeCompletions.Load()) / float64(total)
}

// Latest はワーカーごとの最新レポートのコピーを返す
func (m *Metrics) Latest() map[string]Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.latest)
}

// Reset はウィンドウメトリクスをリセットする
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.windowCompletions = 0
	m.lastResetTime = m.now()
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	TotalCompletions uint64            `json:"total_completions"`
	PointCompletions uint64            `json:"point_completions"`
	RangeCompletions uint64            `json:"range_completions"`
	Reports          uint64            `json:"reports"`
	RPS              float64           `json:"rps"`
	OverallRPS       float64           `json:"overall_rps"`
	RangeFraction    float64           `json:"range_fraction"`
	Elapsed          time.Duration     `json:"elapsed_ns"`
	Workers          map[string]Sample `json:"workers"`
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	elapsed := m.now().Sub(m.startTime)
	m.mu.RUnlock()

	return Snapshot{
		TotalCompletions: m.TotalCompletions(),
		PointCompletions: m.PointCompletions(),
		RangeCompletions: m.RangeCompletions(),
		Reports:          m.Reports(),
		RPS:              m.RPS(),
		OverallRPS:       m.OverallRPS(),
		RangeFraction:    m.RangeFraction(),
		Elapsed:          elapsed,
		Workers:          m.Latest(),
	}
}
