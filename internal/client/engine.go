package client

import (
	"fmt"
	"sync/atomic"
	"time"

	"lookup-bench/internal/histogram"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/request"
	"lookup-bench/internal/rpc"

	"github.com/bits-and-blooms/bitset"
)

// DefaultReportInterval はレポート出力間隔（完了数）
const DefaultReportInterval = 1_000_000

const (
	pointScale = 10.0 // 0.1us 単位
	rangeScale = 0.1  // 10us 単位
)

// Submitter はリクエスト送信を行うトランスポートのインターフェース
type Submitter interface {
	Submit(session int, t rpc.ReqType, req, resp *rpc.MsgBuffer, cont rpc.ContFunc, tag int) error
}

// Ensure rpc.Endpoint implements Submitter
var _ Submitter = (*rpc.Endpoint)(nil)

// RequestSource はリクエストを生成するインターフェース
type RequestSource interface {
	Next() request.Request
}

// Ensure request.Generator implements RequestSource
var _ RequestSource = (*request.Generator)(nil)

// Config はEngineの設定
type Config struct {
	ThreadID       int    // クライアントスレッドID
	Session        int    // 送信先セッション番号
	Window         int    // 同時リクエスト数
	NumKeys        uint64 // キー空間のサイズ
	ReportInterval uint64 // レポート間隔（0でDefaultReportInterval）
	Seed1, Seed2   uint64 // 生成器のシード
}

// Option はEngineのオプション
type Option func(*Engine)

// WithClock は時刻取得関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithReporter はレポート出力先を設定する
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithSource はリクエスト生成器を差し替える
func WithSource(src RequestSource) Option {
	return func(e *Engine) { e.source = src }
}

// slot は送信中リクエスト1件分のバッファ対
type slot struct {
	req      *rpc.MsgBuffer
	resp     *rpc.MsgBuffer
	reqType  request.Type
	issuedAt time.Time
}

// Engine はクローズドループのリクエストパイプライン
type Engine struct {
	cfg      Config
	id       string
	tr       Submitter
	source   RequestSource
	reporter Reporter
	now      func() time.Time

	slots    []slot
	inFlight *bitset.BitSet

	point *histogram.Histogram
	rng   *histogram.Histogram

	completions uint64        // 前回レポート以降
	total       atomic.Uint64 // 他のゴルーチンからも読まれる
	started     bool

	cont rpc.ContFunc
}

// NewEngine は新しいEngineを作成する
func NewEngine(tr Submitter, cfg Config, opts ...Option) *Engine {
	if cfg.Window <= 0 {
		panic(fmt.Sprintf("client: invalid window %d", cfg.Window))
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = DefaultReportInterval
	}

	e := &Engine{
		cfg:      cfg,
		id:       fmt.Sprintf("client-%d", cfg.ThreadID),
		tr:       tr,
		now:      time.Now,
		slots:    make([]slot, cfg.Window),
		inFlight: bitset.New(uint(cfg.Window)),
		point:    histogram.New(),
		rng:      histogram.New(),
	}
	e.reporter = LogReporter{}
	for _, opt := range opts {
		opt(e)
	}
	if e.source == nil {
		e.source = request.NewGenerator(cfg.NumKeys, cfg.Seed1, cfg.Seed2)
	}

	for i := range e.slots {
		e.slots[i].req = rpc.NewMsgBuffer(request.WireSize)
		// サイズ不一致を検出できるよう、レスポンスは最大サイズで確保する
		e.slots[i].resp = rpc.NewMsgBuffer(rpc.MaxMsgSize)
	}
	e.cont = e.OnCompletion

	return e
}

// ID はワーカーIDを返す
func (e *Engine) ID() string {
	return e.id
}

// Start は全スロットのリクエストを1回ずつ送信する
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	for i := range e.slots {
		e.issue(i)
	}
	logger.Debug(e.id, "Issued %d initial requests", len(e.slots))
}

// issue はスロットに新しいリクエストを生成して送信する
func (e *Engine) issue(i int) {
	if e.inFlight.Test(uint(i)) {
		e.fatal(i, "issue on slot that is already in flight")
	}

	s := &e.slots[i]
	req := e.source.Next()
	if err := req.Encode(s.req.Data()); err != nil {
		e.fatal(i, err.Error())
	}
	s.reqType = req.Type
	s.issuedAt = e.now()
	e.inFlight.Set(uint(i))

	if logger.Enabled(logger.LevelDebug) {
		logger.Debug(e.id, "Sending %s on slot %d", req, i)
	}

	if err := e.tr.Submit(e.cfg.Session, rpc.ReqType(req.Type), s.req, s.resp, e.cont, i); err != nil {
		e.fatal(i, fmt.Sprintf("submit failed: %v", err))
	}
}

// OnCompletion はレスポンス受信時の継続
// レイテンシを記録し、必要ならレポートを出力して同じスロットで再送する。
func (e *Engine) OnCompletion(resp *rpc.MsgBuffer, tag int) {
	if tag < 0 || tag >= len(e.slots) || !e.inFlight.Test(uint(tag)) {
		e.fatal(tag, "completion for slot that is not in flight")
	}
	s := &e.slots[tag]

	elapsed := e.now().Sub(s.issuedAt)
	if elapsed < 0 {
		e.fatal(tag, fmt.Sprintf("negative latency %v", elapsed))
	}
	if resp.Size() != request.RespSize {
		e.fatal(tag, fmt.Sprintf("invalid response size %d, want %d", resp.Size(), request.RespSize))
	}

	usec := float64(elapsed.Nanoseconds()) / 1e3
	switch s.reqType {
	case request.TypePoint:
		e.point.Record(uint64(usec * pointScale))
	case request.TypeRange:
		e.rng.Record(uint64(usec * rangeScale))
	default:
		e.fatal(tag, fmt.Sprintf("unknown request type %d", s.reqType))
	}

	if logger.Enabled(logger.LevelDebug) {
		logger.Debug(e.id, "Received %s response for slot %d after %.2f us", s.reqType, tag, usec)
	}

	e.total.Add(1)
	e.completions++
	if e.completions == e.cfg.ReportInterval {
		e.report()
	}

	e.inFlight.Clear(uint(tag))
	e.issue(tag)
}

// report はパーセンタイルを出力し、ヒストグラムとカウンタをリセットする
func (e *Engine) report() {
	r := Report{
		ThreadID:    e.cfg.ThreadID,
		WorkerID:    e.id,
		Time:        e.now(),
		Completions: e.completions,
		Total:       e.total.Load(),
		PointCount:  e.point.Count(),
		RangeCount:  e.rng.Count(),
	}

	if p50, ok := e.point.Perc(0.5); ok {
		p99, _ := e.point.Perc(0.99)
		r.HasPoint = true
		r.PointP50 = float64(p50) / pointScale
		r.PointP99 = float64(p99) / pointScale
	}
	if p90, ok := e.rng.Perc(0.9); ok {
		r.HasRange = true
		r.RangeP90 = float64(p90) / rangeScale
	}

	e.reporter.Report(r)

	e.completions = 0
	e.point.Reset()
	e.rng.Reset()
}

// fatal はプロトコル違反としてパニックする
func (e *Engine) fatal(slot int, reason string) {
	panic(&ProtocolError{WorkerID: e.id, Slot: slot, Reason: reason})
}

// InFlight は送信中のスロット数を返す
func (e *Engine) InFlight() int {
	return int(e.inFlight.Count())
}

// Completions は前回レポート以降の完了数を返す
func (e *Engine) Completions() uint64 {
	return e.completions
}

// Total は累計完了数を返す
func (e *Engine) Total() uint64 {
	return e.total.Load()
}

// PointHistogram はポイント検索のヒストグラムを返す
func (e *Engine) PointHistogram() *histogram.Histogram {
	return e.point
}

// RangeHistogram はレンジ検索のヒストグラムを返す
func (e *Engine) RangeHistogram() *histogram.Histogram {
	return e.rng
}
