// Package dispatch implements the server-side request handlers.
//
// Point lookups run on the foreground event loop of the endpoint that
// received them; range scans run on the background pool so they never stall
// point traffic. Both handlers reply through the handle's preallocated
// response buffer with a single machine word: the value for a point lookup
// (request.NotFound if absent) and the number of entries visited for a range
// scan.
package dispatch

import (
	"sync/atomic"

	"lookup-bench/internal/index"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/request"
	"lookup-bench/internal/rpc"
)

const (
	PointReqType = rpc.ReqType(request.TypePoint)
	RangeReqType = rpc.ReqType(request.TypeRange)
)

// Stats はディスパッチャの統計情報
type Stats struct {
	Points     uint64 `json:"points"`
	Ranges     uint64 `json:"ranges"`
	Mismatches uint64 `json:"mismatches"`
}

// Dispatcher はインデックスを検索するリクエストハンドラの組
type Dispatcher struct {
	idx index.Reader

	points     atomic.Uint64
	ranges     atomic.Uint64
	mismatches atomic.Uint64
}

// New は新しいDispatcherを作成する
func New(idx index.Reader) *Dispatcher {
	return &Dispatcher{idx: idx}
}

// Register はNexusにハンドラを登録する
func (d *Dispatcher) Register(n *rpc.Nexus) error {
	if err := n.RegisterReqFunc(PointReqType, rpc.ReqFunc{
		Handler: d.PointHandler,
		Kind:    rpc.Foreground,
	}); err != nil {
		return err
	}
	return n.RegisterReqFunc(RangeReqType, rpc.ReqFunc{
		Handler: d.RangeHandler,
		Kind:    rpc.Background,
	})
}

// PointHandler はポイント検索を処理する
func (d *Dispatcher) PointHandler(h *rpc.ReqHandle, r rpc.Responder) {
	d.points.Add(1)

	v := request.NotFound
	if req, ok := d.decode(h); ok {
		if got, found := d.idx.Get(req.Key); found {
			v = got
		}
	}
	d.respond(h, r, v)
}

// RangeHandler はレンジ検索を処理する
func (d *Dispatcher) RangeHandler(h *rpc.ReqHandle, r rpc.Responder) {
	d.ranges.Add(1)

	v := request.NotFound
	if req, ok := d.decode(h); ok {
		v = uint64(d.idx.Scan(req.Key, req.Span, nil))
	}
	d.respond(h, r, v)
}

// decode はサイズを検証してリクエストを取り出す
// 不一致はクラッシュさせずに記録だけ行う。
func (d *Dispatcher) decode(h *rpc.ReqHandle) (request.Request, bool) {
	data := h.Request().Data()
	if len(data) != request.WireSize {
		d.mismatches.Add(1)
		logger.Warn("", "Request size mismatch on slot %d: got %d, want %d",
			h.Slot(), len(data), request.WireSize)
		return request.Request{}, false
	}

	req, err := request.Decode(data)
	if err != nil {
		d.mismatches.Add(1)
		logger.Warn("", "Bad request on slot %d: %v", h.Slot(), err)
		return request.Request{}, false
	}
	return req, true
}

// respond は事前確保バッファに結果を書き込んで送信する
func (d *Dispatcher) respond(h *rpc.ReqHandle, r rpc.Responder, v uint64) {
	h.PreResp.Resize(request.RespSize)
	_ = request.EncodeResponse(h.PreResp.Data(), v)
	r.EnqueueResponse(h)
}

// Stats は統計情報を返す
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Points:     d.points.Load(),
		Ranges:     d.ranges.Load(),
		Mismatches: d.mismatches.Load(),
	}
}
