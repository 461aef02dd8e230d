package rpc

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"lookup-bench/internal/logger"

	"golang.org/x/net/websocket"
)

// SMEventType はセッション管理イベントの種類
type SMEventType int

const (
	SMConnected SMEventType = iota
	SMConnectFailed
	SMDisconnected
)

func (t SMEventType) String() string {
	switch t {
	case SMConnected:
		return "connected"
	case SMConnectFailed:
		return "connect_failed"
	case SMDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// SMEvent はセッション管理イベント
type SMEvent struct {
	Type    SMEventType
	Session int
	Err     error

	conn *websocket.Conn
}

// SMHandler はセッション管理イベントのハンドラ
type SMHandler func(ev SMEvent)

// completion はイベントループへ渡されるレスポンスまたは切断通知
type completion struct {
	sess    *clientSession
	slot    uint16
	seq     uint32
	payload []byte
	err     error
}

const eventQueueSize = 1024

// Endpoint はワーカーごとのRPCエンドポイント
type Endpoint struct {
	nexus    *Nexus
	threadID int
	id       string
	sm       SMHandler

	// イベントループからのみ参照する
	sessions []*clientSession

	completions chan completion
	smEvents    chan SMEvent
	inbound     chan *ReqHandle

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	closed         bool
	serverSessions map[*serverSession]struct{}
}

func newEndpoint(n *Nexus, threadID int, sm SMHandler) *Endpoint {
	ctx, cancel := context.WithCancel(context.Background())
	return &Endpoint{
		nexus:          n,
		threadID:       threadID,
		id:             "rpc-" + strconv.Itoa(threadID),
		sm:             sm,
		completions:    make(chan completion, eventQueueSize),
		smEvents:       make(chan SMEvent, 16),
		inbound:        make(chan *ReqHandle, eventQueueSize),
		ctx:            ctx,
		cancel:         cancel,
		serverSessions: make(map[*serverSession]struct{}),
	}
}

// ThreadID はエンドポイントのスレッドIDを返す
func (e *Endpoint) ThreadID() int {
	return e.threadID
}

// CreateSession はリモートエンドポイントへのセッションを作成する
// 接続は非同期に行われ、完了時に SMConnected がイベントループで通知される。
func (e *Endpoint) CreateSession(remote string, remoteThread int) (int, error) {
	if e.ctx.Err() != nil {
		return 0, ErrClosed
	}
	if remoteThread < 0 {
		return 0, fmt.Errorf("rpc: invalid remote thread %d", remoteThread)
	}

	num := len(e.sessions)
	s := newClientSession(num, remote, remoteThread, e.nexus.window)
	e.sessions = append(e.sessions, s)

	go s.connect(e.ctx, e)

	logger.Debug(e.id, "Creating session %d to %s thread %d", num, remote, remoteThread)
	return num, nil
}

// IsConnected はセッションが接続済みかを返す
func (e *Endpoint) IsConnected(session int) bool {
	s, err := e.session(session)
	if err != nil {
		return false
	}
	return s.connected
}

// Outstanding はセッションで処理中のリクエスト数を返す
func (e *Endpoint) Outstanding(session int) int {
	s, err := e.session(session)
	if err != nil {
		return 0
	}
	return s.outstanding()
}

func (e *Endpoint) session(num int) (*clientSession, error) {
	if num < 0 || num >= len(e.sessions) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSession, num)
	}
	return e.sessions[num], nil
}

// Submit はリクエストを非同期に送信する
// 空きスロットが無い場合は ErrWindowFull を返し、ブロックしない。
func (e *Endpoint) Submit(session int, t ReqType, req, resp *MsgBuffer, cont ContFunc, tag int) error {
	s, err := e.session(session)
	if err != nil {
		return err
	}
	if !s.connected {
		return ErrNotConnected
	}
	if req.Size() > MaxMsgSize {
		return fmt.Errorf("%w: %d bytes", ErrMsgTooLarge, req.Size())
	}

	idx, ok := s.busy.NextClear(0)
	if !ok || int(idx) >= len(s.slots) {
		return ErrWindowFull
	}

	slot := &s.slots[idx]
	slot.reqType = t
	slot.resp = resp
	slot.cont = cont
	slot.tag = tag
	slot.seq++

	frame := encodeFrame(slot.txBuf, header{
		kind:    kindRequest,
		reqType: t,
		slot:    uint16(idx),
		seq:     slot.seq,
	}, req.Data())

	select {
	case s.tx <- frame:
	default:
		return ErrWindowFull
	}
	s.busy.Set(idx)
	return nil
}

// EnqueueResponse はハンドラが書き込んだ PreResp を非同期に送信する
func (e *Endpoint) EnqueueResponse(h *ReqHandle) {
	if h.sess == nil {
		return
	}
	frame := encodeFrame(h.txBuf, header{
		kind:    kindResponse,
		reqType: h.reqType,
		slot:    h.slot,
		seq:     h.seq,
	}, h.PreResp.Data())
	h.sess.send(frame)
}

// RunEventLoop は timeout の間イベントを処理する
func (e *Endpoint) RunEventLoop(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case c := <-e.completions:
			e.handleCompletion(c)
		case ev := <-e.smEvents:
			e.handleSM(ev)
		case h := <-e.inbound:
			e.dispatch(h)
		case <-timer.C:
			return
		case <-e.ctx.Done():
			return
		}
	}
}

// RunEventLoopOnce は待たずに処理可能なイベントを全て処理し、件数を返す
func (e *Endpoint) RunEventLoopOnce() int {
	n := 0
	for {
		select {
		case c := <-e.completions:
			e.handleCompletion(c)
		case ev := <-e.smEvents:
			e.handleSM(ev)
		case h := <-e.inbound:
			e.dispatch(h)
		default:
			return n
		}
		n++
	}
}

// handleCompletion はスロットを解放してから継続を呼び出す
func (e *Endpoint) handleCompletion(c completion) {
	s := c.sess
	if c.err != nil {
		if s.connected {
			s.connected = false
			e.handleSM(SMEvent{Type: SMDisconnected, Session: s.num, Err: c.err})
		}
		return
	}

	slot := &s.slots[c.slot]
	if !s.busy.Test(uint(c.slot)) || slot.seq != c.seq {
		logger.Warn(e.id, "Dropping stale response on session %d slot %d", s.num, c.slot)
		return
	}

	resp, cont, tag := slot.resp, slot.cont, slot.tag
	slot.resp = nil
	slot.cont = nil
	s.busy.Clear(uint(c.slot))

	resp.fill(c.payload)
	cont(resp, tag)
}

// handleSM はセッション管理イベントを処理する
func (e *Endpoint) handleSM(ev SMEvent) {
	if s, err := e.session(ev.Session); err == nil {
		switch ev.Type {
		case SMConnected:
			s.connected = true
			s.start(e, ev.conn)
			logger.Debug(e.id, "Session %d connected to %s", s.num, s.remote)
		case SMDisconnected, SMConnectFailed:
			s.connected = false
			logger.Warn(e.id, "Session %d %s: %v", s.num, ev.Type, ev.Err)
		}
	}

	if e.sm != nil {
		e.sm(ev)
	}
}

// dispatch はサーバー側で受信したリクエストをハンドラへ渡す
func (e *Endpoint) dispatch(h *ReqHandle) {
	f, ok := e.nexus.reqFunc(h.reqType)
	if !ok {
		// 空レスポンスを返し、クライアント側でサイズ不一致として検出させる
		logger.Warn(e.id, "%v: %d", ErrUnknownReqType, h.reqType)
		h.PreResp.Resize(0)
		e.EnqueueResponse(h)
		return
	}

	if f.Kind == Background {
		e.nexus.submitBackground(func() { f.Handler(h, e) })
		return
	}
	f.Handler(h, e)
}

// postSM はセッション管理イベントをイベントループへ渡す
func (e *Endpoint) postSM(ev SMEvent) {
	select {
	case e.smEvents <- ev:
	case <-e.ctx.Done():
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
	}
}

// postCompletion はレスポンスをイベントループへ渡す
func (e *Endpoint) postCompletion(c completion) bool {
	select {
	case e.completions <- c:
		return true
	case <-e.ctx.Done():
		return false
	}
}

// postRequest は受信リクエストをイベントループへ渡す
func (e *Endpoint) postRequest(h *ReqHandle, sessDone <-chan struct{}) bool {
	select {
	case e.inbound <- h:
		return true
	case <-sessDone:
		return false
	case <-e.ctx.Done():
		return false
	}
}

func (e *Endpoint) addServerSession(s *serverSession) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.serverSessions[s] = struct{}{}
	return true
}

func (e *Endpoint) removeServerSession(s *serverSession) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.serverSessions, s)
}

// Close はエンドポイントを閉じ、処理中のリクエストは破棄する
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sessions := make([]*serverSession, 0, len(e.serverSessions))
	for s := range e.serverSessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	e.cancel()
	for _, s := range sessions {
		s.close()
	}
	for _, s := range e.sessions {
		s.close()
	}
	e.nexus.removeEndpoint(e.threadID)
}
