package rpc

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"lookup-bench/internal/logger"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/net/websocket"
	"golang.org/x/time/rate"
)

// ContFunc はレスポンス受信時に呼ばれる継続
// resp は Submit で渡したレスポンスバッファ、tag は呼び出し側のタグ。
type ContFunc func(resp *MsgBuffer, tag int)

// sslot はクライアントセッションのスロット
type sslot struct {
	reqType ReqType
	resp    *MsgBuffer
	cont    ContFunc
	tag     int
	seq     uint32
	txBuf   []byte
}

// clientSession はリモートエンドポイントへのセッション
type clientSession struct {
	num          int
	remote       string
	remoteThread int

	// イベントループからのみ参照する
	connected bool
	busy      *bitset.BitSet
	slots     []sslot

	ws   *websocket.Conn
	tx   chan []byte
	done chan struct{}
	once sync.Once
}

func newClientSession(num int, remote string, remoteThread, window int) *clientSession {
	s := &clientSession{
		num:          num,
		remote:       remote,
		remoteThread: remoteThread,
		busy:         bitset.New(uint(window)),
		slots:        make([]sslot, window),
		tx:           make(chan []byte, window),
		done:         make(chan struct{}),
	}
	for i := range s.slots {
		s.slots[i].txBuf = make([]byte, headerSize+MaxMsgSize)
	}
	return s
}

// url は接続先のWebSocket URLを返す
func (s *clientSession) url() string {
	u := url.URL{
		Scheme:   "ws",
		Host:     s.remote,
		Path:     RPCPath,
		RawQuery: "thread=" + strconv.Itoa(s.remoteThread),
	}
	return u.String()
}

// outstanding は処理中のリクエスト数を返す
func (s *clientSession) outstanding() int {
	return int(s.busy.Count())
}

// connect は接続が成功するまで一定間隔で再試行する
func (s *clientSession) connect(ctx context.Context, ep *Endpoint) {
	limiter := rate.NewLimiter(rate.Every(ep.nexus.connectRetry), 1)
	attempt := 0

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		attempt++

		cfg, err := websocket.NewConfig(s.url(), "http://localhost/")
		if err != nil {
			ep.postSM(SMEvent{Type: SMConnectFailed, Session: s.num, Err: err})
			return
		}

		ws, err := cfg.DialContext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if attempt == 1 {
				logger.Info(ep.id, "Connect to %s (thread %d) failed, retrying every %v: %v",
					s.remote, s.remoteThread, ep.nexus.connectRetry, err)
			}
			continue
		}

		ws.PayloadType = websocket.BinaryFrame
		ep.postSM(SMEvent{Type: SMConnected, Session: s.num, conn: ws})
		return
	}
}

// start は送受信ゴルーチンを起動する
func (s *clientSession) start(ep *Endpoint, ws *websocket.Conn) {
	s.ws = ws
	go s.writeLoop(ep)
	go s.readLoop(ep)
}

// writeLoop は送信キューのフレームを順に書き出す
func (s *clientSession) writeLoop(ep *Endpoint) {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.tx:
			if err := websocket.Message.Send(s.ws, frame); err != nil {
				ep.postCompletion(completion{sess: s, err: err})
				s.close()
				return
			}
		}
	}
}

// readLoop はレスポンスを受信してイベントループへ渡す
func (s *clientSession) readLoop(ep *Endpoint) {
	for {
		var msg []byte
		if err := websocket.Message.Receive(s.ws, &msg); err != nil {
			ep.postCompletion(completion{sess: s, err: err})
			s.close()
			return
		}

		h, payload, err := parseFrame(msg)
		if err == nil && (h.kind != kindResponse || int(h.slot) >= len(s.slots)) {
			err = fmt.Errorf("%w: unexpected kind %d slot %d", ErrBadFrame, h.kind, h.slot)
		}
		if err != nil {
			ep.postCompletion(completion{sess: s, err: err})
			s.close()
			return
		}

		if !ep.postCompletion(completion{sess: s, slot: h.slot, seq: h.seq, payload: payload}) {
			return
		}
	}
}

// close はセッションを閉じる
func (s *clientSession) close() {
	s.once.Do(func() {
		close(s.done)
		if s.ws != nil {
			_ = s.ws.Close()
		}
	})
}

// serverSession はサーバー側のセッション
type serverSession struct {
	ep      *Endpoint
	ws      *websocket.Conn
	handles []*ReqHandle
	tx      chan []byte
	done    chan struct{}
	once    sync.Once
}

func newServerSession(ep *Endpoint, ws *websocket.Conn, window int) *serverSession {
	s := &serverSession{
		ep:      ep,
		ws:      ws,
		handles: make([]*ReqHandle, window),
		tx:      make(chan []byte, window),
		done:    make(chan struct{}),
	}
	for i := range s.handles {
		h := NewReqHandle(MaxMsgSize)
		h.slot = uint16(i)
		h.sess = s
		s.handles[i] = h
	}
	return s
}

// run は受信ループを実行し、切断まで戻らない
func (s *serverSession) run() {
	go s.writeLoop()
	defer s.close()

	for {
		var msg []byte
		if err := websocket.Message.Receive(s.ws, &msg); err != nil {
			return
		}

		h, payload, err := parseFrame(msg)
		if err == nil && (h.kind != kindRequest || int(h.slot) >= len(s.handles)) {
			err = fmt.Errorf("%w: unexpected kind %d slot %d", ErrBadFrame, h.kind, h.slot)
		}
		if err != nil {
			logger.Warn(s.ep.id, "Dropping session: %v", err)
			return
		}

		rh := s.handles[h.slot]
		rh.SetRequest(h.reqType, payload)
		rh.seq = h.seq

		if !s.ep.postRequest(rh, s.done) {
			return
		}
	}
}

// send はフレームを送信キューに入れる
func (s *serverSession) send(frame []byte) {
	select {
	case s.tx <- frame:
	case <-s.done:
	}
}

// writeLoop は送信キューのフレームを順に書き出す
func (s *serverSession) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case frame := <-s.tx:
			if err := websocket.Message.Send(s.ws, frame); err != nil {
				s.close()
				return
			}
		}
	}
}

// close はセッションを閉じる
func (s *serverSession) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.ws.Close()
	})
}
