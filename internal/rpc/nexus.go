package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"lookup-bench/internal/logger"
	"lookup-bench/internal/worker"

	"golang.org/x/net/websocket"
)

const (
	// MaxReqWindow はセッションあたりの最大同時リクエスト数
	MaxReqWindow = 8

	// RPCPath はセッション受け付けのHTTPパス
	RPCPath = "/rpc"

	defaultConnectRetry = 100 * time.Millisecond
)

// NexusConfig はNexusの設定
type NexusConfig struct {
	ReqWindow     int           // クライアントセッションのスロット数（0でMaxReqWindow）
	NumBgThreads  int           // バックグラウンドハンドラ用スレッド数
	LockBgThreads bool          // バックグラウンドスレッドをOSスレッドに固定
	ConnectRetry  time.Duration // セッション接続の再試行間隔
}

// Nexus はプロセス単位のRPC管理オブジェクト
type Nexus struct {
	window       int
	connectRetry time.Duration

	mu        sync.RWMutex
	handlers  map[ReqType]ReqFunc
	endpoints map[int]*Endpoint

	bg *worker.Pool

	ln  net.Listener
	srv *http.Server
}

// NewNexus は新しいNexusを作成する
func NewNexus(cfg NexusConfig) *Nexus {
	window := cfg.ReqWindow
	if window <= 0 || window > MaxReqWindow {
		window = MaxReqWindow
	}
	retry := cfg.ConnectRetry
	if retry <= 0 {
		retry = defaultConnectRetry
	}

	n := &Nexus{
		window:       window,
		connectRetry: retry,
		handlers:     make(map[ReqType]ReqFunc),
		endpoints:    make(map[int]*Endpoint),
	}

	if cfg.NumBgThreads > 0 {
		n.bg = worker.NewPoolWithConfig(worker.PoolConfig{
			Name:        "rpc-bg",
			NumWorkers:  cfg.NumBgThreads,
			LockThreads: cfg.LockBgThreads,
		})
		n.bg.Start(context.Background())
	}

	return n
}

// ReqWindow はクライアントセッションのスロット数を返す
func (n *Nexus) ReqWindow() int {
	return n.window
}

// RegisterReqFunc はリクエスト種別にハンドラを登録する
func (n *Nexus) RegisterReqFunc(t ReqType, f ReqFunc) error {
	if f.Handler == nil {
		return fmt.Errorf("rpc: nil handler for request type %d", t)
	}
	if f.Kind == Background && n.bg == nil {
		return ErrNoBackgroundThreads
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.handlers[t]; exists {
		return fmt.Errorf("rpc: handler for request type %d already registered", t)
	}
	n.handlers[t] = f
	return nil
}

// reqFunc は登録済みハンドラを取得する
func (n *Nexus) reqFunc(t ReqType) (ReqFunc, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	f, ok := n.handlers[t]
	return f, ok
}

// NewEndpoint はスレッドIDに紐づくエンドポイントを作成する
func (n *Nexus) NewEndpoint(threadID int, sm SMHandler) (*Endpoint, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, exists := n.endpoints[threadID]; exists {
		return nil, fmt.Errorf("%w: %d", ErrEndpointExists, threadID)
	}

	ep := newEndpoint(n, threadID, sm)
	n.endpoints[threadID] = ep
	return ep, nil
}

// endpoint はスレッドIDのエンドポイントを返す
func (n *Nexus) endpoint(threadID int) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.endpoints[threadID]
	return ep, ok
}

// removeEndpoint は登録を解除する
func (n *Nexus) removeEndpoint(threadID int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, threadID)
}

// Listen はセッション受け付けを開始する
func (n *Nexus) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(RPCPath, websocket.Server{
		Handshake: n.handshake,
		Handler:   n.serveSession,
	})

	n.ln = ln
	n.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := n.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("", "RPC listener stopped: %v", err)
		}
	}()

	logger.Info("", "RPC listening on %s", ln.Addr())
	return nil
}

// Addr は待ち受けアドレスを返す
func (n *Nexus) Addr() string {
	if n.ln == nil {
		return ""
	}
	return n.ln.Addr().String()
}

// handshake は接続先スレッドが登録済みかを確認する
// 未登録の場合は拒否し、クライアントは再試行する。
func (n *Nexus) handshake(_ *websocket.Config, r *http.Request) error {
	id, err := strconv.Atoi(r.URL.Query().Get("thread"))
	if err != nil {
		return fmt.Errorf("rpc: bad thread parameter: %w", err)
	}
	if _, ok := n.endpoint(id); !ok {
		return fmt.Errorf("rpc: no endpoint for thread %d", id)
	}
	return nil
}

// serveSession は1つのサーバーセッションを処理する
func (n *Nexus) serveSession(ws *websocket.Conn) {
	ws.PayloadType = websocket.BinaryFrame

	id, _ := strconv.Atoi(ws.Request().URL.Query().Get("thread"))
	ep, ok := n.endpoint(id)
	if !ok {
		_ = ws.Close()
		return
	}

	// 接続元のウィンドウは不明なので、サーバー側は常に最大数を確保する
	s := newServerSession(ep, ws, MaxReqWindow)
	if !ep.addServerSession(s) {
		_ = ws.Close()
		return
	}
	defer ep.removeServerSession(s)

	logger.Debug(ep.id, "Accepted session from %s", ws.Request().RemoteAddr)
	s.run()
}

// submitBackground はバックグラウンドプールでハンドラを実行する
func (n *Nexus) submitBackground(job worker.Job) bool {
	return n.bg.SubmitWait(job)
}

// Close はリスナーとバックグラウンドプールを停止する
func (n *Nexus) Close() error {
	var err error
	if n.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		err = n.srv.Shutdown(ctx)
	}

	n.mu.RLock()
	eps := make([]*Endpoint, 0, len(n.endpoints))
	for _, ep := range n.endpoints {
		eps = append(eps, ep)
	}
	n.mu.RUnlock()

	for _, ep := range eps {
		ep.Close()
	}

	if n.bg != nil {
		n.bg.Stop()
	}
	return err
}
