package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"lookup-bench/internal/dispatch"
	"lookup-bench/internal/events"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/metrics"

	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

// pushedEvents はWebSocketクライアントへ流すイベント種別
var pushedEvents = []events.EventType{
	events.EventLatencyReport,
	events.EventSessionConnected,
	events.EventSessionFailed,
}

// Server はステータスAPIサーバー
type Server struct {
	addr      string
	role      string
	startTime time.Time

	metrics     *metrics.Metrics
	eventBus    *events.Bus
	serverStats func() dispatch.Stats
	gatherer    prometheus.Gatherer

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool
	ln        net.Listener
	server    *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr, role string) *Server {
	return &Server{
		addr:      addr,
		role:      role,
		startTime: time.Now(),
		gatherer:  prometheus.DefaultGatherer,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// SetMetrics は集計メトリクスを設定する
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetEventBus はWebSocket配信元のイベントバスを設定する
func (s *Server) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// SetServerStats はサーバ統計の取得関数を設定する
func (s *Server) SetServerStats(fn func() dispatch.Stats) {
	s.serverStats = fn
}

// SetGatherer は /metrics で公開するレジストリを設定する
func (s *Server) SetGatherer(g prometheus.Gatherer) {
	s.gatherer = g
}

// Handler はルーティング済みのハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/reports", s.handleReports)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Start はサーバーを開始し、ctxがキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.ln = ln
	s.server = srv
	s.mu.Unlock()

	if s.eventBus != nil {
		go s.forwardLoop(ctx, s.eventBus.Subscribe(pushedEvents...))
	}

	logger.Info("api", "Status server listening on http://%s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeWebSockets()
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr は待ち受けアドレスを返す（Start前は設定値）
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Role             string          `json:"role"`
	UptimeSeconds    float64         `json:"uptime_seconds"`
	Workers          int             `json:"workers"`
	TotalCompletions uint64          `json:"total_completions"`
	RPS              float64         `json:"rps"`
	OverallRPS       float64         `json:"overall_rps"`
	RangeFraction    float64         `json:"range_fraction"`
	Server           *dispatch.Stats `json:"server,omitempty"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		Role:          s.role,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp.Workers = len(snap.Workers)
		resp.TotalCompletions = snap.TotalCompletions
		resp.RPS = snap.RPS
		resp.OverallRPS = snap.OverallRPS
		resp.RangeFraction = snap.RangeFraction
	}
	if s.serverStats != nil {
		st := s.serverStats()
		resp.Server = &st
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.status())
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reports := map[string]metrics.Sample{}
	if s.metrics != nil {
		reports = s.metrics.Latest()
	}
	s.writeJSON(w, reports)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// WSClients は接続中のWebSocketクライアント数を返す
func (s *Server) WSClients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) closeWebSockets() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ws := range s.wsClients {
		_ = ws.Close()
	}
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := gojson.Marshal(data)
	if err != nil {
		logger.Warn("api", "Failed to encode event: %v", err)
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

// forwardLoop はイベントバスの内容をWebSocketクライアントへ流す
func (s *Server) forwardLoop(ctx context.Context, ch <-chan events.Event) {
	defer s.eventBus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.broadcast(ev)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := gojson.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api", "Failed to encode JSON: %v", err)
	}
}
