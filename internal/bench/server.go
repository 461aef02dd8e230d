package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lookup-bench/internal/dispatch"
	"lookup-bench/internal/events"
	"lookup-bench/internal/index"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/metrics"
	"lookup-bench/internal/rpc"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Server はインデックスを保持してリクエストに応答するサーバ
type Server struct {
	cfg      Config
	idx      *index.Index
	disp     *dispatch.Dispatcher
	eventBus *events.Bus
	reg      prometheus.Registerer

	ready chan struct{}

	mu        sync.RWMutex
	nexus     *rpc.Nexus
	running   bool
	startTime time.Time
}

// NewServer は新しいServerを作成する
func NewServer(cfg Config) (*Server, error) {
	cfg.Role = RoleServer
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}

	idx := index.New()
	return &Server{
		cfg:   cfg,
		idx:   idx,
		disp:  dispatch.New(idx),
		ready: make(chan struct{}),
	}, nil
}

// SetEventBus はイベントバスを設定する
func (s *Server) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// SetRegisterer はサーバ統計を登録するPrometheusレジストリを設定する
func (s *Server) SetRegisterer(reg prometheus.Registerer) {
	s.reg = reg
}

// Run はインデックスを構築し、キャンセルされるまで応答を続ける
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	// 応答開始前に単一スレッドで投入する
	start := time.Now()
	if err := s.idx.Populate(s.cfg.NumKeys); err != nil {
		return fmt.Errorf("failed to populate index: %w", err)
	}
	s.idx.Seal()
	logger.Info("server", "Index populated with %d keys in %v", s.idx.Len(), time.Since(start).Round(time.Millisecond))
	publish(s.eventBus, events.NewIndexReadyEvent("server", s.cfg.NumKeys))

	nexus := rpc.NewNexus(rpc.NexusConfig{
		NumBgThreads:  s.cfg.NumServerBgThreads,
		LockBgThreads: s.cfg.PinThreads,
	})
	defer func() {
		if err := nexus.Close(); err != nil {
			logger.Warn("server", "Failed to close nexus: %v", err)
		}
	}()

	if err := s.disp.Register(nexus); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}
	if s.reg != nil {
		metrics.RegisterServerStats(s.reg,
			func() uint64 { return s.disp.Stats().Points },
			func() uint64 { return s.disp.Stats().Ranges },
			func() uint64 { return s.disp.Stats().Mismatches },
		)
	}

	endpoints := make([]*rpc.Endpoint, s.cfg.NumServerFgThreads)
	for i := range endpoints {
		ep, err := nexus.NewEndpoint(i, nil)
		if err != nil {
			return fmt.Errorf("failed to create endpoint %d: %w", i, err)
		}
		endpoints[i] = ep
	}

	if err := nexus.Listen(s.cfg.ListenAddr()); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.mu.Lock()
	s.nexus = nexus
	s.mu.Unlock()
	close(s.ready)

	logger.Info("server", "Listening on %s with %d foreground and %d background threads",
		nexus.Addr(), s.cfg.NumServerFgThreads, s.cfg.NumServerBgThreads)

	g, gctx := errgroup.WithContext(ctx)
	for i, ep := range endpoints {
		g.Go(func() error {
			id := fmt.Sprintf("server-%d", i)
			defer lockThread(id, i, s.cfg.PinThreads)()

			publish(s.eventBus, events.NewWorkerStartedEvent(id))
			runLoop(gctx, ep)
			publish(s.eventBus, events.NewWorkerStoppedEvent(id))
			return nil
		})
	}

	err := g.Wait()
	st := s.disp.Stats()
	logger.Info("server", "Stopped after %d point lookups and %d range scans", st.Points, st.Ranges)
	return err
}

// Ready は待ち受け開始時に閉じられるチャネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr は待ち受けアドレスを返す（Ready前は空文字列）
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nexus == nil {
		return ""
	}
	return s.nexus.Addr()
}

// Stats はディスパッチャの統計を返す
func (s *Server) Stats() dispatch.Stats {
	return s.disp.Stats()
}

// Index はサーバのインデックスを返す
func (s *Server) Index() index.Reader {
	return s.idx
}

// Uptime は起動からの経過時間を返す
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return time.Since(s.startTime)
}
