package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lookup-bench/internal/client"
	"lookup-bench/internal/events"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/metrics"
	"lookup-bench/internal/rpc"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// Client は複数のクライアントスレッドで負荷をかける
type Client struct {
	cfg       Config
	eventBus  *events.Bus
	metrics   *metrics.Metrics
	reg       prometheus.Registerer
	reporters []client.Reporter

	mu        sync.RWMutex
	running   bool
	startTime time.Time
	engines   []*client.Engine
}

// NewClient は新しいClientを作成する
func NewClient(cfg Config) (*Client, error) {
	cfg.Role = RoleClient
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return &Client{cfg: cfg}, nil
}

// SetEventBus はイベントバスを設定する
func (c *Client) SetEventBus(bus *events.Bus) {
	c.eventBus = bus
}

// SetMetrics は集計先のメトリクスを設定する
func (c *Client) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// SetRegisterer はレイテンシを公開するPrometheusレジストリを設定する
func (c *Client) SetRegisterer(reg prometheus.Registerer) {
	c.reg = reg
}

// AddReporter はレポートの出力先を追加する
func (c *Client) AddReporter(r client.Reporter) {
	c.reporters = append(c.reporters, r)
}

// Run は全スレッドを起動し、キャンセルされるかセッションが失われるまで待つ
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("client is already running")
	}
	c.running = true
	c.startTime = time.Now()
	c.engines = make([]*client.Engine, c.cfg.NumClientThreads)
	c.mu.Unlock()

	sink := reportSink{bus: c.eventBus, metrics: c.metrics}
	if c.reg != nil {
		sink.exporter = metrics.NewExporter(c.reg)
	}
	reporter := append(client.MultiReporter{client.LogReporter{}, sink}, c.reporters...)

	nexus := rpc.NewNexus(rpc.NexusConfig{
		ReqWindow:    c.cfg.ReqWindow,
		ConnectRetry: c.cfg.ConnectRetry,
	})
	defer func() {
		if err := nexus.Close(); err != nil {
			logger.Warn("client", "Failed to close nexus: %v", err)
		}
	}()

	remote := c.cfg.ServerHostPort()
	logger.Info("client", "Machine %d starting %d threads against %s (window %d)",
		c.cfg.MachineID, c.cfg.NumClientThreads, remote, c.cfg.ReqWindow)

	g, gctx := errgroup.WithContext(ctx)
	for i := range c.cfg.NumClientThreads {
		g.Go(func() error {
			return c.runThread(gctx, nexus, i, remote, reporter)
		})
	}
	return g.Wait()
}

// runThread はクライアントスレッド1本分の処理
func (c *Client) runThread(ctx context.Context, nexus *rpc.Nexus, i int, remote string, reporter client.Reporter) error {
	id := fmt.Sprintf("client-%d", i)
	defer lockThread(id, i, c.cfg.PinThreads)()

	var lost error
	ep, err := nexus.NewEndpoint(i, func(ev rpc.SMEvent) {
		switch ev.Type {
		case rpc.SMConnected:
			publish(c.eventBus, events.NewSessionConnectedEvent(id, remote, ev.Session))
		case rpc.SMConnectFailed, rpc.SMDisconnected:
			lost = fmt.Errorf("%s: session %d %s: %w", id, ev.Session, ev.Type, ev.Err)
			publish(c.eventBus, events.NewSessionFailedEvent(id, ev.Session, ev.Err))
		}
	})
	if err != nil {
		return fmt.Errorf("%s: failed to create endpoint: %w", id, err)
	}

	sess, err := ep.CreateSession(remote, c.cfg.ServerThreadFor(i))
	if err != nil {
		return fmt.Errorf("%s: failed to create session: %w", id, err)
	}

	for !ep.IsConnected(sess) {
		if ctx.Err() != nil {
			return nil
		}
		if lost != nil {
			return lost
		}
		ep.RunEventLoop(connectPoll)
	}
	logger.Info(id, "Sessions connected")

	eng := client.NewEngine(ep, client.Config{
		ThreadID:       i,
		Session:        sess,
		Window:         c.cfg.ReqWindow,
		NumKeys:        c.cfg.NumKeys,
		ReportInterval: c.cfg.ReportInterval,
		Seed1:          uint64(c.cfg.MachineID),
		Seed2:          uint64(i),
	}, client.WithReporter(reporter))

	c.mu.Lock()
	c.engines[i] = eng
	c.mu.Unlock()

	publish(c.eventBus, events.NewWorkerStartedEvent(id))
	defer publish(c.eventBus, events.NewWorkerStoppedEvent(id))

	eng.Start()
	for ctx.Err() == nil {
		ep.RunEventLoop(eventLoopTimeout)
		if lost != nil {
			return lost
		}
	}

	logger.Info(id, "Stopped after %d completions", eng.Total())
	return nil
}

// Completions はスレッドごとの累計完了数を返す（未接続のスレッドは0）
func (c *Client) Completions() []uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]uint64, len(c.engines))
	for i, eng := range c.engines {
		if eng != nil {
			out[i] = eng.Total()
		}
	}
	return out
}

// Uptime は起動からの経過時間を返す
func (c *Client) Uptime() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.startTime.IsZero() {
		return 0
	}
	return time.Since(c.startTime)
}
