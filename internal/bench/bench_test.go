package bench

import (
	"context"
	"sync"
	"testing"
	"time"

	"lookup-bench/internal/client"
	"lookup-bench/internal/events"
	"lookup-bench/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reportLog struct {
	mu      sync.Mutex
	reports map[string][]client.Report
}

func (l *reportLog) Report(r client.Report) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[r.WorkerID] = append(l.reports[r.WorkerID], r)
}

func (l *reportLog) workers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.reports)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.NumKeys = 1000
	cfg.ReqWindow = 4
	cfg.NumServerFgThreads = 2
	cfg.NumServerBgThreads = 1
	cfg.BindHost = "127.0.0.1"
	cfg.Port = 0
	cfg.PinThreads = false
	cfg.ReportInterval = 200
	cfg.ConnectRetry = 10 * time.Millisecond
	return cfg
}

func startServer(t *testing.T, cfg Config) (*Server, <-chan error, context.CancelFunc) {
	t.Helper()

	srv, err := NewServer(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		cancel()
		t.Fatalf("server failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("server did not become ready")
	}
	return srv, errCh, cancel
}

func TestNewServerRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MachineID = 1

	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MachineID = 0

	_, err := NewClient(cfg)
	assert.Error(t, err)
}

func TestServerAndClients(t *testing.T) {
	cfg := testConfig()
	reg := prometheus.NewRegistry()

	srv, srvErr, stopServer := startServer(t, cfg)
	assert.Equal(t, 1000, srv.Index().Len())

	clientCfg := cfg
	clientCfg.MachineID = 1
	clientCfg.NumClientThreads = 3
	clientCfg.ServerAddr = srv.Addr()

	cl, err := NewClient(clientCfg)
	require.NoError(t, err)

	bus := events.NewBusWithBuffer(1024)
	sub := bus.Subscribe()
	m := metrics.New()
	log := &reportLog{reports: make(map[string][]client.Report)}
	cl.SetEventBus(bus)
	cl.SetMetrics(m)
	cl.SetRegisterer(reg)
	cl.AddReporter(log)

	ctx, cancel := context.WithCancel(context.Background())
	cliErr := make(chan error, 1)
	go func() { cliErr <- cl.Run(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for log.workers() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-cliErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}

	stopServer()
	select {
	case err := <-srvErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	require.Equal(t, 3, log.workers())
	for id, reports := range log.reports {
		for _, r := range reports {
			assert.Equal(t, uint64(200), r.Completions, id)
			assert.Equal(t, r.Completions, r.PointCount+r.RangeCount, id)
		}
	}

	assert.GreaterOrEqual(t, m.TotalCompletions(), uint64(600))
	assert.GreaterOrEqual(t, m.Reports(), uint64(3))
	for i, n := range cl.Completions() {
		assert.GreaterOrEqual(t, n, uint64(200), "thread %d", i)
	}

	st := srv.Stats()
	assert.GreaterOrEqual(t, st.Points+st.Ranges, uint64(600))
	assert.Zero(t, st.Mismatches)

	seen := map[events.EventType]int{}
	for len(sub) > 0 {
		ev := <-sub
		seen[ev.Type]++
	}
	assert.Equal(t, 3, seen[events.EventSessionConnected])
	assert.Equal(t, 3, seen[events.EventWorkerStarted])
	assert.GreaterOrEqual(t, seen[events.EventLatencyReport], 3)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["lookup_bench_completions_total"])
	assert.True(t, names["lookup_bench_reports_total"])
}

func TestClientWaitsForServer(t *testing.T) {
	cfg := testConfig()
	cfg.Role = RoleClient
	cfg.MachineID = 1
	cfg.ServerAddr = "127.0.0.1:1"

	cl, err := NewClient(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// 接続できないまま取り消されても正常終了する
	require.NoError(t, cl.Run(ctx))
	assert.Equal(t, []uint64{0}, cl.Completions())
}

func TestServerRunTwice(t *testing.T) {
	srv, errCh, cancel := startServer(t, testConfig())
	defer func() {
		cancel()
		<-errCh
	}()

	assert.Error(t, srv.Run(context.Background()))
}

func TestServerRegistersStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, err := NewServer(testConfig())
	require.NoError(t, err)
	srv.SetRegisterer(reg)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	<-srv.Ready()
	cancel()
	require.NoError(t, <-errCh)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["lookup_bench_server_point_lookups_total"])
}

func TestClientWindowLargerThanServerWindow(t *testing.T) {
	srvCfg := testConfig()
	srvCfg.ReqWindow = 2
	srvCfg.NumServerFgThreads = 1

	srv, srvErr, stopServer := startServer(t, srvCfg)
	defer func() {
		stopServer()
		<-srvErr
	}()

	clientCfg := testConfig()
	clientCfg.MachineID = 1
	clientCfg.ReqWindow = 8
	clientCfg.NumServerFgThreads = 1
	clientCfg.ServerAddr = srv.Addr()

	cl, err := NewClient(clientCfg)
	require.NoError(t, err)
	log := &reportLog{reports: make(map[string][]client.Report)}
	cl.AddReporter(log)

	ctx, cancel := context.WithCancel(context.Background())
	cliErr := make(chan error, 1)
	go func() { cliErr <- cl.Run(ctx) }()

	deadline := time.Now().Add(10 * time.Second)
	for log.workers() < 1 && time.Now().Before(deadline) {
		select {
		case err := <-cliErr:
			cancel()
			t.Fatalf("client stopped early: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-cliErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("client did not stop")
	}

	require.Equal(t, 1, log.workers())
	assert.GreaterOrEqual(t, cl.Completions()[0], uint64(200))
	assert.Zero(t, srv.Stats().Mismatches)
}
