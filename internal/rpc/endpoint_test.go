package rpc

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	echoType ReqType = 1
	slowType ReqType = 2
)

// echoHandler はリクエストの先頭8バイトに1を足して返す
func echoHandler(h *ReqHandle, r Responder) {
	v := binary.LittleEndian.Uint64(h.Request().Data())
	h.PreResp.Resize(8)
	binary.LittleEndian.PutUint64(h.PreResp.Data(), v+1)
	r.EnqueueResponse(h)
}

type testServer struct {
	nexus  *Nexus
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startServer(t *testing.T, threads int) *testServer {
	t.Helper()

	n := NewNexus(NexusConfig{ReqWindow: 4, NumBgThreads: 1})
	require.NoError(t, n.RegisterReqFunc(echoType, ReqFunc{Handler: echoHandler, Kind: Foreground}))
	require.NoError(t, n.RegisterReqFunc(slowType, ReqFunc{Handler: echoHandler, Kind: Background}))
	require.NoError(t, n.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	s := &testServer{nexus: n, cancel: cancel}

	for i := range threads {
		s.serveThread(t, ctx, i)
	}

	t.Cleanup(func() {
		s.cancel()
		s.wg.Wait()
		_ = n.Close()
	})
	return s
}

func (s *testServer) serveThread(t *testing.T, ctx context.Context, id int) {
	t.Helper()
	ep, err := s.nexus.NewEndpoint(id, nil)
	require.NoError(t, err)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for ctx.Err() == nil {
			ep.RunEventLoop(10 * time.Millisecond)
		}
	}()
}

func newClient(t *testing.T) (*Nexus, *Endpoint) {
	t.Helper()
	n := NewNexus(NexusConfig{ReqWindow: 4, ConnectRetry: 10 * time.Millisecond})
	ep, err := n.NewEndpoint(0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n, ep
}

func waitConnected(t *testing.T, ep *Endpoint, session int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !ep.IsConnected(session) {
		require.True(t, time.Now().Before(deadline), "session %d never connected", session)
		ep.RunEventLoop(10 * time.Millisecond)
	}
}

func encodeValue(v uint64) *MsgBuffer {
	m := NewMsgBuffer(8)
	binary.LittleEndian.PutUint64(m.Data(), v)
	return m
}

func TestSubmitAndComplete(t *testing.T) {
	srv := startServer(t, 1)
	_, ep := newClient(t)

	sess, err := ep.CreateSession(srv.nexus.Addr(), 0)
	require.NoError(t, err)
	waitConnected(t, ep, sess)

	results := make(map[int]uint64)
	cont := func(resp *MsgBuffer, tag int) {
		require.Equal(t, 8, resp.Size())
		results[tag] = binary.LittleEndian.Uint64(resp.Data())
	}

	for tag := range 4 {
		rt := echoType
		if tag == 3 {
			rt = slowType
		}
		err := ep.Submit(sess, rt, encodeValue(uint64(tag*10)), NewMsgBuffer(MaxMsgSize), cont, tag)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, ep.Outstanding(sess))

	// ウィンドウを超える送信は拒否される
	err = ep.Submit(sess, echoType, encodeValue(0), NewMsgBuffer(8), cont, 99)
	assert.ErrorIs(t, err, ErrWindowFull)

	deadline := time.Now().Add(5 * time.Second)
	for len(results) < 4 && time.Now().Before(deadline) {
		ep.RunEventLoop(10 * time.Millisecond)
	}

	assert.Equal(t, map[int]uint64{0: 1, 1: 11, 2: 21, 3: 31}, results)
	assert.Zero(t, ep.Outstanding(sess))
}

func TestContinuationMayResubmit(t *testing.T) {
	srv := startServer(t, 1)
	_, ep := newClient(t)

	sess, err := ep.CreateSession(srv.nexus.Addr(), 0)
	require.NoError(t, err)
	waitConnected(t, ep, sess)

	const window = 4
	completed := 0
	var cont ContFunc
	cont = func(resp *MsgBuffer, tag int) {
		completed++
		require.NoError(t, ep.Submit(sess, echoType, encodeValue(1), resp, cont, tag))
		assert.Equal(t, window, ep.Outstanding(sess))
	}

	for tag := range window {
		require.NoError(t, ep.Submit(sess, echoType, encodeValue(1), NewMsgBuffer(MaxMsgSize), cont, tag))
	}

	deadline := time.Now().Add(5 * time.Second)
	for completed < 200 && time.Now().Before(deadline) {
		ep.RunEventLoop(10 * time.Millisecond)
	}
	assert.GreaterOrEqual(t, completed, 200)
	assert.Equal(t, window, ep.Outstanding(sess))
}

func TestConnectRetriesUntilThreadRegistered(t *testing.T) {
	srv := startServer(t, 1)
	_, ep := newClient(t)

	sess, err := ep.CreateSession(srv.nexus.Addr(), 1)
	require.NoError(t, err)

	for range 5 {
		ep.RunEventLoop(10 * time.Millisecond)
	}
	assert.False(t, ep.IsConnected(sess))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv.serveThread(t, ctx, 1)

	waitConnected(t, ep, sess)
}

func TestSessionManagementHandler(t *testing.T) {
	srv := startServer(t, 1)

	n := NewNexus(NexusConfig{ReqWindow: 2})
	t.Cleanup(func() { _ = n.Close() })

	var events []SMEvent
	ep, err := n.NewEndpoint(3, func(ev SMEvent) { events = append(events, ev) })
	require.NoError(t, err)
	assert.Equal(t, 3, ep.ThreadID())

	sess, err := ep.CreateSession(srv.nexus.Addr(), 0)
	require.NoError(t, err)
	waitConnected(t, ep, sess)

	require.NotEmpty(t, events)
	assert.Equal(t, SMConnected, events[0].Type)
	assert.Equal(t, sess, events[0].Session)
}

func TestSubmitErrors(t *testing.T) {
	_, ep := newClient(t)
	noop := func(*MsgBuffer, int) {}

	err := ep.Submit(5, echoType, encodeValue(1), NewMsgBuffer(8), noop, 0)
	assert.ErrorIs(t, err, ErrUnknownSession)

	sess, err := ep.CreateSession("127.0.0.1:1", 0)
	require.NoError(t, err)
	err = ep.Submit(sess, echoType, encodeValue(1), NewMsgBuffer(8), noop, 0)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, ep.IsConnected(sess))
	assert.False(t, ep.IsConnected(42))
}

func TestRegisterReqFuncErrors(t *testing.T) {
	n := NewNexus(NexusConfig{})
	defer func() { _ = n.Close() }()

	err := n.RegisterReqFunc(1, ReqFunc{Handler: echoHandler, Kind: Background})
	assert.ErrorIs(t, err, ErrNoBackgroundThreads)

	assert.Error(t, n.RegisterReqFunc(1, ReqFunc{}))

	require.NoError(t, n.RegisterReqFunc(1, ReqFunc{Handler: echoHandler}))
	assert.Error(t, n.RegisterReqFunc(1, ReqFunc{Handler: echoHandler}))

	assert.Equal(t, MaxReqWindow, n.ReqWindow())
}

func TestNewEndpointDuplicate(t *testing.T) {
	n := NewNexus(NexusConfig{})
	defer func() { _ = n.Close() }()

	_, err := n.NewEndpoint(0, nil)
	require.NoError(t, err)
	_, err = n.NewEndpoint(0, nil)
	assert.ErrorIs(t, err, ErrEndpointExists)
}

func TestClosedEndpointRejectsSessions(t *testing.T) {
	_, ep := newClient(t)
	ep.Close()
	ep.Close()

	_, err := ep.CreateSession("127.0.0.1:1", 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, ep.RunEventLoopOnce())
}

func TestServerAcceptsFullWindowRegardlessOfOwnSetting(t *testing.T) {
	srvNexus := NewNexus(NexusConfig{ReqWindow: 2})
	require.NoError(t, srvNexus.RegisterReqFunc(echoType, ReqFunc{Handler: echoHandler}))
	require.NoError(t, srvNexus.Listen("127.0.0.1:0"))

	ctx, cancel := context.WithCancel(context.Background())
	srv := &testServer{nexus: srvNexus, cancel: cancel}
	srv.serveThread(t, ctx, 0)
	t.Cleanup(func() {
		cancel()
		srv.wg.Wait()
		_ = srvNexus.Close()
	})

	n := NewNexus(NexusConfig{ReqWindow: MaxReqWindow, ConnectRetry: 10 * time.Millisecond})
	t.Cleanup(func() { _ = n.Close() })
	ep, err := n.NewEndpoint(0, nil)
	require.NoError(t, err)

	sess, err := ep.CreateSession(srvNexus.Addr(), 0)
	require.NoError(t, err)
	waitConnected(t, ep, sess)

	results := make(map[int]uint64)
	cont := func(resp *MsgBuffer, tag int) {
		results[tag] = binary.LittleEndian.Uint64(resp.Data())
	}
	for tag := range MaxReqWindow {
		require.NoError(t, ep.Submit(sess, echoType, encodeValue(uint64(tag)), NewMsgBuffer(MaxMsgSize), cont, tag))
	}

	deadline := time.Now().Add(5 * time.Second)
	for len(results) < MaxReqWindow && time.Now().Before(deadline) {
		ep.RunEventLoop(10 * time.Millisecond)
	}

	require.Len(t, results, MaxReqWindow)
	for tag, v := range results {
		assert.Equal(t, uint64(tag+1), v)
	}
	assert.True(t, ep.IsConnected(sess))
}
