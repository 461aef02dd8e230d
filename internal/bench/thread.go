package bench

import (
	"context"
	"runtime"

	"lookup-bench/internal/events"
	"lookup-bench/internal/logger"
	"lookup-bench/internal/rpc"
)

// lockThread はゴルーチンをOSスレッドに固定し、必要ならコアへ割り当てる
// 戻り値の関数で固定を解除する。
func lockThread(id string, core int, pin bool) func() {
	runtime.LockOSThread()
	if pin {
		if err := pinToCore(core); err != nil {
			logger.Warn(id, "Failed to pin to core %d: %v", core, err)
		} else {
			logger.Debug(id, "Pinned to core %d", core)
		}
	}
	return runtime.UnlockOSThread
}

// runLoop はキャンセルされるまでイベントループを回す
func runLoop(ctx context.Context, ep *rpc.Endpoint) {
	for ctx.Err() == nil {
		ep.RunEventLoop(eventLoopTimeout)
	}
}

func publish(bus *events.Bus, ev events.Event) {
	if bus != nil {
		bus.Publish(ev)
	}
}
