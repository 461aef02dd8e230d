//go:build linux

package bench

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCore は呼び出し元のOSスレッドをコアに固定する
// 呼び出し側で runtime.LockOSThread 済みであること。
func pinToCore(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core % runtime.NumCPU())
	return unix.SchedSetaffinity(0, &set)
}
