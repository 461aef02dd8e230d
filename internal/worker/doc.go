// Package worker provides the background execution contexts used by the server.
//
// A Pool runs a fixed number of goroutines that execute jobs from a bounded
// queue. The server dispatches slow requests (range scans) here so that they
// do not stall the foreground event loops serving point lookups.
//
// # Basic Usage
//
//	pool := worker.NewPoolWithConfig(worker.PoolConfig{
//	    Name:        "server-bg",
//	    NumWorkers:  2,
//	    LockThreads: true,
//	})
//	pool.Start(ctx)
//	defer pool.Stop()
//
//	if !pool.SubmitWait(func() { handle(req) }) {
//	    // pool is stopping
//	}
//
// # Shutdown
//
// Stop cancels the pool and waits for running jobs to return. Jobs still in
// the queue are abandoned, matching the benchmark's no-drain shutdown.
package worker
