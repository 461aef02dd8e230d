// Package client provides the closed-loop request pipeline that drives the benchmark.
//
// An Engine keeps exactly Window requests outstanding on one RPC session.
// Start issues one request per slot; after that the engine is driven purely
// by completions: OnCompletion records the round-trip latency in the
// histogram of the request's class, emits a Report every ReportInterval
// completions, and immediately reissues a fresh request on the same slot.
//
// # Basic Usage
//
//	eng := client.NewEngine(ep, client.Config{
//	    ThreadID: 0,
//	    Session:  sess,
//	    Window:   8,
//	    NumKeys:  1_000_000,
//	}, client.WithReporter(reporter))
//	eng.Start()
//	for ctx.Err() == nil {
//	    ep.RunEventLoop(200 * time.Millisecond)
//	}
//
// # Latency Quantization
//
// Point latencies are recorded in tenths of a microsecond; range latencies
// in units of ten microseconds. Reports convert both back to microseconds.
//
// # Failure Model
//
// A response of the wrong size, a negative latency, or a rejected submission
// means the transport contract is broken. The engine panics with a
// *ProtocolError instead of updating any state.
package client
