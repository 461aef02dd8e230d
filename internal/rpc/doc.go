// Package rpc is the asynchronous request/response transport used by the benchmark.
//
// A process owns one Nexus, which holds the request-handler table, the
// background execution pool and (on servers) the listener. Every worker
// goroutine owns one Endpoint and drives it by calling RunEventLoop; all
// handlers and continuations run inside that call, on the worker's goroutine.
//
// # Sessions and Windows
//
// A client Endpoint opens sessions to remote endpoints with CreateSession.
// Each session has a fixed number of slots (the request window). Submit
// claims a free slot and never blocks; it fails with ErrWindowFull when every
// slot is in flight. The slot is released right before the continuation runs,
// so continuations may submit again immediately.
//
// # Server Handlers
//
// Handlers are registered per request type as Foreground (run inline on the
// endpoint's event loop) or Background (run on the Nexus pool). Each server
// session preallocates one ReqHandle per slot; a handler writes its reply into
// the handle's PreResp buffer and calls EnqueueResponse.
//
// # Wire Format
//
// Each message is one WebSocket binary frame carrying a 12-byte little-endian
// header followed by the payload:
//
//	kind u8 | reqType u8 | slot u16 | seq u32 | size u32 | payload[size]
package rpc
