package rpc

import "errors"

var (
	ErrWindowFull          = errors.New("rpc: session request window full")
	ErrNotConnected        = errors.New("rpc: session not connected")
	ErrUnknownSession      = errors.New("rpc: unknown session")
	ErrUnknownReqType      = errors.New("rpc: unknown request type")
	ErrNoBackgroundThreads = errors.New("rpc: background handler registered without background threads")
	ErrMsgTooLarge         = errors.New("rpc: message exceeds maximum size")
	ErrBadFrame            = errors.New("rpc: malformed frame")
	ErrEndpointExists      = errors.New("rpc: endpoint already registered for thread")
	ErrClosed              = errors.New("rpc: endpoint closed")
)
