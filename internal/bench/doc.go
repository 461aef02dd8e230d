// Package bench starts the server and client roles of the lookup benchmark.
//
// A server process builds the ordered index, registers the point and range
// handlers, and runs one event loop per foreground thread. A client process
// runs one closed-loop Engine per client thread, each bound to a single
// session with server thread (i mod num_server_fg_threads).
//
// Every worker owns its OS thread for its whole lifetime and can optionally be
// pinned to a core:
//
//	cfg := bench.DefaultConfig()
//	cfg.Role = bench.RoleServer
//	srv, err := bench.NewServer(cfg)
//	if err != nil {
//	    return err
//	}
//	err = srv.Run(ctx) // returns after ctx is cancelled
package bench
