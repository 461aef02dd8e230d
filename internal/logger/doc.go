// Package logger provides a leveled, thread-safe logging facility on top of log/slog.
//
// The logger supports four levels: Debug, Info, Warn, and Error.
// Each entry carries a timestamp, level, message, and an optional worker ID
// attribute identifying the client or server worker that produced it.
//
// # Basic Usage
//
// Using the default logger:
//
//	logger.Info("", "Server listening on %s", addr)
//	logger.Info("client-0", "Sessions connected")
//	logger.Error("server-1", "Failed: %v", err)
//
// Creating a custom logger:
//
//	l := logger.NewWithFormat(os.Stderr, logger.LevelDebug, logger.FormatJSON)
//	l.Debug("client-2", "Sent request on slot %d", 3)
//
// # Hot Paths
//
// Callers on per-request paths should guard formatting with Enabled:
//
//	if logger.Enabled(logger.LevelDebug) {
//	    logger.Debug(id, "Received response for slot %d", slot)
//	}
//
// # Thread Safety
//
// Handlers serialize writes internally; all operations are safe for concurrent use.
package logger
