// Package logging provides structured logging using uber/zap.
//
// Production builds emit JSON; development builds use the colored
// console encoder. Components receive a *zap.Logger scoped with
// Component or Worker so every line carries its subsystem name or the
// worker's logical_id.
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Server starting", zap.String("port", "8000"))
//	logger.Worker("main").Warn("Load timed out")
package logging
