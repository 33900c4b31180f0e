// Package main is the entry point for the shell host.
//
// The host supervises worker contexts (windows) and carries every
// host/worker message over a capability-checked bus. Workers run as
// embedded scripts, child processes speaking CBOR on stdio, or remote
// peers connected on /bridge/:id.
//
// Configuration:
//   - Environment variables (see internal/infrastructure/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# Channels and workers from manifests
//	./server --channels channels.yaml --workers workers.yaml --strict
//
//	# Development mode (colored logs, debug level)
//	./server --dev --log-level debug
//
// Signals:
//   - SIGINT, SIGTERM: close every worker, flush window state, exit
package main
