// Package main is the entry point for the GlassCloud session server.
//
// The server terminates WebSocket connections from smart glasses and
// from third-party app (TPA) backends, and coordinates everything one
// glasses session needs: stream subscriptions, display arbitration,
// photo request round-trips and app lifecycle.
//
// Architecture:
//
//	Glasses ──ws──▶ GlassCloud ◀──ws── TPA backends
//	                    │
//	                    └──▶ webhook POSTs (app lifecycle)
//
// Configuration is layered: code defaults, then a TOML file (the
// GLASSCLOUD_CONFIG environment variable or the -config flag), then
// environment variables.
//
// Usage:
//
//	# Production mode
//	./server -config configs/glasscloud.toml
//
//	# Override the listen port
//	./server -port 9000
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
