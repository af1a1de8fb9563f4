// Package main is the scripthost server.
//
// It hosts the trusted side of the userscript runtime: the install pipeline
// that intercepts .user.js navigations, the privileged request handler that
// page contexts reach over the /bridge websocket, and the command API used by
// the host's own pages.
//
// Tabs are modelled in memory, or taken from a real Chromium over the
// DevTools protocol when CDP is enabled.
//
// Configuration:
//   - Environment variables (see internal/config)
//   - CLI flags (override env vars)
//
// Usage:
//
//	# In-memory tabs
//	./server -port 8000
//
//	# Drive a local Chromium started with --remote-debugging-port=9222
//	./server -cdp -cdp-url http://127.0.0.1:9222 -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
