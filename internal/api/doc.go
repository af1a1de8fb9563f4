// Package api is the host's HTTP surface, served with gin.
//
// Routes:
//   - GET  /health: liveness and the number of registered commands
//   - GET  /confirm/:key: a pending install confirmation and its cached code
//   - POST /commands/:name: runs a public command; body {"payload": ..., "tab_id": n}
//   - GET  /bridge: websocket upgrade; the trusted request handler serves the
//     page bridge on it, ?tab=n names the page's tab
//   - GET  /metrics: Prometheus exposition
//
// Example Usage:
//
//	srv := api.New(api.ConfigFrom(cfg), api.Deps{
//		Commands: reg,
//		Confirms: redirector,
//		Tabs:     surface,
//		Trusted:  handler,
//		Metrics:  metrics,
//		Logger:   logger,
//	})
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package api
