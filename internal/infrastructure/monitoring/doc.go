/*
Package monitoring provides Prometheus metrics for the script host.

# Overview

Metrics cover the API, the bridge, privileged requests made for scripts,
install decisions taken by the network observer, confirmations and sandbox
runs. All collectors are registered on the Registerer passed to NewMetrics;
tests pass a fresh prometheus.NewRegistry().

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.InstallDecision("intercept")

A nil *Metrics is accepted everywhere and records nothing.
*/
package monitoring
