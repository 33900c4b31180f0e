/*
Package monitoring provides metrics collection for the host shell.

# Overview

Prometheus collectors for the HTTP control API, the message bus and the
worker supervisor. Each Metrics owns its registry, so tests can create as
many collectors as they like.

# Features

- Bus operations by kind and outcome (delivered, denied, invalid, rate_limited, dropped)
- Request resolutions by outcome and latency
- Worker lifecycle transitions, restarts, unrecoverable workers
- Window state flushes
- HTTP request metrics

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

All recording methods are no-ops on a nil *Metrics.
*/
package monitoring
