/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the cloud,
tracking HTTP requests, WebSocket traffic, session lifecycle, display
arbitration, photo round-trips, and webhook deliveries.

# Features

- HTTP request metrics (latency, throughput)
- WebSocket connection and message metrics
- Session and app lifecycle metrics
- Subscription registry metrics
- Display arbitration metrics (requests, sends, lock releases)
- Photo request metrics (outcomes, latency)
- Webhook delivery metrics
- System metrics (uptime)

All record methods tolerate a nil receiver, so components constructed
without metrics in tests log nothing and never panic.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record custom metrics
	metrics.SetSessionsActive(5)
	metrics.RecordDisplayRequest("shown")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
