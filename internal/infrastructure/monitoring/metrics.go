package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections *prometheus.GaugeVec
	WSMessages    *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// App lifecycle metrics
	AppsRunning prometheus.Gauge

	// Subscription metrics
	SubscriptionUpdates *prometheus.CounterVec
	SubscriptionsActive prometheus.Gauge

	// Display metrics
	DisplayRequests *prometheus.CounterVec
	DisplaySends    *prometheus.CounterVec
	LockReleases    *prometheus.CounterVec

	// Photo metrics
	PhotoRequests *prometheus.CounterVec
	PhotoLatency  prometheus.Histogram

	// Webhook metrics
	WebhookDeliveries *prometheus.CounterVec
	WebhookDuration   prometheus.Histogram

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON status API
type Snapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	ActiveSessions    int64
	ActiveConnections int64
	TotalDuration     float64 // sum of all request durations
	RequestCount      int64   // count for averaging
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glasscloud_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "glasscloud_ws_connections",
				Help: "Number of active WebSocket connections by role",
			},
			[]string{"role"},
		),
		WSMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),

		// Session metrics
		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "glasscloud_sessions_active",
				Help: "Number of active glasses sessions",
			},
		),
		SessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "glasscloud_sessions_total",
				Help: "Total number of sessions created",
			},
		),

		// App lifecycle metrics
		AppsRunning: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "glasscloud_apps_running",
				Help: "Number of started apps across all sessions",
			},
		),

		// Subscription metrics
		SubscriptionUpdates: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_subscription_updates_total",
				Help: "Total number of subscription set replacements",
			},
			[]string{"status"},
		),
		SubscriptionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "glasscloud_subscriptions_active",
				Help: "Number of live (session, app) subscription sets",
			},
		),

		// Display metrics
		DisplayRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_display_requests_total",
				Help: "Total number of display requests by outcome",
			},
			[]string{"outcome"},
		),
		DisplaySends: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_display_sends_total",
				Help: "Total number of frames sent to the glasses",
			},
			[]string{"view", "reason"},
		),
		LockReleases: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_display_lock_releases_total",
				Help: "Total number of background lock releases by cause",
			},
			[]string{"reason"},
		),

		// Photo metrics
		PhotoRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_photo_requests_total",
				Help: "Total number of photo requests by outcome",
			},
			[]string{"outcome"},
		),
		PhotoLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "glasscloud_photo_latency_seconds",
				Help:    "Photo round-trip latency in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		// Webhook metrics
		WebhookDeliveries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glasscloud_webhook_deliveries_total",
				Help: "Total number of webhook deliveries",
			},
			[]string{"event", "status"},
		),
		WebhookDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "glasscloud_webhook_duration_seconds",
				Help:    "Webhook delivery duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "glasscloud_uptime_seconds",
				Help: "Server uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// WSConnected tracks a new WebSocket connection for a role
func (m *Metrics) WSConnected(role string) {
	if m == nil {
		return
	}
	m.WSConnections.WithLabelValues(role).Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// WSDisconnected tracks a closed WebSocket connection for a role
func (m *Metrics) WSDisconnected(role string) {
	if m == nil {
		return
	}
	m.WSConnections.WithLabelValues(role).Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// SetSessionsActive sets the number of active sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// IncSessionsTotal increments the sessions created counter
func (m *Metrics) IncSessionsTotal() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
}

// AddAppsRunning moves the started-app gauge by delta. App starts add
// one, stops subtract one, and session teardown subtracts whatever was
// still tracked.
func (m *Metrics) AddAppsRunning(delta int) {
	if m == nil {
		return
	}
	m.AppsRunning.Add(float64(delta))
}

// RecordSubscriptionUpdate records a subscription set replacement
func (m *Metrics) RecordSubscriptionUpdate(status string) {
	if m == nil {
		return
	}
	m.SubscriptionUpdates.WithLabelValues(status).Inc()
}

// SetSubscriptionsActive sets the live subscription set count
func (m *Metrics) SetSubscriptionsActive(count int) {
	if m == nil {
		return
	}
	m.SubscriptionsActive.Set(float64(count))
}

// RecordDisplayRequest records a display request outcome
func (m *Metrics) RecordDisplayRequest(outcome string) {
	if m == nil {
		return
	}
	m.DisplayRequests.WithLabelValues(outcome).Inc()
}

// RecordDisplaySend records a frame sent to the glasses
func (m *Metrics) RecordDisplaySend(view, reason string) {
	if m == nil {
		return
	}
	m.DisplaySends.WithLabelValues(view, reason).Inc()
}

// RecordLockRelease records a background lock release
func (m *Metrics) RecordLockRelease(reason string) {
	if m == nil {
		return
	}
	m.LockReleases.WithLabelValues(reason).Inc()
}

// RecordPhotoRequest records a photo request outcome
func (m *Metrics) RecordPhotoRequest(outcome string) {
	if m == nil {
		return
	}
	m.PhotoRequests.WithLabelValues(outcome).Inc()
}

// ObservePhotoLatency records a completed photo round-trip duration
func (m *Metrics) ObservePhotoLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PhotoLatency.Observe(d.Seconds())
}

// RecordWebhookDelivery records a webhook delivery attempt result
func (m *Metrics) RecordWebhookDelivery(event, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(event, status).Inc()
	m.WebhookDuration.Observe(duration.Seconds())
}

// GetSnapshot returns the current snapshot values for the status API
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
