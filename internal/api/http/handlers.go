// Package http serves the introspection surface: health, service
// status, session listing and detail, subscription views and the
// history export. These endpoints observe, they never mutate; the
// product REST API lives elsewhere.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/domain/session"
	"github.com/lumena-io/glasscloud/internal/domain/subscription"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
)

// Handlers serves the ops endpoints.
type Handlers struct {
	sessions *session.Manager
	subs     *subscription.Registry
	apps     *apps.Registry
	metrics  *monitoring.Metrics
	version  string
	started  time.Time
}

// NewHandlers creates the ops handlers.
func NewHandlers(sessions *session.Manager, subs *subscription.Registry, appsReg *apps.Registry, metrics *monitoring.Metrics, version string) *Handlers {
	return &Handlers{
		sessions: sessions,
		subs:     subs,
		apps:     appsReg,
		metrics:  metrics,
		version:  version,
		started:  time.Now(),
	}
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "glasscloud",
		"version": h.version,
	})
}

// Status reports service-level counters across all live sessions,
// plus the aggregate request counters the middleware keeps.
func (h *Handlers) Status(c *gin.Context) {
	sessions := h.sessions.List()

	var glasses, appsTotal, appsRunning, pendingPhotos int
	for _, s := range sessions {
		if s.GlassesOpen() {
			glasses++
		}
		stats := s.Apps.Stats()
		appsTotal += stats.Total
		appsRunning += stats.Running
		pendingPhotos += s.Photos.Pending()
	}

	snap := h.metrics.GetSnapshot()
	var avgMs float64
	if snap.RequestCount > 0 {
		avgMs = snap.TotalDuration / float64(snap.RequestCount) * 1000
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "running",
		"version":           h.version,
		"uptime_seconds":    int64(time.Since(h.started).Seconds()),
		"sessions":          len(sessions),
		"glasses_connected": glasses,
		"apps_total":        appsTotal,
		"apps_running":      appsRunning,
		"pending_photos":    pendingPhotos,
		"registered_apps":   h.apps.Count(),
		"http_requests":     snap.TotalRequests,
		"http_errors":       snap.TotalErrors,
		"ws_connections":    snap.ActiveConnections,
		"avg_request_ms":    avgMs,
	})
}

// ListSessions returns a one-line summary per live session, ordered by
// creation time.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.sessions.List()

	out := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, gin.H{
			"id":                s.ID,
			"user_id":           s.UserID,
			"created_at":        s.CreatedAt,
			"glasses_connected": s.GlassesOpen(),
			"apps":              s.Apps.Stats().Total,
			"pending_photos":    s.Photos.Pending(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(out),
		"sessions": out,
	})
}

// GetSession returns one session's full snapshot, display and photo
// state included.
func (h *Handlers) GetSession(c *gin.Context) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, s.Info())
}

// GetSubscriptions returns every app's stored selector set for a
// session.
func (h *Handlers) GetSubscriptions(c *gin.Context) {
	sessionID := c.Param("id")
	if _, ok := h.sessions.Get(sessionID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":    sessionID,
		"subscriptions": h.subs.SessionSubscriptions(sessionID),
	})
}

// ListApps returns the manifest-registered app catalog.
func (h *Handlers) ListApps(c *gin.Context) {
	entries := h.apps.List()
	c.JSON(http.StatusOK, gin.H{
		"count": len(entries),
		"apps":  entries,
	})
}
