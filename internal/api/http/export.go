package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// historyExport is the export document shape.
type historyExport struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	ExportedAt time.Time `json:"exported_at"`
	History    any       `json:"history"`
}

// ExportHistory streams a session's subscription-change history as
// gzipped JSON. Ended sessions have no history left; the export exists
// for live debugging, not archival.
func (h *Handlers) ExportHistory(c *gin.Context) {
	sessionID := c.Param("id")
	s, ok := h.sessions.Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	doc := historyExport{
		SessionID:  sessionID,
		UserID:     s.UserID,
		ExportedAt: time.Now().UTC(),
		History:    h.subs.SessionHistory(sessionID),
	}

	c.Header("Content-Type", "application/json")
	c.Header("Content-Encoding", "gzip")
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s-subscriptions.json.gz", sessionID))
	c.Status(http.StatusOK)

	zw := gzip.NewWriter(c.Writer)
	defer zw.Close()
	// Headers are already out; an encode failure here can only be
	// truncated output on a dead client.
	_ = json.NewEncoder(zw).Encode(doc)
}
