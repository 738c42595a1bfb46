// Package ws terminates the two WebSocket surfaces: the glasses socket,
// whose lifetime IS the session, and the per-app TPA sockets that join
// an existing session. Handlers upgrade, hand frames to dispatch, and
// tear down on read-loop exit.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/dispatch"
	"github.com/lumena-io/glasscloud/internal/domain/session"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/shared/id"
	"github.com/lumena-io/glasscloud/internal/shared/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Glasses and TPA backends connect from arbitrary networks;
		// identity comes from the query parameters, not the Origin.
		return true
	},
}

// Handler owns the WebSocket endpoints.
type Handler struct {
	sessions *session.Manager
	dispatch *dispatch.Dispatcher
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *session.Manager, d *dispatch.Dispatcher, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{sessions: sessions, dispatch: d, log: log, metrics: metrics}
}

// HandleGlasses upgrades a glasses connection. Each connection creates a
// fresh session; when the read loop exits the session ends with it.
func (h *Handler) HandleGlasses(c *gin.Context) {
	userID := c.Query("user_id")
	if err := utils.ValidateUserID(userID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Glasses upgrade failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	raw.SetReadLimit(utils.MaxAudioChunkSize)
	conn := newConn(raw)
	defer conn.Close()

	h.metrics.WSConnected("glasses")
	defer h.metrics.WSDisconnected("glasses")

	sess := h.sessions.Create(userID)
	h.dispatch.GlassesConnected(sess, conn)

	for {
		messageType, data, err := raw.ReadMessage()
		if err != nil {
			break
		}
		switch messageType {
		case websocket.TextMessage:
			if err := utils.ValidateFrameSize(data); err != nil {
				h.log.Warn("Oversized glasses frame dropped",
					zap.String("session_id", sess.ID),
					zap.Error(err))
				continue
			}
			h.dispatch.HandleGlassesMessage(sess, data)
		case websocket.BinaryMessage:
			if err := utils.ValidateAudioSize(data); err != nil {
				h.log.Warn("Oversized audio chunk dropped",
					zap.String("session_id", sess.ID),
					zap.Error(err))
				continue
			}
			h.dispatch.HandleAudioChunk(sess, data)
		}
	}

	h.sessions.End(sess.ID)
}

// HandleTpa upgrades an app connection into an existing session. The
// package identity binds here and stays authoritative for every frame
// the connection delivers.
func (h *Handler) HandleTpa(c *gin.Context) {
	sessionID := c.Query("session_id")
	pkg := c.Query("package_name")

	if !id.IsValid(sessionID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is not a valid id"})
		return
	}
	if err := utils.ValidatePackageName(pkg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("App upgrade failed",
			zap.String("session_id", sessionID),
			zap.String("package_name", pkg),
			zap.Error(err))
		return
	}
	raw.SetReadLimit(utils.MaxMessageSize)
	conn := newConn(raw)
	defer conn.Close()

	h.metrics.WSConnected("tpa")
	defer h.metrics.WSDisconnected("tpa")

	h.dispatch.TpaConnected(sess, pkg, conn)

	for {
		messageType, data, err := raw.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.dispatch.HandleTpaMessage(sess, pkg, data)
	}

	// A replaced connection's loop exits after AttachTpa closed it; only
	// the live handle may stop the app.
	if sess.TpaAttached(pkg, conn) {
		h.dispatch.TpaDisconnected(sess, pkg)
	}
}
