// Package photo correlates app photo requests with glasses responses.
//
// Every in-flight request lives in a pending table under its request ID
// and leaves it through exactly one of three doors: the glasses respond,
// the timeout fires, or the session is disposed. The entry is always
// removed before any side effect runs, so a racing response and timeout
// can never both reply to the app.
package photo

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/shared/id"
	"github.com/lumena-io/glasscloud/internal/shared/pending"
	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// DefaultTimeout bounds how long a photo request may wait for the
// glasses before it is failed.
const DefaultTimeout = 30 * time.Second

// Request preconditions, one sentinel per failed check.
var (
	ErrAppNotRunning       = errors.New("requesting app is not running")
	ErrTpaSocketClosed     = errors.New("app socket is closed")
	ErrGlassesSocketClosed = errors.New("glasses socket is closed")
)

// Transport is the session-side view the coordinator needs: liveness
// checks at call time and writes to both peers.
type Transport interface {
	IsAppRunning(packageName string) bool
	GlassesOpen() bool
	TpaOpen(packageName string) bool
	SendToGlasses(v any) error
	SendToTpa(packageName string, v any) error
}

// Options configures a Coordinator. SessionID and Transport are
// required; the rest default.
type Options struct {
	SessionID string
	Transport Transport
	Clock     clock.Clock
	Timeout   time.Duration
	Log       *logging.Logger
	Metrics   *monitoring.Metrics
}

type pendingRequest struct {
	packageName string
	requestedAt time.Time
}

// Coordinator tracks one session's in-flight photo requests.
type Coordinator struct {
	sessionID string
	transport Transport
	clk       clock.Clock
	timeout   time.Duration
	table     *pending.Table[pendingRequest]
	log       *logging.Logger
	metrics   *monitoring.Metrics
}

// NewCoordinator creates a photo coordinator for one session.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	return &Coordinator{
		sessionID: opts.SessionID,
		transport: opts.Transport,
		clk:       opts.Clock,
		timeout:   opts.Timeout,
		table:     pending.New[pendingRequest](opts.Clock),
		log:       opts.Log,
		metrics:   opts.Metrics,
	}
}

// RequestPhoto validates liveness of both peers, records a pending
// request and sends the capture command to the glasses. It returns the
// request ID the response will carry. A failed send rolls the pending
// entry back before the error propagates.
func (c *Coordinator) RequestPhoto(req types.PhotoRequestMessage) (string, error) {
	switch {
	case !c.transport.IsAppRunning(req.PackageName):
		c.metrics.RecordPhotoRequest("app_not_running")
		return "", fmt.Errorf("photo request from %s: %w", req.PackageName, ErrAppNotRunning)
	case !c.transport.TpaOpen(req.PackageName):
		c.metrics.RecordPhotoRequest("tpa_closed")
		return "", fmt.Errorf("photo request from %s: %w", req.PackageName, ErrTpaSocketClosed)
	case !c.transport.GlassesOpen():
		c.metrics.RecordPhotoRequest("glasses_closed")
		return "", fmt.Errorf("photo request from %s: %w", req.PackageName, ErrGlassesSocketClosed)
	}

	requestID := id.NewRequestID().String()
	c.table.Put(requestID, pendingRequest{
		packageName: req.PackageName,
		requestedAt: c.clk.Now(),
	}, c.timeout, c.requestExpired)

	cmd := types.PhotoCommand{
		Type:          types.MsgPhotoRequest,
		RequestID:     requestID,
		PackageName:   req.PackageName,
		SaveToGallery: req.SaveToGallery,
		Timestamp:     c.clk.Now(),
	}
	if err := c.transport.SendToGlasses(cmd); err != nil {
		c.table.Remove(requestID)
		c.metrics.RecordPhotoRequest("send_failed")
		return "", fmt.Errorf("photo command for %s: %w", req.PackageName, err)
	}

	c.metrics.RecordPhotoRequest("sent")
	c.log.Debug("Photo request sent to glasses",
		zap.String("session_id", c.sessionID),
		zap.String("package_name", req.PackageName),
		zap.String("request_id", requestID))
	return requestID, nil
}

// HandleResponse resolves the pending request for requestID and forwards
// payload verbatim to the app that asked. An unknown or already-resolved
// requestID is an expected race (the timeout won, or the glasses sent a
// duplicate) and is dropped without error. An app whose socket closed in
// the meantime simply misses its photo.
func (c *Coordinator) HandleResponse(requestID string, payload any) {
	entry, ok := c.table.Remove(requestID)
	if !ok {
		c.metrics.RecordPhotoRequest("dropped")
		c.log.Debug("Dropping photo response with no pending request",
			zap.String("session_id", c.sessionID),
			zap.String("request_id", requestID))
		return
	}

	c.metrics.ObservePhotoLatency(c.clk.Now().Sub(entry.requestedAt))
	if !c.transport.TpaOpen(entry.packageName) {
		c.metrics.RecordPhotoRequest("app_gone")
		c.log.Debug("Photo arrived after the app disconnected",
			zap.String("session_id", c.sessionID),
			zap.String("package_name", entry.packageName),
			zap.String("request_id", requestID))
		return
	}
	if err := c.transport.SendToTpa(entry.packageName, payload); err != nil {
		c.metrics.RecordPhotoRequest("forward_failed")
		c.log.Warn("Could not forward photo response",
			zap.String("session_id", c.sessionID),
			zap.String("package_name", entry.packageName),
			zap.String("request_id", requestID),
			zap.Error(err))
		return
	}
	c.metrics.RecordPhotoRequest("completed")
}

// requestExpired runs when the timeout claims an entry before a
// response does. The app gets an explicit failure message while its
// socket is still open; a late response from the glasses is now a no-op.
func (c *Coordinator) requestExpired(requestID string, entry pendingRequest) {
	c.metrics.RecordPhotoRequest("timeout")
	c.log.Warn("Photo request timed out",
		zap.String("session_id", c.sessionID),
		zap.String("package_name", entry.packageName),
		zap.String("request_id", requestID),
		zap.Duration("timeout", c.timeout))

	if !c.transport.TpaOpen(entry.packageName) {
		return
	}
	failure := types.PhotoError{
		Type:      types.MsgPhotoError,
		RequestID: requestID,
		Error:     "photo request timed out",
	}
	if err := c.transport.SendToTpa(entry.packageName, failure); err != nil {
		c.log.Debug("Could not deliver photo timeout notice",
			zap.String("session_id", c.sessionID),
			zap.String("package_name", entry.packageName),
			zap.Error(err))
	}
}

// Pending reports the number of in-flight photo requests.
func (c *Coordinator) Pending() int {
	return c.table.Len()
}

// Dispose cancels every in-flight request without notifying anyone. The
// session is going away; both sockets are as good as closed.
func (c *Coordinator) Dispose() {
	dropped := c.table.Drain()
	if len(dropped) > 0 {
		c.log.Debug("Dropped in-flight photo requests",
			zap.String("session_id", c.sessionID),
			zap.Int("count", len(dropped)))
	}
}
