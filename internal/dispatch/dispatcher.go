// Package dispatch routes decoded socket messages to the component that
// owns them.
//
// One inbound path exists per connection type: glasses frames carry
// lifecycle commands, photo responses and data streams; app frames
// carry subscription updates, display requests and photo requests.
// Dispatch mutates component state and emits outbound messages through
// the session's transport handles; it never blocks on a slow consumer,
// sends are synchronous best-effort writes.
package dispatch

import (
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/domain/session"
	"github.com/lumena-io/glasscloud/internal/domain/subscription"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/infrastructure/tracing"
	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// Hooks receives app lifecycle events, typically for webhook delivery.
type Hooks interface {
	AppStarted(sessionID, userID, pkg string)
}

// Options configures a Dispatcher.
type Options struct {
	Subs    *subscription.Registry
	Apps    *apps.Registry
	Hooks   Hooks
	Tracer  *tracing.Tracer
	Log     *logging.Logger
	Metrics *monitoring.Metrics
}

// Dispatcher routes inbound messages for every session. It is stateless
// itself; all state lives in the session and the registries.
type Dispatcher struct {
	subs    *subscription.Registry
	apps    *apps.Registry
	hooks   Hooks
	tracer  *tracing.Tracer
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	return &Dispatcher{
		subs:    opts.Subs,
		apps:    opts.Apps,
		hooks:   opts.Hooks,
		tracer:  opts.Tracer,
		log:     opts.Log,
		metrics: opts.Metrics,
	}
}

// StartApp begins the package's lifecycle in the session: track it,
// raise the boot banner, fire the lifecycle webhook and report the new
// app set to the glasses. It reports false when the app was already
// started.
func (d *Dispatcher) StartApp(s *session.Session, pkg string) bool {
	if pkg == "" {
		return false
	}
	if !s.Apps.Start(pkg) {
		d.log.Debug("App already started",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg))
		return false
	}

	s.Display.HandleAppStart(pkg)
	if d.hooks != nil {
		d.hooks.AppStarted(s.ID, s.UserID, pkg)
	}
	d.sendAppState(s)
	d.metrics.AddAppsRunning(1)

	d.log.Info("App started",
		zap.String("session_id", s.ID),
		zap.String("package_name", pkg))
	return true
}

// StopApp ends the package's lifecycle: display cleanup, subscription
// removal, socket detach, state report. Stopping an unknown app cleans
// up whatever traces exist and reports false.
func (d *Dispatcher) StopApp(s *session.Session, pkg string) bool {
	if pkg == "" {
		return false
	}
	known := s.Apps.Stop(pkg)

	s.Display.HandleAppStop(pkg)
	d.subs.Remove(s.ID, pkg)
	s.DetachTpa(pkg)

	if known {
		d.sendAppState(s)
		d.metrics.AddAppsRunning(-1)
		d.log.Info("App stopped",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg))
	}
	return known
}

// sendAppState reports the session's tracked app set to the glasses.
func (d *Dispatcher) sendAppState(s *session.Session) {
	msg := types.AppStateChange{
		Type:        types.MsgAppStateChange,
		RunningApps: s.Apps.Packages(),
	}
	if err := s.SendToGlasses(msg); err != nil {
		d.log.Debug("App state not delivered",
			zap.String("session_id", s.ID),
			zap.Error(err))
	}
}
