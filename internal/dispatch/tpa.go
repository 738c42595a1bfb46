package dispatch

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/domain/session"
	"github.com/lumena-io/glasscloud/internal/shared/types"
	"github.com/lumena-io/glasscloud/internal/shared/utils"
)

// TpaConnected attaches an app socket to the session and acknowledges
// it. Apps that connect without a start command are adopted into the
// tracked set, so the glasses see them in the state report.
func (d *Dispatcher) TpaConnected(s *session.Session, pkg string, conn session.Conn) {
	s.AttachTpa(pkg, conn)

	ack := types.TpaConnectionAck{
		Type:        types.MsgTpaConnectionAck,
		SessionID:   s.ID,
		PackageName: pkg,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.SendToTpa(pkg, ack); err != nil {
		d.log.Warn("App connection ack not delivered",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.Error(err))
	}
	d.sendAppState(s)

	d.log.Info("App connected",
		zap.String("session_id", s.ID),
		zap.String("package_name", pkg))
}

// TpaDisconnected stops the app. A package with no socket cannot hold
// subscriptions or the display, so disconnect and stop are the same
// cleanup.
func (d *Dispatcher) TpaDisconnected(s *session.Session, pkg string) {
	d.StopApp(s, pkg)
	d.log.Info("App disconnected",
		zap.String("session_id", s.ID),
		zap.String("package_name", pkg))
}

// HandleTpaMessage routes one text frame from an app socket. The
// package identity bound at connect time wins over whatever the message
// body claims.
func (d *Dispatcher) HandleTpaMessage(s *session.Session, pkg string, raw []byte) {
	var env types.TpaEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		d.log.Debug("Dropping unparseable app message",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.Error(err))
		return
	}
	d.metrics.RecordWSMessage("in", env.Type)

	if env.PackageName != "" && env.PackageName != pkg {
		d.log.Warn("Message claims foreign package",
			zap.String("session_id", s.ID),
			zap.String("bound", pkg),
			zap.String("claimed", env.PackageName))
	}

	if d.tracer != nil {
		span, _ := d.tracer.StartEventSpan(context.Background(), s.ID, env.Type)
		defer span.Finish()
	}

	switch env.Type {
	case types.MsgSubscriptionUpdate:
		d.handleSubscriptionUpdate(s, pkg, raw)
	case types.MsgDisplayRequest:
		d.handleDisplayRequest(s, pkg, raw)
	case types.MsgPhotoRequest:
		d.handlePhotoRequest(s, pkg, raw)
	default:
		d.log.Debug("Unknown app message type",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.String("type", env.Type))
	}
}

func (d *Dispatcher) handleSubscriptionUpdate(s *session.Session, pkg string, raw []byte) {
	var msg types.SubscriptionUpdate
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		d.log.Debug("Malformed subscription update",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.Error(err))
		return
	}

	if err := d.subs.Update(s.ID, pkg, s.UserID, msg.Subscriptions); err != nil {
		d.sendError(s, pkg, "invalid_subscription", err)
		return
	}
	d.replayCaches(s, pkg)
}

// replayCaches primes a freshly subscribed app with the session's most
// recent calendar events and location fix, so apps that subscribe after
// the phone pushed them still see current values.
func (d *Dispatcher) replayCaches(s *session.Session, pkg string) {
	var wantsCalendar, wantsLocation bool
	for _, sel := range d.subs.ListSubscriptions(s.ID, pkg) {
		if sel.Matches(types.Selector(types.StreamCalendarEvent)) {
			wantsCalendar = true
		}
		if sel.Matches(types.Selector(types.StreamLocationUpdate)) {
			wantsLocation = true
		}
	}

	if wantsCalendar {
		for _, ev := range d.subs.CalendarEvents(s.ID) {
			payload, err := sonic.Marshal(ev)
			if err != nil {
				continue
			}
			d.sendStream(s, pkg, types.StreamCalendarEvent, payload, ev.Timestamp)
		}
	}
	if wantsLocation {
		if loc, ok := d.subs.LastLocation(s.ID); ok {
			payload, err := sonic.Marshal(loc)
			if err == nil {
				d.sendStream(s, pkg, types.StreamLocationUpdate, payload, loc.Timestamp)
			}
		}
	}
}

func (d *Dispatcher) sendStream(s *session.Session, pkg string, stream types.StreamType, payload []byte, ts time.Time) {
	msg := types.DataStream{
		Type:      types.MsgDataStream,
		Stream:    stream,
		SessionID: s.ID,
		Payload:   payload,
		Timestamp: ts,
	}
	if err := s.SendToTpa(pkg, msg); err != nil {
		d.log.Debug("Cached stream not delivered",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.String("stream", string(stream)),
			zap.Error(err))
	}
}

func (d *Dispatcher) handleDisplayRequest(s *session.Session, pkg string, raw []byte) {
	var msg types.DisplayMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		d.log.Debug("Malformed display request",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.Error(err))
		return
	}

	msg.PackageName = pkg
	msg.Layout = utils.SanitizeLayout(msg.Layout)
	s.Display.HandleDisplayRequest(msg.Request())
}

func (d *Dispatcher) handlePhotoRequest(s *session.Session, pkg string, raw []byte) {
	var msg types.PhotoRequestMessage
	if err := sonic.Unmarshal(raw, &msg); err != nil {
		d.log.Debug("Malformed photo request",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.Error(err))
		return
	}

	msg.PackageName = pkg
	if _, err := s.Photos.RequestPhoto(msg); err != nil {
		failure := types.PhotoError{
			Type:  types.MsgPhotoError,
			Error: err.Error(),
		}
		if serr := s.SendToTpa(pkg, failure); serr != nil {
			d.log.Debug("Photo failure notice not delivered",
				zap.String("session_id", s.ID),
				zap.String("package_name", pkg),
				zap.Error(serr))
		}
	}
}

func (d *Dispatcher) sendError(s *session.Session, pkg, code string, cause error) {
	msg := types.ErrorMessage{
		Type:    types.MsgError,
		Code:    code,
		Message: cause.Error(),
	}
	if err := s.SendToTpa(pkg, msg); err != nil {
		d.log.Debug("Error notice not delivered",
			zap.String("session_id", s.ID),
			zap.String("package_name", pkg),
			zap.Error(err))
	}
}
