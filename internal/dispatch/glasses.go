package dispatch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/domain/session"
	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// GlassesConnected attaches the glasses socket, acknowledges the
// connection and replays the current app set. Called on connect and on
// reconnect to an existing session.
func (d *Dispatcher) GlassesConnected(s *session.Session, conn session.Conn) {
	s.AttachGlasses(conn)

	ack := types.ConnectionAck{
		Type:      types.MsgConnectionAck,
		SessionID: s.ID,
		UserID:    s.UserID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.SendToGlasses(ack); err != nil {
		d.log.Warn("Connection ack not delivered",
			zap.String("session_id", s.ID),
			zap.Error(err))
		return
	}
	d.sendAppState(s)
}

// HandleGlassesMessage routes one text frame from the glasses socket.
// Lifecycle commands and photo responses are handled here; every other
// recognized type is a stream tag relayed to subscribed apps.
func (d *Dispatcher) HandleGlassesMessage(s *session.Session, raw []byte) {
	var env types.GlassesEnvelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		d.log.Debug("Dropping unparseable glasses message",
			zap.String("session_id", s.ID),
			zap.Error(err))
		return
	}
	d.metrics.RecordWSMessage("in", env.Type)

	if d.tracer != nil {
		span, _ := d.tracer.StartEventSpan(context.Background(), s.ID, env.Type)
		defer span.Finish()
	}

	switch env.Type {
	case types.MsgStartApp:
		d.StartApp(s, env.PackageName)
	case types.MsgStopApp:
		d.StopApp(s, env.PackageName)
	case types.MsgPhotoResponse:
		s.Photos.HandleResponse(env.RequestID, json.RawMessage(raw))
	default:
		stream := types.StreamType(env.Type)
		if !types.KnownStream(stream) {
			d.log.Debug("Unknown glasses message type",
				zap.String("session_id", s.ID),
				zap.String("type", env.Type))
			return
		}
		d.relayStream(s, stream, raw)
	}
}

// HandleAudioChunk fans a binary audio frame out to subscribed apps.
// The media gate keeps the hot path cheap when nothing listens.
func (d *Dispatcher) HandleAudioChunk(s *session.Session, data []byte) {
	if !d.subs.HasAnyMediaSubscription(s.ID) {
		return
	}
	for _, pkg := range d.subs.GetSubscribers(s.ID, types.Selector(types.StreamAudioChunk)) {
		if err := s.SendBinaryToTpa(pkg, data); err != nil {
			d.log.Debug("Audio chunk not delivered",
				zap.String("session_id", s.ID),
				zap.String("package_name", pkg),
				zap.Error(err))
		}
	}
}

// relayStream caches replayable payloads and forwards the raw frame to
// every app subscribed to the stream.
func (d *Dispatcher) relayStream(s *session.Session, stream types.StreamType, raw []byte) {
	d.cacheStream(s, stream, raw)

	subscribers := d.subs.GetSubscribers(s.ID, types.Selector(stream))
	if len(subscribers) == 0 {
		return
	}

	msg := types.DataStream{
		Type:      types.MsgDataStream,
		Stream:    stream,
		SessionID: s.ID,
		Payload:   json.RawMessage(raw),
		Timestamp: time.Now().UTC(),
	}
	for _, pkg := range subscribers {
		if err := s.SendToTpa(pkg, msg); err != nil {
			d.log.Debug("Stream not delivered",
				zap.String("session_id", s.ID),
				zap.String("package_name", pkg),
				zap.String("stream", string(stream)),
				zap.Error(err))
		}
	}
}

// cacheStream stores calendar and location payloads so late subscribers
// can be primed with the most recent values.
func (d *Dispatcher) cacheStream(s *session.Session, stream types.StreamType, raw []byte) {
	switch stream {
	case types.StreamCalendarEvent:
		var ev types.CalendarEvent
		if err := sonic.Unmarshal(raw, &ev); err != nil {
			d.log.Debug("Malformed calendar event",
				zap.String("session_id", s.ID),
				zap.Error(err))
			return
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		d.subs.CacheCalendarEvent(s.ID, ev)
	case types.StreamLocationUpdate:
		var loc types.Location
		if err := sonic.Unmarshal(raw, &loc); err != nil {
			d.log.Debug("Malformed location update",
				zap.String("session_id", s.ID),
				zap.Error(err))
			return
		}
		if loc.Timestamp.IsZero() {
			loc.Timestamp = time.Now().UTC()
		}
		d.subs.CacheLocation(s.ID, loc)
	}
}
