package types

import (
	"encoding/json"
	"time"
)

// Message type tags that are not themselves stream tags.
const (
	MsgConnectionAck      = "connection_ack"
	MsgTpaConnectionAck   = "tpa_connection_ack"
	MsgStartApp           = "start_app"
	MsgStopApp            = "stop_app"
	MsgPhotoRequest       = "photo_request"
	MsgPhotoResponse      = "photo_response"
	MsgPhotoError         = "photo_error"
	MsgDisplayEvent       = "display_event"
	MsgDisplayRequest     = "display_request"
	MsgDataStream         = "data_stream"
	MsgSubscriptionUpdate = "subscription_update"
	MsgAppStateChange     = "app_state_change"
	MsgError              = "error"
)

// GlassesEnvelope is the decoded header of a glasses-to-cloud message.
// Only the fields relevant to the message type are populated; the raw
// bytes are kept alongside for verbatim relay to subscribed apps.
type GlassesEnvelope struct {
	Type           string `json:"type"`
	PackageName    string `json:"package_name,omitempty"`
	RequestID      string `json:"request_id,omitempty"`
	PhotoURL       string `json:"photo_url,omitempty"`
	SavedToGallery bool   `json:"saved_to_gallery,omitempty"`
}

// TpaEnvelope is the decoded header of an app-to-cloud message.
type TpaEnvelope struct {
	Type        string `json:"type"`
	PackageName string `json:"package_name,omitempty"`
}

// SubscriptionUpdate replaces an app's subscription set wholesale.
type SubscriptionUpdate struct {
	Type          string   `json:"type"`
	PackageName   string   `json:"package_name"`
	Subscriptions []string `json:"subscriptions"`
}

// DisplayMessage carries an app's display request over the socket.
type DisplayMessage struct {
	Type         string   `json:"type"`
	PackageName  string   `json:"package_name"`
	View         ViewType `json:"view"`
	Layout       Layout   `json:"layout"`
	DurationMs   *int64   `json:"duration_ms,omitempty"`
	ForceDisplay bool     `json:"force_display,omitempty"`
}

// Request converts the wire message into a domain display request.
func (m DisplayMessage) Request() DisplayRequest {
	view := m.View
	if view == "" {
		view = ViewMain
	}
	return DisplayRequest{
		PackageName:  m.PackageName,
		View:         view,
		Layout:       m.Layout,
		DurationMs:   m.DurationMs,
		ForceDisplay: m.ForceDisplay,
	}
}

// PhotoRequestMessage is an app's request to capture a photo.
type PhotoRequestMessage struct {
	Type          string `json:"type"`
	PackageName   string `json:"package_name"`
	SaveToGallery bool   `json:"save_to_gallery,omitempty"`
}

// PhotoCommand instructs the glasses to capture a photo.
type PhotoCommand struct {
	Type          string    `json:"type"`
	RequestID     string    `json:"request_id"`
	PackageName   string    `json:"package_name"`
	SaveToGallery bool      `json:"save_to_gallery"`
	Timestamp     time.Time `json:"timestamp"`
}

// PhotoResponse is the glasses' reply to a photo command, forwarded
// verbatim to the requesting app.
type PhotoResponse struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id"`
	PhotoURL       string `json:"photo_url"`
	SavedToGallery bool   `json:"saved_to_gallery"`
}

// PhotoError tells the requesting app a photo request failed terminally.
type PhotoError struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Error     string `json:"error"`
}

// ConnectionAck confirms a glasses connection and names its session.
type ConnectionAck struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// TpaConnectionAck confirms an app connection to a session.
type TpaConnectionAck struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	PackageName string    `json:"package_name"`
	Timestamp   time.Time `json:"timestamp"`
}

// DataStream wraps a relayed glasses payload for a subscribed app.
type DataStream struct {
	Type      string          `json:"type"`
	Stream    StreamType      `json:"stream"`
	SessionID string          `json:"session_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// AppStateChange notifies the glasses of the running app set.
type AppStateChange struct {
	Type        string   `json:"type"`
	RunningApps []string `json:"running_apps"`
}

// ErrorMessage is a terminal error sent to either socket peer.
type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Location is the last reported geographic fix for a session, cached for
// replay to newly subscribing apps.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CalendarEvent mirrors the phone calendar entry most recently pushed
// through a session, cached for replay to newly subscribing apps.
type CalendarEvent struct {
	EventID   string    `json:"event_id"`
	Title     string    `json:"title"`
	DtStart   string    `json:"dt_start"`
	DtEnd     string    `json:"dt_end"`
	TimeZone  string    `json:"time_zone,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
