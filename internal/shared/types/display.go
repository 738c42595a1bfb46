package types

import "time"

// ViewType names a rendering surface on the glasses.
type ViewType string

const (
	ViewMain      ViewType = "main"
	ViewDashboard ViewType = "dashboard"
)

// LayoutType names a renderable layout shape.
type LayoutType string

const (
	LayoutTextWall       LayoutType = "text_wall"
	LayoutDoubleTextWall LayoutType = "double_text_wall"
	LayoutReferenceCard  LayoutType = "reference_card"
	LayoutDashboardCard  LayoutType = "dashboard_card"
)

// Layout is the renderable payload of a display request. Which fields are
// meaningful depends on the layout type; unused fields stay empty.
type Layout struct {
	LayoutType LayoutType `json:"layout_type"`
	Title      string     `json:"title,omitempty"`
	Text       string     `json:"text,omitempty"`
	TopText    string     `json:"top_text,omitempty"`
	BottomText string     `json:"bottom_text,omitempty"`
	LeftText   string     `json:"left_text,omitempty"`
	RightText  string     `json:"right_text,omitempty"`
}

// DisplayRequest is an app's request to draw on a glasses surface.
// DurationMs nil means the content stays until replaced; zero or negative
// means it is already expired and eligible for immediate replacement.
type DisplayRequest struct {
	PackageName  string   `json:"package_name"`
	View         ViewType `json:"view"`
	Layout       Layout   `json:"layout"`
	DurationMs   *int64   `json:"duration_ms,omitempty"`
	ForceDisplay bool     `json:"force_display,omitempty"`
}

// DisplayEvent is the frame actually sent down to the glasses.
type DisplayEvent struct {
	Type        string    `json:"type"`
	PackageName string    `json:"package_name"`
	View        ViewType  `json:"view"`
	Layout      Layout    `json:"layout"`
	Timestamp   time.Time `json:"timestamp"`
}
