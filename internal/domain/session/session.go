package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/domain/app"
	"github.com/lumena-io/glasscloud/internal/domain/display"
	"github.com/lumena-io/glasscloud/internal/domain/photo"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/shared/types"
)

// ErrNotConnected reports a send on an absent or closed transport
// handle.
var ErrNotConnected = errors.New("transport not connected")

// Conn is one outbound transport handle. Implementations serialize
// writes internally; the session never holds its own lock across a
// send.
type Conn interface {
	Send(v any) error
	SendBinary(data []byte) error
	Open() bool
	Close() error
}

// Session correlates one glasses connection with its attached apps and
// owns the per-session coordination components. Handles may be absent
// or closed at any moment; every send probes first and reports failure
// as a value.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	Apps    *app.Manager
	Display *display.Arbiter
	Photos  *photo.Coordinator

	mu      sync.RWMutex
	glasses Conn
	tpas    map[string]Conn

	log *logging.Logger
}

// AttachGlasses installs the glasses handle, closing any previous one.
func (s *Session) AttachGlasses(c Conn) {
	s.mu.Lock()
	old := s.glasses
	s.glasses = c
	s.mu.Unlock()

	if old != nil && old.Open() {
		old.Close()
	}
	s.log.Debug("Glasses connection attached",
		zap.String("session_id", s.ID))
}

// GlassesOpen reports whether the glasses handle is present and open.
func (s *Session) GlassesOpen() bool {
	s.mu.RLock()
	c := s.glasses
	s.mu.RUnlock()
	return c != nil && c.Open()
}

// AttachTpa installs an app's handle, closing any previous one, and
// marks the app as connected.
func (s *Session) AttachTpa(pkg string, c Conn) {
	s.mu.Lock()
	old := s.tpas[pkg]
	s.tpas[pkg] = c
	s.mu.Unlock()

	if old != nil && old.Open() {
		old.Close()
	}
	s.Apps.Connected(pkg)
	s.log.Debug("App connection attached",
		zap.String("session_id", s.ID),
		zap.String("package_name", pkg))
}

// DetachTpa removes an app's handle. It reports false when the package
// had none. The app's lifecycle state is the caller's business.
func (s *Session) DetachTpa(pkg string) bool {
	s.mu.Lock()
	c, ok := s.tpas[pkg]
	delete(s.tpas, pkg)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if c.Open() {
		c.Close()
	}
	return true
}

// TpaOpen reports whether the package's handle is present and open.
func (s *Session) TpaOpen(pkg string) bool {
	s.mu.RLock()
	c := s.tpas[pkg]
	s.mu.RUnlock()
	return c != nil && c.Open()
}

// TpaAttached reports whether c is the package's currently attached
// handle. A read loop whose connection was replaced must not tear the
// replacement down.
func (s *Session) TpaAttached(pkg string, c Conn) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tpas[pkg] == c
}

// TpaPackages returns the packages with an attached handle.
func (s *Session) TpaPackages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.tpas))
	for pkg := range s.tpas {
		out = append(out, pkg)
	}
	return out
}

// SendToGlasses writes one message to the glasses socket.
func (s *Session) SendToGlasses(v any) error {
	s.mu.RLock()
	c := s.glasses
	s.mu.RUnlock()

	if c == nil || !c.Open() {
		return fmt.Errorf("glasses for %s: %w", s.ID, ErrNotConnected)
	}
	return c.Send(v)
}

// SendToTpa writes one message to an app's socket.
func (s *Session) SendToTpa(pkg string, v any) error {
	s.mu.RLock()
	c := s.tpas[pkg]
	s.mu.RUnlock()

	if c == nil || !c.Open() {
		return fmt.Errorf("app %s: %w", pkg, ErrNotConnected)
	}
	return c.Send(v)
}

// SendBinaryToTpa writes one binary frame to an app's socket. Audio
// chunks relay this way.
func (s *Session) SendBinaryToTpa(pkg string, data []byte) error {
	s.mu.RLock()
	c := s.tpas[pkg]
	s.mu.RUnlock()

	if c == nil || !c.Open() {
		return fmt.Errorf("app %s: %w", pkg, ErrNotConnected)
	}
	return c.SendBinary(data)
}

// SendDisplay delivers a display frame to the glasses, reporting
// success to the arbiter.
func (s *Session) SendDisplay(ev types.DisplayEvent) bool {
	if err := s.SendToGlasses(ev); err != nil {
		s.log.Debug("Display frame not delivered",
			zap.String("session_id", s.ID),
			zap.Error(err))
		return false
	}
	return true
}

// IsAppRunning reports whether the package is lifecycle-started and its
// socket is attached and open, probed at call time.
func (s *Session) IsAppRunning(pkg string) bool {
	return s.Apps.IsRunning(pkg) && s.TpaOpen(pkg)
}

// closeTransports closes every app handle and then the glasses handle.
func (s *Session) closeTransports() {
	s.mu.Lock()
	conns := make([]Conn, 0, len(s.tpas)+1)
	for _, c := range s.tpas {
		conns = append(conns, c)
	}
	s.tpas = make(map[string]Conn)
	if s.glasses != nil {
		conns = append(conns, s.glasses)
		s.glasses = nil
	}
	s.mu.Unlock()

	for _, c := range conns {
		if c.Open() {
			c.Close()
		}
	}
}

// Info is a point-in-time snapshot of a session for the ops surface.
type Info struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	CreatedAt        time.Time     `json:"created_at"`
	GlassesConnected bool          `json:"glasses_connected"`
	Apps             []app.App     `json:"apps"`
	Display          display.State `json:"display"`
	PendingPhotos    int           `json:"pending_photos"`
}

// Info captures the session's current state.
func (s *Session) Info() Info {
	return Info{
		ID:               s.ID,
		UserID:           s.UserID,
		CreatedAt:        s.CreatedAt,
		GlassesConnected: s.GlassesOpen(),
		Apps:             s.Apps.List(),
		Display:          s.Display.State(),
		PendingPhotos:    s.Photos.Pending(),
	}
}
