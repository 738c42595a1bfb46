package session

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/domain/app"
	"github.com/lumena-io/glasscloud/internal/domain/apps"
	"github.com/lumena-io/glasscloud/internal/domain/display"
	"github.com/lumena-io/glasscloud/internal/domain/photo"
	"github.com/lumena-io/glasscloud/internal/domain/subscription"
	"github.com/lumena-io/glasscloud/internal/infrastructure/config"
	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/infrastructure/monitoring"
	"github.com/lumena-io/glasscloud/internal/shared/id"
)

// Notifier receives session lifecycle events, typically for webhook
// delivery. Calls must not block session teardown for long.
type Notifier interface {
	SessionEnded(sessionID, userID string, packages []string)
}

// ManagerOptions configures a Manager. Subscriptions is required; the
// rest default.
type ManagerOptions struct {
	Display       config.DisplayConfig
	Photo         config.PhotoConfig
	Apps          config.AppsConfig
	Clock         clock.Clock
	Registry      *apps.Registry
	Subscriptions *subscription.Registry
	Notifier      Notifier
	Log           *logging.Logger
	Metrics       *monitoring.Metrics
}

// Manager is the explicitly constructed owner of all live sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	displayCfg config.DisplayConfig
	photoCfg   config.PhotoConfig
	appsCfg    config.AppsConfig

	clk      clock.Clock
	registry *apps.Registry
	subs     *subscription.Registry
	notifier Notifier
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewManager creates an empty session manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Log == nil {
		opts.Log = logging.NewNop()
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		displayCfg: opts.Display,
		photoCfg:   opts.Photo,
		appsCfg:    opts.Apps,
		clk:        opts.Clock,
		registry:   opts.Registry,
		subs:       opts.Subscriptions,
		notifier:   opts.Notifier,
		log:        opts.Log,
		metrics:    opts.Metrics,
	}
}

// Create builds a session for the user with fresh per-session
// components and registers it.
func (m *Manager) Create(userID string) *Session {
	sessionID := id.NewSessionID().String()

	s := &Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: m.clk.Now(),
		Apps:      app.NewManager(m.clk),
		tpas:      make(map[string]Conn),
		log:       m.log.ForSession(sessionID, userID),
	}
	s.Display = display.NewArbiter(display.Options{
		SessionID:        sessionID,
		Sender:           s,
		Clock:            m.clk,
		Names:            m.registry,
		Log:              m.log,
		Metrics:          m.metrics,
		BootDuration:     m.displayCfg.BootDuration(),
		Throttle:         m.displayCfg.Throttle(),
		LockTimeout:      m.displayCfg.LockTimeout(),
		LockInactive:     m.displayCfg.LockInactive(),
		DashboardPackage: m.appsCfg.DashboardPackage,
		CorePackage:      m.appsCfg.CorePackage,
	})
	s.Photos = photo.NewCoordinator(photo.Options{
		SessionID: sessionID,
		Transport: s,
		Clock:     m.clk,
		Timeout:   m.photoCfg.RequestTimeout(),
		Log:       m.log,
		Metrics:   m.metrics,
	})

	m.mu.Lock()
	m.sessions[sessionID] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SetSessionsActive(count)
	m.metrics.IncSessionsTotal()
	m.log.Info("Session created",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return s
}

// Get returns the session by ID.
func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// List returns all live sessions ordered by creation time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// End tears the session down: photo coordinator first so no late
// response touches a dead session, then arbiter timers, then
// subscription state, then transports. It reports false for an unknown
// session; ending twice is safe.
func (m *Manager) End(sessionID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, sessionID)
	count := len(m.sessions)
	m.mu.Unlock()

	packages := s.Apps.Packages()

	s.Photos.Dispose()
	s.Display.Dispose()
	for _, pkg := range packages {
		m.subs.Remove(sessionID, pkg)
	}
	m.subs.PurgeSession(sessionID)
	s.closeTransports()

	m.metrics.SetSessionsActive(count)
	m.metrics.AddAppsRunning(-len(packages))
	m.log.Info("Session ended",
		zap.String("session_id", sessionID),
		zap.String("user_id", s.UserID),
		zap.Int("apps", len(packages)))

	if m.notifier != nil {
		m.notifier.SessionEnded(sessionID, s.UserID, packages)
	}
	return true
}

// EndAll ends every live session, for server shutdown.
func (m *Manager) EndAll() {
	for _, s := range m.List() {
		m.End(s.ID)
	}
}
