// Package app tracks the set of apps running inside one session.
package app

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// State is an app's lifecycle phase within a session.
type State string

const (
	// StateStarting means the start command went out but the app's
	// socket has not attached yet.
	StateStarting State = "starting"
	// StateRunning means the app's socket is attached.
	StateRunning State = "running"
)

// App is one running app's lifecycle record.
type App struct {
	PackageName string     `json:"package_name"`
	State       State      `json:"state"`
	StartedAt   time.Time  `json:"started_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// Stats summarizes a session's app set.
type Stats struct {
	Total    int `json:"total"`
	Starting int `json:"starting"`
	Running  int `json:"running"`
}

// Manager owns one session's running-app set. An absent package is a
// stopped app; there is no terminal state to garbage-collect.
type Manager struct {
	mu   sync.RWMutex
	clk  clock.Clock
	apps map[string]*App
}

// NewManager creates an empty app set.
func NewManager(clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		clk:  clk,
		apps: make(map[string]*App),
	}
}

// Start marks the package as starting. It reports false when the app is
// already tracked, leaving the existing record untouched.
func (m *Manager) Start(pkg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[pkg]; ok {
		return false
	}
	m.apps[pkg] = &App{
		PackageName: pkg,
		State:       StateStarting,
		StartedAt:   m.clk.Now(),
	}
	return true
}

// Connected marks the package's socket as attached. An app that connects
// without a prior start command is registered on the spot.
func (m *Manager) Connected(pkg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	a, ok := m.apps[pkg]
	if !ok {
		a = &App{PackageName: pkg, StartedAt: now}
		m.apps[pkg] = a
	}
	a.State = StateRunning
	a.ConnectedAt = &now
}

// Stop removes the package from the session. It reports false when the
// app was not tracked.
func (m *Manager) Stop(pkg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[pkg]; !ok {
		return false
	}
	delete(m.apps, pkg)
	return true
}

// Get returns a copy of the package's record.
func (m *Manager) Get(pkg string) (App, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.apps[pkg]
	if !ok {
		return App{}, false
	}
	return *a, true
}

// IsStarted reports whether the package is tracked at all.
func (m *Manager) IsStarted(pkg string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.apps[pkg]
	return ok
}

// IsRunning reports whether the package's socket is attached.
func (m *Manager) IsRunning(pkg string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.apps[pkg]
	return ok && a.State == StateRunning
}

// List returns copies of every record, sorted by package name.
func (m *Manager) List() []App {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]App, 0, len(m.apps))
	for _, a := range m.apps {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PackageName < out[j].PackageName
	})
	return out
}

// Packages returns every tracked package name, sorted. This is the
// set reported to the glasses in app state changes; apps still booting
// count as present.
func (m *Manager) Packages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.apps))
	for pkg := range m.apps {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// Running returns the package names whose sockets are attached, sorted.
func (m *Manager) Running() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.apps))
	for pkg, a := range m.apps {
		if a.State == StateRunning {
			out = append(out, pkg)
		}
	}
	sort.Strings(out)
	return out
}

// Stats returns counts per lifecycle phase.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Total: len(m.apps)}
	for _, a := range m.apps {
		switch a.State {
		case StateStarting:
			s.Starting++
		case StateRunning:
			s.Running++
		}
	}
	return s
}
