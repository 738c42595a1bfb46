// Package apps maintains the registry of known glasses apps and their
// manifests.
package apps

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/lumena-io/glasscloud/internal/infrastructure/logging"
	"github.com/lumena-io/glasscloud/internal/shared/types"
	"github.com/lumena-io/glasscloud/internal/shared/utils"
)

// Kind classifies an app's privilege level.
type Kind string

const (
	// KindSystem apps own reserved surfaces (the dashboard) and bypass
	// display arbitration.
	KindSystem Kind = "system"
	// KindCore apps hold standing display priority (live captions).
	KindCore Kind = "core"
	// KindBackground apps compete for the main view via the background
	// lock.
	KindBackground Kind = "background"
)

// App describes an installable glasses app.
type App struct {
	PackageName string   `yaml:"package" json:"package_name"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        Kind     `yaml:"kind" json:"kind"`
	WebhookURL  string   `yaml:"webhook_url,omitempty" json:"webhook_url,omitempty"`
	Streams     []string `yaml:"streams,omitempty" json:"streams,omitempty"`
}

// Registry holds known app manifests. Apps without a manifest entry are
// still allowed to connect; the registry then grants them every stream.
type Registry struct {
	mu     sync.RWMutex
	apps   map[string]App
	logger *logging.Logger
}

// NewRegistry creates an empty app registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		apps:   make(map[string]App),
		logger: logger,
	}
}

// Register validates and stores an app manifest, replacing any earlier
// entry for the same package.
func (r *Registry) Register(app App) error {
	if err := utils.ValidatePackageName(app.PackageName); err != nil {
		return err
	}
	switch app.Kind {
	case KindSystem, KindCore, KindBackground:
	case "":
		app.Kind = KindBackground
	default:
		return fmt.Errorf("app %s: unknown kind %q", app.PackageName, app.Kind)
	}
	for _, pattern := range app.Streams {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("app %s: bad stream pattern %q", app.PackageName, pattern)
		}
	}

	r.mu.Lock()
	r.apps[app.PackageName] = app
	r.mu.Unlock()

	r.logger.Debug("App registered",
		zap.String("package_name", app.PackageName),
		zap.String("kind", string(app.Kind)),
	)
	return nil
}

// Get returns the manifest for a package.
func (r *Registry) Get(pkg string) (App, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[pkg]
	return app, ok
}

// List returns all manifests sorted by package name.
func (r *Registry) List() []App {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]App, 0, len(r.apps))
	for _, app := range r.apps {
		out = append(out, app)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PackageName < out[j].PackageName
	})
	return out
}

// Count returns the number of registered manifests.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.apps)
}

// AllowsStream reports whether the app may subscribe to the selector.
// Apps without a manifest, and manifests without stream patterns, are
// unrestricted.
func (r *Registry) AllowsStream(pkg string, sel types.Selector) bool {
	r.mu.RLock()
	app, ok := r.apps[pkg]
	r.mu.RUnlock()

	if !ok || len(app.Streams) == 0 {
		return true
	}
	for _, pattern := range app.Streams {
		if matched, err := doublestar.Match(pattern, string(sel)); err == nil && matched {
			return true
		}
	}
	return false
}

// KindOf returns the app's kind, defaulting to background for unknown
// packages.
func (r *Registry) KindOf(pkg string) Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if app, ok := r.apps[pkg]; ok {
		return app.Kind
	}
	return KindBackground
}

// DisplayName returns the app's human-readable name, falling back to the
// package name when no manifest names one.
func (r *Registry) DisplayName(pkg string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if app, ok := r.apps[pkg]; ok && app.Name != "" {
		return app.Name
	}
	return pkg
}

// WebhookURL returns the app's lifecycle webhook endpoint, empty when
// none is configured.
func (r *Registry) WebhookURL(pkg string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.apps[pkg].WebhookURL
}
